package playset

import (
	"sort"

	"playset/models"
)

// ItemSet is a resolved collection of songs keyed by song name.
type ItemSet map[string]models.Song

func NewItemSet(songs ...models.Song) ItemSet {
	s := make(ItemSet, len(songs))
	for _, song := range songs {
		s[song.Name] = song
	}
	return s
}

// Resolve makes an ItemSet usable as the parser's item resolver.
func (s ItemSet) Resolve(name string) (models.Song, bool) {
	song, ok := s[name]
	return song, ok
}

func (s ItemSet) Add(song models.Song) {
	s[song.Name] = song
}

func (s ItemSet) Contains(name string) bool {
	_, ok := s[name]
	return ok
}

func (s ItemSet) Clone() ItemSet {
	out := make(ItemSet, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

func (s ItemSet) Union(other ItemSet) ItemSet {
	out := s.Clone()
	for k, v := range other {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return out
}

func (s ItemSet) Intersection(other ItemSet) ItemSet {
	out := make(ItemSet)
	for k, v := range s {
		if _, ok := other[k]; ok {
			out[k] = v
		}
	}
	return out
}

// Difference returns the songs of s that are not in other.
func (s ItemSet) Difference(other ItemSet) ItemSet {
	out := make(ItemSet)
	for k, v := range s {
		if _, ok := other[k]; !ok {
			out[k] = v
		}
	}
	return out
}

func (s ItemSet) Equal(other ItemSet) bool {
	if len(s) != len(other) {
		return false
	}
	for k := range s {
		if _, ok := other[k]; !ok {
			return false
		}
	}
	return true
}

func (s ItemSet) Names() []string {
	names := make([]string, 0, len(s))
	for k := range s {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Sorted returns the songs ordered by name.
func (s ItemSet) Sorted() []models.Song {
	songs := make([]models.Song, 0, len(s))
	for _, name := range s.Names() {
		songs = append(songs, s[name])
	}
	return songs
}
