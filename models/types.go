package models

import (
	"fmt"
	"time"
)

// Song is one media item of the library. Two songs are the same item when
// their names match; the remaining fields are descriptive metadata.
type Song struct {
	Name            string `json:"name"`
	Genre           string `json:"genre"`
	Artist          string `json:"artist"`
	Album           string `json:"album"`
	DurationSeconds int    `json:"duration_seconds"`
}

func (s Song) Duration() time.Duration {
	return time.Duration(s.DurationSeconds) * time.Second
}

// Title strips the file extension, which is how the player labels a song.
func (s Song) Title() string {
	for i := len(s.Name) - 1; i > 0; i-- {
		if s.Name[i] == '.' {
			return s.Name[:i]
		}
	}
	return s.Name
}

func (s Song) String() string {
	if s.Artist == "" {
		return s.Title()
	}
	return fmt.Sprintf("%s - %s", s.Artist, s.Title())
}
