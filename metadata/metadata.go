// Package metadata reads song records from audio files on disk.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dhowden/tag"
	log "github.com/sirupsen/logrus"

	"playset/database"
	"playset/models"
	"playset/playset"
)

// Error reports a song whose metadata could not be read.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("reading metadata of %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// TagExtractor reads ID3, MP4, FLAC and Ogg tags. Files without any tags
// still produce a record that carries only the file name.
type TagExtractor struct {
	logger *log.Entry
}

func NewTagExtractor() *TagExtractor {
	return &TagExtractor{
		logger: log.WithFields(log.Fields{
			"module": "metadata",
		}),
	}
}

func (x *TagExtractor) Extract(ctx context.Context, path string) (models.Song, error) {
	if err := ctx.Err(); err != nil {
		return models.Song{}, err
	}
	x.logger.Tracef("reading song data from %s", path)

	f, err := os.Open(path)
	if err != nil {
		return models.Song{}, &Error{Path: path, Err: err}
	}
	defer f.Close()

	song := models.Song{Name: filepath.Base(path)}
	meta, err := tag.ReadFrom(f)
	if errors.Is(err, tag.ErrNoTagsFound) {
		x.logger.Debugf("no tags in %s", path)
		return song, nil
	}
	if err != nil {
		return models.Song{}, &Error{Path: path, Err: err}
	}

	// The tag formats carry no playing time, so DurationSeconds stays zero
	// unless a cached record provides it.
	song.Genre = meta.Genre()
	song.Artist = meta.Artist()
	song.Album = meta.Album()
	return song, nil
}

// CachedExtractor answers from the database while a file is unchanged and
// falls back to the wrapped extractor otherwise.
type CachedExtractor struct {
	db     *database.Database
	next   playset.Extractor
	logger *log.Entry
}

func NewCachedExtractor(db *database.Database, next playset.Extractor) *CachedExtractor {
	return &CachedExtractor{
		db:   db,
		next: next,
		logger: log.WithFields(log.Fields{
			"module": "metadata-cache",
		}),
	}
}

func (c *CachedExtractor) Extract(ctx context.Context, path string) (models.Song, error) {
	info, err := os.Stat(path)
	if err != nil {
		return models.Song{}, &Error{Path: path, Err: err}
	}

	song, ok, err := c.db.GetSong(path, info.ModTime(), info.Size())
	if err != nil {
		c.logger.Warnf("cache lookup for %s failed: %v", path, err)
	} else if ok {
		return song, nil
	}

	song, err = c.next.Extract(ctx, path)
	if err != nil {
		return models.Song{}, err
	}
	if err := c.db.PutSong(path, info.ModTime(), info.Size(), song); err != nil {
		c.logger.Warnf("caching metadata for %s failed: %v", path, err)
	}
	return song, nil
}
