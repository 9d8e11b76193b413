package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"playset/models"
)

type Database struct {
	db *sql.DB
}

// LoadRecord summarises one library load.
type LoadRecord struct {
	ID        int64     `json:"id"`
	Items     int       `json:"items"`
	Sets      int       `json:"sets"`
	Failures  int       `json:"failures"`
	ElapsedMS int64     `json:"elapsed_ms"`
	LoadedAt  time.Time `json:"loaded_at"`
}

// New opens (and creates if needed) the SQLite database at dbPath.
func New(dbPath string) (*Database, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	d := &Database{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Infof("Database initialized at %s", dbPath)
	return d, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS song_metadata (
			path TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			genre TEXT NOT NULL DEFAULT '',
			artist TEXT NOT NULL DEFAULT '',
			album TEXT NOT NULL DEFAULT '',
			duration_seconds INTEGER NOT NULL DEFAULT 0,
			mod_time INTEGER NOT NULL,
			size INTEGER NOT NULL,
			cached_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS load_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			items INTEGER NOT NULL,
			sets INTEGER NOT NULL,
			failures INTEGER NOT NULL DEFAULT 0,
			elapsed_ms INTEGER NOT NULL DEFAULT 0,
			loaded_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_load_history_loaded_at ON load_history(loaded_at DESC)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}

	return nil
}

// GetSong returns the cached metadata for path if the file has not changed
// since it was cached.
func (d *Database) GetSong(path string, modTime time.Time, size int64) (models.Song, bool, error) {
	var song models.Song
	err := d.db.QueryRow(
		`SELECT name, genre, artist, album, duration_seconds
		 FROM song_metadata
		 WHERE path = ? AND mod_time = ? AND size = ?`,
		path, modTime.UnixNano(), size,
	).Scan(&song.Name, &song.Genre, &song.Artist, &song.Album, &song.DurationSeconds)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Song{}, false, nil
	}
	if err != nil {
		return models.Song{}, false, fmt.Errorf("failed to query song metadata: %w", err)
	}
	return song, true, nil
}

// PutSong stores or replaces the cached metadata for path.
func (d *Database) PutSong(path string, modTime time.Time, size int64, song models.Song) error {
	_, err := d.db.Exec(
		`INSERT OR REPLACE INTO song_metadata (path, name, genre, artist, album, duration_seconds, mod_time, size, cached_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		path, song.Name, song.Genre, song.Artist, song.Album, song.DurationSeconds,
		modTime.UnixNano(), size, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to cache song metadata: %w", err)
	}
	return nil
}

// CountSongs returns the number of cached metadata rows.
func (d *Database) CountSongs() (int, error) {
	var count int
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM song_metadata`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count song metadata: %w", err)
	}
	return count, nil
}

// RecordLoad inserts a library load record.
func (d *Database) RecordLoad(items, sets, failures int, elapsed time.Duration) error {
	_, err := d.db.Exec(
		`INSERT INTO load_history (items, sets, failures, elapsed_ms, loaded_at) VALUES (?, ?, ?, ?, ?)`,
		items, sets, failures, elapsed.Milliseconds(), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to record load: %w", err)
	}
	return nil
}

// GetLoadHistory returns the most recent loads, newest first.
func (d *Database) GetLoadHistory(limit int) ([]LoadRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := d.db.Query(
		`SELECT id, items, sets, failures, elapsed_ms, loaded_at
		 FROM load_history
		 ORDER BY id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query load history: %w", err)
	}
	defer rows.Close()

	var records []LoadRecord
	for rows.Next() {
		var r LoadRecord
		var loadedAt string
		if err := rows.Scan(&r.ID, &r.Items, &r.Sets, &r.Failures, &r.ElapsedMS, &loadedAt); err != nil {
			return nil, fmt.Errorf("failed to scan load history row: %w", err)
		}
		r.LoadedAt = parseTimestamp(loadedAt)
		records = append(records, r)
	}
	return records, rows.Err()
}

func parseTimestamp(s string) time.Time {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t
		}
	}
	log.Warnf("failed to parse timestamp '%s' with all known formats", s)
	return time.Now()
}
