// Package scancache provides a SQLite-backed cache of extracted track
// metadata, keyed by path plus file identity, so re-imports of unchanged
// files skip tag parsing.
package scancache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/rs/zerolog/log"

	"github.com/resonata-audio/resonata/internal/domain/track"
)

const (
	// CurrentSchemaVersion is the current database schema version.
	CurrentSchemaVersion = "1"

	// DefaultDBPath is the default path for the scan cache database.
	DefaultDBPath = "data/scancache.db"
)

// DB is the scan cache database. Lookups and stores are best-effort: any
// database or filesystem error degrades to a cache miss.
type DB struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// NewDB creates a scan cache instance for the given database path.
func NewDB(path string) *DB {
	if path == "" {
		path = DefaultDBPath
	}
	return &DB{path: path}
}

// Open opens the database and initializes the schema.
func (d *DB) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	dir := filepath.Dir(d.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create scan cache directory: %w", err)
	}

	db, err := sql.Open("sqlite3", d.path+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("failed to open scan cache database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	d.db = db

	if err := d.initSchema(); err != nil {
		d.db.Close()
		d.db = nil
		return fmt.Errorf("failed to initialize scan cache schema: %w", err)
	}

	log.Info().Str("path", d.path).Msg("Scan cache opened")
	return nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db != nil {
		err := d.db.Close()
		d.db = nil
		return err
	}
	return nil
}

func (d *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tracks (
		path TEXT PRIMARY KEY,
		mtime INTEGER NOT NULL,
		size INTEGER NOT NULL,
		title TEXT NOT NULL,
		artist TEXT NOT NULL DEFAULT '',
		album TEXT NOT NULL DEFAULT '',
		track_number INTEGER NOT NULL DEFAULT 0,
		duration REAL NOT NULL DEFAULT 0,
		file_format TEXT NOT NULL DEFAULT '',
		bitrate INTEGER NOT NULL DEFAULT 0,
		artwork BLOB
	);
	`
	if _, err := d.db.Exec(schema); err != nil {
		return err
	}

	var version string
	err := d.db.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&version)
	switch {
	case err == sql.ErrNoRows:
		_, err = d.db.Exec(`INSERT INTO meta (key, value) VALUES ('schema_version', ?)`, CurrentSchemaVersion)
		return err
	case err != nil:
		return err
	}

	if version != CurrentSchemaVersion {
		log.Info().
			Str("current", version).
			Str("target", CurrentSchemaVersion).
			Msg("Rebuilding scan cache for new schema")
		if _, err := d.db.Exec(`DELETE FROM tracks`); err != nil {
			return err
		}
		_, err = d.db.Exec(`UPDATE meta SET value = ? WHERE key = 'schema_version'`, CurrentSchemaVersion)
		return err
	}
	return nil
}

// Lookup returns cached metadata for path if the file is unchanged since it
// was stored. The returned track carries the identity it was stored under;
// callers re-identify it per import.
func (d *DB) Lookup(path string) (track.Track, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return track.Track{}, false
	}

	info, err := os.Stat(path)
	if err != nil {
		return track.Track{}, false
	}

	var (
		mtime, size int64
		t           = track.New(track.Locator{Path: path})
	)
	err = d.db.QueryRow(`
		SELECT mtime, size, title, artist, album, track_number, duration, file_format, bitrate, artwork
		FROM tracks WHERE path = ?`, path).
		Scan(&mtime, &size, &t.Title, &t.Artist, &t.Album, &t.TrackNumber, &t.Duration, &t.FileFormat, &t.BitrateKbps, &t.Artwork)
	if err != nil {
		if err != sql.ErrNoRows {
			log.Warn().Err(err).Str("path", path).Msg("Scan cache lookup failed")
		}
		return track.Track{}, false
	}

	if mtime != info.ModTime().Unix() || size != info.Size() {
		return track.Track{}, false
	}
	return t, true
}

// Store records the extracted metadata for path, keyed by its current mtime
// and size.
func (d *DB) Store(path string, t track.Track) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		return
	}

	_, err = d.db.Exec(`
		INSERT INTO tracks (path, mtime, size, title, artist, album, track_number, duration, file_format, bitrate, artwork)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			mtime = excluded.mtime,
			size = excluded.size,
			title = excluded.title,
			artist = excluded.artist,
			album = excluded.album,
			track_number = excluded.track_number,
			duration = excluded.duration,
			file_format = excluded.file_format,
			bitrate = excluded.bitrate,
			artwork = excluded.artwork`,
		path, info.ModTime().Unix(), info.Size(),
		t.Title, t.Artist, t.Album, t.TrackNumber, t.Duration, t.FileFormat, t.BitrateKbps, t.Artwork)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Scan cache store failed")
	}
}

// Purge removes entries whose files no longer exist.
func (d *DB) Purge() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return nil
	}

	rows, err := d.db.Query(`SELECT path FROM tracks`)
	if err != nil {
		return err
	}
	var gone []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			rows.Close()
			return err
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			gone = append(gone, path)
		}
	}
	if err := rows.Close(); err != nil {
		return err
	}

	for _, path := range gone {
		if _, err := d.db.Exec(`DELETE FROM tracks WHERE path = ?`, path); err != nil {
			return err
		}
	}
	if len(gone) > 0 {
		log.Info().Int("removed", len(gone)).Msg("Scan cache purged")
	}
	return nil
}
