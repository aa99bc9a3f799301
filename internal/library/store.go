// Package library persists saved tracks in SQLite and tracks which of them
// have been downloaded to the local cache.
package library

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/goccy/go-json"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/danhigham/vkplay/internal/domain"
)

// ErrNotFound is returned when removing a track that is not saved.
var ErrNotFound = errors.New("track not found")

// meta holds the columns that are not queried directly.
type meta struct {
	Album      string `json:"album,omitempty"`
	ArtworkURL string `json:"artwork_url,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

// Store is the saved-tracks library.
type Store struct {
	db       *sql.DB
	cacheDir string
	logger   *zap.Logger

	mu        sync.Mutex
	listeners map[int]func([]domain.AudioItem)
	nextID    int

	watcher *watcher
}

// Open opens or creates library.db in dir. Downloaded tracks are looked up
// in cacheDir as <owner>_<id>.mp3.
func Open(dir, cacheDir string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create library dir")
	}
	if cacheDir != "" {
		if err := os.MkdirAll(cacheDir, 0o755); err != nil {
			return nil, errors.Wrap(err, "create cache dir")
		}
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "library.db"))
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		return nil, multierr.Append(errors.Wrap(err, "configure database"), db.Close())
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS tracks (
			owner_id  INTEGER NOT NULL,
			audio_id  INTEGER NOT NULL,
			position  INTEGER NOT NULL,
			url       TEXT NOT NULL DEFAULT '',
			title     TEXT NOT NULL DEFAULT '',
			artist    TEXT NOT NULL DEFAULT '',
			meta      TEXT NOT NULL DEFAULT '{}',
			added_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (owner_id, audio_id)
		);
		CREATE INDEX IF NOT EXISTS tracks_position ON tracks (position);
	`); err != nil {
		return nil, multierr.Append(errors.Wrap(err, "create tracks table"), db.Close())
	}

	return &Store{
		db:        db,
		cacheDir:  cacheDir,
		logger:    logger,
		listeners: make(map[int]func([]domain.AudioItem)),
	}, nil
}

// Save inserts items at the end of the library. Items already saved keep
// their position and get their metadata updated.
func (s *Store) Save(ctx context.Context, items ...domain.AudioItem) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback() }()

	var next int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position), -1) + 1 FROM tracks`).Scan(&next); err != nil {
		return errors.Wrap(err, "next position")
	}

	for _, it := range items {
		m, err := json.Marshal(meta{
			Album:      it.Album,
			ArtworkURL: it.ArtworkURL,
			DurationMS: it.Duration.Milliseconds(),
		})
		if err != nil {
			return errors.Wrap(err, "encode meta")
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO tracks (owner_id, audio_id, position, url, title, artist, meta)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (owner_id, audio_id) DO UPDATE SET
				url = excluded.url,
				title = excluded.title,
				artist = excluded.artist,
				meta = excluded.meta`,
			it.OwnerID, it.AudioID, next, it.URL, it.Title, it.Artist, string(m))
		if err != nil {
			return errors.Wrapf(err, "save %s", it.Key())
		}
		next++
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit")
	}

	s.logger.Debug("Saved tracks", zap.Int("count", len(items)))
	s.notify(ctx)
	return nil
}

// Remove deletes one track from the library.
func (s *Store) Remove(ctx context.Context, ownerID, audioID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tracks WHERE owner_id = ? AND audio_id = ?`, ownerID, audioID)
	if err != nil {
		return errors.Wrap(err, "delete track")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrapf(ErrNotFound, "%d_%d", ownerID, audioID)
	}
	s.notify(ctx)
	return nil
}

// Snapshot returns all saved tracks in library order, with CachedPath set
// for tracks present in the download cache.
func (s *Store) Snapshot(ctx context.Context) ([]domain.AudioItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT owner_id, audio_id, url, title, artist, meta
		FROM tracks ORDER BY position, added_at`)
	if err != nil {
		return nil, errors.Wrap(err, "query tracks")
	}
	defer rows.Close()

	var items []domain.AudioItem
	for rows.Next() {
		var (
			it  domain.AudioItem
			raw string
			m   meta
		)
		if err := rows.Scan(&it.OwnerID, &it.AudioID, &it.URL, &it.Title, &it.Artist, &raw); err != nil {
			return nil, errors.Wrap(err, "scan track")
		}
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			s.logger.Warn("Bad track meta", zap.String("track", it.Key()), zap.Error(err))
		}
		it.Album = m.Album
		it.ArtworkURL = m.ArtworkURL
		it.Duration = time.Duration(m.DurationMS) * time.Millisecond
		it.CachedPath = s.cachedPath(it)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate tracks")
	}
	return items, nil
}

func (s *Store) cachedPath(it domain.AudioItem) string {
	if s.cacheDir == "" {
		return ""
	}
	path := filepath.Join(s.cacheDir, it.Key()+".mp3")
	if st, err := os.Stat(path); err != nil || st.IsDir() {
		return ""
	}
	return path
}

// OnChange registers fn to receive a fresh snapshot after every change.
func (s *Store) OnChange(fn func([]domain.AudioItem)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) notify(ctx context.Context) {
	s.mu.Lock()
	fns := make([]func([]domain.AudioItem), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	if len(fns) == 0 {
		return
	}

	items, err := s.Snapshot(ctx)
	if err != nil {
		s.logger.Error("Library snapshot failed", zap.Error(err))
		return
	}
	for _, fn := range fns {
		fn(items)
	}
}

// Close stops the cache watcher and closes the database.
func (s *Store) Close() error {
	var err error
	if s.watcher != nil {
		err = s.watcher.close()
		s.watcher = nil
	}
	return multierr.Append(err, s.db.Close())
}
