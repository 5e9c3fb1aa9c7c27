// Package pagecache is an embedded page-cache storage runtime: a
// page-addressed disk manager fronted by a fixed-size buffer pool with
// LRU-K replacement and scoped page guards.
package pagecache

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/sasha-s/go-deadlock"

	"github.com/tuannm99/pagecache/internal/bufferpool"
	"github.com/tuannm99/pagecache/internal/storage"
)

var ErrDatabaseClosed = errors.New("pagecache: database is closed")

// DBFileName is the database file created under Storage.Workdir in file
// mode.
const DBFileName = "pagecache.db"

type DB struct {
	cfg  *Config
	disk storage.DiskManager
	pool *bufferpool.BufferPoolManager

	closed bool
}

func storageMode(s string) (storage.Mode, error) {
	return storage.GetMode(s)
}

// Open wires a disk manager and a buffer pool from the config. A nil
// config opens an in-memory store with defaults.
func Open(cfg *Config) (*DB, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// Lock-order checking is opt-in; the latches are plain mutexes
	// otherwise.
	deadlock.Opts.Disable = !cfg.Debug.DeadlockDetect

	mode, err := storageMode(cfg.Storage.Mode)
	if err != nil {
		return nil, err
	}

	var disk storage.DiskManager
	switch mode {
	case storage.Memory:
		disk = storage.NewMemoryDiskManager()
	case storage.File:
		fdm, err := storage.NewFileDiskManager(filepath.Join(cfg.Storage.Workdir, DBFileName))
		if err != nil {
			return nil, err
		}
		disk = fdm
	}

	pool := bufferpool.NewBufferPoolManager(cfg.PoolSize, disk, cfg.ReplacerK, nil)

	slog.Debug("pagecache.open",
		"mode", mode.String(),
		"pool_size", cfg.PoolSize,
		"replacer_k", cfg.ReplacerK,
	)
	return &DB{cfg: cfg, disk: disk, pool: pool}, nil
}

// Pool returns the buffer pool manager; all page access goes through it.
func (db *DB) Pool() *bufferpool.BufferPoolManager { return db.pool }

// DiskManager returns the backing store.
func (db *DB) DiskManager() storage.DiskManager { return db.disk }

// Close flushes every dirty page and shuts the store down.
func (db *DB) Close() error {
	if db.closed {
		return ErrDatabaseClosed
	}
	db.closed = true

	if err := db.pool.FlushAllPages(); err != nil {
		return fmt.Errorf("flush on close: %w", err)
	}
	return db.disk.ShutDown()
}
