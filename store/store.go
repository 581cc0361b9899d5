// Package store provides unified database storage layer
// All database operations should go through this package
package store

import (
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"klgrid/logger"
)

// Store unified data storage interface
type Store struct {
	db *sql.DB

	// Sub-stores (lazy initialization)
	level *LevelStore
	audit *AuditStore
	grid  *GridStore

	mu sync.RWMutex
}

// New creates new Store instance backed by SQLite
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite 单写者模型
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize table structure: %w", err)
	}

	logger.Infof("✅ Database initialized (path: %s)", dbPath)
	return s, nil
}

// initTables initializes all table structures
func (s *Store) initTables() error {
	stores := []interface{ initTables() error }{
		&LevelStore{db: s.db},
		&AuditStore{db: s.db},
		&GridStore{db: s.db},
	}
	for _, sub := range stores {
		if err := sub.initTables(); err != nil {
			return err
		}
	}
	return nil
}

// Level returns level snapshot sub-store
func (s *Store) Level() *LevelStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.level == nil {
		s.level = &LevelStore{db: s.db}
	}
	return s.level
}

// Audit returns audit record sub-store
func (s *Store) Audit() *AuditStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.audit == nil {
		s.audit = &AuditStore{db: s.db}
	}
	return s.audit
}

// Grid returns grid session sub-store
func (s *Store) Grid() *GridStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.grid == nil {
		s.grid = &GridStore{db: s.db}
	}
	return s.grid
}

// Close closes database connection
func (s *Store) Close() error {
	return s.db.Close()
}
