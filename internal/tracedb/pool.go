// Package tracedb reads and writes trace bundles: a SQLite file holding
// one table per captured event, a JSON metadata sidecar describing the
// capture, and an optional function profiling dump. Reading produces the
// inputs the trace package loads from.
package tracedb

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ConnectionPool manages SQLite connections to opened bundles. Bundles
// are read-only, so connections are shared freely between readers and
// evicted when idle.
type ConnectionPool struct {
	mu sync.Mutex

	// connections maps bundle database paths to their entries
	connections map[string]*connectionEntry

	// maxBundles is the maximum number of bundles kept open
	maxBundles int

	// connsPerBundle bounds the parallelism of one bundle's loads
	connsPerBundle int

	// idleTimeout is how long an unreferenced bundle stays open
	idleTimeout time.Duration

	closed bool
}

type connectionEntry struct {
	db       *sql.DB
	refCount int
	lastUsed time.Time
}

// PoolConfig holds configuration for the connection pool.
type PoolConfig struct {
	// MaxBundles is the maximum number of bundles kept open (default: 16)
	MaxBundles int

	// ConnsPerBundle is the SQLite connection limit per bundle,
	// bounding concurrent event loads (default: 4)
	ConnsPerBundle int

	// IdleTimeout is how long an unreferenced bundle stays open
	// (default: 5 minutes)
	IdleTimeout time.Duration
}

// DefaultPoolConfig returns the default pool configuration.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxBundles:     16,
		ConnsPerBundle: 4,
		IdleTimeout:    5 * time.Minute,
	}
}

// NewConnectionPool creates a connection pool with the given
// configuration.
func NewConnectionPool(config PoolConfig) *ConnectionPool {
	if config.MaxBundles <= 0 {
		config.MaxBundles = 16
	}
	if config.ConnsPerBundle <= 0 {
		config.ConnsPerBundle = 4
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = 5 * time.Minute
	}

	return &ConnectionPool{
		connections:    make(map[string]*connectionEntry),
		maxBundles:     config.MaxBundles,
		connsPerBundle: config.ConnsPerBundle,
		idleTimeout:    config.IdleTimeout,
	}
}

// Get retrieves or creates the connection for the given bundle database
// path. The caller must call Release when done with it.
func (p *ConnectionPool) Get(ctx context.Context, dbPath string) (*sql.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, fmt.Errorf("tracedb: connection pool is closed")
	}

	if entry, ok := p.connections[dbPath]; ok {
		entry.refCount++
		entry.lastUsed = time.Now()
		return entry.db, nil
	}

	if len(p.connections) >= p.maxBundles {
		if !p.evictIdleConnection() {
			return nil, fmt.Errorf("tracedb: maximum open bundles reached (%d)", p.maxBundles)
		}
	}

	db, err := p.openConnection(ctx, dbPath)
	if err != nil {
		return nil, err
	}

	p.connections[dbPath] = &connectionEntry{
		db:       db,
		refCount: 1,
		lastUsed: time.Now(),
	}
	return db, nil
}

// Release decrements the reference count of a bundle connection. The
// connection stays open for later readers until evicted.
func (p *ConnectionPool) Release(dbPath string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if entry, ok := p.connections[dbPath]; ok {
		if entry.refCount > 0 {
			entry.refCount--
		}
		entry.lastUsed = time.Now()
	}
}

// openConnection opens a bundle database in read-only mode.
func (p *ConnectionPool) openConnection(ctx context.Context, dbPath string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&_query_only=true", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("tracedb: failed to open connection: %w", err)
	}

	db.SetMaxOpenConns(p.connsPerBundle)
	db.SetMaxIdleConns(p.connsPerBundle)
	db.SetConnMaxLifetime(p.idleTimeout)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("tracedb: failed to ping connection: %w", err)
	}
	return db, nil
}

// evictIdleConnection closes the least recently used unreferenced
// connection. Must be called with the lock held.
func (p *ConnectionPool) evictIdleConnection() bool {
	var oldestPath string
	var oldestTime time.Time

	for path, entry := range p.connections {
		if entry.refCount == 0 {
			if oldestPath == "" || entry.lastUsed.Before(oldestTime) {
				oldestPath = path
				oldestTime = entry.lastUsed
			}
		}
	}

	if oldestPath == "" {
		return false
	}
	p.connections[oldestPath].db.Close()
	delete(p.connections, oldestPath)
	return true
}

// Close closes every connection. Get fails afterwards.
func (p *ConnectionPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var firstErr error
	for path, entry := range p.connections {
		if err := entry.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.connections, path)
	}
	return firstErr
}

// Stats reports the pool occupancy for logging.
func (p *ConnectionPool) Stats() (open int, referenced int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	open = len(p.connections)
	for _, entry := range p.connections {
		if entry.refCount > 0 {
			referenced++
		}
	}
	return open, referenced
}
