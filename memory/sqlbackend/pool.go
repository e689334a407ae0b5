// Package sqlbackend implements memory.Backend on top of an embedded SQLite
// database, grounded on original_source/crates/skreaver-memory/src/sqlite_memory.rs
// (SqlitePool / PooledConnection / MigrationEngine) and generalized to Go's
// database/sql using the pure-Go modernc.org/sqlite driver so the runtime
// never requires cgo, matching the teacher's own cgo-free dependency stack.
package sqlbackend

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/corebound/agentrt/memory"
)

// validateDatabasePath rejects traversal attempts and enforces the allowed
// extension set, mirroring SqlitePool::validate_database_path.
func validateDatabasePath(path string) (string, error) {
	if path == "" {
		return "", &memory.ConnectionFailedError{Backend: "sqlite", Reason: "database path cannot be empty"}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", &memory.ConnectionFailedError{Backend: "sqlite", Reason: "invalid database path: " + err.Error()}
	}

	// Checked on the raw path: filepath.Abs has already cleaned abs.
	if strings.Contains(path, "..") || strings.Contains(path, "//") {
		return "", &memory.ConnectionFailedError{Backend: "sqlite", Reason: "invalid database path: path traversal detected"}
	}

	switch ext := filepath.Ext(abs); ext {
	case ".db", ".sqlite", ".sqlite3":
	case "":
		return "", &memory.ConnectionFailedError{Backend: "sqlite", Reason: "invalid database path: file extension required"}
	default:
		return "", &memory.ConnectionFailedError{Backend: "sqlite", Reason: "invalid database path: only .db, .sqlite, and .sqlite3 files allowed"}
	}

	return abs, nil
}

// connectionConfig mirrors ConnectionConfig: the pragmas applied to every
// pooled connection via the modernc.org/sqlite DSN.
type connectionConfig struct {
	walMode       bool
	cacheSizeKB   int
	busyTimeoutMS int
}

func defaultConnectionConfig() connectionConfig {
	return connectionConfig{walMode: true, cacheSizeKB: 64 * 1024, busyTimeoutMS: 5000}
}

func (c connectionConfig) dsn(path string) string {
	var b strings.Builder
	b.WriteString("file:")
	b.WriteString(path)
	b.WriteString("?_pragma=foreign_keys(1)")
	if c.walMode {
		b.WriteString("&_pragma=journal_mode(WAL)")
		b.WriteString("&_pragma=synchronous(NORMAL)")
	}
	fmt.Fprintf(&b, "&_pragma=busy_timeout(%d)", c.busyTimeoutMS)
	fmt.Fprintf(&b, "&_pragma=cache_size(-%d)", c.cacheSizeKB)
	return b.String()
}

// Pool is a fixed-size pool of checked-out *sql.Conn handles. Unlike
// database/sql's own pool, acquire/release are explicit so Transaction can
// hand a connection back to the pool mid-operation and reacquire it later —
// the pattern the teacher's Rust source uses for savepoint-scoped closures.
type Pool struct {
	mu                 sync.Mutex
	db                 *sql.DB
	path               string
	poolSize           int
	config             connectionConfig
	availableConns     []*sql.Conn
	activeConnections  int
}

// PoolHealth reports how many idle connections answered a ping, against the
// pool's configured size.
type PoolHealth struct {
	HealthyConnections int
	TotalConnections   int
	LastCheck          time.Time
}

// OpenPool validates path, opens the underlying *sql.DB, and pre-fills
// poolSize connections the way SqlitePool::new does.
func OpenPool(ctx context.Context, path string, poolSize int) (*Pool, error) {
	if poolSize <= 0 {
		poolSize = 4
	}
	abs, err := validateDatabasePath(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConnectionConfig()
	db, err := sql.Open("sqlite", cfg.dsn(abs))
	if err != nil {
		return nil, &memory.ConnectionFailedError{Backend: "sqlite", Reason: err.Error()}
	}
	// Each logical connection in our pool is its own *sql.Conn, so the
	// driver-level pool just needs to be at least as large as ours.
	db.SetMaxOpenConns(poolSize * 2)
	db.SetMaxIdleConns(poolSize * 2)

	p := &Pool{db: db, path: abs, poolSize: poolSize, config: cfg}

	for i := 0; i < poolSize; i++ {
		conn, err := db.Conn(ctx)
		if err != nil {
			p.Close()
			return nil, &memory.ConnectionFailedError{Backend: "sqlite", Reason: fmt.Sprintf("failed to pre-fill connection %d: %s", i, err)}
		}
		p.availableConns = append(p.availableConns, conn)
	}
	return p, nil
}

// PooledConn is a checked-out connection. Callers must call Release exactly
// once; forgetting to do so starves the pool, matching the Rust Drop-impl's
// "pool exhausted" failure mode with an explicit method instead.
type PooledConn struct {
	conn     *sql.Conn
	pool     *Pool
	released bool
}

func (pc *PooledConn) Conn() *sql.Conn { return pc.conn }

// Release returns the connection to the pool. Safe to call more than once.
func (pc *PooledConn) Release() {
	if pc.released {
		return
	}
	pc.released = true
	pc.pool.release(pc.conn)
}

// Acquire pops an available connection, or opens a fresh one while under
// poolSize, or fails with the pool-exhausted error the teacher's code
// surfaces as ConnectionFailed.
func (p *Pool) Acquire(ctx context.Context) (*PooledConn, error) {
	p.mu.Lock()
	if n := len(p.availableConns); n > 0 {
		conn := p.availableConns[n-1]
		p.availableConns = p.availableConns[:n-1]
		p.activeConnections++
		p.mu.Unlock()
		return &PooledConn{conn: conn, pool: p}, nil
	}
	if p.activeConnections < p.poolSize {
		p.activeConnections++
		p.mu.Unlock()
		conn, err := p.db.Conn(ctx)
		if err != nil {
			p.mu.Lock()
			p.activeConnections--
			p.mu.Unlock()
			return nil, &memory.ConnectionFailedError{Backend: "sqlite", Reason: err.Error()}
		}
		return &PooledConn{conn: conn, pool: p}, nil
	}
	active := p.activeConnections
	p.mu.Unlock()
	return nil, &memory.ConnectionFailedError{
		Backend: "sqlite",
		Reason:  fmt.Sprintf("connection pool exhausted: %d active connections (max: %d)", active, p.poolSize),
	}
}

func (p *Pool) release(conn *sql.Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.activeConnections--
	if len(p.availableConns) >= p.poolSize {
		conn.Close()
		return
	}
	p.availableConns = append(p.availableConns, conn)
}

// HealthCheck pings every idle connection and reports pool occupancy.
func (p *Pool) HealthCheck(ctx context.Context) (PoolHealth, error) {
	p.mu.Lock()
	conns := append([]*sql.Conn(nil), p.availableConns...)
	total := p.poolSize
	p.mu.Unlock()

	healthy := 0
	for _, c := range conns {
		if err := c.PingContext(ctx); err == nil {
			healthy++
		}
	}
	return PoolHealth{HealthyConnections: healthy, TotalConnections: total, LastCheck: time.Now()}, nil
}

// Close releases every idle connection and the underlying *sql.DB.
func (p *Pool) Close() error {
	p.mu.Lock()
	conns := p.availableConns
	p.availableConns = nil
	p.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	return p.db.Close()
}
