package sqlbackend

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/corebound/agentrt/memory"
	"github.com/corebound/agentrt/observability"
	"github.com/corebound/agentrt/validation"
)

// Backend implements memory.Backend over a pooled, migrated SQLite database.
type Backend struct {
	pool       *Pool
	migrations *MigrationEngine
	telemetry  observability.Telemetry
}

// SetTelemetry attaches tel so every subsequent Transaction call opens a
// span around its savepoint lifetime.
func (b *Backend) SetTelemetry(tel observability.Telemetry) {
	if tel == nil {
		tel = observability.NoOp{}
	}
	b.telemetry = tel
}

// Open validates path and namespace, opens a connection pool, and brings the
// schema up to the latest migration before returning.
func Open(ctx context.Context, path string, namespace string, poolSize int) (*Backend, error) {
	if err := validation.ValidateNamespace(namespace); err != nil {
		return nil, &memory.ConnectionFailedError{Backend: "sqlite", Reason: err.Error()}
	}

	pool, err := OpenPool(ctx, path, poolSize)
	if err != nil {
		return nil, err
	}

	engine := NewMigrationEngine()
	pc, err := pool.Acquire(ctx)
	if err != nil {
		pool.Close()
		return nil, err
	}
	migrateErr := engine.Migrate(ctx, pc.Conn(), 0)
	pc.Release()
	if migrateErr != nil {
		pool.Close()
		return nil, migrateErr
	}

	return &Backend{pool: pool, migrations: engine, telemetry: observability.NoOp{}}, nil
}

func (b *Backend) Load(ctx context.Context, key validation.MemoryKey) (string, bool, error) {
	pc, err := b.pool.Acquire(ctx)
	if err != nil {
		return "", false, err
	}
	defer pc.Release()

	var value string
	row := pc.Conn().QueryRowContext(ctx, "SELECT value FROM memory WHERE key = ?", key.String())
	switch err := row.Scan(&value); err {
	case nil:
		return value, true, nil
	case sql.ErrNoRows:
		return "", false, nil
	default:
		return "", false, &memory.LoadFailedError{Key: key, Reason: err.Error()}
	}
}

func (b *Backend) LoadMany(ctx context.Context, keys []validation.MemoryKey) ([]memory.LoadResult, error) {
	pc, err := b.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer pc.Release()

	results := make([]memory.LoadResult, len(keys))
	for i, k := range keys {
		var value string
		row := pc.Conn().QueryRowContext(ctx, "SELECT value FROM memory WHERE key = ?", k.String())
		switch err := row.Scan(&value); err {
		case nil:
			results[i] = memory.LoadResult{Value: value, Found: true}
		case sql.ErrNoRows:
			results[i] = memory.LoadResult{}
		default:
			return nil, &memory.LoadFailedError{Key: k, Reason: err.Error()}
		}
	}
	return results, nil
}

func (b *Backend) Store(ctx context.Context, update memory.Update) error {
	pc, err := b.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer pc.Release()
	return storeOne(ctx, pc.Conn(), update)
}

func storeOne(ctx context.Context, conn *sql.Conn, update memory.Update) error {
	_, err := conn.ExecContext(ctx, `
		INSERT INTO memory (key, value, updated_at) VALUES (?, ?, strftime('%s', 'now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, update.Key.String(), update.Value)
	if err != nil {
		return &memory.StoreFailedError{Key: update.Key, Backend: "sqlite", Kind: memory.FailureConnectivity, Reason: err.Error()}
	}
	return nil
}

func (b *Backend) StoreMany(ctx context.Context, updates []memory.Update) error {
	pc, err := b.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer pc.Release()

	for _, u := range updates {
		if err := storeOne(ctx, pc.Conn(), u); err != nil {
			return err
		}
	}
	return nil
}

// runTxFunc runs fn and converts a panic into a TransactionFailedError, so a
// bug in a coordinator turn cannot take the whole process down mid-commit;
// the savepoint is still rolled back by the caller via the returned error.
func runTxFunc(ctx context.Context, rw memory.ReaderWriter, fn memory.TxFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &memory.TransactionFailedError{Reason: fmt.Sprintf("transaction closure panicked: %v", r)}
		}
	}()
	return fn(ctx, rw)
}

func savepointName() string {
	var buf [4]byte
	rand.Read(buf[:])
	return fmt.Sprintf("sp_%d", binary.BigEndian.Uint32(buf[:]))
}

// Transaction begins a uniquely-named savepoint on its own connection, then
// releases that connection back to the pool so fn's Load/Store calls (which
// go through the Backend itself, acquiring and releasing independently) can
// proceed without deadlocking against a pool of size 1. It then reacquires a
// connection to commit or roll back the savepoint. This mirrors
// SqliteMemory::transaction in the teacher source; with a pool size of 1
// this is exactly equivalent to a single exclusive transaction. The
// runtime's configured default pool size is 8, not 1.
func (b *Backend) Transaction(ctx context.Context, fn memory.TxFunc) error {
	ctx, span := observability.StartSQLTransactionSpan(ctx, b.telemetry, "transaction")
	defer span.End()

	name := savepointName()

	pc, err := b.pool.Acquire(ctx)
	if err != nil {
		span.RecordError(err)
		return &memory.TransactionFailedError{Reason: "failed to acquire connection for transaction: " + err.Error()}
	}
	if _, err := pc.Conn().ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		pc.Release()
		span.RecordError(err)
		return &memory.TransactionFailedError{Reason: "failed to begin transaction savepoint: " + err.Error()}
	}
	pc.Release()

	fnErr := runTxFunc(ctx, b, fn)

	closer, err := b.pool.Acquire(ctx)
	if err != nil {
		span.RecordError(err)
		return &memory.TransactionFailedError{Reason: "failed to reacquire connection for transaction commit: " + err.Error()}
	}
	defer closer.Release()

	if fnErr == nil {
		if _, err := closer.Conn().ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
			span.RecordError(err)
			return &memory.TransactionFailedError{Reason: "failed to commit transaction: " + err.Error()}
		}
		return nil
	}

	closer.Conn().ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name)
	closer.Conn().ExecContext(ctx, "RELEASE SAVEPOINT "+name)
	span.RecordError(fnErr)
	return fnErr
}

func (b *Backend) Snapshot(ctx context.Context) ([]byte, error) {
	pc, err := b.pool.Acquire(ctx)
	if err != nil {
		return nil, &memory.SnapshotFailedError{Reason: err.Error()}
	}
	defer pc.Release()

	rows, err := pc.Conn().QueryContext(ctx, "SELECT key, value FROM memory")
	if err != nil {
		return nil, &memory.SnapshotFailedError{Reason: err.Error()}
	}
	defer rows.Close()

	doc := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, &memory.SnapshotFailedError{Reason: err.Error()}
		}
		doc[k] = v
	}

	blob, err := json.Marshal(doc)
	if err != nil {
		return nil, &memory.SnapshotFailedError{Reason: err.Error()}
	}
	return blob, nil
}

func (b *Backend) Restore(ctx context.Context, blob []byte) error {
	var doc map[string]string
	if err := json.Unmarshal(blob, &doc); err != nil {
		return &memory.RestoreFailedError{Reason: err.Error()}
	}

	pc, err := b.pool.Acquire(ctx)
	if err != nil {
		return &memory.RestoreFailedError{Reason: err.Error()}
	}
	defer pc.Release()

	tx, err := pc.Conn().BeginTx(ctx, nil)
	if err != nil {
		return &memory.RestoreFailedError{Reason: err.Error()}
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM memory"); err != nil {
		tx.Rollback()
		return &memory.RestoreFailedError{Reason: "failed to clear existing data: " + err.Error()}
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO memory (key, value) VALUES (?, ?)")
	if err != nil {
		tx.Rollback()
		return &memory.RestoreFailedError{Reason: err.Error()}
	}
	defer stmt.Close()

	for k, v := range doc {
		if _, err := stmt.ExecContext(ctx, k, v); err != nil {
			tx.Rollback()
			return &memory.RestoreFailedError{Reason: fmt.Sprintf("failed to restore key %s: %s", k, err)}
		}
	}

	if err := tx.Commit(); err != nil {
		return &memory.ConnectionFailedError{Backend: "sqlite", Reason: "failed to commit restore: " + err.Error()}
	}
	return nil
}

// Close releases the pool and its connections.
func (b *Backend) Close() error { return b.pool.Close() }

var _ memory.Backend = (*Backend)(nil)
