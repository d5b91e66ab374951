package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	upsertDocumentSQL = `INSERT INTO state_documents (key, doc, updated_at)
    VALUES ($1, $2, now())
    ON CONFLICT (key) DO UPDATE
    SET doc = EXCLUDED.doc,
        updated_at = EXCLUDED.updated_at;`

	loadDocumentSQL = `SELECT doc FROM state_documents WHERE key = $1;`

	createDocumentsTableSQL = `CREATE TABLE IF NOT EXISTS state_documents (
        key        text PRIMARY KEY,
        doc        jsonb NOT NULL,
        updated_at timestamptz NOT NULL DEFAULT now()
    );`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// PGStore keeps state documents in a single keyed Postgres table.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore wires a pgx pool into a PGStore.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Init creates the backing table when missing.
func (s *PGStore) Init(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, createDocumentsTableSQL); err != nil {
		return fmt.Errorf("create state_documents table: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *PGStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Load fetches the document stored under key.
func (s *PGStore) Load(ctx context.Context, key string) ([]byte, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	var doc []byte
	err = pool.QueryRow(ctx, loadDocumentSQL, key).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load document %q: %w", key, err)
	}
	return doc, nil
}

// Save replaces the whole document stored under key.
func (s *PGStore) Save(ctx context.Context, key string, doc []byte) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, upsertDocumentSQL, key, doc); err != nil {
		return fmt.Errorf("save document %q: %w", key, err)
	}
	return nil
}

// TryAdvisoryLock attempts a postgres advisory lock and returns a release func.
func (s *PGStore) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// unlock is best effort; releasing the session drops it anyway
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *PGStore) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

var (
	_ DocumentStore  = (*PGStore)(nil)
	_ AdvisoryLocker = (*PGStore)(nil)
)
