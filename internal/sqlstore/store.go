// Package sqlstore implements the stores on top of database/sql. The sqlite, mysql and postgres
// backends share it and only differ in driver, migrations and Dialect.
package sqlstore

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cschleiden/go-dispatch/backend"
	"github.com/cschleiden/go-dispatch/payload"
)

type Store struct {
	db      *sql.DB
	dialect Dialect
	options *backend.Options
}

func New(db *sql.DB, dialect Dialect, options *backend.Options) *Store {
	return &Store{
		db:      db,
		dialect: dialect,
		options: options,
	}
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Definitions() backend.DefinitionStore { return (*definitionStore)(s) }
func (s *Store) Instances() backend.InstanceStore     { return (*instanceStore)(s) }
func (s *Store) Bookmarks() backend.BookmarkStore     { return (*bookmarkStore)(s) }
func (s *Store) Triggers() backend.TriggerStore       { return (*triggerStore)(s) }
func (s *Store) Jobs() backend.JobStore               { return (*jobStore)(s) }
func (s *Store) ExecutionLog() backend.ExecutionLogStore {
	return (*logStore)(s)
}
func (s *Store) Locks() backend.LockProvider { return (*lockProvider)(s) }

func (s *Store) q(query string) string {
	return s.dialect.Rebind(query)
}

// inTx runs f in a transaction and commits if f does not return an error.
func (s *Store) inTx(ctx context.Context, f func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, s.dialect.txOptions())
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := f(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func toNanos(t time.Time) int64 {
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}

	return sql.NullInt64{Int64: toNanos(*t), Valid: true}
}

func fromNullNanos(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}

	t := fromNanos(n.Int64)
	return &t
}

func marshalPayload(p payload.Payload) ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}

	return json.Marshal(p)
}

func unmarshalPayload(b []byte) (payload.Payload, error) {
	if len(b) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	var p payload.Payload
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("unmarshaling payload: %w", err)
	}

	return p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}
