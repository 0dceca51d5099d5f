package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cschleiden/go-dispatch/core"
)

type logStore Store

func (s *logStore) Append(ctx context.Context, entry *core.LogEntry) error {
	return (*Store)(s).inTx(ctx, func(tx *sql.Tx) error {
		var seq int64
		if err := tx.QueryRowContext(
			ctx,
			(*Store)(s).q("SELECT COALESCE(MAX(seq), 0) + 1 FROM execution_log WHERE instance_id = ?"),
			entry.InstanceID,
		).Scan(&seq); err != nil {
			return fmt.Errorf("reading log sequence: %w", err)
		}

		if _, err := tx.ExecContext(
			ctx,
			(*Store)(s).q("INSERT INTO execution_log (instance_id, seq, created_at, operation, activity_id, from_status, to_status, message) VALUES (?, ?, ?, ?, ?, ?, ?, ?)"),
			entry.InstanceID, seq, toNanos(entry.Timestamp), string(entry.Operation), entry.ActivityID,
			string(entry.FromStatus), string(entry.ToStatus), entry.Message,
		); err != nil {
			return fmt.Errorf("appending log entry: %w", err)
		}

		entry.Sequence = seq

		return nil
	})
}

func (s *logStore) List(ctx context.Context, instanceID string) ([]*core.LogEntry, error) {
	rows, err := s.db.QueryContext(
		ctx,
		(*Store)(s).q("SELECT instance_id, seq, created_at, operation, activity_id, from_status, to_status, message FROM execution_log WHERE instance_id = ? ORDER BY seq"),
		instanceID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying execution log: %w", err)
	}
	defer rows.Close()

	var entries []*core.LogEntry
	for rows.Next() {
		var (
			e                   core.LogEntry
			ts                  int64
			operation, from, to string
		)

		if err := rows.Scan(&e.InstanceID, &e.Sequence, &ts, &operation, &e.ActivityID, &from, &to, &e.Message); err != nil {
			return nil, fmt.Errorf("scanning log entry: %w", err)
		}

		e.Timestamp = fromNanos(ts)
		e.Operation = core.Operation(operation)
		e.FromStatus = core.Status(from)
		e.ToStatus = core.Status(to)

		entries = append(entries, &e)
	}

	return entries, rows.Err()
}

func (s *logStore) DeleteByInstance(ctx context.Context, instanceID string) error {
	if _, err := s.db.ExecContext(ctx, (*Store)(s).q("DELETE FROM execution_log WHERE instance_id = ?"), instanceID); err != nil {
		return fmt.Errorf("deleting execution log: %w", err)
	}

	return nil
}
