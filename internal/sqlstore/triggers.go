package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cschleiden/go-dispatch/backend"
)

type triggerStore Store

func (s *triggerStore) ReplaceForDefinition(ctx context.Context, definitionID string, entries []backend.TriggerEntry) error {
	return (*Store)(s).inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, (*Store)(s).q("DELETE FROM trigger_entries WHERE definition_id = ?"), definitionID); err != nil {
			return fmt.Errorf("deleting trigger entries: %w", err)
		}

		insert := s.dialect.InsertIgnore(
			"trigger_entries",
			"definition_id", "activity_id", "activity_type_name", "payload_hash", "definition_version", "payload",
		)

		for _, e := range entries {
			p, err := marshalPayload(e.Payload)
			if err != nil {
				return fmt.Errorf("marshaling trigger payload: %w", err)
			}

			if _, err := tx.ExecContext(
				ctx, insert,
				definitionID, e.ActivityID, e.ActivityTypeName, e.PayloadHash, e.DefinitionVersion, p,
			); err != nil {
				return fmt.Errorf("inserting trigger entry: %w", err)
			}
		}

		return nil
	})
}

func (s *triggerStore) Find(ctx context.Context, activityTypeName, payloadHash string) ([]backend.TriggerEntry, error) {
	rows, err := s.db.QueryContext(
		ctx,
		(*Store)(s).q("SELECT definition_id, activity_id, activity_type_name, payload_hash, definition_version, payload FROM trigger_entries WHERE activity_type_name = ? AND payload_hash = ? ORDER BY definition_id, activity_id"),
		activityTypeName, payloadHash,
	)
	if err != nil {
		return nil, fmt.Errorf("querying trigger entries: %w", err)
	}
	defer rows.Close()

	var r []backend.TriggerEntry
	for rows.Next() {
		var (
			e backend.TriggerEntry
			p []byte
		)

		if err := rows.Scan(&e.DefinitionID, &e.ActivityID, &e.ActivityTypeName, &e.PayloadHash, &e.DefinitionVersion, &p); err != nil {
			return nil, fmt.Errorf("scanning trigger entry: %w", err)
		}

		if e.Payload, err = unmarshalPayload(p); err != nil {
			return nil, err
		}

		r = append(r, e)
	}

	return r, rows.Err()
}
