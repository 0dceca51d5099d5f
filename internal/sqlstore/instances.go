package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cschleiden/go-dispatch/backend"
	"github.com/cschleiden/go-dispatch/core"
)

type instanceStore Store

var instanceColumns = []string{
	"id", "definition_id", "definition_version", "correlation_id", "status",
	"variables", "position", "incidents", "created_at", "updated_at", "finished_at",
}

func (s *instanceStore) Load(ctx context.Context, id string) (*core.WorkflowInstance, error) {
	row := s.db.QueryRowContext(
		ctx,
		(*Store)(s).q("SELECT id, definition_id, definition_version, correlation_id, status, variables, position, incidents, created_at, updated_at, finished_at FROM instances WHERE id = ?"),
		id,
	)

	var (
		wfi                  core.WorkflowInstance
		status               string
		variables, incidents []byte
		createdAt, updatedAt int64
		finishedAt           sql.NullInt64
	)

	if err := row.Scan(
		&wfi.ID, &wfi.DefinitionID, &wfi.DefinitionVersion, &wfi.CorrelationID, &status,
		&variables, &wfi.Position, &incidents, &createdAt, &updatedAt, &finishedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, backend.ErrInstanceNotFound
		}

		return nil, fmt.Errorf("loading instance: %w", err)
	}

	wfi.Status = core.Status(status)
	wfi.CreatedAt = fromNanos(createdAt)
	wfi.UpdatedAt = fromNanos(updatedAt)
	wfi.FinishedAt = fromNullNanos(finishedAt)

	if len(wfi.Position) == 0 {
		wfi.Position = nil
	}

	if len(variables) > 0 {
		vs, err := core.DecodeVariables(variables)
		if err != nil {
			return nil, err
		}

		wfi.Variables = vs
	}

	if len(incidents) > 0 {
		if err := json.Unmarshal(incidents, &wfi.Incidents); err != nil {
			return nil, fmt.Errorf("unmarshaling incidents: %w", err)
		}
	}

	return &wfi, nil
}

func (s *instanceStore) Save(ctx context.Context, wfi *core.WorkflowInstance) error {
	variables, err := wfi.Variables.Encode()
	if err != nil {
		return fmt.Errorf("marshaling variables: %w", err)
	}

	var incidents []byte
	if len(wfi.Incidents) > 0 {
		incidents, err = json.Marshal(wfi.Incidents)
		if err != nil {
			return fmt.Errorf("marshaling incidents: %w", err)
		}
	}

	position := wfi.Position
	if position == nil {
		position = []byte{}
	}

	if _, err := s.db.ExecContext(
		ctx,
		s.dialect.Upsert("instances", []string{"id"}, instanceColumns...),
		wfi.ID, wfi.DefinitionID, wfi.DefinitionVersion, wfi.CorrelationID, string(wfi.Status),
		variables, position, incidents, toNanos(wfi.CreatedAt), toNanos(wfi.UpdatedAt), nullNanos(wfi.FinishedAt),
	); err != nil {
		return fmt.Errorf("saving instance: %w", err)
	}

	return nil
}

func (s *instanceStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, (*Store)(s).q("DELETE FROM instances WHERE id = ?"), id); err != nil {
		return fmt.Errorf("deleting instance: %w", err)
	}

	return nil
}

func (s *instanceStore) ListFinished(ctx context.Context, before time.Time, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(
		ctx,
		(*Store)(s).q("SELECT id FROM instances WHERE finished_at IS NOT NULL AND finished_at < ? ORDER BY finished_at LIMIT ?"),
		toNanos(before),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing finished instances: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning instance id: %w", err)
		}

		ids = append(ids, id)
	}

	return ids, rows.Err()
}
