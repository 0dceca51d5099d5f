package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cschleiden/go-dispatch/backend"
	"github.com/cschleiden/go-dispatch/definition"
)

type definitionStore Store

const selectDefinitions = "SELECT id, version, is_published, graph, triggers, created_at FROM definitions"

func (s *definitionStore) Save(ctx context.Context, def *definition.WorkflowDefinition) error {
	graph, err := json.Marshal(def.Graph)
	if err != nil {
		return fmt.Errorf("marshaling graph: %w", err)
	}

	triggers, err := json.Marshal(def.Triggers)
	if err != nil {
		return fmt.Errorf("marshaling triggers: %w", err)
	}

	res, err := s.db.ExecContext(
		ctx,
		s.dialect.InsertIgnore("definitions", "id", "version", "is_published", "graph", "triggers", "created_at"),
		def.ID, def.Version, def.IsPublished, graph, triggers, toNanos(def.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting definition: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if rows != 1 {
		return backend.ErrDefinitionVersionExists
	}

	return nil
}

func (s *definitionStore) Get(ctx context.Context, id string, version int) (*definition.WorkflowDefinition, error) {
	row := s.db.QueryRowContext(ctx, (*Store)(s).q(selectDefinitions+" WHERE id = ? AND version = ?"), id, version)
	return scanDefinition(row)
}

func (s *definitionStore) Latest(ctx context.Context, id string, publishedOnly bool) (*definition.WorkflowDefinition, error) {
	query := selectDefinitions + " WHERE id = ?"
	if publishedOnly {
		query += " AND is_published = ?"
	}
	query += " ORDER BY version DESC LIMIT 1"

	args := []any{id}
	if publishedOnly {
		args = append(args, true)
	}

	row := s.db.QueryRowContext(ctx, (*Store)(s).q(query), args...)
	return scanDefinition(row)
}

func scanDefinition(row rowScanner) (*definition.WorkflowDefinition, error) {
	var (
		def             definition.WorkflowDefinition
		graph, triggers []byte
		createdAt       int64
	)

	if err := row.Scan(&def.ID, &def.Version, &def.IsPublished, &graph, &triggers, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, backend.ErrDefinitionNotFound
		}

		return nil, fmt.Errorf("scanning definition: %w", err)
	}

	if err := json.Unmarshal(graph, &def.Graph); err != nil {
		return nil, fmt.Errorf("unmarshaling graph: %w", err)
	}

	if err := json.Unmarshal(triggers, &def.Triggers); err != nil {
		return nil, fmt.Errorf("unmarshaling triggers: %w", err)
	}

	def.CreatedAt = fromNanos(createdAt)

	return &def, nil
}
