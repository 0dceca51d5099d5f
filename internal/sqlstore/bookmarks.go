package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/cschleiden/go-dispatch/backend"
	"github.com/cschleiden/go-dispatch/core"
)

type bookmarkStore Store

var bookmarkColumns = []string{
	"id", "instance_id", "activity_id", "activity_type_name", "payload", "payload_hash",
	"correlation_id", "burn_on_resume", "token", "resume_at", "created_at",
}

const selectBookmarks = "SELECT id, instance_id, activity_id, activity_type_name, payload, payload_hash, correlation_id, burn_on_resume, token, resume_at, created_at FROM bookmarks"

func (s *bookmarkStore) Save(ctx context.Context, b *core.Bookmark) error {
	p, err := marshalPayload(b.Payload)
	if err != nil {
		return fmt.Errorf("marshaling bookmark payload: %w", err)
	}

	if _, err := s.db.ExecContext(
		ctx,
		s.dialect.Upsert("bookmarks", []string{"id"}, bookmarkColumns...),
		b.ID, b.InstanceID, b.ActivityID, b.ActivityTypeName, p, b.PayloadHash,
		b.CorrelationID, b.BurnOnResume, b.Token, nullNanos(b.ResumeAt), toNanos(b.CreatedAt),
	); err != nil {
		return fmt.Errorf("saving bookmark: %w", err)
	}

	return nil
}

func (s *bookmarkStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, (*Store)(s).q("DELETE FROM bookmarks WHERE id = ?"), id); err != nil {
		return fmt.Errorf("deleting bookmark: %w", err)
	}

	return nil
}

func (s *bookmarkStore) Get(ctx context.Context, id string) (*core.Bookmark, error) {
	row := s.db.QueryRowContext(ctx, (*Store)(s).q(selectBookmarks+" WHERE id = ?"), id)

	b, err := scanBookmark(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, backend.ErrBookmarkNotFound
		}

		return nil, err
	}

	return b, nil
}

func (s *bookmarkStore) FindMany(ctx context.Context, filter core.BookmarkFilter) ([]*core.Bookmark, error) {
	where := []string{"activity_type_name = ?", "payload_hash = ?"}
	args := []any{filter.ActivityTypeName, filter.PayloadHash}

	if filter.CorrelationID != "" {
		where = append(where, "correlation_id = ?")
		args = append(args, filter.CorrelationID)
	}

	if filter.InstanceID != "" {
		where = append(where, "instance_id = ?")
		args = append(args, filter.InstanceID)
	}

	return s.query(ctx, selectBookmarks+" WHERE "+strings.Join(where, " AND ")+" ORDER BY created_at, id", args...)
}

func (s *bookmarkStore) FindByInstance(ctx context.Context, instanceID string) ([]*core.Bookmark, error) {
	return s.query(ctx, selectBookmarks+" WHERE instance_id = ? ORDER BY created_at, id", instanceID)
}

func (s *bookmarkStore) DeleteByInstance(ctx context.Context, instanceID string) error {
	if _, err := s.db.ExecContext(ctx, (*Store)(s).q("DELETE FROM bookmarks WHERE instance_id = ?"), instanceID); err != nil {
		return fmt.Errorf("deleting bookmarks: %w", err)
	}

	return nil
}

func (s *bookmarkStore) query(ctx context.Context, query string, args ...any) ([]*core.Bookmark, error) {
	rows, err := s.db.QueryContext(ctx, (*Store)(s).q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("querying bookmarks: %w", err)
	}
	defer rows.Close()

	var r []*core.Bookmark
	for rows.Next() {
		b, err := scanBookmark(rows)
		if err != nil {
			return nil, err
		}

		r = append(r, b)
	}

	return r, rows.Err()
}

func scanBookmark(row rowScanner) (*core.Bookmark, error) {
	var (
		b         core.Bookmark
		p         []byte
		resumeAt  sql.NullInt64
		createdAt int64
	)

	if err := row.Scan(
		&b.ID, &b.InstanceID, &b.ActivityID, &b.ActivityTypeName, &p, &b.PayloadHash,
		&b.CorrelationID, &b.BurnOnResume, &b.Token, &resumeAt, &createdAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		return nil, fmt.Errorf("scanning bookmark: %w", err)
	}

	var err error
	if b.Payload, err = unmarshalPayload(p); err != nil {
		return nil, err
	}

	b.ResumeAt = fromNullNanos(resumeAt)
	b.CreatedAt = fromNanos(createdAt)

	return &b, nil
}
