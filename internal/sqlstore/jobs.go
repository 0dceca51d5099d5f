package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cschleiden/go-dispatch/backend"
	"github.com/cschleiden/go-dispatch/core"
)

type jobStore Store

func (s *jobStore) Schedule(ctx context.Context, job *core.ScheduledJob) error {
	request, err := json.Marshal(job.Request)
	if err != nil {
		return fmt.Errorf("marshaling job request: %w", err)
	}

	var claimedBy sql.NullString
	if job.ClaimedBy != "" {
		claimedBy = sql.NullString{String: job.ClaimedBy, Valid: true}
	}

	if _, err := s.db.ExecContext(
		ctx,
		s.dialect.Upsert(
			"scheduled_jobs", []string{"id"},
			"id", "instance_id", "bookmark_id", "fire_at", "request", "claimed_by", "claim_expires_at", "created_at",
		),
		job.ID, job.InstanceID, job.BookmarkID, toNanos(job.FireAt), request, claimedBy, nullNanos(job.ClaimExpiresAt), toNanos(job.CreatedAt),
	); err != nil {
		return fmt.Errorf("scheduling job: %w", err)
	}

	return nil
}

func (s *jobStore) Due(ctx context.Context, now time.Time, limit int) ([]*core.ScheduledJob, error) {
	n := toNanos(now)

	rows, err := s.db.QueryContext(
		ctx,
		(*Store)(s).q(`SELECT id, instance_id, bookmark_id, fire_at, request, claimed_by, claim_expires_at, created_at
			FROM scheduled_jobs
			WHERE fire_at <= ? AND (claimed_by IS NULL OR claim_expires_at < ?)
			ORDER BY fire_at
			LIMIT ?`),
		n, n, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying due jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*core.ScheduledJob
	for rows.Next() {
		var (
			job               core.ScheduledJob
			fireAt, createdAt int64
			request           []byte
			claimedBy         sql.NullString
			claimExpiresAt    sql.NullInt64
		)

		if err := rows.Scan(
			&job.ID, &job.InstanceID, &job.BookmarkID, &fireAt, &request, &claimedBy, &claimExpiresAt, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scanning job: %w", err)
		}

		if err := json.Unmarshal(request, &job.Request); err != nil {
			return nil, fmt.Errorf("unmarshaling job request: %w", err)
		}

		job.FireAt = fromNanos(fireAt)
		job.ClaimedBy = claimedBy.String
		job.ClaimExpiresAt = fromNullNanos(claimExpiresAt)
		job.CreatedAt = fromNanos(createdAt)

		jobs = append(jobs, &job)
	}

	return jobs, rows.Err()
}

// Claim is a single conditional update, the database decides the winner of concurrent claims.
func (s *jobStore) Claim(ctx context.Context, id, owner string, now, claimUntil time.Time) (bool, error) {
	n := toNanos(now)

	res, err := s.db.ExecContext(
		ctx,
		(*Store)(s).q(`UPDATE scheduled_jobs SET claimed_by = ?, claim_expires_at = ?
			WHERE id = ? AND fire_at <= ? AND (claimed_by IS NULL OR claim_expires_at < ?)`),
		owner, toNanos(claimUntil), id, n, n,
	)
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows == 1, nil
}

func (s *jobStore) Extend(ctx context.Context, id, owner string, claimUntil time.Time) error {
	res, err := s.db.ExecContext(
		ctx,
		(*Store)(s).q("UPDATE scheduled_jobs SET claim_expires_at = ? WHERE id = ? AND claimed_by = ?"),
		toNanos(claimUntil), id, owner,
	)
	if err != nil {
		return fmt.Errorf("extending job claim: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if rows != 1 {
		return backend.ErrClaimLost
	}

	return nil
}

func (s *jobStore) Complete(ctx context.Context, id, owner string) error {
	if _, err := s.db.ExecContext(
		ctx,
		(*Store)(s).q("DELETE FROM scheduled_jobs WHERE id = ? AND claimed_by = ?"),
		id, owner,
	); err != nil {
		return fmt.Errorf("completing job: %w", err)
	}

	return nil
}

func (s *jobStore) Release(ctx context.Context, id, owner string, fireAt time.Time) error {
	if _, err := s.db.ExecContext(
		ctx,
		(*Store)(s).q("UPDATE scheduled_jobs SET claimed_by = NULL, claim_expires_at = NULL, fire_at = ? WHERE id = ? AND claimed_by = ?"),
		toNanos(fireAt), id, owner,
	); err != nil {
		return fmt.Errorf("releasing job: %w", err)
	}

	return nil
}

func (s *jobStore) DeleteByInstance(ctx context.Context, instanceID string) error {
	if _, err := s.db.ExecContext(ctx, (*Store)(s).q("DELETE FROM scheduled_jobs WHERE instance_id = ?"), instanceID); err != nil {
		return fmt.Errorf("deleting jobs: %w", err)
	}

	return nil
}
