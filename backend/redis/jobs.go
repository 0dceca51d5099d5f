package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/cschleiden/go-dispatch/backend"
	"github.com/cschleiden/go-dispatch/core"
	"github.com/redis/go-redis/v9"
)

// jobStore keeps every job in a HASH. Unclaimed jobs are indexed by fire time, claimed jobs by
// claim expiry, so a job is always in exactly one of the two ZSETs.
type jobStore redisBackend

var _ backend.JobStore = (*jobStore)(nil)

// Create or replace a job. A replaced job loses its claim.
// KEYS[1] - job key
// KEYS[2] - jobs-by-fire-at key
// KEYS[3] - jobs-claimed key
// KEYS[4] - instance jobs key
// ARGV[1] - job id
// ARGV[2] - serialized job
// ARGV[3] - fire time in unix milliseconds
// ARGV[4] - instance id
var scheduleJobCmd = redis.NewScript(
	`redis.call("DEL", KEYS[1])
	redis.call("HSET", KEYS[1], "data", ARGV[2], "instance_id", ARGV[4], "fire_at", ARGV[3])
	redis.call("ZREM", KEYS[3], ARGV[1])
	redis.call("ZADD", KEYS[2], ARGV[3], ARGV[1])
	redis.call("SADD", KEYS[4], ARGV[1])
	return 0
	`,
)

// Claim a job that is due and either unclaimed or whose claim has expired
// KEYS[1] - job key
// KEYS[2] - jobs-by-fire-at key
// KEYS[3] - jobs-claimed key
// ARGV[1] - job id
// ARGV[2] - owner
// ARGV[3] - current time in unix milliseconds
// ARGV[4] - claim expiration in unix milliseconds
var claimJobCmd = redis.NewScript(
	`if redis.call("EXISTS", KEYS[1]) == 0 then
		return 0
	end

	local now = tonumber(ARGV[3])
	local fireAt = redis.call("ZSCORE", KEYS[2], ARGV[1])
	if fireAt then
		if tonumber(fireAt) > now then
			return 0
		end
	else
		local expiresAt = redis.call("ZSCORE", KEYS[3], ARGV[1])
		if not expiresAt or tonumber(expiresAt) >= now then
			return 0
		end
	end

	redis.call("ZREM", KEYS[2], ARGV[1])
	redis.call("ZADD", KEYS[3], ARGV[4], ARGV[1])
	redis.call("HSET", KEYS[1], "claimed_by", ARGV[2], "claim_expires_at", ARGV[4])
	return 1
	`,
)

// Move the claim expiry of a job claimed by the given owner
// KEYS[1] - job key
// KEYS[2] - jobs-claimed key
// ARGV[1] - job id
// ARGV[2] - owner
// ARGV[3] - claim expiration in unix milliseconds
var extendJobCmd = redis.NewScript(
	`if redis.call("HGET", KEYS[1], "claimed_by") ~= ARGV[2] then
		return 0
	end

	redis.call("ZADD", KEYS[2], ARGV[3], ARGV[1])
	redis.call("HSET", KEYS[1], "claim_expires_at", ARGV[3])
	return 1
	`,
)

// Remove a job if it is claimed by the given owner
// KEYS[1] - job key
// KEYS[2] - jobs-by-fire-at key
// KEYS[3] - jobs-claimed key
// KEYS[4] - instance jobs key
// ARGV[1] - job id
// ARGV[2] - owner
var completeJobCmd = redis.NewScript(
	`if redis.call("HGET", KEYS[1], "claimed_by") ~= ARGV[2] then
		return 0
	end

	redis.call("DEL", KEYS[1])
	redis.call("ZREM", KEYS[2], ARGV[1])
	redis.call("ZREM", KEYS[3], ARGV[1])
	redis.call("SREM", KEYS[4], ARGV[1])
	return 1
	`,
)

// Drop the claim of the given owner and move the job to a new fire time
// KEYS[1] - job key
// KEYS[2] - jobs-by-fire-at key
// KEYS[3] - jobs-claimed key
// ARGV[1] - job id
// ARGV[2] - owner
// ARGV[3] - new fire time in unix milliseconds
var releaseJobCmd = redis.NewScript(
	`if redis.call("HGET", KEYS[1], "claimed_by") ~= ARGV[2] then
		return 0
	end

	redis.call("HDEL", KEYS[1], "claimed_by", "claim_expires_at")
	redis.call("HSET", KEYS[1], "fire_at", ARGV[3])
	redis.call("ZREM", KEYS[3], ARGV[1])
	redis.call("ZADD", KEYS[2], ARGV[3], ARGV[1])
	return 1
	`,
)

// Remove all jobs of an instance
// KEYS[1] - instance jobs key
// KEYS[2] - jobs-by-fire-at key
// KEYS[3] - jobs-claimed key
// ARGV[1] - job key prefix
var deleteJobsCmd = redis.NewScript(
	`local ids = redis.call("SMEMBERS", KEYS[1])
	for i = 1, #ids do
		redis.call("DEL", ARGV[1] .. ids[i])
		redis.call("ZREM", KEYS[2], ids[i])
		redis.call("ZREM", KEYS[3], ids[i])
	end

	redis.call("DEL", KEYS[1])
	return #ids
	`,
)

func (s *jobStore) Schedule(ctx context.Context, job *core.ScheduledJob) error {
	unclaimed := *job
	unclaimed.ClaimedBy = ""
	unclaimed.ClaimExpiresAt = nil

	data, err := json.Marshal(&unclaimed)
	if err != nil {
		return fmt.Errorf("marshaling job: %w", err)
	}

	if err := scheduleJobCmd.Run(ctx, s.rdb, []string{
		s.keys.jobKey(job.ID),
		s.keys.jobsByFireAt(),
		s.keys.jobsClaimed(),
		s.keys.instanceJobs(job.InstanceID),
	},
		job.ID,
		string(data),
		job.FireAt.UnixMilli(),
		job.InstanceID,
	).Err(); err != nil {
		return fmt.Errorf("scheduling job: %w", err)
	}

	return nil
}

func (s *jobStore) Due(ctx context.Context, now time.Time, limit int) ([]*core.ScheduledJob, error) {
	nowStr := strconv.FormatInt(now.UnixMilli(), 10)

	count := int64(limit)
	if limit <= 0 {
		count = -1
	}

	unclaimed, err := s.rdb.ZRangeByScore(ctx, s.keys.jobsByFireAt(), &redis.ZRangeBy{
		Min: "-inf", Max: nowStr, Count: count,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("reading due jobs: %w", err)
	}

	expired, err := s.rdb.ZRangeByScore(ctx, s.keys.jobsClaimed(), &redis.ZRangeBy{
		Min: "-inf", Max: "(" + nowStr, Count: count,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("reading expired claims: %w", err)
	}

	ids := append(unclaimed, expired...)
	if len(ids) == 0 {
		return nil, nil
	}

	cmds, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, id := range ids {
			p.HGetAll(ctx, s.keys.jobKey(id))
		}

		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("reading jobs: %w", err)
	}

	jobs := make([]*core.ScheduledJob, 0, len(cmds))
	for _, cmd := range cmds {
		fields, err := cmd.(*redis.MapStringStringCmd).Result()
		if err != nil {
			return nil, fmt.Errorf("reading job: %w", err)
		}

		// Removed after the index was read
		if len(fields) == 0 {
			continue
		}

		job, err := decodeJob(fields)
		if err != nil {
			return nil, err
		}

		jobs = append(jobs, job)
	}

	sort.Slice(jobs, func(a, b int) bool {
		return jobs[a].FireAt.Before(jobs[b].FireAt)
	})

	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}

	return jobs, nil
}

func (s *jobStore) Claim(ctx context.Context, id, owner string, now, claimUntil time.Time) (bool, error) {
	claimed, err := claimJobCmd.Run(ctx, s.rdb, []string{
		s.keys.jobKey(id),
		s.keys.jobsByFireAt(),
		s.keys.jobsClaimed(),
	},
		id,
		owner,
		now.UnixMilli(),
		claimUntil.UnixMilli(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}

	return claimed == 1, nil
}

func (s *jobStore) Extend(ctx context.Context, id, owner string, claimUntil time.Time) error {
	extended, err := extendJobCmd.Run(ctx, s.rdb, []string{
		s.keys.jobKey(id),
		s.keys.jobsClaimed(),
	}, id, owner, claimUntil.UnixMilli()).Int()
	if err != nil {
		return fmt.Errorf("extending job claim: %w", err)
	}

	if extended == 0 {
		return backend.ErrClaimLost
	}

	return nil
}

func (s *jobStore) Complete(ctx context.Context, id, owner string) error {
	instanceID, err := s.rdb.HGet(ctx, s.keys.jobKey(id), "instance_id").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}

		return fmt.Errorf("reading job: %w", err)
	}

	if err := completeJobCmd.Run(ctx, s.rdb, []string{
		s.keys.jobKey(id),
		s.keys.jobsByFireAt(),
		s.keys.jobsClaimed(),
		s.keys.instanceJobs(instanceID),
	}, id, owner).Err(); err != nil {
		return fmt.Errorf("completing job: %w", err)
	}

	return nil
}

func (s *jobStore) Release(ctx context.Context, id, owner string, fireAt time.Time) error {
	if err := releaseJobCmd.Run(ctx, s.rdb, []string{
		s.keys.jobKey(id),
		s.keys.jobsByFireAt(),
		s.keys.jobsClaimed(),
	}, id, owner, fireAt.UnixMilli()).Err(); err != nil {
		return fmt.Errorf("releasing job: %w", err)
	}

	return nil
}

func (s *jobStore) DeleteByInstance(ctx context.Context, instanceID string) error {
	if err := deleteJobsCmd.Run(ctx, s.rdb, []string{
		s.keys.instanceJobs(instanceID),
		s.keys.jobsByFireAt(),
		s.keys.jobsClaimed(),
	}, s.keys.jobKey("")).Err(); err != nil {
		return fmt.Errorf("deleting jobs: %w", err)
	}

	return nil
}

func decodeJob(fields map[string]string) (*core.ScheduledJob, error) {
	var job core.ScheduledJob
	if err := json.Unmarshal([]byte(fields["data"]), &job); err != nil {
		return nil, fmt.Errorf("unmarshaling job: %w", err)
	}

	// Release moves the fire time without rewriting the serialized job
	if fireAt, err := strconv.ParseInt(fields["fire_at"], 10, 64); err == nil && fireAt != job.FireAt.UnixMilli() {
		job.FireAt = time.UnixMilli(fireAt).UTC()
	}

	if owner, ok := fields["claimed_by"]; ok {
		job.ClaimedBy = owner

		if expiresAt, err := strconv.ParseInt(fields["claim_expires_at"], 10, 64); err == nil {
			t := time.UnixMilli(expiresAt).UTC()
			job.ClaimExpiresAt = &t
		}
	}

	return &job, nil
}
