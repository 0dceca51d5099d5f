package test

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cschleiden/go-dispatch/backend"
	"github.com/cschleiden/go-dispatch/core"
	"github.com/cschleiden/go-dispatch/definition"
	"github.com/cschleiden/go-dispatch/payload"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// BackendTest runs the store conformance suite against the backend returned by setup.
func BackendTest(t *testing.T, setup func() backend.Backend, teardown func(b backend.Backend)) {
	tests := []struct {
		name string
		f    func(t *testing.T, ctx context.Context, b backend.Backend)
	}{
		{
			name: "Instances_LoadMissingReturnsNotFound",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				_, err := b.Instances().Load(ctx, uuid.NewString())
				require.ErrorIs(t, err, backend.ErrInstanceNotFound)
			},
		},
		{
			name: "Instances_RoundTripIsByteIdentical",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				wfi := newInstance(core.StatusSuspended)
				wfi.Variables = core.Variables{
					"orderId": json.RawMessage(`"42"`),
					"items":   json.RawMessage(`[{"sku":"a","qty":2},{"sku":"b","qty":1}]`),
					"price":   json.RawMessage(`12.50`),
					"order":   json.RawMessage(`{"id": "42",  "note": "fragile"}`),
				}
				pos := &core.Position{Scheduled: []string{"n2"}, Waiting: []string{"n1"}}
				var err error
				wfi.Position, err = pos.Encode()
				require.NoError(t, err)

				require.NoError(t, b.Instances().Save(ctx, wfi))

				loaded, err := b.Instances().Load(ctx, wfi.ID)
				require.NoError(t, err)

				require.Equal(t, wfi.Position, loaded.Position)
				require.Len(t, loaded.Variables, len(wfi.Variables))
				for k, v := range wfi.Variables {
					require.Equal(t, string(v), string(loaded.Variables[k]))
				}

				require.Equal(t, wfi.Status, loaded.Status)
				require.Equal(t, wfi.DefinitionID, loaded.DefinitionID)
				require.Equal(t, wfi.DefinitionVersion, loaded.DefinitionVersion)
				require.True(t, wfi.CreatedAt.Equal(loaded.CreatedAt))
			},
		},
		{
			name: "Instances_SaveReplaces",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				wfi := newInstance(core.StatusRunning)
				require.NoError(t, b.Instances().Save(ctx, wfi))

				wfi.Status = core.StatusCompleted
				finishedAt := wfi.CreatedAt.Add(time.Minute)
				wfi.FinishedAt = &finishedAt
				require.NoError(t, b.Instances().Save(ctx, wfi))

				loaded, err := b.Instances().Load(ctx, wfi.ID)
				require.NoError(t, err)
				require.Equal(t, core.StatusCompleted, loaded.Status)
				require.NotNil(t, loaded.FinishedAt)
				require.True(t, finishedAt.Equal(*loaded.FinishedAt))
			},
		},
		{
			name: "Instances_Delete",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				wfi := newInstance(core.StatusRunning)
				require.NoError(t, b.Instances().Save(ctx, wfi))
				require.NoError(t, b.Instances().Delete(ctx, wfi.ID))

				_, err := b.Instances().Load(ctx, wfi.ID)
				require.ErrorIs(t, err, backend.ErrInstanceNotFound)
			},
		},
		{
			name: "Instances_ListFinished",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

				old := newInstance(core.StatusCompleted)
				oldFinished := now.Add(-2 * time.Hour)
				old.FinishedAt = &oldFinished

				recent := newInstance(core.StatusFaulted)
				recentFinished := now.Add(-time.Minute)
				recent.FinishedAt = &recentFinished

				running := newInstance(core.StatusRunning)

				for _, i := range []*core.WorkflowInstance{old, recent, running} {
					require.NoError(t, b.Instances().Save(ctx, i))
				}

				ids, err := b.Instances().ListFinished(ctx, now.Add(-time.Hour), 10)
				require.NoError(t, err)
				require.Equal(t, []string{old.ID}, ids)
			},
		},
		{
			name: "Bookmarks_FindManyMatchesTypeAndHash",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				b1 := newBookmark("i1", "Event", "h1", "")
				b2 := newBookmark("i2", "Event", "h1", "c1")
				b3 := newBookmark("i3", "Event", "h2", "")
				b4 := newBookmark("i4", "Delay", "h1", "")

				for _, bm := range []*core.Bookmark{b1, b2, b3, b4} {
					require.NoError(t, b.Bookmarks().Save(ctx, bm))
				}

				r, err := b.Bookmarks().FindMany(ctx, core.BookmarkFilter{ActivityTypeName: "Event", PayloadHash: "h1"})
				require.NoError(t, err)
				require.ElementsMatch(t, []string{b1.ID, b2.ID}, bookmarkIDs(r))

				r, err = b.Bookmarks().FindMany(ctx, core.BookmarkFilter{ActivityTypeName: "Event", PayloadHash: "h1", CorrelationID: "c1"})
				require.NoError(t, err)
				require.Equal(t, []string{b2.ID}, bookmarkIDs(r))

				r, err = b.Bookmarks().FindMany(ctx, core.BookmarkFilter{ActivityTypeName: "Event", PayloadHash: "h1", InstanceID: "i1"})
				require.NoError(t, err)
				require.Equal(t, []string{b1.ID}, bookmarkIDs(r))

				r, err = b.Bookmarks().FindMany(ctx, core.BookmarkFilter{ActivityTypeName: "Event", PayloadHash: "nope"})
				require.NoError(t, err)
				require.Empty(t, r)
			},
		},
		{
			name: "Bookmarks_SaveMovesLookupKey",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				bm := newBookmark("i1", "Event", "h1", "")
				require.NoError(t, b.Bookmarks().Save(ctx, bm))

				bm.PayloadHash = "h2"
				require.NoError(t, b.Bookmarks().Save(ctx, bm))

				r, err := b.Bookmarks().FindMany(ctx, core.BookmarkFilter{ActivityTypeName: "Event", PayloadHash: "h1"})
				require.NoError(t, err)
				require.Empty(t, r)

				r, err = b.Bookmarks().FindMany(ctx, core.BookmarkFilter{ActivityTypeName: "Event", PayloadHash: "h2"})
				require.NoError(t, err)
				require.Equal(t, []string{bm.ID}, bookmarkIDs(r))

				require.NoError(t, b.Bookmarks().Delete(ctx, bm.ID))

				r, err = b.Bookmarks().FindMany(ctx, core.BookmarkFilter{ActivityTypeName: "Event", PayloadHash: "h2"})
				require.NoError(t, err)
				require.Empty(t, r)
			},
		},
		{
			name: "Bookmarks_GetAndDelete",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				bm := newBookmark("i1", "Event", "h1", "c1")
				bm.Payload = payload.Payload{"event": "OrderApproved"}
				bm.Token = "continue"
				resumeAt := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
				bm.ResumeAt = &resumeAt
				require.NoError(t, b.Bookmarks().Save(ctx, bm))

				loaded, err := b.Bookmarks().Get(ctx, bm.ID)
				require.NoError(t, err)
				require.Equal(t, bm.InstanceID, loaded.InstanceID)
				require.Equal(t, bm.ActivityID, loaded.ActivityID)
				require.Equal(t, "continue", loaded.Token)
				require.Equal(t, "OrderApproved", loaded.Payload["event"])
				require.True(t, loaded.BurnOnResume)
				require.NotNil(t, loaded.ResumeAt)
				require.True(t, resumeAt.Equal(*loaded.ResumeAt))

				require.NoError(t, b.Bookmarks().Delete(ctx, bm.ID))
				require.NoError(t, b.Bookmarks().Delete(ctx, bm.ID))

				_, err = b.Bookmarks().Get(ctx, bm.ID)
				require.ErrorIs(t, err, backend.ErrBookmarkNotFound)
			},
		},
		{
			name: "Bookmarks_ByInstance",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				b1 := newBookmark("i1", "Event", "h1", "")
				b2 := newBookmark("i1", "Delay", "h2", "")
				b3 := newBookmark("i2", "Event", "h1", "")

				for _, bm := range []*core.Bookmark{b1, b2, b3} {
					require.NoError(t, b.Bookmarks().Save(ctx, bm))
				}

				r, err := b.Bookmarks().FindByInstance(ctx, "i1")
				require.NoError(t, err)
				require.ElementsMatch(t, []string{b1.ID, b2.ID}, bookmarkIDs(r))

				require.NoError(t, b.Bookmarks().DeleteByInstance(ctx, "i1"))

				r, err = b.Bookmarks().FindByInstance(ctx, "i1")
				require.NoError(t, err)
				require.Empty(t, r)

				r, err = b.Bookmarks().FindByInstance(ctx, "i2")
				require.NoError(t, err)
				require.Len(t, r, 1)
			},
		},
		{
			name: "Definitions_VersionsAreImmutable",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				id := uuid.NewString()

				require.NoError(t, b.Definitions().Save(ctx, newDefinition(id, 1, true)))
				require.ErrorIs(t, b.Definitions().Save(ctx, newDefinition(id, 1, true)), backend.ErrDefinitionVersionExists)
				require.NoError(t, b.Definitions().Save(ctx, newDefinition(id, 2, false)))

				d, err := b.Definitions().Get(ctx, id, 2)
				require.NoError(t, err)
				require.Equal(t, 2, d.Version)
				require.False(t, d.IsPublished)
				require.Equal(t, "start", d.Graph.Root)
				require.Len(t, d.Triggers, 1)

				_, err = b.Definitions().Get(ctx, id, 3)
				require.ErrorIs(t, err, backend.ErrDefinitionNotFound)
			},
		},
		{
			name: "Definitions_Latest",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				id := uuid.NewString()

				_, err := b.Definitions().Latest(ctx, id, false)
				require.ErrorIs(t, err, backend.ErrDefinitionNotFound)

				require.NoError(t, b.Definitions().Save(ctx, newDefinition(id, 1, true)))
				require.NoError(t, b.Definitions().Save(ctx, newDefinition(id, 2, false)))

				d, err := b.Definitions().Latest(ctx, id, true)
				require.NoError(t, err)
				require.Equal(t, 1, d.Version)

				d, err = b.Definitions().Latest(ctx, id, false)
				require.NoError(t, err)
				require.Equal(t, 2, d.Version)
			},
		},
		{
			name: "Triggers_ReplaceForDefinition",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				entry := func(def, hash string, version int) backend.TriggerEntry {
					return backend.TriggerEntry{
						ActivityTypeName:  "Event",
						PayloadHash:       hash,
						Payload:           payload.Payload{"event": hash},
						DefinitionID:      def,
						DefinitionVersion: version,
						ActivityID:        "start",
					}
				}

				require.NoError(t, b.Triggers().ReplaceForDefinition(ctx, "d1", []backend.TriggerEntry{entry("d1", "h1", 1)}))
				require.NoError(t, b.Triggers().ReplaceForDefinition(ctx, "d2", []backend.TriggerEntry{entry("d2", "h1", 1)}))

				r, err := b.Triggers().Find(ctx, "Event", "h1")
				require.NoError(t, err)
				require.Len(t, r, 2)

				require.NoError(t, b.Triggers().ReplaceForDefinition(ctx, "d1", []backend.TriggerEntry{entry("d1", "h2", 2)}))

				r, err = b.Triggers().Find(ctx, "Event", "h1")
				require.NoError(t, err)
				require.Len(t, r, 1)
				require.Equal(t, "d2", r[0].DefinitionID)

				r, err = b.Triggers().Find(ctx, "Event", "h2")
				require.NoError(t, err)
				require.Len(t, r, 1)
				require.Equal(t, "d1", r[0].DefinitionID)
				require.Equal(t, 2, r[0].DefinitionVersion)
				require.Equal(t, "start", r[0].ActivityID)

				require.NoError(t, b.Triggers().ReplaceForDefinition(ctx, "d1", nil))

				r, err = b.Triggers().Find(ctx, "Event", "h2")
				require.NoError(t, err)
				require.Empty(t, r)
			},
		},
		{
			name: "Jobs_DueOnlyReturnsPastJobs",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

				past := newJob("i1", now.Add(-time.Minute))
				future := newJob("i1", now.Add(time.Minute))
				require.NoError(t, b.Jobs().Schedule(ctx, past))
				require.NoError(t, b.Jobs().Schedule(ctx, future))

				due, err := b.Jobs().Due(ctx, now, 10)
				require.NoError(t, err)
				require.Len(t, due, 1)
				require.Equal(t, past.ID, due[0].ID)
				require.Equal(t, "Delay", due[0].Request.ActivityTypeName)
				require.Equal(t, "i1", due[0].Request.InstanceID)
			},
		},
		{
			name: "Jobs_PayloadHashSurvivesPersistence",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

				job := newJob("i1", now.Add(-time.Minute))
				job.Request.Payload = payload.Payload{"orderId": int64(9007199254740993), "activityId": "wait"}
				require.NoError(t, b.Jobs().Schedule(ctx, job))

				expected, err := payload.HashString(payload.DefaultHasher, job.Request.Payload)
				require.NoError(t, err)

				due, err := b.Jobs().Due(ctx, now, 10)
				require.NoError(t, err)
				require.Len(t, due, 1)

				actual, err := payload.HashString(payload.DefaultHasher, due[0].Request.Payload)
				require.NoError(t, err)
				require.Equal(t, expected, actual)
			},
		},
		{
			name: "Jobs_ClaimIsExclusive",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

				job := newJob("i1", now.Add(-time.Second))
				require.NoError(t, b.Jobs().Schedule(ctx, job))

				const nodes = 8

				var wins int32
				errs := make([]error, nodes)

				var wg sync.WaitGroup
				wg.Add(nodes)
				for i := 0; i < nodes; i++ {
					owner := uuid.NewString()
					go func(i int) {
						defer wg.Done()

						ok, err := b.Jobs().Claim(ctx, job.ID, owner, now, now.Add(time.Minute))
						errs[i] = err
						if ok {
							atomic.AddInt32(&wins, 1)
						}
					}(i)
				}
				wg.Wait()

				for _, err := range errs {
					require.NoError(t, err)
				}

				require.EqualValues(t, 1, wins)

				due, err := b.Jobs().Due(ctx, now, 10)
				require.NoError(t, err)
				require.Empty(t, due)
			},
		},
		{
			name: "Jobs_ExpiredClaimIsReclaimable",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

				job := newJob("i1", now.Add(-time.Second))
				require.NoError(t, b.Jobs().Schedule(ctx, job))

				ok, err := b.Jobs().Claim(ctx, job.ID, "n1", now, now.Add(time.Minute))
				require.NoError(t, err)
				require.True(t, ok)

				ok, err = b.Jobs().Claim(ctx, job.ID, "n2", now.Add(30*time.Second), now.Add(2*time.Minute))
				require.NoError(t, err)
				require.False(t, ok)

				later := now.Add(2 * time.Minute)
				due, err := b.Jobs().Due(ctx, later, 10)
				require.NoError(t, err)
				require.Len(t, due, 1)

				ok, err = b.Jobs().Claim(ctx, job.ID, "n2", later, later.Add(time.Minute))
				require.NoError(t, err)
				require.True(t, ok)

				// The previous owner can no longer complete the job
				require.NoError(t, b.Jobs().Complete(ctx, job.ID, "n1"))
				due, err = b.Jobs().Due(ctx, later.Add(2*time.Minute), 10)
				require.NoError(t, err)
				require.Len(t, due, 1)

				require.NoError(t, b.Jobs().Complete(ctx, job.ID, "n2"))
				due, err = b.Jobs().Due(ctx, later.Add(2*time.Minute), 10)
				require.NoError(t, err)
				require.Empty(t, due)
			},
		},
		{
			name: "Jobs_ReleaseReschedules",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

				job := newJob("i1", now.Add(-time.Second))
				require.NoError(t, b.Jobs().Schedule(ctx, job))

				ok, err := b.Jobs().Claim(ctx, job.ID, "n1", now, now.Add(time.Minute))
				require.NoError(t, err)
				require.True(t, ok)

				require.NoError(t, b.Jobs().Release(ctx, job.ID, "n1", now.Add(10*time.Second)))

				due, err := b.Jobs().Due(ctx, now, 10)
				require.NoError(t, err)
				require.Empty(t, due)

				due, err = b.Jobs().Due(ctx, now.Add(10*time.Second), 10)
				require.NoError(t, err)
				require.Len(t, due, 1)
				require.Empty(t, due[0].ClaimedBy)
			},
		},
		{
			name: "Jobs_ExtendKeepsClaim",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

				job := newJob("i1", now.Add(-time.Second))
				require.NoError(t, b.Jobs().Schedule(ctx, job))

				ok, err := b.Jobs().Claim(ctx, job.ID, "n1", now, now.Add(time.Minute))
				require.NoError(t, err)
				require.True(t, ok)

				require.ErrorIs(t, b.Jobs().Extend(ctx, job.ID, "n2", now.Add(5*time.Minute)), backend.ErrClaimLost)
				require.NoError(t, b.Jobs().Extend(ctx, job.ID, "n1", now.Add(5*time.Minute)))

				later := now.Add(2 * time.Minute)
				due, err := b.Jobs().Due(ctx, later, 10)
				require.NoError(t, err)
				require.Empty(t, due)

				ok, err = b.Jobs().Claim(ctx, job.ID, "n2", later, later.Add(time.Minute))
				require.NoError(t, err)
				require.False(t, ok)

				require.NoError(t, b.Jobs().Complete(ctx, job.ID, "n1"))
				require.ErrorIs(t, b.Jobs().Extend(ctx, job.ID, "n1", later), backend.ErrClaimLost)
			},
		},
		{
			name: "Jobs_DeleteByInstance",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

				require.NoError(t, b.Jobs().Schedule(ctx, newJob("i1", now)))
				require.NoError(t, b.Jobs().Schedule(ctx, newJob("i2", now)))

				require.NoError(t, b.Jobs().DeleteByInstance(ctx, "i1"))

				due, err := b.Jobs().Due(ctx, now, 10)
				require.NoError(t, err)
				require.Len(t, due, 1)
				require.Equal(t, "i2", due[0].InstanceID)
			},
		},
		{
			name: "ExecutionLog_AppendAssignsSequence",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				id := uuid.NewString()
				now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

				e1 := &core.LogEntry{InstanceID: id, Timestamp: now, Operation: core.OperationStart, ToStatus: core.StatusSuspended}
				e2 := &core.LogEntry{InstanceID: id, Timestamp: now, Operation: core.OperationResume, FromStatus: core.StatusSuspended, ToStatus: core.StatusCompleted, ActivityID: "wait"}
				require.NoError(t, b.ExecutionLog().Append(ctx, e1))
				require.NoError(t, b.ExecutionLog().Append(ctx, e2))
				require.EqualValues(t, 1, e1.Sequence)
				require.EqualValues(t, 2, e2.Sequence)

				entries, err := b.ExecutionLog().List(ctx, id)
				require.NoError(t, err)
				require.Len(t, entries, 2)
				require.Equal(t, core.OperationStart, entries[0].Operation)
				require.Equal(t, core.StatusCompleted, entries[1].ToStatus)
				require.Equal(t, "wait", entries[1].ActivityID)

				require.NoError(t, b.ExecutionLog().DeleteByInstance(ctx, id))
				entries, err = b.ExecutionLog().List(ctx, id)
				require.NoError(t, err)
				require.Empty(t, entries)
			},
		},
		{
			name: "Locks_AcquireIsExclusive",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				key := core.LockResourceKey(uuid.NewString())

				h, err := b.Locks().Acquire(ctx, key, 0, time.Minute)
				require.NoError(t, err)
				require.Equal(t, key, h.ResourceKey)
				require.NotEmpty(t, h.OwnerToken)

				_, err = b.Locks().Acquire(ctx, key, 0, time.Minute)
				require.ErrorIs(t, err, backend.ErrLockTimeout)

				_, err = b.Locks().Acquire(ctx, key, 20*time.Millisecond, time.Minute)
				require.ErrorIs(t, err, backend.ErrLockTimeout)

				require.NoError(t, b.Locks().Release(ctx, h))

				h2, err := b.Locks().Acquire(ctx, key, 0, time.Minute)
				require.NoError(t, err)
				require.NotEqual(t, h.OwnerToken, h2.OwnerToken)

				// Releasing a stale handle does not release the new holder
				require.NoError(t, b.Locks().Release(ctx, h))
				_, err = b.Locks().Acquire(ctx, key, 0, time.Minute)
				require.ErrorIs(t, err, backend.ErrLockTimeout)
			},
		},
		{
			name: "Locks_ConcurrentAcquireGrantsOne",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				key := core.LockResourceKey(uuid.NewString())

				const contenders = 8

				var wins int32
				errs := make([]error, contenders)

				var wg sync.WaitGroup
				wg.Add(contenders)
				for i := 0; i < contenders; i++ {
					go func(i int) {
						defer wg.Done()

						_, err := b.Locks().Acquire(ctx, key, 0, time.Minute)
						if err == nil {
							atomic.AddInt32(&wins, 1)
							return
						}

						errs[i] = err
					}(i)
				}
				wg.Wait()

				for _, err := range errs {
					if err != nil {
						require.ErrorIs(t, err, backend.ErrLockTimeout)
					}
				}

				require.EqualValues(t, 1, wins)
			},
		},
		{
			name: "Locks_WaitForRelease",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				key := core.LockResourceKey(uuid.NewString())

				h, err := b.Locks().Acquire(ctx, key, 0, time.Minute)
				require.NoError(t, err)

				go func() {
					time.Sleep(20 * time.Millisecond)
					_ = b.Locks().Release(ctx, h)
				}()

				h2, err := b.Locks().Acquire(ctx, key, 5*time.Second, time.Minute)
				require.NoError(t, err)
				require.NoError(t, b.Locks().Release(ctx, h2))
			},
		},
		{
			name: "Locks_Renew",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				key := core.LockResourceKey(uuid.NewString())

				h, err := b.Locks().Acquire(ctx, key, 0, time.Minute)
				require.NoError(t, err)

				renewed, err := b.Locks().Renew(ctx, h, 2*time.Minute)
				require.NoError(t, err)
				require.Equal(t, h.OwnerToken, renewed.OwnerToken)
				require.True(t, renewed.ExpiresAt.After(h.ExpiresAt))

				require.NoError(t, b.Locks().Release(ctx, renewed))

				_, err = b.Locks().Renew(ctx, renewed, time.Minute)
				require.ErrorIs(t, err, backend.ErrLockExpired)
			},
		},
		{
			name: "Locks_ExpiredLeaseCanBeTakenOver",
			f: func(t *testing.T, ctx context.Context, b backend.Backend) {
				key := core.LockResourceKey(uuid.NewString())

				h, err := b.Locks().Acquire(ctx, key, 0, 50*time.Millisecond)
				require.NoError(t, err)

				time.Sleep(100 * time.Millisecond)

				h2, err := b.Locks().Acquire(ctx, key, 0, time.Minute)
				require.NoError(t, err)
				require.NotEqual(t, h.OwnerToken, h2.OwnerToken)

				_, err = b.Locks().Renew(ctx, h, time.Minute)
				require.ErrorIs(t, err, backend.ErrLockExpired)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := setup()
			ctx := context.Background()

			tt.f(t, ctx, b)

			if teardown != nil {
				teardown(b)
			}
		})
	}
}

func newInstance(status core.Status) *core.WorkflowInstance {
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	return &core.WorkflowInstance{
		ID:                uuid.NewString(),
		DefinitionID:      "orders",
		DefinitionVersion: 1,
		Status:            status,
		Variables:         core.Variables{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func newBookmark(instanceID, activityType, hash, correlationID string) *core.Bookmark {
	return &core.Bookmark{
		ID:               uuid.NewString(),
		InstanceID:       instanceID,
		ActivityID:       "wait",
		ActivityTypeName: activityType,
		PayloadHash:      hash,
		CorrelationID:    correlationID,
		BurnOnResume:     true,
		CreatedAt:        time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
	}
}

func newDefinition(id string, version int, published bool) *definition.WorkflowDefinition {
	g := definition.NewGraph("start").
		AddNode("start", "Event", map[string]any{"event": "OrderApproved"}).
		AddNode("end", "Finish", nil).
		Connect("start", "end")

	return &definition.WorkflowDefinition{
		ID:          id,
		Version:     version,
		IsPublished: published,
		Graph:       g,
		Triggers: []definition.TriggerDescriptor{
			{ActivityID: "start", ActivityTypeName: "Event", Payload: payload.Payload{"event": "OrderApproved"}, PayloadHash: "h"},
		},
		CreatedAt: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
	}
}

func newJob(instanceID string, fireAt time.Time) *core.ScheduledJob {
	return &core.ScheduledJob{
		ID:         uuid.NewString(),
		InstanceID: instanceID,
		BookmarkID: uuid.NewString(),
		FireAt:     fireAt,
		Request: core.ResumeBookmarksRequest{
			ActivityTypeName: "Delay",
			Payload:          payload.Payload{"activityId": "wait"},
			InstanceID:       instanceID,
		},
		CreatedAt: fireAt,
	}
}

func bookmarkIDs(bs []*core.Bookmark) []string {
	ids := make([]string, 0, len(bs))
	for _, b := range bs {
		ids = append(ids, b.ID)
	}

	return ids
}
