// Package memory implements every store in process. State is lost when the process exits, so it
// is only useful for tests and single node deployments.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cschleiden/go-dispatch/backend"
	"github.com/cschleiden/go-dispatch/core"
	"github.com/cschleiden/go-dispatch/definition"
	"github.com/cschleiden/go-dispatch/internal/lease"
	"github.com/cschleiden/go-dispatch/internal/metrickeys"
	"github.com/cschleiden/go-dispatch/metrics"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

type memoryBackend struct {
	options backend.Options

	mu sync.Mutex

	instances   map[string]*core.WorkflowInstance
	bookmarks   map[string]*core.Bookmark
	bookmarkIdx map[triggerKey]map[string]struct{}
	definitions map[string]map[int]*definition.WorkflowDefinition
	triggers    map[triggerKey][]backend.TriggerEntry
	jobs        map[string]*core.ScheduledJob
	log         map[string][]*core.LogEntry
	locks       map[string]lockEntry
}

type triggerKey struct {
	activityTypeName string
	payloadHash      string
}

type lockEntry struct {
	owner     string
	expiresAt time.Time
}

func NewMemoryBackend(opts ...backend.BackendOption) *memoryBackend {
	return &memoryBackend{
		options:     backend.ApplyOptions(opts...),
		instances:   map[string]*core.WorkflowInstance{},
		bookmarks:   map[string]*core.Bookmark{},
		bookmarkIdx: map[triggerKey]map[string]struct{}{},
		definitions: map[string]map[int]*definition.WorkflowDefinition{},
		triggers:    map[triggerKey][]backend.TriggerEntry{},
		jobs:        map[string]*core.ScheduledJob{},
		log:         map[string][]*core.LogEntry{},
		locks:       map[string]lockEntry{},
	}
}

var _ backend.Backend = (*memoryBackend)(nil)

func (mb *memoryBackend) Options() *backend.Options {
	return &mb.options
}

func (mb *memoryBackend) Metrics() metrics.Client {
	return mb.options.Metrics.WithTags(metrics.Tags{metrickeys.Backend: "memory"})
}

func (mb *memoryBackend) Tracer() trace.Tracer {
	return mb.options.TracerProvider.Tracer(backend.TracerName)
}

func (mb *memoryBackend) Close() error {
	return nil
}

func (mb *memoryBackend) Definitions() backend.DefinitionStore { return (*definitionStore)(mb) }
func (mb *memoryBackend) Instances() backend.InstanceStore     { return (*instanceStore)(mb) }
func (mb *memoryBackend) Bookmarks() backend.BookmarkStore     { return (*bookmarkStore)(mb) }
func (mb *memoryBackend) Triggers() backend.TriggerStore       { return (*triggerStore)(mb) }
func (mb *memoryBackend) Jobs() backend.JobStore               { return (*jobStore)(mb) }
func (mb *memoryBackend) ExecutionLog() backend.ExecutionLogStore {
	return (*logStore)(mb)
}
func (mb *memoryBackend) Locks() backend.LockProvider { return (*lockProvider)(mb) }

type instanceStore memoryBackend

func (s *instanceStore) Load(_ context.Context, id string) (*core.WorkflowInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.instances[id]
	if !ok {
		return nil, backend.ErrInstanceNotFound
	}

	return i.Clone(), nil
}

func (s *instanceStore) Save(_ context.Context, instance *core.WorkflowInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.instances[instance.ID] = instance.Clone()

	return nil
}

func (s *instanceStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.instances, id)

	return nil
}

func (s *instanceStore) ListFinished(_ context.Context, before time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var finished []*core.WorkflowInstance
	for _, i := range s.instances {
		if i.Status.Terminal() && i.FinishedAt != nil && i.FinishedAt.Before(before) {
			finished = append(finished, i)
		}
	}

	sort.Slice(finished, func(a, b int) bool {
		return finished[a].FinishedAt.Before(*finished[b].FinishedAt)
	})

	ids := make([]string, 0, len(finished))
	for _, i := range finished {
		if limit > 0 && len(ids) >= limit {
			break
		}

		ids = append(ids, i.ID)
	}

	return ids, nil
}

type bookmarkStore memoryBackend

func (s *bookmarkStore) Save(_ context.Context, b *core.Bookmark) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.remove(b.ID)

	s.bookmarks[b.ID] = cloneBookmark(b)

	k := triggerKey{b.ActivityTypeName, b.PayloadHash}
	if s.bookmarkIdx[k] == nil {
		s.bookmarkIdx[k] = map[string]struct{}{}
	}
	s.bookmarkIdx[k][b.ID] = struct{}{}

	return nil
}

func (s *bookmarkStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.remove(id)

	return nil
}

// remove deletes the bookmark and its index entry. Callers hold mu.
func (s *bookmarkStore) remove(id string) {
	b, ok := s.bookmarks[id]
	if !ok {
		return
	}

	delete(s.bookmarks, id)

	k := triggerKey{b.ActivityTypeName, b.PayloadHash}
	delete(s.bookmarkIdx[k], id)
	if len(s.bookmarkIdx[k]) == 0 {
		delete(s.bookmarkIdx, k)
	}
}

func (s *bookmarkStore) Get(_ context.Context, id string) (*core.Bookmark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookmarks[id]
	if !ok {
		return nil, backend.ErrBookmarkNotFound
	}

	return cloneBookmark(b), nil
}

func (s *bookmarkStore) FindMany(_ context.Context, filter core.BookmarkFilter) ([]*core.Bookmark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var r []*core.Bookmark
	for id := range s.bookmarkIdx[triggerKey{filter.ActivityTypeName, filter.PayloadHash}] {
		if b := s.bookmarks[id]; filter.Matches(b) {
			r = append(r, cloneBookmark(b))
		}
	}

	sortBookmarks(r)

	return r, nil
}

func (s *bookmarkStore) FindByInstance(_ context.Context, instanceID string) ([]*core.Bookmark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.find(func(b *core.Bookmark) bool { return b.InstanceID == instanceID }), nil
}

func (s *bookmarkStore) find(match func(*core.Bookmark) bool) []*core.Bookmark {
	var r []*core.Bookmark
	for _, b := range s.bookmarks {
		if match(b) {
			r = append(r, cloneBookmark(b))
		}
	}

	sortBookmarks(r)

	return r
}

func (s *bookmarkStore) DeleteByInstance(_ context.Context, instanceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, b := range s.bookmarks {
		if b.InstanceID == instanceID {
			s.remove(id)
		}
	}

	return nil
}

func cloneBookmark(b *core.Bookmark) *core.Bookmark {
	c := *b
	c.Payload = b.Payload.Clone()

	if b.ResumeAt != nil {
		t := *b.ResumeAt
		c.ResumeAt = &t
	}

	return &c
}

func sortBookmarks(bs []*core.Bookmark) {
	sort.Slice(bs, func(a, b int) bool {
		if !bs[a].CreatedAt.Equal(bs[b].CreatedAt) {
			return bs[a].CreatedAt.Before(bs[b].CreatedAt)
		}

		return bs[a].ID < bs[b].ID
	})
}

type definitionStore memoryBackend

func (s *definitionStore) Save(_ context.Context, def *definition.WorkflowDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions, ok := s.definitions[def.ID]
	if !ok {
		versions = map[int]*definition.WorkflowDefinition{}
		s.definitions[def.ID] = versions
	}

	if _, ok := versions[def.Version]; ok {
		return backend.ErrDefinitionVersionExists
	}

	versions[def.Version] = def.Clone()

	return nil
}

func (s *definitionStore) Get(_ context.Context, id string, version int) (*definition.WorkflowDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.definitions[id][version]
	if !ok {
		return nil, backend.ErrDefinitionNotFound
	}

	return d.Clone(), nil
}

func (s *definitionStore) Latest(_ context.Context, id string, publishedOnly bool) (*definition.WorkflowDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *definition.WorkflowDefinition
	for _, d := range s.definitions[id] {
		if publishedOnly && !d.IsPublished {
			continue
		}

		if latest == nil || d.Version > latest.Version {
			latest = d
		}
	}

	if latest == nil {
		return nil, backend.ErrDefinitionNotFound
	}

	return latest.Clone(), nil
}

type triggerStore memoryBackend

func (s *triggerStore) ReplaceForDefinition(_ context.Context, definitionID string, entries []backend.TriggerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, es := range s.triggers {
		kept := es[:0]
		for _, e := range es {
			if e.DefinitionID != definitionID {
				kept = append(kept, e)
			}
		}

		if len(kept) == 0 {
			delete(s.triggers, k)
		} else {
			s.triggers[k] = kept
		}
	}

	for _, e := range entries {
		k := triggerKey{e.ActivityTypeName, e.PayloadHash}
		s.triggers[k] = append(s.triggers[k], e)
	}

	return nil
}

func (s *triggerStore) Find(_ context.Context, activityTypeName, payloadHash string) ([]backend.TriggerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	es := s.triggers[triggerKey{activityTypeName, payloadHash}]
	r := make([]backend.TriggerEntry, len(es))
	copy(r, es)

	sort.Slice(r, func(a, b int) bool {
		if r[a].DefinitionID != r[b].DefinitionID {
			return r[a].DefinitionID < r[b].DefinitionID
		}

		return r[a].ActivityID < r[b].ActivityID
	})

	return r, nil
}

type jobStore memoryBackend

func (s *jobStore) Schedule(_ context.Context, job *core.ScheduledJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[job.ID] = cloneJob(job)

	return nil
}

func (s *jobStore) Due(_ context.Context, now time.Time, limit int) ([]*core.ScheduledJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*core.ScheduledJob
	for _, j := range s.jobs {
		if j.Claimable(now) {
			due = append(due, cloneJob(j))
		}
	}

	sort.Slice(due, func(a, b int) bool {
		return due[a].FireAt.Before(due[b].FireAt)
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	return due, nil
}

func (s *jobStore) Claim(_ context.Context, id, owner string, now, claimUntil time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok || !j.Claimable(now) {
		return false, nil
	}

	j.ClaimedBy = owner
	j.ClaimExpiresAt = &claimUntil

	return true, nil
}

func (s *jobStore) Extend(_ context.Context, id, owner string, claimUntil time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok || j.ClaimedBy != owner {
		return backend.ErrClaimLost
	}

	j.ClaimExpiresAt = &claimUntil

	return nil
}

func (s *jobStore) Complete(_ context.Context, id, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j, ok := s.jobs[id]; ok && j.ClaimedBy == owner {
		delete(s.jobs, id)
	}

	return nil
}

func (s *jobStore) Release(_ context.Context, id, owner string, fireAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j, ok := s.jobs[id]; ok && j.ClaimedBy == owner {
		j.ClaimedBy = ""
		j.ClaimExpiresAt = nil
		j.FireAt = fireAt
	}

	return nil
}

func (s *jobStore) DeleteByInstance(_ context.Context, instanceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, j := range s.jobs {
		if j.InstanceID == instanceID {
			delete(s.jobs, id)
		}
	}

	return nil
}

func cloneJob(j *core.ScheduledJob) *core.ScheduledJob {
	c := *j
	c.Request.Payload = j.Request.Payload.Clone()
	c.Request.Input = j.Request.Input.Clone()

	if j.ClaimExpiresAt != nil {
		t := *j.ClaimExpiresAt
		c.ClaimExpiresAt = &t
	}

	return &c
}

type logStore memoryBackend

func (s *logStore) Append(_ context.Context, entry *core.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.log[entry.InstanceID]
	entry.Sequence = int64(len(entries)) + 1

	c := *entry
	s.log[entry.InstanceID] = append(entries, &c)

	return nil
}

func (s *logStore) List(_ context.Context, instanceID string) ([]*core.LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := make([]*core.LogEntry, 0, len(s.log[instanceID]))
	for _, e := range s.log[instanceID] {
		c := *e
		r = append(r, &c)
	}

	return r, nil
}

func (s *logStore) DeleteByInstance(_ context.Context, instanceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.log, instanceID)

	return nil
}

type lockProvider memoryBackend

func (lp *lockProvider) Acquire(ctx context.Context, key string, timeout, leaseDuration time.Duration) (*backend.LockHandle, error) {
	owner := uuid.NewString()

	var handle *backend.LockHandle
	err := lease.Poll(ctx, lp.options.Clock, timeout, func(context.Context) (bool, error) {
		lp.mu.Lock()
		defer lp.mu.Unlock()

		now := lp.options.Clock.Now()
		if l, ok := lp.locks[key]; ok && now.Before(l.expiresAt) {
			return false, nil
		}

		expiresAt := now.Add(leaseDuration)
		lp.locks[key] = lockEntry{owner: owner, expiresAt: expiresAt}
		handle = &backend.LockHandle{ResourceKey: key, OwnerToken: owner, ExpiresAt: expiresAt}

		return true, nil
	})
	if err != nil {
		return nil, err
	}

	return handle, nil
}

func (lp *lockProvider) Release(_ context.Context, h *backend.LockHandle) error {
	lp.mu.Lock()
	defer lp.mu.Unlock()

	if l, ok := lp.locks[h.ResourceKey]; ok && l.owner == h.OwnerToken {
		delete(lp.locks, h.ResourceKey)
	}

	return nil
}

func (lp *lockProvider) Renew(_ context.Context, h *backend.LockHandle, leaseDuration time.Duration) (*backend.LockHandle, error) {
	lp.mu.Lock()
	defer lp.mu.Unlock()

	now := lp.options.Clock.Now()

	l, ok := lp.locks[h.ResourceKey]
	if !ok || l.owner != h.OwnerToken || !now.Before(l.expiresAt) {
		return nil, backend.ErrLockExpired
	}

	l.expiresAt = now.Add(leaseDuration)
	lp.locks[h.ResourceKey] = l

	return &backend.LockHandle{ResourceKey: h.ResourceKey, OwnerToken: h.OwnerToken, ExpiresAt: l.expiresAt}, nil
}
