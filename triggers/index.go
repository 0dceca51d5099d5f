// Package triggers maintains the index from (activity type, payload hash) to the definitions that
// start on such a stimulus. The index is built when a definition is published, never at request
// time.
package triggers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/benbjohnson/clock"
	"github.com/cschleiden/go-dispatch/activity"
	"github.com/cschleiden/go-dispatch/backend"
	"github.com/cschleiden/go-dispatch/definition"
	"github.com/cschleiden/go-dispatch/internal/metrickeys"
	"github.com/cschleiden/go-dispatch/log"
	"github.com/cschleiden/go-dispatch/metrics"
	"github.com/cschleiden/go-dispatch/payload"
	"github.com/cschleiden/go-dispatch/registry"
	"github.com/jellydator/ttlcache/v3"
)

type cacheKey struct {
	activityTypeName string
	payloadHash      string
}

type Index struct {
	definitions backend.DefinitionStore
	store       backend.TriggerStore
	registry    *registry.Registry
	hasher      payload.Hasher

	cache *ttlcache.Cache[cacheKey, []backend.TriggerEntry]

	clock   clock.Clock
	logger  *slog.Logger
	metrics metrics.Client
}

func NewIndex(b backend.Backend, r *registry.Registry, hasher payload.Hasher, opts ...Option) *Index {
	options := DefaultOptions
	for _, opt := range opts {
		opt(&options)
	}

	if hasher == nil {
		hasher = payload.DefaultHasher
	}

	cacheOpts := []ttlcache.Option[cacheKey, []backend.TriggerEntry]{
		ttlcache.WithTTL[cacheKey, []backend.TriggerEntry](options.CacheTTL),
		ttlcache.WithDisableTouchOnHit[cacheKey, []backend.TriggerEntry](),
	}
	if options.CacheCapacity > 0 {
		cacheOpts = append(cacheOpts, ttlcache.WithCapacity[cacheKey, []backend.TriggerEntry](options.CacheCapacity))
	}

	ix := &Index{
		definitions: b.Definitions(),
		store:       b.Triggers(),
		registry:    r,
		hasher:      hasher,
		cache:       ttlcache.New(cacheOpts...),
		clock:       b.Options().Clock,
		logger:      b.Options().Logger,
		metrics:     b.Metrics(),
	}

	ix.cache.OnEviction(func(ctx context.Context, er ttlcache.EvictionReason, i *ttlcache.Item[cacheKey, []backend.TriggerEntry]) {
		ix.metrics.Counter(metrickeys.TriggerCacheEviction, metrics.Tags{metrickeys.EvictionReason: evictionReason(er)}, 1)
	})

	return ix
}

// Entries computes the trigger entries of a definition. Every node whose activity can trigger
// contributes one entry per candidate payload fragment.
func (ix *Index) Entries(def *definition.WorkflowDefinition) ([]backend.TriggerEntry, []definition.TriggerDescriptor, error) {
	var (
		entries     []backend.TriggerEntry
		descriptors []definition.TriggerDescriptor
	)

	for _, id := range def.Graph.NodeIDs() {
		node := def.Graph.Nodes[id]

		d, err := ix.registry.GetActivity(node.Type)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: node %q: %v", definition.ErrInvalidDefinition, id, err)
		}

		if !d.Has(activity.CanTrigger) {
			continue
		}

		fragments, err := d.Triggers(activity.Properties(node.Properties))
		if err != nil {
			return nil, nil, fmt.Errorf("%w: node %q: computing triggers: %v", definition.ErrInvalidDefinition, id, err)
		}

		for _, fragment := range fragments {
			hash, err := payload.HashString(ix.hasher, d.StimulusKey(fragment))
			if err != nil {
				return nil, nil, fmt.Errorf("hashing trigger payload of node %q: %w", id, err)
			}

			entries = append(entries, backend.TriggerEntry{
				ActivityTypeName:  node.Type,
				PayloadHash:       hash,
				Payload:           fragment,
				DefinitionID:      def.ID,
				DefinitionVersion: def.Version,
				ActivityID:        id,
			})

			descriptors = append(descriptors, definition.TriggerDescriptor{
				ActivityID:       id,
				ActivityTypeName: node.Type,
				Payload:          fragment,
				PayloadHash:      hash,
			})
		}
	}

	return entries, descriptors, nil
}

// Publish stores def as a new published version and replaces the trigger entries of the
// definition. A zero version is assigned the next free version.
func (ix *Index) Publish(ctx context.Context, def *definition.WorkflowDefinition) (*definition.WorkflowDefinition, error) {
	def = def.Clone()

	if err := ix.registry.ValidateDefinition(def); err != nil {
		return nil, err
	}

	if err := ix.assignVersion(ctx, def); err != nil {
		return nil, err
	}

	entries, descriptors, err := ix.Entries(def)
	if err != nil {
		return nil, err
	}

	def.IsPublished = true
	def.Triggers = descriptors
	def.CreatedAt = ix.clock.Now()

	if err := ix.definitions.Save(ctx, def); err != nil {
		return nil, fmt.Errorf("saving definition: %w", err)
	}

	if err := ix.store.ReplaceForDefinition(ctx, def.ID, entries); err != nil {
		return nil, fmt.Errorf("replacing trigger entries: %w", err)
	}

	// Entries of this definition may be cached under any key
	ix.cache.DeleteAll()

	ix.logger.InfoContext(ctx, "published definition",
		log.DefinitionIDKey, def.ID,
		log.DefinitionVersionKey, def.Version,
		"triggers", len(entries),
	)

	return def, nil
}

// SaveDraft stores def as an unpublished version. Drafts cannot be started and contribute no
// trigger entries, the entries of the published versions stay in place.
func (ix *Index) SaveDraft(ctx context.Context, def *definition.WorkflowDefinition) (*definition.WorkflowDefinition, error) {
	def = def.Clone()

	if err := ix.registry.ValidateDefinition(def); err != nil {
		return nil, err
	}

	if err := ix.assignVersion(ctx, def); err != nil {
		return nil, err
	}

	def.IsPublished = false
	def.Triggers = nil
	def.CreatedAt = ix.clock.Now()

	if err := ix.definitions.Save(ctx, def); err != nil {
		return nil, fmt.Errorf("saving definition: %w", err)
	}

	ix.logger.InfoContext(ctx, "saved draft definition",
		log.DefinitionIDKey, def.ID,
		log.DefinitionVersionKey, def.Version,
	)

	return def, nil
}

func (ix *Index) assignVersion(ctx context.Context, def *definition.WorkflowDefinition) error {
	if def.Version > 0 {
		return nil
	}

	latest, err := ix.definitions.Latest(ctx, def.ID, false)
	switch {
	case errors.Is(err, backend.ErrDefinitionNotFound):
		def.Version = 1
	case err != nil:
		return fmt.Errorf("reading latest version: %w", err)
	default:
		def.Version = latest.Version + 1
	}

	return nil
}

// Lookup returns the entries for the given key. Results are cached per node.
func (ix *Index) Lookup(ctx context.Context, activityTypeName, payloadHash string) ([]backend.TriggerEntry, error) {
	key := cacheKey{activityTypeName, payloadHash}

	if item := ix.cache.Get(key); item != nil {
		return item.Value(), nil
	}

	entries, err := ix.store.Find(ctx, activityTypeName, payloadHash)
	if err != nil {
		return nil, fmt.Errorf("finding trigger entries: %w", err)
	}

	ix.cache.Set(key, entries, ttlcache.DefaultTTL)
	ix.metrics.Gauge(metrickeys.TriggerCacheSize, metrics.Tags{}, int64(ix.cache.Len()))

	return entries, nil
}

// StartEviction removes expired cache entries in the background until ctx is done.
func (ix *Index) StartEviction(ctx context.Context) {
	go ix.cache.Start()

	<-ctx.Done()

	ix.cache.Stop()
}

func evictionReason(er ttlcache.EvictionReason) string {
	switch er {
	case ttlcache.EvictionReasonDeleted:
		return "deleted"
	case ttlcache.EvictionReasonCapacityReached:
		return "capacity_reached"
	case ttlcache.EvictionReasonExpired:
		return "expired"
	}

	return "unknown"
}
