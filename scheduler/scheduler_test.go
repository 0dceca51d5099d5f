package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cschleiden/go-dispatch/activities"
	"github.com/cschleiden/go-dispatch/activity"
	"github.com/cschleiden/go-dispatch/backend"
	"github.com/cschleiden/go-dispatch/backend/memory"
	"github.com/cschleiden/go-dispatch/backend/monoprocess"
	"github.com/cschleiden/go-dispatch/core"
	"github.com/cschleiden/go-dispatch/definition"
	"github.com/cschleiden/go-dispatch/dispatcher"
	"github.com/cschleiden/go-dispatch/registry"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type node struct {
	dispatcher *dispatcher.Dispatcher
	scheduler  *Scheduler
}

// newNode creates a dispatcher and scheduler sharing b. fired is incremented every time an
// instance passes its delay.
func newNode(t *testing.T, b backend.Backend, fired *atomic.Int32, dopts []dispatcher.Option, opts ...Option) *node {
	t.Helper()

	r := registry.New()
	require.NoError(t, activities.Register(r))
	require.NoError(t, r.RegisterActivity(activity.Descriptor{
		TypeName: "Count",
		Execute: func(ctx context.Context, ac *activity.Context) (activity.Outcome, error) {
			fired.Add(1)
			return activity.Done(), nil
		},
	}))

	d := dispatcher.New(b, r, dopts...)

	opts = append([]Option{WithPollingInterval(5 * time.Millisecond), WithHeartbeatInterval(0)}, opts...)

	return &node{
		dispatcher: d,
		scheduler:  New(b, d, opts...),
	}
}

func delayDefinition(delay string) *definition.WorkflowDefinition {
	return &definition.WorkflowDefinition{
		ID: "delayed",
		Graph: definition.NewGraph("delay").
			AddNode("delay", activities.DelayType, map[string]any{"duration": delay}).
			AddNode("count", "Count", nil).
			Connect("delay", "count"),
	}
}

func start(t *testing.T, n *node, count int) []string {
	t.Helper()

	var ids []string
	for i := 0; i < count; i++ {
		sr, err := n.dispatcher.StartDefinition(context.Background(), &core.StartDefinitionRequest{DefinitionID: "delayed"})
		require.NoError(t, err)
		require.Equal(t, core.StatusSuspended, sr.Status)

		ids = append(ids, sr.InstanceID)
	}

	return ids
}

func requireCompleted(t *testing.T, b backend.Backend, ids []string) {
	t.Helper()

	require.Eventually(t, func() bool {
		for _, id := range ids {
			instance, err := b.Instances().Load(context.Background(), id)
			require.NoError(t, err)

			if instance.Status != core.StatusCompleted {
				return false
			}
		}

		return true
	}, 5*time.Second, 5*time.Millisecond)
}

func Test_Scheduler_FiresDueJobs(t *testing.T) {
	b := memory.NewMemoryBackend()
	var fired atomic.Int32

	n := newNode(t, b, &fired, nil)
	_, err := n.dispatcher.Publish(context.Background(), delayDefinition("20ms"))
	require.NoError(t, err)

	ids := start(t, n, 3)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, n.scheduler.Start(ctx))

	requireCompleted(t, b, ids)

	cancel()
	require.NoError(t, n.scheduler.WaitForCompletion())

	require.EqualValues(t, 3, fired.Load())

	due, err := b.Jobs().Due(context.Background(), time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	require.Empty(t, due)
}

func Test_Scheduler_ExactlyOnceAcrossNodes(t *testing.T) {
	b := memory.NewMemoryBackend()
	var fired atomic.Int32

	var nodes []*node
	for i := 0; i < 3; i++ {
		nodes = append(nodes, newNode(t, b, &fired, nil, WithNodeID(fmt.Sprintf("node-%d", i)), WithPollers(2)))
	}

	_, err := nodes[0].dispatcher.Publish(context.Background(), delayDefinition("10ms"))
	require.NoError(t, err)

	ids := start(t, nodes[0], 20)

	ctx, cancel := context.WithCancel(context.Background())
	for _, n := range nodes {
		require.NoError(t, n.scheduler.Start(ctx))
	}

	requireCompleted(t, b, ids)

	cancel()
	for _, n := range nodes {
		require.NoError(t, n.scheduler.WaitForCompletion())
	}

	require.EqualValues(t, 20, fired.Load())

	for _, id := range ids {
		entries, err := b.ExecutionLog().List(context.Background(), id)
		require.NoError(t, err)
		require.Len(t, entries, 2)
	}
}

func Test_Scheduler_RetriesLockedInstance(t *testing.T) {
	b := memory.NewMemoryBackend()
	var fired atomic.Int32

	n := newNode(t, b, &fired,
		[]dispatcher.Option{dispatcher.WithLockTimeout(5 * time.Millisecond)},
		WithRetryDelay(10*time.Millisecond),
	)
	_, err := n.dispatcher.Publish(context.Background(), delayDefinition("1ms"))
	require.NoError(t, err)

	ids := start(t, n, 1)

	h, err := b.Locks().Acquire(context.Background(), core.LockResourceKey(ids[0]), 0, time.Minute)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, n.scheduler.Start(ctx))

	// The job fires but cannot lock the instance, it is released and fires again later
	time.Sleep(50 * time.Millisecond)
	require.EqualValues(t, 0, fired.Load())

	instance, err := b.Instances().Load(context.Background(), ids[0])
	require.NoError(t, err)
	require.Equal(t, core.StatusSuspended, instance.Status)

	require.NoError(t, b.Locks().Release(context.Background(), h))

	requireCompleted(t, b, ids)

	cancel()
	require.NoError(t, n.scheduler.WaitForCompletion())

	require.EqualValues(t, 1, fired.Load())
}

func Test_Scheduler_WakesOnScheduledJob(t *testing.T) {
	b := monoprocess.NewMonoprocessBackend(memory.NewMemoryBackend(), 10, time.Second)
	var fired atomic.Int32

	n := newNode(t, b, &fired, nil, WithPollingInterval(time.Hour))
	_, err := n.dispatcher.Publish(context.Background(), delayDefinition("0s"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, n.scheduler.Start(ctx))

	ids := start(t, n, 1)

	requireCompleted(t, b, ids)

	cancel()
	require.NoError(t, n.scheduler.WaitForCompletion())
}
