package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cschleiden/go-dispatch/activities"
	"github.com/cschleiden/go-dispatch/activity"
	"github.com/cschleiden/go-dispatch/backend"
	"github.com/cschleiden/go-dispatch/backend/memory"
	"github.com/cschleiden/go-dispatch/core"
	"github.com/cschleiden/go-dispatch/definition"
	"github.com/cschleiden/go-dispatch/internal/lease"
	"github.com/cschleiden/go-dispatch/internal/workflowerrors"
	"github.com/cschleiden/go-dispatch/payload"
	"github.com/cschleiden/go-dispatch/registry"
	"github.com/stretchr/testify/require"
)

type tester struct {
	t *testing.T

	runner   *Runner
	backend  backend.Backend
	registry *registry.Registry
	clock    *clock.Mock
}

func newTester(t *testing.T, opts ...Option) *tester {
	t.Helper()

	c := clock.NewMock()
	b := memory.NewMemoryBackend(backend.WithClock(c))

	r := registry.New()
	require.NoError(t, activities.Register(r))

	return &tester{
		t:        t,
		runner:   New(b, r, nil, opts...),
		backend:  b,
		registry: r,
		clock:    c,
	}
}

func (tt *tester) start(ctx context.Context, def *definition.WorkflowDefinition, input payload.Payload) (*Result, error) {
	now := tt.clock.Now()

	return tt.runner.Run(ctx, &Request{
		Operation: core.OperationStart,
		Instance: &core.WorkflowInstance{
			ID:                "instance",
			DefinitionID:      def.ID,
			DefinitionVersion: def.Version,
			CorrelationID:     "correlation",
			Status:            core.StatusRunning,
			CreatedAt:         now,
			UpdatedAt:         now,
		},
		Definition: def,
		New:        true,
		Input:      input,
	})
}

// resume resumes the single bookmark of the instance.
func (tt *tester) resume(ctx context.Context, def *definition.WorkflowDefinition, stimulus payload.Payload) (*Result, error) {
	tt.t.Helper()

	instance, err := tt.backend.Instances().Load(ctx, "instance")
	require.NoError(tt.t, err)

	bookmarks, err := tt.backend.Bookmarks().FindByInstance(ctx, "instance")
	require.NoError(tt.t, err)
	require.Len(tt.t, bookmarks, 1)

	return tt.runner.Run(ctx, &Request{
		Operation:  core.OperationResume,
		Instance:   instance,
		Definition: def,
		Bookmark:   bookmarks[0],
		Stimulus:   stimulus,
	})
}

func newDefinition(g *definition.Graph) *definition.WorkflowDefinition {
	return &definition.WorkflowDefinition{ID: "wf", Version: 1, IsPublished: true, Graph: g}
}

func waitForEvent(props map[string]any) *definition.WorkflowDefinition {
	return newDefinition(definition.NewGraph("wait").
		AddNode("wait", activities.EventType, props).
		AddNode("set", activities.SetVariableType, map[string]any{"name": "after", "value": true}).
		Connect("wait", "set"))
}

func Test_Run_Completes(t *testing.T) {
	tt := newTester(t)
	ctx := context.Background()

	def := newDefinition(definition.NewGraph("a").
		AddNode("a", activities.SetVariableType, map[string]any{"name": "x", "value": 1}).
		AddNode("b", activities.SetVariableType, map[string]any{"name": "y", "value": 2}).
		Connect("a", "b"))

	r, err := tt.start(ctx, def, payload.Payload{"input": "yes"})
	require.NoError(t, err)
	require.Equal(t, core.StatusCompleted, r.Instance.Status)
	require.Equal(t, core.Status(""), r.FromStatus)
	require.True(t, r.StatusChanged())
	require.Equal(t, 2, r.Steps)
	require.NotNil(t, r.Instance.FinishedAt)

	instance, err := tt.backend.Instances().Load(ctx, "instance")
	require.NoError(t, err)
	require.Equal(t, core.StatusCompleted, instance.Status)

	var x, y int
	var in string
	_, err = instance.Variables.Get("x", &x)
	require.NoError(t, err)
	_, err = instance.Variables.Get("y", &y)
	require.NoError(t, err)
	_, err = instance.Variables.Get("input", &in)
	require.NoError(t, err)
	require.Equal(t, 1, x)
	require.Equal(t, 2, y)
	require.Equal(t, "yes", in)

	entries, err := tt.backend.ExecutionLog().List(ctx, "instance")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, core.OperationStart, entries[0].Operation)
	require.Equal(t, core.StatusCompleted, entries[0].ToStatus)
}

func Test_Run_SuspendAndResume(t *testing.T) {
	tt := newTester(t)
	ctx := context.Background()
	def := waitForEvent(map[string]any{"event": "Go"})

	r, err := tt.start(ctx, def, nil)
	require.NoError(t, err)
	require.Equal(t, core.StatusSuspended, r.Instance.Status)
	require.Len(t, r.Bookmarks, 1)

	b := r.Bookmarks[0]
	require.Equal(t, "wait", b.ActivityID)
	require.Equal(t, activities.EventType, b.ActivityTypeName)
	require.Equal(t, "correlation", b.CorrelationID)
	require.True(t, b.BurnOnResume)

	hash, err := payload.HashString(payload.DefaultHasher, payload.Payload{"event": "Go"})
	require.NoError(t, err)
	require.Equal(t, hash, b.PayloadHash)

	stored, err := tt.backend.Bookmarks().FindMany(ctx, core.BookmarkFilter{ActivityTypeName: activities.EventType, PayloadHash: hash})
	require.NoError(t, err)
	require.Len(t, stored, 1)

	r, err = tt.resume(ctx, def, payload.Payload{"orderId": "42"})
	require.NoError(t, err)
	require.Equal(t, core.StatusSuspended, r.FromStatus)
	require.Equal(t, core.StatusCompleted, r.Instance.Status)

	var orderID string
	var after bool
	_, err = r.Instance.Variables.Get("orderId", &orderID)
	require.NoError(t, err)
	_, err = r.Instance.Variables.Get("after", &after)
	require.NoError(t, err)
	require.Equal(t, "42", orderID)
	require.True(t, after)

	bookmarks, err := tt.backend.Bookmarks().FindByInstance(ctx, "instance")
	require.NoError(t, err)
	require.Empty(t, bookmarks)

	entries, err := tt.backend.ExecutionLog().List(ctx, "instance")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, core.StatusSuspended, entries[1].FromStatus)
	require.Equal(t, core.StatusCompleted, entries[1].ToStatus)
}

func Test_Run_NonBurnBookmarkKeepsWaiting(t *testing.T) {
	tt := newTester(t)
	ctx := context.Background()

	def := newDefinition(definition.NewGraph("wait").
		AddNode("wait", activities.EventType, map[string]any{"event": "Tick", "burn": false}).
		AddNode("log", activities.LogType, map[string]any{"message": "tick"}).
		Connect("wait", "log"))

	_, err := tt.start(ctx, def, nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		r, err := tt.resume(ctx, def, nil)
		require.NoError(t, err)
		require.Equal(t, core.StatusSuspended, r.Instance.Status)
		require.False(t, r.StatusChanged())
	}

	// Only the initial suspension changed the status
	entries, err := tt.backend.ExecutionLog().List(ctx, "instance")
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func Test_Run_NotWaiting(t *testing.T) {
	tt := newTester(t)
	ctx := context.Background()
	def := waitForEvent(map[string]any{"event": "Go"})

	r, err := tt.start(ctx, def, nil)
	require.NoError(t, err)

	stale := r.Bookmarks[0]

	_, err = tt.resume(ctx, def, nil)
	require.NoError(t, err)

	instance, err := tt.backend.Instances().Load(ctx, "instance")
	require.NoError(t, err)

	_, err = tt.runner.Run(ctx, &Request{
		Operation:  core.OperationResume,
		Instance:   instance,
		Definition: def,
		Bookmark:   stale,
	})
	require.ErrorIs(t, err, ErrNotWaiting)
}

func Test_Run_Trigger(t *testing.T) {
	tt := newTester(t)
	ctx := context.Background()

	def := newDefinition(definition.NewGraph("on").
		AddNode("on", activities.EventType, map[string]any{"event": "OrderApproved"}).
		AddNode("set", activities.SetVariableType, map[string]any{"name": "done", "value": true}).
		Connect("on", "set"))

	r, err := tt.runner.Run(ctx, &Request{
		Operation: core.OperationTrigger,
		Instance: &core.WorkflowInstance{
			ID:                "instance",
			DefinitionID:      def.ID,
			DefinitionVersion: def.Version,
			Status:            core.StatusRunning,
		},
		Definition:        def,
		New:               true,
		TriggerActivityID: "on",
		TriggerPayload:    payload.Payload{"event": "OrderApproved"},
		Stimulus:          payload.Payload{"orderId": "42"},
	})
	require.NoError(t, err)
	require.Equal(t, core.StatusCompleted, r.Instance.Status)
	require.Empty(t, r.Bookmarks)

	var orderID string
	_, err = r.Instance.Variables.Get("orderId", &orderID)
	require.NoError(t, err)
	require.Equal(t, "42", orderID)
}

func Test_Run_Fault(t *testing.T) {
	tt := newTester(t)
	ctx := context.Background()

	def := newDefinition(definition.NewGraph("fail").
		AddNode("fail", activities.FaultType, map[string]any{"message": "boom"}).
		AddNode("never", activities.SetVariableType, map[string]any{"name": "x", "value": 1}).
		Connect("fail", "never"))

	r, err := tt.start(ctx, def, nil)
	require.NoError(t, err)
	require.Equal(t, core.StatusFaulted, r.Instance.Status)
	require.Len(t, r.Instance.Incidents, 1)
	require.Equal(t, "fail", r.Instance.Incidents[0].ActivityID)
	require.Contains(t, r.Instance.Incidents[0].Message, "boom")

	ok, err := r.Instance.Variables.Get("x", new(int))
	require.NoError(t, err)
	require.False(t, ok)

	entries, err := tt.backend.ExecutionLog().List(ctx, "instance")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, core.StatusFaulted, entries[0].ToStatus)
	require.Equal(t, "fail", entries[0].ActivityID)
}

func Test_Run_Panic(t *testing.T) {
	tt := newTester(t)
	ctx := context.Background()

	require.NoError(t, tt.registry.RegisterActivity(activity.Descriptor{
		TypeName: "Panic",
		Execute: func(ctx context.Context, ac *activity.Context) (activity.Outcome, error) {
			panic("activity panic")
		},
	}))

	r, err := tt.start(ctx, newDefinition(definition.NewGraph("p").AddNode("p", "Panic", nil)), nil)
	require.NoError(t, err)
	require.Equal(t, core.StatusFaulted, r.Instance.Status)
	require.Len(t, r.Instance.Incidents, 1)

	cause := r.Instance.Incidents[0].Cause
	require.NotNil(t, cause)
	require.Contains(t, cause.Message, "activity panic")
	require.NotEmpty(t, cause.Stacktrace)

	var pe *workflowerrors.PanicError
	require.True(t, errors.As(workflowerrors.ToError(cause), &pe))
}

func Test_Run_StepLimit(t *testing.T) {
	tt := newTester(t, WithMaxSteps(5))
	ctx := context.Background()

	def := newDefinition(definition.NewGraph("a").
		AddNode("a", activities.SetVariableType, map[string]any{"name": "x", "value": 1}).
		Connect("a", "a"))

	r, err := tt.start(ctx, def, nil)
	require.NoError(t, err)
	require.Equal(t, core.StatusFaulted, r.Instance.Status)
	require.Contains(t, r.Instance.Incidents[0].Message, ErrStepLimitExceeded.Error())
	require.Equal(t, 6, r.Steps)
}

func Test_Run_Finish(t *testing.T) {
	tt := newTester(t)
	ctx := context.Background()

	def := newDefinition(definition.NewGraph("fork").
		AddNode("fork", activities.SetVariableType, map[string]any{"name": "x", "value": 1}).
		AddNode("wait", activities.EventType, map[string]any{"event": "Go"}).
		AddNode("end", activities.FinishType, nil).
		Connect("fork", "wait").
		Connect("fork", "end"))

	r, err := tt.start(ctx, def, nil)
	require.NoError(t, err)
	require.Equal(t, core.StatusCompleted, r.Instance.Status)

	// Bookmarks created before the instance finished are dropped
	bookmarks, err := tt.backend.Bookmarks().FindByInstance(ctx, "instance")
	require.NoError(t, err)
	require.Empty(t, bookmarks)
}

func Test_Run_DelaySchedulesJob(t *testing.T) {
	tt := newTester(t)
	ctx := context.Background()

	def := newDefinition(definition.NewGraph("delay").
		AddNode("delay", activities.DelayType, map[string]any{"duration": "1m"}))

	r, err := tt.start(ctx, def, nil)
	require.NoError(t, err)
	require.Equal(t, core.StatusSuspended, r.Instance.Status)
	require.Len(t, r.Bookmarks, 1)
	require.NotNil(t, r.Bookmarks[0].ResumeAt)

	due, err := tt.backend.Jobs().Due(ctx, tt.clock.Now(), 10)
	require.NoError(t, err)
	require.Empty(t, due)

	due, err = tt.backend.Jobs().Due(ctx, tt.clock.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, "instance", due[0].InstanceID)
	require.Equal(t, r.Bookmarks[0].ID, due[0].BookmarkID)
	require.Equal(t, "instance", due[0].Request.InstanceID)
	require.Equal(t, activities.DelayType, due[0].Request.ActivityTypeName)
}

func Test_Run_CancelRequested(t *testing.T) {
	tt := newTester(t)

	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(ErrCancelRequested)

	r, err := tt.start(ctx, waitForEvent(map[string]any{"event": "Go"}), nil)
	require.NoError(t, err)
	require.Equal(t, core.StatusCancelled, r.Instance.Status)

	instance, err := tt.backend.Instances().Load(context.Background(), "instance")
	require.NoError(t, err)
	require.Equal(t, core.StatusCancelled, instance.Status)
}

func Test_Run_LostLockDoesNotPersist(t *testing.T) {
	tt := newTester(t)

	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(lease.ErrLost)

	_, err := tt.start(ctx, waitForEvent(map[string]any{"event": "Go"}), nil)
	require.ErrorIs(t, err, lease.ErrLost)

	_, err = tt.backend.Instances().Load(context.Background(), "instance")
	require.ErrorIs(t, err, backend.ErrInstanceNotFound)
}
