package test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cschleiden/go-dispatch/activities"
	"github.com/cschleiden/go-dispatch/backend"
	"github.com/cschleiden/go-dispatch/core"
	"github.com/cschleiden/go-dispatch/definition"
	"github.com/cschleiden/go-dispatch/dispatcher"
	"github.com/cschleiden/go-dispatch/payload"
	"github.com/cschleiden/go-dispatch/registry"
	"github.com/cschleiden/go-dispatch/scheduler"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// EndToEndBackendTest runs dispatcher scenarios against the backend returned by setup.
func EndToEndBackendTest(t *testing.T, setup func() backend.Backend, teardown func(b backend.Backend)) {
	tests := []struct {
		name string
		f    func(t *testing.T, ctx context.Context, b backend.Backend, d *dispatcher.Dispatcher)
	}{
		{
			name: "TriggerResumeComplete",
			f: func(t *testing.T, ctx context.Context, b backend.Backend, d *dispatcher.Dispatcher) {
				def := publish(t, ctx, d, &definition.WorkflowDefinition{
					ID: uuid.NewString(),
					Graph: definition.NewGraph("approved").
						AddNode("approved", "OnOrderApproved", map[string]any{"event": "OrderApproved"}).
						AddNode("shipped", activities.EventType, map[string]any{"event": "OrderShipped"}).
						Connect("approved", "shipped"),
				})

				orderID := uuid.NewString()
				tr, err := d.TriggerWorkflows(ctx, &core.TriggerWorkflowsRequest{
					ActivityTypeName: "OnOrderApproved",
					Payload:          payload.Payload{"event": "OrderApproved", "orderId": orderID},
					CorrelationID:    orderID,
				})
				require.NoError(t, err)
				require.Equal(t, dispatcher.Succeeded, tr.Outcome)
				require.Len(t, tr.StartedInstanceIDs, 1)

				instanceID := tr.StartedInstanceIDs[0]

				instance, err := b.Instances().Load(ctx, instanceID)
				require.NoError(t, err)
				require.Equal(t, def.ID, instance.DefinitionID)
				require.Equal(t, core.StatusSuspended, instance.Status)

				var got string
				_, err = instance.Variables.Get("orderId", &got)
				require.NoError(t, err)
				require.Equal(t, orderID, got)

				rr, err := d.ResumeBookmarks(ctx, &core.ResumeBookmarksRequest{
					ActivityTypeName: activities.EventType,
					Payload:          payload.Payload{"event": "OrderShipped"},
					CorrelationID:    orderID,
				})
				require.NoError(t, err)
				require.Equal(t, []string{instanceID}, rr.ResumedInstanceIDs)

				instance, err = b.Instances().Load(ctx, instanceID)
				require.NoError(t, err)
				require.Equal(t, core.StatusCompleted, instance.Status)

				bookmarks, err := b.Bookmarks().FindByInstance(ctx, instanceID)
				require.NoError(t, err)
				require.Empty(t, bookmarks)

				entries, err := b.ExecutionLog().List(ctx, instanceID)
				require.NoError(t, err)
				require.Len(t, entries, 2)
			},
		},
		{
			name: "ConcurrentResumeHasSingleWinner",
			f: func(t *testing.T, ctx context.Context, b backend.Backend, d *dispatcher.Dispatcher) {
				event := uuid.NewString()
				def := publish(t, ctx, d, waitFor(event))

				sr, err := d.StartDefinition(ctx, &core.StartDefinitionRequest{DefinitionID: def.ID})
				require.NoError(t, err)
				require.Equal(t, core.StatusSuspended, sr.Status)

				const resumers = 5

				results := make([]*dispatcher.ResumeResult, resumers)
				errs := make([]error, resumers)

				var wg sync.WaitGroup
				for i := 0; i < resumers; i++ {
					wg.Add(1)
					go func(i int) {
						defer wg.Done()

						results[i], errs[i] = d.ResumeBookmarks(ctx, &core.ResumeBookmarksRequest{
							ActivityTypeName: activities.EventType,
							Payload:          payload.Payload{"event": event},
						})
					}(i)
				}
				wg.Wait()

				winners := 0
				for i := range results {
					require.NoError(t, errs[i])
					winners += len(results[i].ResumedInstanceIDs)
				}

				require.Equal(t, 1, winners)
			},
		},
		{
			name: "FaultRecordsIncident",
			f: func(t *testing.T, ctx context.Context, b backend.Backend, d *dispatcher.Dispatcher) {
				def := publish(t, ctx, d, &definition.WorkflowDefinition{
					ID: uuid.NewString(),
					Graph: definition.NewGraph("fail").
						AddNode("fail", activities.FaultType, map[string]any{"message": "payment declined"}),
				})

				sr, err := d.StartDefinition(ctx, &core.StartDefinitionRequest{DefinitionID: def.ID})
				require.NoError(t, err)
				require.Equal(t, core.StatusFaulted, sr.Status)

				instance, err := b.Instances().Load(ctx, sr.InstanceID)
				require.NoError(t, err)
				require.Len(t, instance.Incidents, 1)
				require.Equal(t, "fail", instance.Incidents[0].ActivityID)
				require.Contains(t, instance.Incidents[0].Message, "payment declined")
				require.NotNil(t, instance.Incidents[0].Cause)
			},
		},
		{
			name: "CancelSuspendedInstance",
			f: func(t *testing.T, ctx context.Context, b backend.Backend, d *dispatcher.Dispatcher) {
				def := publish(t, ctx, d, &definition.WorkflowDefinition{
					ID: uuid.NewString(),
					Graph: definition.NewGraph("delay").
						AddNode("delay", activities.DelayType, map[string]any{"duration": "1h"}),
				})

				sr, err := d.StartDefinition(ctx, &core.StartDefinitionRequest{DefinitionID: def.ID})
				require.NoError(t, err)
				require.Equal(t, core.StatusSuspended, sr.Status)

				cr, err := d.CancelInstance(ctx, &core.CancelInstanceRequest{InstanceID: sr.InstanceID})
				require.NoError(t, err)
				require.Equal(t, dispatcher.Succeeded, cr.Outcome)

				instance, err := b.Instances().Load(ctx, sr.InstanceID)
				require.NoError(t, err)
				require.Equal(t, core.StatusCancelled, instance.Status)

				bookmarks, err := b.Bookmarks().FindByInstance(ctx, sr.InstanceID)
				require.NoError(t, err)
				require.Empty(t, bookmarks)

				due, err := b.Jobs().Due(ctx, time.Now().Add(2*time.Hour), 100)
				require.NoError(t, err)
				for _, job := range due {
					require.NotEqual(t, sr.InstanceID, job.InstanceID)
				}
			},
		},
		{
			name: "SchedulerFiresDelay",
			f: func(t *testing.T, ctx context.Context, b backend.Backend, d *dispatcher.Dispatcher) {
				def := publish(t, ctx, d, &definition.WorkflowDefinition{
					ID: uuid.NewString(),
					Graph: definition.NewGraph("delay").
						AddNode("delay", activities.DelayType, map[string]any{"duration": "10ms"}).
						AddNode("set", activities.SetVariableType, map[string]any{"name": "woke", "value": true}).
						Connect("delay", "set"),
				})

				sr, err := d.StartDefinition(ctx, &core.StartDefinitionRequest{DefinitionID: def.ID})
				require.NoError(t, err)
				require.Equal(t, core.StatusSuspended, sr.Status)

				sctx, cancel := context.WithCancel(ctx)
				s := scheduler.New(b, d, scheduler.WithPollingInterval(5*time.Millisecond))
				require.NoError(t, s.Start(sctx))

				require.Eventually(t, func() bool {
					instance, err := b.Instances().Load(ctx, sr.InstanceID)
					return err == nil && instance.Status == core.StatusCompleted
				}, 5*time.Second, 10*time.Millisecond)

				cancel()
				require.NoError(t, s.WaitForCompletion())
			},
		},
		{
			name: "RemoveFinishedInstances",
			f: func(t *testing.T, ctx context.Context, b backend.Backend, d *dispatcher.Dispatcher) {
				def := publish(t, ctx, d, &definition.WorkflowDefinition{
					ID:    uuid.NewString(),
					Graph: definition.NewGraph("end").AddNode("end", activities.FinishType, nil),
				})

				sr, err := d.StartDefinition(ctx, &core.StartDefinitionRequest{DefinitionID: def.ID})
				require.NoError(t, err)
				require.Equal(t, core.StatusCompleted, sr.Status)

				removed, err := backend.RemoveFinishedInstances(ctx, b, backend.RemoveFinishedBefore(time.Now().Add(time.Minute)))
				require.NoError(t, err)
				require.Contains(t, removed, sr.InstanceID)

				_, err = b.Instances().Load(ctx, sr.InstanceID)
				require.ErrorIs(t, err, backend.ErrInstanceNotFound)

				entries, err := b.ExecutionLog().List(ctx, sr.InstanceID)
				require.NoError(t, err)
				require.Empty(t, entries)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := setup()
			ctx := context.Background()

			r := registry.New()
			require.NoError(t, activities.Register(r))
			require.NoError(t, r.RegisterActivity(activities.Event(), registry.WithName("OnOrderApproved")))

			d := dispatcher.New(b, r, dispatcher.WithLockTimeout(5*time.Second))

			tt.f(t, ctx, b, d)

			if teardown != nil {
				teardown(b)
			}
		})
	}
}

func publish(t *testing.T, ctx context.Context, d *dispatcher.Dispatcher, def *definition.WorkflowDefinition) *definition.WorkflowDefinition {
	t.Helper()

	published, err := d.Publish(ctx, def)
	require.NoError(t, err)

	return published
}

func waitFor(event string) *definition.WorkflowDefinition {
	return &definition.WorkflowDefinition{
		ID: uuid.NewString(),
		Graph: definition.NewGraph("wait").
			AddNode("wait", activities.EventType, map[string]any{"event": event}),
	}
}
