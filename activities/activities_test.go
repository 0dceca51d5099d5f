package activities

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cschleiden/go-dispatch/activity"
	"github.com/cschleiden/go-dispatch/core"
	"github.com/cschleiden/go-dispatch/payload"
	"github.com/cschleiden/go-dispatch/registry"
	"github.com/stretchr/testify/require"
)

func newContext(props activity.Properties) *activity.Context {
	ac := activity.NewContext(nil)
	ac.ActivityID = "a1"
	ac.Properties = props
	ac.Variables = core.Variables{}
	ac.Logger = slog.Default()
	ac.Clock = clock.NewMock()

	return ac
}

func Test_Register(t *testing.T) {
	r := registry.New()
	require.NoError(t, Register(r))

	require.Equal(t, []string{DelayType, EventType, FaultType, FinishType, LogType, SetVariableType}, r.ActivityTypes())
}

func Test_Event(t *testing.T) {
	d := Event()
	require.True(t, d.Has(activity.CanTrigger))
	require.True(t, d.Has(activity.CanSuspend))

	t.Run("Triggers", func(t *testing.T) {
		fragments, err := d.Triggers(activity.Properties{"event": "OrderApproved"})
		require.NoError(t, err)
		require.Equal(t, []payload.Payload{{"event": "OrderApproved"}}, fragments)

		_, err = d.Triggers(activity.Properties{})
		require.Error(t, err)
	})

	t.Run("ExecuteSuspends", func(t *testing.T) {
		o, err := d.Execute(context.Background(), newContext(activity.Properties{"event": "OrderShipped"}))
		require.NoError(t, err)
		require.True(t, o.Suspended())
		require.Len(t, o.Bookmarks(), 1)
		require.Equal(t, payload.Payload{"event": "OrderShipped"}, o.Bookmarks()[0].Payload)
		require.True(t, o.Bookmarks()[0].BurnOnResume)
	})

	t.Run("ExecuteWithoutBurn", func(t *testing.T) {
		o, err := d.Execute(context.Background(), newContext(activity.Properties{"event": "Tick", "burn": false}))
		require.NoError(t, err)
		require.False(t, o.Bookmarks()[0].BurnOnResume)
	})

	t.Run("ResumeCopiesStimulusAndInput", func(t *testing.T) {
		ac := newContext(activity.Properties{"event": "OrderApproved"})

		o, err := d.Resume(context.Background(), ac, &activity.Resumption{
			Stimulus: payload.Payload{"orderId": "42"},
			Input:    payload.Payload{"approvedBy": "alice"},
		})
		require.NoError(t, err)
		require.False(t, o.Suspended())

		var orderID string
		ok, err := ac.Variables.Get("orderId", &orderID)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "42", orderID)
		require.Contains(t, ac.Variables, "approvedBy")
	})
}

func Test_Delay(t *testing.T) {
	ac := newContext(activity.Properties{"duration": "5m"})
	now := ac.Clock.Now()

	o, err := Delay().Execute(context.Background(), ac)
	require.NoError(t, err)
	require.True(t, o.Suspended())

	b := o.Bookmarks()[0]
	require.NotNil(t, b.ResumeAt)
	require.Equal(t, now.Add(5*time.Minute), *b.ResumeAt)
	require.Equal(t, payload.Payload{"activity_id": "a1"}, b.Payload)

	_, err = Delay().Execute(context.Background(), newContext(activity.Properties{}))
	require.Error(t, err)
}

func Test_SetVariable(t *testing.T) {
	ac := newContext(activity.Properties{"name": "approved", "value": true})

	o, err := SetVariable().Execute(context.Background(), ac)
	require.NoError(t, err)
	require.Equal(t, []string{"done"}, o.Ports())
	require.Equal(t, "true", string(ac.Variables["approved"]))
}

func Test_Log(t *testing.T) {
	_, err := Log().Execute(context.Background(), newContext(activity.Properties{"message": "hello", "level": "warn"}))
	require.NoError(t, err)

	_, err = Log().Execute(context.Background(), newContext(activity.Properties{"level": "loud"}))
	require.Error(t, err)
}

func Test_Fault(t *testing.T) {
	_, err := Fault().Execute(context.Background(), newContext(activity.Properties{"message": "payment declined"}))
	require.ErrorIs(t, err, ErrFault)
	require.Contains(t, err.Error(), "payment declined")
}

func Test_Finish(t *testing.T) {
	o, err := Finish().Execute(context.Background(), newContext(nil))
	require.NoError(t, err)
	require.True(t, o.Finished())
}
