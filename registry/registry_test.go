package registry

import (
	"context"
	"testing"

	"github.com/cschleiden/go-dispatch/activity"
	"github.com/cschleiden/go-dispatch/definition"
	"github.com/stretchr/testify/require"
)

func noop(ctx context.Context, ac *activity.Context) (activity.Outcome, error) {
	return activity.Done(), nil
}

func Test_RegisterActivity(t *testing.T) {
	r := New()

	require.NoError(t, r.RegisterActivity(activity.Descriptor{TypeName: "Log", Execute: noop}))

	d, err := r.GetActivity("Log")
	require.NoError(t, err)
	require.Equal(t, "Log", d.TypeName)

	err = r.RegisterActivity(activity.Descriptor{TypeName: "Log", Execute: noop})
	var alreadyRegistered *ErrActivityAlreadyRegistered
	require.ErrorAs(t, err, &alreadyRegistered)

	_, err = r.GetActivity("Missing")
	var notFound *ErrActivityNotFound
	require.ErrorAs(t, err, &notFound)
}

func Test_RegisterActivity_Invalid(t *testing.T) {
	r := New()

	err := r.RegisterActivity(activity.Descriptor{TypeName: "Wait", Capabilities: activity.CanSuspend, Execute: noop})
	var invalid *ErrInvalidActivity
	require.ErrorAs(t, err, &invalid)
}

func Test_RegisterActivity_WithName(t *testing.T) {
	r := New()

	require.NoError(t, r.RegisterActivity(activity.Descriptor{TypeName: "Log", Execute: noop}, WithName("Audit")))

	_, err := r.GetActivity("Audit")
	require.NoError(t, err)
	require.Equal(t, []string{"Audit"}, r.ActivityTypes())
}

func Test_Services(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterService("mailer", "smtp"))
	require.Error(t, r.RegisterService("mailer", "other"))

	s, err := r.Services(&activity.Descriptor{TypeName: "Mail", Services: []string{"mailer"}})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"mailer": "smtp"}, s)

	_, err = r.Services(&activity.Descriptor{TypeName: "Query", Services: []string{"db"}})
	require.Error(t, err)
}

func Test_ValidateDefinition(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterActivity(activity.Descriptor{TypeName: "Log", Execute: noop}))

	ok := &definition.WorkflowDefinition{ID: "d", Graph: definition.NewGraph("a").AddNode("a", "Log", nil)}
	require.NoError(t, r.ValidateDefinition(ok))

	bad := &definition.WorkflowDefinition{ID: "d", Graph: definition.NewGraph("a").AddNode("a", "Unknown", nil)}
	require.ErrorIs(t, r.ValidateDefinition(bad), definition.ErrInvalidDefinition)
}
