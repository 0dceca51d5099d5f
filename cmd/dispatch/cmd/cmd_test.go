package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cschleiden/go-dispatch/core"
	"github.com/cschleiden/go-dispatch/dispatcher"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

const ordersDefinition = `id: orders
graph:
  root: approved
  nodes:
    approved:
      type: Event
      properties:
        event: OrderApproved
    shipped:
      type: Event
      properties:
        event: OrderShipped
  edges:
    - from: approved
      to: shipped
`

func execute(t *testing.T, args ...string) []byte {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)

	require.NoError(t, rootCmd.Execute())

	return out.Bytes()
}

func Test_ParsePayload(t *testing.T) {
	p, err := parsePayload("")
	require.NoError(t, err)
	require.Nil(t, p)

	p, err = parsePayload(`{"event":"OrderApproved","orderId":"42"}`)
	require.NoError(t, err)
	require.Equal(t, "OrderApproved", p["event"])

	_, err = parsePayload(`["not","an","object"]`)
	require.Error(t, err)
}

func Test_LoadConfig(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("DISPATCH")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	t.Setenv("DISPATCH_SCHEDULER_POLLERS", "4")
	t.Setenv("DISPATCH_DISPATCHER_LOCK_TIMEOUT", "250ms")

	cfg, err := loadConfig(v)
	require.NoError(t, err)

	require.Equal(t, "sqlite", cfg.Backend.Type)
	require.Equal(t, "dispatch.db", cfg.Backend.SQLite.Path)
	require.Equal(t, 4, cfg.Scheduler.Pollers)
	require.Equal(t, 250*time.Millisecond, cfg.Dispatcher.LockTimeout)
	require.Equal(t, 7*24*time.Hour, cfg.Retention.Retention)
}

func Test_NewLogger(t *testing.T) {
	_, err := newLogger(LogConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)

	_, err = newLogger(LogConfig{Level: "loud"})
	require.Error(t, err)

	_, err = newLogger(LogConfig{Level: "info", Format: "xml"})
	require.Error(t, err)
}

func Test_OpenBackend_Unknown(t *testing.T) {
	_, _, err := openBackend(BackendConfig{Type: "cassette"}, nil, nil)
	require.ErrorContains(t, err, "unknown backend")
}

func Test_CLI_OrderLifecycle(t *testing.T) {
	dir := t.TempDir()

	defPath := filepath.Join(dir, "orders.yaml")
	require.NoError(t, os.WriteFile(defPath, []byte(ordersDefinition), 0o600))

	t.Setenv("DISPATCH_BACKEND_SQLITE_PATH", filepath.Join(dir, "dispatch.db"))

	var published []publishView
	require.NoError(t, json.Unmarshal(execute(t, "publish", defPath), &published))
	require.Len(t, published, 1)
	require.Equal(t, "orders", published[0].ID)
	require.Equal(t, 1, published[0].Version)
	require.True(t, published[0].Published)
	require.ElementsMatch(t, []string{"Event/approved", "Event/shipped"}, published[0].Triggers)

	var triggered batchView
	require.NoError(t, json.Unmarshal(execute(t,
		"trigger", "Event",
		"--payload", `{"event":"OrderApproved","orderId":"42"}`,
		"--correlation-id", "42",
	), &triggered))
	require.Equal(t, dispatcher.Succeeded, triggered.Outcome)
	require.Len(t, triggered.InstanceIDs, 1)

	instanceID := triggered.InstanceIDs[0]

	var resumed batchView
	require.NoError(t, json.Unmarshal(execute(t,
		"resume", "Event",
		"--payload", `{"event":"OrderShipped"}`,
		"--correlation-id", "42",
	), &resumed))
	require.Equal(t, []string{instanceID}, resumed.InstanceIDs)
	require.Equal(t, core.StatusCompleted, resumed.Items[0].InstanceStatus)

	var inspected inspectView
	require.NoError(t, json.Unmarshal(execute(t, "inspect", instanceID), &inspected))
	require.Equal(t, core.StatusCompleted, inspected.Instance.Status)
	require.Equal(t, "42", inspected.Instance.CorrelationID)
	require.Empty(t, inspected.Bookmarks)
	require.Len(t, inspected.Log, 2)

	var cancelled instanceView
	require.NoError(t, json.Unmarshal(execute(t, "cancel", instanceID), &cancelled))
	require.Equal(t, dispatcher.Rejected, cancelled.Outcome)
	require.NotEmpty(t, cancelled.Error)

	var drafts []publishView
	require.NoError(t, json.Unmarshal(execute(t, "publish", "--draft", defPath), &drafts))
	require.Len(t, drafts, 1)
	require.Equal(t, 2, drafts[0].Version)
	require.False(t, drafts[0].Published)
	require.Empty(t, drafts[0].Triggers)

	var rejected instanceView
	require.NoError(t, json.Unmarshal(execute(t, "start", "orders", "--version", "2"), &rejected))
	require.Equal(t, dispatcher.Rejected, rejected.Outcome)
	require.Contains(t, rejected.Error, "not published")
}
