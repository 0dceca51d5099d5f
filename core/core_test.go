package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_Status_Terminal(t *testing.T) {
	require.False(t, StatusRunning.Terminal())
	require.False(t, StatusSuspended.Terminal())
	require.True(t, StatusCompleted.Terminal())
	require.True(t, StatusFaulted.Terminal())
	require.True(t, StatusCancelled.Terminal())
	require.False(t, Status("Unknown").Valid())
}

func Test_Variables(t *testing.T) {
	vs := Variables{}
	require.NoError(t, vs.Set("orderId", "42"))
	require.NoError(t, vs.Set("count", 3))

	var s string
	ok, err := vs.Get("orderId", &s)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "42", s)

	ok, err = vs.Get("missing", &s)
	require.NoError(t, err)
	require.False(t, ok)

	c := vs.Clone()
	c["count"][0] = '9'
	require.Equal(t, "3", string(vs["count"]))
}

func Test_Variables_JSONRoundTripIsByteIdentical(t *testing.T) {
	vs := Variables{}
	require.NoError(t, vs.Set("a", map[string]any{"x": 1, "y": []int{1, 2}}))
	require.NoError(t, vs.Set("b", "text"))

	b, err := json.Marshal(vs)
	require.NoError(t, err)

	var out Variables
	require.NoError(t, json.Unmarshal(b, &out))

	for k, v := range vs {
		require.Equal(t, []byte(v), []byte(out[k]))
	}
}

func Test_Variables_EncodeKeepsRawValues(t *testing.T) {
	vs := Variables{
		"order": json.RawMessage(`{"id": "42",  "items": [ 1, 2 ]}`),
		"empty": nil,
	}
	require.NoError(t, vs.Set("b", "text"))

	b, err := vs.Encode()
	require.NoError(t, err)
	require.True(t, json.Valid(b))

	out, err := DecodeVariables(b)
	require.NoError(t, err)
	require.Equal(t, `{"id": "42",  "items": [ 1, 2 ]}`, string(out["order"]))
	require.Equal(t, `"text"`, string(out["b"]))
	require.Equal(t, `null`, string(out["empty"]))
}

func Test_Variables_EncodeRejectsInvalidJSON(t *testing.T) {
	_, err := Variables{"bad": json.RawMessage(`{`)}.Encode()
	require.Error(t, err)
}

func Test_Position(t *testing.T) {
	p, err := DecodePosition(nil)
	require.NoError(t, err)
	require.Empty(t, p.Scheduled)

	p.AddWaiting("a")
	p.AddWaiting("a")
	p.AddWaiting("b")
	require.Equal(t, []string{"a", "b"}, p.Waiting)

	p.RemoveWaiting("a")
	require.False(t, p.IsWaiting("a"))

	b, err := p.Encode()
	require.NoError(t, err)

	p2, err := DecodePosition(b)
	require.NoError(t, err)
	require.Equal(t, p, p2)
}

func Test_ScheduledJob_Claimable(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	require.True(t, (&ScheduledJob{FireAt: past}).Claimable(now))
	require.False(t, (&ScheduledJob{FireAt: future}).Claimable(now))
	require.False(t, (&ScheduledJob{FireAt: past, ClaimedBy: "n1", ClaimExpiresAt: &future}).Claimable(now))
	require.True(t, (&ScheduledJob{FireAt: past, ClaimedBy: "n1", ClaimExpiresAt: &past}).Claimable(now))
}

func Test_BookmarkFilter_Matches(t *testing.T) {
	b := &Bookmark{ActivityTypeName: "Event", PayloadHash: "h", CorrelationID: "c1", InstanceID: "i1"}

	require.True(t, BookmarkFilter{ActivityTypeName: "Event", PayloadHash: "h"}.Matches(b))
	require.True(t, BookmarkFilter{ActivityTypeName: "Event", PayloadHash: "h", CorrelationID: "c1", InstanceID: "i1"}.Matches(b))
	require.False(t, BookmarkFilter{ActivityTypeName: "Event", PayloadHash: "x"}.Matches(b))
	require.False(t, BookmarkFilter{ActivityTypeName: "Other", PayloadHash: "h"}.Matches(b))
	require.False(t, BookmarkFilter{ActivityTypeName: "Event", PayloadHash: "h", CorrelationID: "c2"}.Matches(b))
	require.False(t, BookmarkFilter{ActivityTypeName: "Event", PayloadHash: "h", InstanceID: "i2"}.Matches(b))
}
