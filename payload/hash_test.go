package payload

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Hash_Stable(t *testing.T) {
	p := Payload{"event": "OrderApproved", "orderId": "42", "amount": 10}

	h1, err := DefaultHasher.Hash(p)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		h2, err := DefaultHasher.Hash(p)
		require.NoError(t, err)
		require.Equal(t, h1, h2)
	}
}

func Test_Hash_EquivalentSerializations(t *testing.T) {
	var fromJSON Payload
	require.NoError(t, json.Unmarshal([]byte(`{"orderId":"42","amount":10.0,"event":"OrderApproved"}`), &fromJSON))

	p, err := FromValue(map[string]any{"event": "OrderApproved", "amount": 10, "orderId": "42"})
	require.NoError(t, err)

	h1, err := HashString(DefaultHasher, fromJSON)
	require.NoError(t, err)

	h2, err := HashString(DefaultHasher, p)
	require.NoError(t, err)

	require.Equal(t, h1, h2)
}

func Test_Hash_Differs(t *testing.T) {
	h1, err := HashString(DefaultHasher, Payload{"event": "a"})
	require.NoError(t, err)

	h2, err := HashString(DefaultHasher, Payload{"event": "b"})
	require.NoError(t, err)

	require.NotEqual(t, h1, h2)
	require.Len(t, h1, 64)
}

func Test_Hash_NilIsEmpty(t *testing.T) {
	h1, err := HashString(DefaultHasher, nil)
	require.NoError(t, err)

	h2, err := HashString(DefaultHasher, Payload{})
	require.NoError(t, err)

	require.Equal(t, h1, h2)
}

func Test_Project(t *testing.T) {
	p := Payload{"event": "OrderApproved", "orderId": "42"}

	require.Equal(t, Payload{"event": "OrderApproved"}, p.Project([]string{"event"}))
	require.Equal(t, p, p.Project(nil))
	require.Equal(t, Payload{"orderId": "42"}, p.Without([]string{"event"}))

	// Projection does not alias the original
	p.Project(nil)["event"] = "changed"
	require.Equal(t, "OrderApproved", p["event"])
}

func Test_Payload_UnmarshalKeepsLargeIntegers(t *testing.T) {
	p := Payload{"orderId": int64(9007199254740993)}

	b, err := json.Marshal(p)
	require.NoError(t, err)

	var decoded Payload
	require.NoError(t, json.Unmarshal(b, &decoded))
	require.Equal(t, json.Number("9007199254740993"), decoded["orderId"])

	h1, err := HashString(DefaultHasher, p)
	require.NoError(t, err)

	h2, err := HashString(DefaultHasher, decoded)
	require.NoError(t, err)

	require.Equal(t, h1, h2)
}
