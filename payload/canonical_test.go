package payload

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_MarshalCanonical(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"sorted keys", map[string]any{"b": 1, "a": 2}, `{"a":2,"b":1}`},
		{"nested", map[string]any{"z": map[string]any{"y": true, "x": nil}}, `{"z":{"x":null,"y":true}}`},
		{"arrays keep order", map[string]any{"a": []any{3, 1, 2}}, `{"a":[3,1,2]}`},
		{"no html escaping", map[string]any{"s": "<a&b>"}, `{"s":"<a&b>"}`},
		{"integral float", map[string]any{"n": 1.0}, `{"n":1}`},
		{"fraction", map[string]any{"n": 1.5}, `{"n":1.5}`},
		{"json number exponent", map[string]any{"n": json.Number("10e-1")}, `{"n":1}`},
		{"json number fraction", map[string]any{"n": json.Number("2.50")}, `{"n":2.5}`},
		{"string map", map[string]string{"k": "v"}, `{"k":"v"}`},
		{"utf16 ordering", map[string]any{"\U0001F600": 1, "\uffff": 2}, "{\"\U0001F600\":1,\"\uffff\":2}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := MarshalCanonical(tt.in)
			require.NoError(t, err)
			require.Equal(t, tt.want, string(b))
		})
	}
}

func Test_MarshalCanonical_NFC(t *testing.T) {
	// "é" precomposed vs. "e" + combining acute accent
	a, err := MarshalCanonical(map[string]any{"name": "\u00e9"})
	require.NoError(t, err)

	b, err := MarshalCanonical(map[string]any{"name": "e\u0301"})
	require.NoError(t, err)

	require.Equal(t, a, b)
}

func Test_MarshalCanonical_StructAndMapAgree(t *testing.T) {
	type order struct {
		OrderID string `json:"orderId"`
		Event   string `json:"event"`
	}

	a, err := MarshalCanonical(order{OrderID: "42", Event: "OrderApproved"})
	require.NoError(t, err)

	b, err := MarshalCanonical(map[string]any{"event": "OrderApproved", "orderId": "42"})
	require.NoError(t, err)

	require.Equal(t, string(b), string(a))
}
