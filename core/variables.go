package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Variables holds the serialized variables of an instance. Values are kept in their JSON form so
// a save/load round trip is byte-identical.
type Variables map[string]json.RawMessage

// Set serializes v and stores it under name.
func (vs Variables) Set(name string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("serializing variable %q: %w", name, err)
	}

	vs[name] = b

	return nil
}

// Get deserializes the variable with the given name into v. It returns false if the variable
// does not exist.
func (vs Variables) Get(name string, v any) (bool, error) {
	raw, ok := vs[name]
	if !ok {
		return false, nil
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("deserializing variable %q: %w", name, err)
	}

	return true, nil
}

func (vs Variables) Clone() Variables {
	if vs == nil {
		return nil
	}

	c := make(Variables, len(vs))
	for k, v := range vs {
		c[k] = append(json.RawMessage(nil), v...)
	}

	return c
}

// Encode serializes vs as a JSON object. Unlike json.Marshal, values are written verbatim so
// whitespace inside a value survives a save/load round trip.
func (vs Variables) Encode() ([]byte, error) {
	names := make([]string, 0, len(vs))
	for name := range vs {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range names {
		raw := vs[name]
		if len(raw) == 0 {
			raw = json.RawMessage("null")
		}

		if !json.Valid(raw) {
			return nil, fmt.Errorf("variable %q is not valid JSON", name)
		}

		if i > 0 {
			buf.WriteByte(',')
		}

		k, err := json.Marshal(name)
		if err != nil {
			return nil, fmt.Errorf("serializing variable name %q: %w", name, err)
		}

		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(raw)
	}
	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// DecodeVariables parses the output of Encode. Each value keeps its exact bytes.
func DecodeVariables(b []byte) (Variables, error) {
	vs := Variables{}
	if len(b) == 0 {
		return vs, nil
	}

	if err := json.Unmarshal(b, &vs); err != nil {
		return nil, fmt.Errorf("deserializing variables: %w", err)
	}

	return vs, nil
}
