// Package payload implements the canonical hashing used to match stimuli against bookmarks and
// trigger entries.
//
// The hash is the only thing standing between a stimulus resuming one instance and resuming zero
// or two, so logically equal payloads must always produce the same digest: object keys are
// sorted, strings are NFC normalized, numbers are normalized and HTML characters are never
// escaped.
package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Payload is an activity defined, JSON compatible document.
type Payload map[string]any

// Clone returns a shallow copy of p.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}

	c := make(Payload, len(p))
	for k, v := range p {
		c[k] = v
	}

	return c
}

// Project returns a copy of p restricted to the given keys. Missing keys are omitted. When keys is
// empty the whole payload is returned.
func (p Payload) Project(keys []string) Payload {
	if len(keys) == 0 {
		return p.Clone()
	}

	r := make(Payload, len(keys))
	for _, k := range keys {
		if v, ok := p[k]; ok {
			r[k] = v
		}
	}

	return r
}

// Without returns a copy of p without the given keys.
func (p Payload) Without(keys []string) Payload {
	r := p.Clone()
	for _, k := range keys {
		delete(r, k)
	}

	return r
}

// FromValue converts any JSON serializable value into a Payload. Numbers are kept as json.Number
// to avoid float rounding.
func FromValue(v any) (Payload, error) {
	if v == nil {
		return Payload{}, nil
	}

	if p, ok := v.(Payload); ok {
		return p, nil
	}

	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	var p Payload
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("payload must be a JSON object: %w", err)
	}

	return p, nil
}

// UnmarshalJSON keeps numbers as json.Number so a payload hashes the same after it went through
// a store.
func (p *Payload) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return err
	}

	*p = m

	return nil
}
