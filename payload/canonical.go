package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"sort"
	"strconv"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces canonical JSON for v. This is the only serialization that may be used
// for payload hashes.
//
// Differences to json.Marshal:
//   - Object keys are sorted by UTF-16 code units
//   - Strings are NFC normalized and <, >, & are not escaped
//   - Numbers are normalized: integral values are written without fraction or exponent,
//     everything else in the shortest round-trip form
//   - Struct field order and tags are irrelevant, values are first reduced to plain JSON
func MarshalCanonical(v any) ([]byte, error) {
	generic, err := toGeneric(v)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, generic); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// toGeneric reduces v to maps, slices, strings, bools, nil and json.Number.
func toGeneric(v any) (any, error) {
	switch v.(type) {
	case nil, string, bool, json.Number, map[string]any, []any, Payload:
		return v, nil
	}

	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling value: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	var r any
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("decoding value: %w", err)
	}

	return r, nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		return writeString(buf, val)
	case json.Number:
		s, err := canonicalNumber(string(val))
		if err != nil {
			return err
		}
		buf.WriteString(s)
	case Payload:
		return writeObject(buf, val)
	case map[string]any:
		return writeObject(buf, val)
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}

			if err := writeValue(buf, elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	default:
		return writeValue(buf, val)
	}

	return nil
}

// writeValue handles nested values, which may still be arbitrary Go types when the caller built
// the payload by hand.
func writeValue(buf *bytes.Buffer, v any) error {
	g, err := toGeneric(v)
	if err != nil {
		return err
	}

	switch g.(type) {
	case nil, bool, string, json.Number, Payload, map[string]any, []any:
		return writeCanonical(buf, g)
	}

	return fmt.Errorf("unsupported type for canonical JSON: %T", g)
}

func writeObject(buf *bytes.Buffer, obj map[string]any) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}

	sort.Slice(keys, func(i, j int) bool {
		return lessUTF16(norm.NFC.String(keys[i]), norm.NFC.String(keys[j]))
	})

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}

		if err := writeString(buf, k); err != nil {
			return fmt.Errorf("key %q: %w", k, err)
		}

		buf.WriteByte(':')

		if err := writeValue(buf, obj[k]); err != nil {
			return fmt.Errorf("value for key %q: %w", k, err)
		}
	}
	buf.WriteByte('}')

	return nil
}

func writeString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return err
	}

	// Encoder appends a newline
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte{'\n'}))

	return nil
}

func lessUTF16(a, b string) bool {
	ua := utf16.Encode([]rune(a))
	ub := utf16.Encode([]rune(b))

	for i := 0; i < len(ua) && i < len(ub); i++ {
		if ua[i] != ub[i] {
			return ua[i] < ub[i]
		}
	}

	return len(ua) < len(ub)
}

// canonicalNumber normalizes the textual representation of a JSON number: "1", "1.0", "1e0" and
// "10e-1" all become "1".
func canonicalNumber(s string) (string, error) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return strconv.FormatInt(i, 10), nil
	}

	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return "", fmt.Errorf("invalid number %q", s)
	}

	if r.IsInt() {
		return r.Num().String(), nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return "", fmt.Errorf("number %q cannot be represented", s)
	}

	return strconv.FormatFloat(f, 'g', -1, 64), nil
}
