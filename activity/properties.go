package activity

import (
	"fmt"
	"time"

	"github.com/cschleiden/go-dispatch/payload"
)

// Properties is the static configuration of a node in the activity graph.
type Properties map[string]any

func (p Properties) String(key string) (string, error) {
	v, ok := p[key]
	if !ok {
		return "", fmt.Errorf("missing property %q", key)
	}

	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("property %q must be a string, got %T", key, v)
	}

	return s, nil
}

func (p Properties) StringOr(key, def string) string {
	if s, err := p.String(key); err == nil {
		return s
	}

	return def
}

func (p Properties) Bool(key string) bool {
	b, _ := p[key].(bool)
	return b
}

// Duration accepts Go duration strings ("5m") or a number of seconds.
func (p Properties) Duration(key string) (time.Duration, error) {
	v, ok := p[key]
	if !ok {
		return 0, fmt.Errorf("missing property %q", key)
	}

	switch d := v.(type) {
	case string:
		return time.ParseDuration(d)
	case int:
		return time.Duration(d) * time.Second, nil
	case int64:
		return time.Duration(d) * time.Second, nil
	case float64:
		return time.Duration(d * float64(time.Second)), nil
	case time.Duration:
		return d, nil
	}

	return 0, fmt.Errorf("property %q must be a duration, got %T", key, v)
}

// Payload returns a nested object property.
func (p Properties) Payload(key string) (payload.Payload, error) {
	v, ok := p[key]
	if !ok {
		return payload.Payload{}, nil
	}

	return payload.FromValue(v)
}
