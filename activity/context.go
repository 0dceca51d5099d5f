package activity

import (
	"fmt"
	"log/slog"

	"github.com/benbjohnson/clock"
	"github.com/cschleiden/go-dispatch/core"
)

// Context is passed to every activity call. It only carries the services the activity declared.
type Context struct {
	InstanceID        string
	DefinitionID      string
	DefinitionVersion int
	CorrelationID     string

	ActivityID string
	Properties Properties

	Variables core.Variables

	Logger *slog.Logger
	Clock  clock.Clock

	services map[string]any
}

func NewContext(services map[string]any) *Context {
	return &Context{services: services}
}

// Service returns the named service if the activity declared it.
func (c *Context) Service(name string) (any, bool) {
	s, ok := c.services[name]
	return s, ok
}

// GetService returns the named service as T.
func GetService[T any](c *Context, name string) (T, error) {
	s, ok := c.Service(name)
	if !ok {
		return *new(T), fmt.Errorf("service %q not available to activity %q", name, c.ActivityID)
	}

	v, ok := s.(T)
	if !ok {
		return *new(T), fmt.Errorf("service %q has type %T, expected %T", name, s, *new(T))
	}

	return v, nil
}
