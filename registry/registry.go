package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cschleiden/go-dispatch/activity"
	"github.com/cschleiden/go-dispatch/definition"
)

// Registry holds the activity types and services known to a node. Every node of a cluster must
// register the same activity types.
type Registry struct {
	sync.Mutex

	activityMap map[string]*activity.Descriptor
	serviceMap  map[string]any
}

// New creates a new registry instance.
func New() *Registry {
	return &Registry{
		activityMap: make(map[string]*activity.Descriptor),
		serviceMap:  make(map[string]any),
	}
}

type registerConfig struct {
	Name string
}

func (r *Registry) RegisterActivity(d activity.Descriptor, opts ...RegisterOption) error {
	cfg := registerOptions(opts).applyRegisterOptions(registerConfig{})
	if cfg.Name != "" {
		d.TypeName = cfg.Name
	}

	if err := d.Validate(); err != nil {
		return &ErrInvalidActivity{err.Error()}
	}

	r.Lock()
	defer r.Unlock()

	if _, ok := r.activityMap[d.TypeName]; ok {
		return &ErrActivityAlreadyRegistered{fmt.Sprintf("activity with type %q already registered", d.TypeName)}
	}

	r.activityMap[d.TypeName] = &d

	return nil
}

// RegisterService makes a service available to activities that declare it by name.
func (r *Registry) RegisterService(name string, service any) error {
	r.Lock()
	defer r.Unlock()

	if _, ok := r.serviceMap[name]; ok {
		return &ErrServiceAlreadyRegistered{fmt.Sprintf("service %q already registered", name)}
	}

	r.serviceMap[name] = service

	return nil
}

func (r *Registry) GetActivity(typeName string) (*activity.Descriptor, error) {
	r.Lock()
	defer r.Unlock()

	if d, ok := r.activityMap[typeName]; ok {
		return d, nil
	}

	return nil, &ErrActivityNotFound{fmt.Sprintf("activity type %q not found", typeName)}
}

// Services resolves the services declared by the given activity.
func (r *Registry) Services(d *activity.Descriptor) (map[string]any, error) {
	r.Lock()
	defer r.Unlock()

	s := make(map[string]any, len(d.Services))
	for _, name := range d.Services {
		svc, ok := r.serviceMap[name]
		if !ok {
			return nil, fmt.Errorf("service %q required by activity %q is not registered", name, d.TypeName)
		}

		s[name] = svc
	}

	return s, nil
}

// ActivityTypes returns all registered type names in sorted order.
func (r *Registry) ActivityTypes() []string {
	r.Lock()
	defer r.Unlock()

	names := make([]string, 0, len(r.activityMap))
	for name := range r.activityMap {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// ValidateDefinition checks that every node of the definition refers to a registered activity
// type and that all declared services are available.
func (r *Registry) ValidateDefinition(def *definition.WorkflowDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	for _, id := range def.Graph.NodeIDs() {
		n := def.Graph.Nodes[id]

		d, err := r.GetActivity(n.Type)
		if err != nil {
			return fmt.Errorf("%w: node %q: %v", definition.ErrInvalidDefinition, id, err)
		}

		if _, err := r.Services(d); err != nil {
			return fmt.Errorf("%w: node %q: %v", definition.ErrInvalidDefinition, id, err)
		}
	}

	return nil
}
