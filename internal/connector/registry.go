package connector

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps exact service names to long-lived connector instances.
// One shared instance per name keeps token caches alive across calls.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Connector
}

// NewRegistry registers the given connectors, rejecting duplicates.
func NewRegistry(conns ...Connector) (*Registry, error) {
	r := &Registry{byName: make(map[string]Connector, len(conns))}
	for _, c := range conns {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a connector under its descriptor name.
func (r *Registry) Register(c Connector) error {
	name := c.Describe().Name
	if name == "" {
		return &ConfigError{Service: "<empty>", Reason: "connector has no name"}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byName[name]; dup {
		return &ConfigError{Service: name, Reason: "registered twice"}
	}
	r.byName[name] = c
	return nil
}

// Resolve returns the connector registered under name. It never defaults.
func (r *Registry) Resolve(name string) (Connector, error) {
	r.mu.RLock()
	c, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &ConfigError{Service: name, Reason: "not registered", Err: fmt.Errorf("%w: %q", ErrUnknownService, name)}
	}
	return c, nil
}

// Exists reports whether name is registered.
func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byName[name]
	return ok
}

// Descriptors lists registered connectors sorted by name.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	out := make([]Descriptor, 0, len(r.byName))
	for _, c := range r.byName {
		out = append(out, c.Describe())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
