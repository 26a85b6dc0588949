package capability

import (
	"errors"
	"fmt"
)

// ErrEmptyRegistry is returned when a registry is built without capabilities
var ErrEmptyRegistry = errors.New("registry has no capabilities")

// Registry is the immutable catalog of capabilities known to the engine
type Registry struct {
	capabilities []Capability
	byType       map[DataType]Capability
}

// NewRegistry builds a registry, preserving catalog order
func NewRegistry(capabilities []Capability) (*Registry, error) {
	if len(capabilities) == 0 {
		return nil, ErrEmptyRegistry
	}

	byType := make(map[DataType]Capability, len(capabilities))
	for _, c := range capabilities {
		if c.DataType == "" {
			return nil, fmt.Errorf("capability %q has no data type", c.Label)
		}
		if _, ok := byType[c.DataType]; ok {
			return nil, fmt.Errorf("duplicate capability %s", c.DataType)
		}
		byType[c.DataType] = c
	}

	list := make([]Capability, len(capabilities))
	copy(list, capabilities)

	return &Registry{
		capabilities: list,
		byType:       byType,
	}, nil
}

// DefaultRegistry returns a registry over DefaultCapabilities
func DefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultCapabilities)
	if err != nil {
		panic(err)
	}
	return r
}

// List returns the capabilities in catalog order
func (r *Registry) List() []Capability {
	list := make([]Capability, len(r.capabilities))
	copy(list, r.capabilities)
	return list
}

// Get looks up a capability by data type
func (r *Registry) Get(dataType DataType) (Capability, bool) {
	c, ok := r.byType[dataType]
	return c, ok
}

// Contains reports whether the data type is in the catalog
func (r *Registry) Contains(dataType DataType) bool {
	_, ok := r.byType[dataType]
	return ok
}

// Len returns the number of capabilities
func (r *Registry) Len() int {
	return len(r.capabilities)
}

// DataTypes returns every data type in catalog order
func (r *Registry) DataTypes() []DataType {
	types := make([]DataType, 0, len(r.capabilities))
	for _, c := range r.capabilities {
		types = append(types, c.DataType)
	}
	return types
}

// StandardSet returns the data types enabled by the STANDARD preset
func (r *Registry) StandardSet() map[DataType]struct{} {
	set := make(map[DataType]struct{})
	for _, c := range r.capabilities {
		if c.Standard {
			set[c.DataType] = struct{}{}
		}
	}
	return set
}
