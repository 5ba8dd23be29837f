package store

import "sort"

// TypeRegistry is an immutable type-descriptor lookup constructed once per
// export invocation and threaded through every component. It also carries
// the allow-list of known type ids used to restrict clustering input.
type TypeRegistry struct {
	byID  map[TypeID]*Descriptor
	known []TypeID
}

// NewTypeRegistry builds a registry from the given descriptors. The map is
// copied; later mutation of the argument does not affect the registry.
// Every registered type id is part of the clustering allow-list.
func NewTypeRegistry(types map[TypeID]*Descriptor) *TypeRegistry {
	byID := make(map[TypeID]*Descriptor, len(types))
	known := make([]TypeID, 0, len(types))
	for id, d := range types {
		byID[id] = d
		known = append(known, id)
	}
	sort.Slice(known, func(i, j int) bool { return known[i] < known[j] })

	return &TypeRegistry{byID: byID, known: known}
}

// Lookup resolves a type id to its descriptor.
func (r *TypeRegistry) Lookup(id TypeID) (*Descriptor, bool) {
	d, ok := r.byID[id]
	return d, ok
}

// Known returns the allow-list of registered type ids, ascending.
// The caller must not modify the returned slice.
func (r *TypeRegistry) Known() []TypeID {
	return r.known
}

// IsKnown reports whether the type id is on the allow-list.
func (r *TypeRegistry) IsKnown(id TypeID) bool {
	_, ok := r.byID[id]
	return ok
}

// Len returns the number of registered types.
func (r *TypeRegistry) Len() int {
	return len(r.byID)
}
