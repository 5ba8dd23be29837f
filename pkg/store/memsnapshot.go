package store

import (
	"sort"

	"github.com/parqsnap/parqsnap/pkg/snaperrors"
)

// MemSnapshot is an in-memory Snapshot implementation. It backs the CLI
// snapshot loader and the test suites; production deployments adapt their
// own store to the Snapshot interface instead.
//
// MemSnapshot is not safe for concurrent mutation. Freeze it (stop calling
// Register*/Spawn/Attach) before handing it to an exporter.
type MemSnapshot struct {
	types      map[TypeID]*Descriptor
	nextTypeID TypeID

	attrs      []attrDef
	attrByName map[string]AttributeID

	entities []EntityID
	nextID   EntityID

	// values[e][attr] == nil means the attribute is present on the entity
	// but carries no reflect capability; Value fails for it.
	values map[EntityID]map[AttributeID]*Value
}

type attrDef struct {
	name    string
	typeID  TypeID
	hasType bool
}

// NewMemSnapshot creates an empty in-memory snapshot.
func NewMemSnapshot() *MemSnapshot {
	return &MemSnapshot{
		types:      make(map[TypeID]*Descriptor),
		attrByName: make(map[string]AttributeID),
		values:     make(map[EntityID]map[AttributeID]*Value),
	}
}

// RegisterType registers a type descriptor and returns its id. Registered
// types form the clustering allow-list exposed through Registry.
func (s *MemSnapshot) RegisterType(d *Descriptor) TypeID {
	id := s.nextTypeID
	s.nextTypeID++
	s.types[id] = d
	return id
}

// RegisterAttribute defines an attribute backed by a registered type and
// returns its stable id. Registering the same name twice returns the
// existing id.
func (s *MemSnapshot) RegisterAttribute(name string, t TypeID) AttributeID {
	if id, ok := s.attrByName[name]; ok {
		return id
	}
	id := AttributeID(len(s.attrs))
	s.attrs = append(s.attrs, attrDef{name: name, typeID: t, hasType: true})
	s.attrByName[name] = id
	return id
}

// RegisterUntypedAttribute defines an attribute with no registered type.
// Such attributes never participate in clustering.
func (s *MemSnapshot) RegisterUntypedAttribute(name string) AttributeID {
	if id, ok := s.attrByName[name]; ok {
		return id
	}
	id := AttributeID(len(s.attrs))
	s.attrs = append(s.attrs, attrDef{name: name})
	s.attrByName[name] = id
	return id
}

// Spawn creates a new entity and returns its id.
func (s *MemSnapshot) Spawn() EntityID {
	id := s.nextID
	s.nextID++
	s.entities = append(s.entities, id)
	s.values[id] = make(map[AttributeID]*Value)
	return id
}

// Attach sets an attribute value on an entity.
func (s *MemSnapshot) Attach(e EntityID, id AttributeID, v Value) {
	vals, ok := s.values[e]
	if !ok {
		return
	}
	vals[id] = &v
}

// AttachOpaque attaches an attribute without a reflectable value. The
// attribute counts toward the entity's signature, but Value fails for it.
func (s *MemSnapshot) AttachOpaque(e EntityID, id AttributeID) {
	vals, ok := s.values[e]
	if !ok {
		return
	}
	vals[id] = nil
}

// Registry builds the immutable type registry for this snapshot.
func (s *MemSnapshot) Registry() *TypeRegistry {
	return NewTypeRegistry(s.types)
}

// AttributeIDByName returns the id of a registered attribute.
func (s *MemSnapshot) AttributeIDByName(name string) (AttributeID, bool) {
	id, ok := s.attrByName[name]
	return id, ok
}

// Entities implements Snapshot.
func (s *MemSnapshot) Entities() []EntityID {
	out := make([]EntityID, len(s.entities))
	copy(out, s.entities)
	return out
}

// AttributeIDs implements Snapshot. Ids are returned ascending.
func (s *MemSnapshot) AttributeIDs(e EntityID) []AttributeID {
	vals, ok := s.values[e]
	if !ok {
		return nil
	}
	ids := make([]AttributeID, 0, len(vals))
	for id := range vals {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// HasAttribute implements Snapshot.
func (s *MemSnapshot) HasAttribute(e EntityID, id AttributeID) bool {
	vals, ok := s.values[e]
	if !ok {
		return false
	}
	_, ok = vals[id]
	return ok
}

// ResolveAttribute implements Snapshot.
func (s *MemSnapshot) ResolveAttribute(id AttributeID) (AttrInfo, bool) {
	if int(id) >= len(s.attrs) {
		return AttrInfo{}, false
	}
	def := s.attrs[id]
	return AttrInfo{Name: def.name, TypeID: def.typeID, HasTypeID: def.hasType}, true
}

// Value implements Snapshot.
func (s *MemSnapshot) Value(e EntityID, id AttributeID) (Value, error) {
	vals, ok := s.values[e]
	if !ok {
		return Value{}, snaperrors.Newf(snaperrors.ErrorTypeSerialization,
			"entity %d not found in snapshot", e)
	}
	v, ok := vals[id]
	if !ok {
		return Value{}, snaperrors.Newf(snaperrors.ErrorTypeSerialization,
			"entity %d does not have attribute %d", e, id)
	}
	if v == nil {
		return Value{}, snaperrors.Newf(snaperrors.ErrorTypeSerialization,
			"attribute %d on entity %d has no reflect capability", id, e)
	}
	return *v, nil
}
