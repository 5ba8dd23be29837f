// Package store defines the read-only collaborator surface the export
// engine consumes: snapshot enumeration of entities and their attributes,
// stable attribute identifiers, and an immutable type-descriptor registry
// with a generic reflected value view.
//
// The engine never mutates a snapshot. Identifiers are stable only within
// one snapshot; nothing in this package persists across invocations.
package store

// EntityID is an opaque, externally-assigned identifier for one record in
// the store, valid for a single snapshot.
type EntityID uint64

// AttributeID is the stable identifier of one attribute definition within
// a snapshot. All entities carrying the same attribute share the id.
type AttributeID uint32

// TypeID identifies a registered type descriptor within a snapshot.
type TypeID uint32

// Kind is the closed set of type shapes the engine understands. Both the
// schema builder and the column materializer dispatch over the same Kind,
// so the two paths cannot drift apart.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindBool
	KindInt32
	KindInt64
	KindUint32
	KindUint64
	KindFloat32
	KindFloat64
	KindString
	KindStruct
	KindEnum
	KindList
	KindArray
	KindTuple
	KindOpaque
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt32:
		return "i32"
	case KindInt64:
		return "i64"
	case KindUint32:
		return "u32"
	case KindUint64:
		return "u64"
	case KindFloat32:
		return "f32"
	case KindFloat64:
		return "f64"
	case KindString:
		return "string"
	case KindStruct:
		return "struct"
	case KindEnum:
		return "enum"
	case KindList:
		return "list"
	case KindArray:
		return "array"
	case KindTuple:
		return "tuple"
	case KindOpaque:
		return "opaque"
	default:
		return "invalid"
	}
}

// IsScalar reports whether the kind is a fixed-width scalar.
func (k Kind) IsScalar() bool {
	switch k {
	case KindBool, KindInt32, KindInt64, KindUint32, KindUint64, KindFloat32, KindFloat64:
		return true
	default:
		return false
	}
}

// Descriptor describes the shape of a registered type. Descriptors are
// immutable once registered; the engine only reads them.
type Descriptor struct {
	// Name is the fully-qualified type path, e.g. "demo::transform::Position".
	Name string
	// Kind selects which of the remaining fields are meaningful.
	Kind Kind
	// Marker marks a zero-size, filter-only attribute. Marker attributes
	// select entities for export but never appear in schemas or columns.
	Marker bool
	// Fields holds struct or tuple members in declaration order.
	Fields []FieldDescriptor
	// Elem is the item type for lists and arrays.
	Elem *Descriptor
	// ArrayLen is the fixed length for KindArray.
	ArrayLen int
	// Variants holds the enum variant names for KindEnum.
	Variants []string
}

// FieldDescriptor is one named member of a struct or tuple descriptor.
type FieldDescriptor struct {
	Name string
	Type *Descriptor
}

// FieldNamed returns the field descriptor with the given name.
func (d *Descriptor) FieldNamed(name string) (*FieldDescriptor, bool) {
	for i := range d.Fields {
		if d.Fields[i].Name == name {
			return &d.Fields[i], true
		}
	}
	return nil, false
}

// ShortName returns the type name with the namespace path stripped.
func (d *Descriptor) ShortName() string {
	return ShortName(d.Name)
}

// ShortName returns the portion of a fully-qualified type path after the
// last "::" separator.
func ShortName(name string) string {
	for i := len(name) - 2; i >= 0; i-- {
		if name[i] == ':' && name[i+1] == ':' {
			return name[i+2:]
		}
	}
	return name
}

// AttrInfo is the resolution of an AttributeID: the fully-qualified
// attribute name and, when the type was registered, its type id.
type AttrInfo struct {
	Name      string
	TypeID    TypeID
	HasTypeID bool
}

// Snapshot is the read-only view of the entity store the engine consumes.
// Implementations must not be mutated for the duration of an export.
type Snapshot interface {
	// Entities enumerates all entities in the snapshot.
	Entities() []EntityID

	// AttributeIDs lists the attribute ids attached to an entity.
	AttributeIDs(e EntityID) []AttributeID

	// HasAttribute reports whether the entity carries the attribute.
	HasAttribute(e EntityID, id AttributeID) bool

	// ResolveAttribute resolves an attribute id to its name and optional
	// type id. The second return is false for ids unknown to the snapshot.
	ResolveAttribute(id AttributeID) (AttrInfo, bool)

	// Value fetches the live value of an attribute on an entity as a
	// generic reflected view. It fails when the entity lacks the
	// attribute or the attribute carries no reflect capability.
	Value(e EntityID, id AttributeID) (Value, error)
}
