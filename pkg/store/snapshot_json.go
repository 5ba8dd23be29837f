package store

import (
	"os"

	json "github.com/goccy/go-json"

	"github.com/parqsnap/parqsnap/pkg/snaperrors"
)

// snapshotDoc is the on-disk JSON shape consumed by LoadSnapshot. It exists
// so demo worlds and test fixtures can be described declaratively; real
// stores implement Snapshot directly.
type snapshotDoc struct {
	Types    []typeDoc   `json:"types"`
	Entities []entityDoc `json:"entities"`
}

type typeDoc struct {
	Name     string     `json:"name"`
	Kind     string     `json:"kind"`
	Marker   bool       `json:"marker,omitempty"`
	Fields   []fieldDoc `json:"fields,omitempty"`
	Item     *typeDoc   `json:"item,omitempty"`
	Len      int        `json:"len,omitempty"`
	Variants []string   `json:"variants,omitempty"`
}

type fieldDoc struct {
	Name string  `json:"name"`
	Type typeDoc `json:"type"`
}

type entityDoc struct {
	// Attributes maps fully-qualified attribute names to raw JSON values
	// decoded against the attribute's registered descriptor.
	Attributes map[string]json.RawMessage `json:"attributes"`
}

// LoadSnapshotFile reads a JSON snapshot document from path and builds a
// MemSnapshot from it.
func LoadSnapshotFile(path string) (*MemSnapshot, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is operator-supplied
	if err != nil {
		return nil, snaperrors.Wrap(err, snaperrors.ErrorTypeIO, "failed to read snapshot file").
			WithDetail("path", path)
	}
	return LoadSnapshot(data)
}

// LoadSnapshot builds a MemSnapshot from a JSON snapshot document.
func LoadSnapshot(data []byte) (*MemSnapshot, error) {
	var doc snapshotDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, snaperrors.Wrap(err, snaperrors.ErrorTypeConfig, "failed to parse snapshot JSON")
	}

	snap := NewMemSnapshot()

	attrIDs := make(map[string]AttributeID, len(doc.Types))
	descs := make(map[string]*Descriptor, len(doc.Types))
	for i := range doc.Types {
		d, err := decodeDescriptor(&doc.Types[i])
		if err != nil {
			return nil, err
		}
		tid := snap.RegisterType(d)
		attrIDs[d.Name] = snap.RegisterAttribute(d.Name, tid)
		descs[d.Name] = d
	}

	for _, ent := range doc.Entities {
		e := snap.Spawn()
		for name, raw := range ent.Attributes {
			id, ok := attrIDs[name]
			if !ok {
				id = snap.RegisterUntypedAttribute(name)
				snap.AttachOpaque(e, id)
				continue
			}
			v, err := decodeValue(raw, descs[name])
			if err != nil {
				return nil, snaperrors.Wrap(err, snaperrors.ErrorTypeConfig, "failed to decode attribute value").
					WithDetail("attribute", name)
			}
			snap.Attach(e, id, v)
		}
	}

	return snap, nil
}

func decodeDescriptor(doc *typeDoc) (*Descriptor, error) {
	kind, ok := kindFromString(doc.Kind)
	if !ok {
		return nil, snaperrors.Newf(snaperrors.ErrorTypeConfig,
			"unknown kind %q for type %q", doc.Kind, doc.Name)
	}

	d := &Descriptor{
		Name:     doc.Name,
		Kind:     kind,
		Marker:   doc.Marker,
		ArrayLen: doc.Len,
		Variants: doc.Variants,
	}

	for i := range doc.Fields {
		ft, err := decodeDescriptor(&doc.Fields[i].Type)
		if err != nil {
			return nil, err
		}
		d.Fields = append(d.Fields, FieldDescriptor{Name: doc.Fields[i].Name, Type: ft})
	}

	if doc.Item != nil {
		elem, err := decodeDescriptor(doc.Item)
		if err != nil {
			return nil, err
		}
		d.Elem = elem
	}

	return d, nil
}

func kindFromString(s string) (Kind, bool) {
	switch s {
	case "bool":
		return KindBool, true
	case "i32":
		return KindInt32, true
	case "i64":
		return KindInt64, true
	case "u32":
		return KindUint32, true
	case "u64":
		return KindUint64, true
	case "f32":
		return KindFloat32, true
	case "f64":
		return KindFloat64, true
	case "string":
		return KindString, true
	case "struct":
		return KindStruct, true
	case "enum":
		return KindEnum, true
	case "list":
		return KindList, true
	case "array":
		return KindArray, true
	case "tuple":
		return KindTuple, true
	case "opaque":
		return KindOpaque, true
	default:
		return KindInvalid, false
	}
}

func decodeValue(raw json.RawMessage, d *Descriptor) (Value, error) {
	switch d.Kind {
	case KindBool:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return Value{}, err
		}
		return BoolValue(b), nil
	case KindInt32, KindInt64:
		var i int64
		if err := json.Unmarshal(raw, &i); err != nil {
			return Value{}, err
		}
		return Value{Kind: d.Kind, Int: i}, nil
	case KindUint32, KindUint64:
		var u uint64
		if err := json.Unmarshal(raw, &u); err != nil {
			return Value{}, err
		}
		return Value{Kind: d.Kind, Uint: u}, nil
	case KindFloat32, KindFloat64:
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return Value{}, err
		}
		return Value{Kind: d.Kind, Float: f}, nil
	case KindString, KindEnum, KindOpaque:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, err
		}
		return Value{Kind: d.Kind, Str: s}, nil
	case KindStruct:
		// Zero-size markers serialize as null or {}.
		if len(d.Fields) == 0 {
			return StructValue(), nil
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return Value{}, err
		}
		fields := make([]FieldValue, 0, len(d.Fields))
		for i := range d.Fields {
			fd := &d.Fields[i]
			rawField, ok := obj[fd.Name]
			if !ok {
				return Value{}, snaperrors.Newf(snaperrors.ErrorTypeConfig,
					"missing field %q for struct %q", fd.Name, d.Name)
			}
			fv, err := decodeValue(rawField, fd.Type)
			if err != nil {
				return Value{}, err
			}
			fields = append(fields, FieldValue{Name: fd.Name, Value: fv})
		}
		return StructValue(fields...), nil
	case KindTuple:
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return Value{}, err
		}
		vals := make([]Value, 0, len(items))
		for i, rawItem := range items {
			if i >= len(d.Fields) {
				break
			}
			v, err := decodeValue(rawItem, d.Fields[i].Type)
			if err != nil {
				return Value{}, err
			}
			vals = append(vals, v)
		}
		return TupleValue(vals...), nil
	case KindList, KindArray:
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return Value{}, err
		}
		vals := make([]Value, 0, len(items))
		for _, rawItem := range items {
			v, err := decodeValue(rawItem, d.Elem)
			if err != nil {
				return Value{}, err
			}
			vals = append(vals, v)
		}
		return Value{Kind: d.Kind, Items: vals}, nil
	default:
		return Value{}, snaperrors.Newf(snaperrors.ErrorTypeConfig,
			"cannot decode value of kind %s", d.Kind)
	}
}
