package store

import (
	"strconv"
	"strings"
)

// Value is the closed tagged-variant reflected view of one attribute
// value. Kind selects which payload field is meaningful. Values are
// produced by Snapshot.Value and only ever read by the engine.
type Value struct {
	Kind Kind

	Bool  bool
	Int   int64   // KindInt32, KindInt64
	Uint  uint64  // KindUint32, KindUint64
	Float float64 // KindFloat32, KindFloat64
	Str   string  // KindString, KindEnum (variant), KindOpaque (repr)

	Fields []FieldValue // KindStruct, KindTuple
	Items  []Value      // KindList, KindArray
}

// FieldValue is one named member of a struct or tuple value.
type FieldValue struct {
	Name  string
	Value Value
}

// Field returns the struct field with the given name.
func (v Value) Field(name string) (Value, bool) {
	for _, f := range v.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Value constructors.

func BoolValue(b bool) Value       { return Value{Kind: KindBool, Bool: b} }
func Int32Value(i int32) Value     { return Value{Kind: KindInt32, Int: int64(i)} }
func Int64Value(i int64) Value     { return Value{Kind: KindInt64, Int: i} }
func Uint32Value(u uint32) Value   { return Value{Kind: KindUint32, Uint: uint64(u)} }
func Uint64Value(u uint64) Value   { return Value{Kind: KindUint64, Uint: u} }
func Float32Value(f float32) Value { return Value{Kind: KindFloat32, Float: float64(f)} }
func Float64Value(f float64) Value { return Value{Kind: KindFloat64, Float: f} }
func StringValue(s string) Value   { return Value{Kind: KindString, Str: s} }
func EnumValue(variant string) Value {
	return Value{Kind: KindEnum, Str: variant}
}
func StructValue(fields ...FieldValue) Value {
	return Value{Kind: KindStruct, Fields: fields}
}
func TupleValue(fields ...Value) Value {
	named := make([]FieldValue, len(fields))
	for i, f := range fields {
		named[i] = FieldValue{Name: strconv.Itoa(i), Value: f}
	}
	return Value{Kind: KindTuple, Fields: named}
}
func ListValue(items ...Value) Value  { return Value{Kind: KindList, Items: items} }
func ArrayValue(items ...Value) Value { return Value{Kind: KindArray, Items: items} }
func OpaqueValue(repr string) Value   { return Value{Kind: KindOpaque, Str: repr} }

// Field returns a FieldValue for use with StructValue.
func Field(name string, v Value) FieldValue {
	return FieldValue{Name: name, Value: v}
}

// DebugString renders the value for the string fallback column path.
// Formatting is stable across releases: scalars in their shortest exact
// form, structs as "{name: value, ...}", tuples as "(a, b)", lists and
// arrays as "[a, b]", enums as their variant name.
func (v Value) DebugString() string {
	switch v.Kind {
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindInt32, KindInt64:
		return strconv.FormatInt(v.Int, 10)
	case KindUint32, KindUint64:
		return strconv.FormatUint(v.Uint, 10)
	case KindFloat32:
		return strconv.FormatFloat(v.Float, 'g', -1, 32)
	case KindFloat64:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindString, KindEnum, KindOpaque:
		return v.Str
	case KindStruct:
		var sb strings.Builder
		sb.WriteByte('{')
		for i, f := range v.Fields {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(f.Name)
			sb.WriteString(": ")
			sb.WriteString(f.Value.DebugString())
		}
		sb.WriteByte('}')
		return sb.String()
	case KindTuple:
		var sb strings.Builder
		sb.WriteByte('(')
		for i, f := range v.Fields {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(f.Value.DebugString())
		}
		sb.WriteByte(')')
		return sb.String()
	case KindList, KindArray:
		parts := make([]string, len(v.Items))
		for i, item := range v.Items {
			parts[i] = item.DebugString()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return "<invalid>"
	}
}
