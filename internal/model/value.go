// Package model — value.go
//
// Value is the dynamically-typed payload carried by extraData, tags, and
// performanceData fields coming off the wire. The source records these as
// ad-hoc JSON; a systems implementation needs a tagged sum type instead of
// interface{} so callers can switch on Kind exhaustively.

package model

import (
	"encoding/json"
	"fmt"
)

// ValueKind identifies which field of Value is meaningful.
type ValueKind uint8

const (
	ValueNull ValueKind = iota
	ValueString
	ValueNumber
	ValueBool
	ValueArray
	ValueObject
)

// Value is a small sum type standing in for JSON's dynamic typing.
// Zero value is ValueNull.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
	Bool bool
	Arr  []Value
	Obj  map[string]Value
}

func StringValue(s string) Value  { return Value{Kind: ValueString, Str: s} }
func NumberValue(n float64) Value { return Value{Kind: ValueNumber, Num: n} }
func BoolValue(b bool) Value      { return Value{Kind: ValueBool, Bool: b} }

// MarshalJSON encodes the Value as whatever native JSON shape Kind implies.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case ValueNull:
		return []byte("null"), nil
	case ValueString:
		return json.Marshal(v.Str)
	case ValueNumber:
		return json.Marshal(v.Num)
	case ValueBool:
		return json.Marshal(v.Bool)
	case ValueArray:
		return json.Marshal(v.Arr)
	case ValueObject:
		return json.Marshal(v.Obj)
	default:
		return nil, fmt.Errorf("model: unknown value kind %d", v.Kind)
	}
}

// UnmarshalJSON infers Kind from the native JSON token and fills the
// matching field.
func (v *Value) UnmarshalJSON(data []byte) error {
	var probe interface{}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	*v = fromInterface(probe)
	return nil
}

func fromInterface(x interface{}) Value {
	switch t := x.(type) {
	case nil:
		return Value{Kind: ValueNull}
	case string:
		return Value{Kind: ValueString, Str: t}
	case float64:
		return Value{Kind: ValueNumber, Num: t}
	case bool:
		return Value{Kind: ValueBool, Bool: t}
	case []interface{}:
		arr := make([]Value, len(t))
		for i, e := range t {
			arr[i] = fromInterface(e)
		}
		return Value{Kind: ValueArray, Arr: arr}
	case map[string]interface{}:
		obj := make(map[string]Value, len(t))
		for k, e := range t {
			obj[k] = fromInterface(e)
		}
		return Value{Kind: ValueObject, Obj: obj}
	default:
		return Value{Kind: ValueNull}
	}
}
