package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"unicode/utf16"
)

// IRValue is the sealed set of payload values.
type IRValue interface {
	irValue()
}

// IRString is a string value.
type IRString string

// IRInt is an integer value. There is no float counterpart.
type IRInt int64

// IRBool is a boolean value.
type IRBool bool

// IRArray is an ordered list of values.
type IRArray []IRValue

// IRObject maps string keys to values. Iterate with SortedKeys.
type IRObject map[string]IRValue

func (IRString) irValue() {}
func (IRInt) irValue()    {}
func (IRBool) irValue()   {}
func (IRArray) irValue()  {}
func (IRObject) irValue() {}

// String returns the string stored under key, if present and a string.
func (obj IRObject) String(key string) (string, bool) {
	v, ok := obj[key].(IRString)
	return string(v), ok
}

// Int returns the integer stored under key, if present and an integer.
func (obj IRObject) Int(key string) (int64, bool) {
	v, ok := obj[key].(IRInt)
	return int64(v), ok
}

// Bool returns the boolean stored under key, if present and a boolean.
func (obj IRObject) Bool(key string) (bool, bool) {
	v, ok := obj[key].(IRBool)
	return bool(v), ok
}

// Clone returns a deep copy of obj. A nil object clones to nil.
func (obj IRObject) Clone() IRObject {
	if obj == nil {
		return nil
	}
	out := make(IRObject, len(obj))
	for k, v := range obj {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v IRValue) IRValue {
	switch val := v.(type) {
	case IRObject:
		return val.Clone()
	case IRArray:
		out := make(IRArray, len(val))
		for i, elem := range val {
			out[i] = cloneValue(elem)
		}
		return out
	default:
		return v
	}
}

// Equal reports whether a and b hold the same canonical content.
func Equal(a, b IRObject) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	ca, errA := MarshalCanonical(a)
	cb, errB := MarshalCanonical(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ca, cb)
}

// SortedKeys returns the keys ordered by UTF-16 code units, as RFC 8785
// requires. Plain string comparison orders by UTF-8 bytes and disagrees for
// characters outside the BMP.
func (obj IRObject) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		return slices.Compare(utf16.Encode([]rune(a)), utf16.Encode([]rune(b)))
	})
	return keys
}

// MarshalJSON writes the object with sorted keys.
func (obj IRObject) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(obj)
}

// MarshalJSON writes the array in canonical form.
func (arr IRArray) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(arr)
}

// UnmarshalJSON decodes a JSON object, rejecting floats and nulls.
func (obj *IRObject) UnmarshalJSON(data []byte) error {
	v, err := UnmarshalIRValue(data)
	if err != nil {
		return err
	}
	o, ok := v.(IRObject)
	if !ok {
		return fmt.Errorf("expected JSON object, got %T", v)
	}
	*obj = o
	return nil
}

// UnmarshalJSON decodes a JSON array, rejecting floats and nulls.
func (arr *IRArray) UnmarshalJSON(data []byte) error {
	v, err := UnmarshalIRValue(data)
	if err != nil {
		return err
	}
	a, ok := v.(IRArray)
	if !ok {
		return fmt.Errorf("expected JSON array, got %T", v)
	}
	*arr = a
	return nil
}

// UnmarshalIRValue parses JSON into an IRValue. Null and floats are rejected.
func UnmarshalIRValue(data []byte) (IRValue, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return FromGo(raw)
}

// FromGo converts decoded JSON (or plain Go literals) into an IRValue.
func FromGo(v any) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is not a valid value")
	case IRValue:
		return val, nil
	case bool:
		return IRBool(val), nil
	case string:
		return IRString(val), nil
	case int:
		return IRInt(val), nil
	case int64:
		return IRInt(val), nil
	case json.Number:
		if strings.ContainsAny(string(val), ".eE") {
			return nil, fmt.Errorf("floats are not allowed: %s", val)
		}
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("number out of int64 range: %s", val)
		}
		return IRInt(n), nil
	case []any:
		arr := make(IRArray, len(val))
		for i, elem := range val {
			item, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = item
		}
		return arr, nil
	case map[string]any:
		obj := make(IRObject, len(val))
		for k, elem := range val {
			item, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = item
		}
		return obj, nil
	case float32, float64:
		return nil, fmt.Errorf("floats are not allowed: %v", val)
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}
