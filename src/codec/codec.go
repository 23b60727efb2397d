package codec

import (
	"fmt"
	"reflect"

	ugorji "github.com/ugorji/go/codec"
)

func newHandle() *ugorji.MsgpackHandle {
	h := new(ugorji.MsgpackHandle)
	h.WriteExt = true
	h.Canonical = true
	h.MapType = reflect.TypeOf(map[string]interface{}(nil))
	return h
}

// Encode validates fields against the schema registered for typ and returns
// the msgpack encoding.
func (r *Registry) Encode(typ string, fields Fields) ([]byte, error) {
	schema, ok := r.schema(typ)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, typ)
	}

	wire, err := r.toWire(schema, fields)
	if err != nil {
		return nil, err
	}

	var out []byte
	enc := ugorji.NewEncoderBytes(&out, newHandle())
	if err := enc.Encode(wire); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidMessage, typ, err)
	}

	return out, nil
}

// Decode parses data as a message of type typ. Enum values are resolved to
// their symbolic names where possible.
func (r *Registry) Decode(typ string, data []byte) (Fields, error) {
	schema, ok := r.schema(typ)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, typ)
	}

	var raw map[string]interface{}
	dec := ugorji.NewDecoderBytes(data, newHandle())
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidMessage, typ, err)
	}

	return r.fromWire(schema, raw)
}

func (r *Registry) toWire(schema *Schema, fields Fields) (map[string]interface{}, error) {
	wire := make(map[string]interface{}, len(schema.Fields))

	for _, f := range schema.Fields {
		v, ok := fields[f.Name]
		if !ok || v == nil {
			if f.Required {
				return nil, fmt.Errorf("%w: %s: missing required field %q", ErrInvalidMessage, schema.Type, f.Name)
			}
			continue
		}

		if !f.Repeated {
			w, err := r.valueToWire(schema, f, v)
			if err != nil {
				return nil, err
			}
			wire[f.Name] = w
			continue
		}

		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Slice {
			return nil, fieldError(schema, f, v)
		}
		list := make([]interface{}, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			w, err := r.valueToWire(schema, f, rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			list = append(list, w)
		}
		wire[f.Name] = list
	}

	return wire, nil
}

func (r *Registry) valueToWire(schema *Schema, f Field, v interface{}) (interface{}, error) {
	switch f.Kind {
	case KindString:
		switch s := v.(type) {
		case string:
			return s, nil
		case []byte:
			return string(s), nil
		}
	case KindBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case KindInt:
		if n, ok := toInt64(v); ok {
			return n, nil
		}
	case KindUint:
		if n, ok := toInt64(v); ok && n >= 0 {
			return uint64(n), nil
		}
		if n, ok := v.(uint64); ok {
			return n, nil
		}
	case KindBytes:
		switch b := v.(type) {
		case []byte:
			return b, nil
		case string:
			return []byte(b), nil
		}
	case KindEnum:
		enum, _ := r.enum(f.Ref)
		if sym, ok := v.(string); ok {
			n, known := enum.Values[sym]
			if !known {
				return nil, fmt.Errorf("%w: %s.%s: unknown %s value %q", ErrInvalidMessage, schema.Type, f.Name, f.Ref, sym)
			}
			return n, nil
		}
		if n, ok := toInt64(v); ok {
			return n, nil
		}
	case KindMessage:
		nested, ok := r.schema(f.Ref)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, f.Ref)
		}
		if m, ok := asFields(v); ok {
			return r.toWire(nested, m)
		}
	}

	return nil, fieldError(schema, f, v)
}

func (r *Registry) fromWire(schema *Schema, raw map[string]interface{}) (Fields, error) {
	res := make(Fields, len(schema.Fields))

	for _, f := range schema.Fields {
		v, ok := raw[f.Name]
		if !ok || v == nil {
			if f.Required {
				return nil, fmt.Errorf("%w: %s: missing required field %q", ErrInvalidMessage, schema.Type, f.Name)
			}
			continue
		}

		if !f.Repeated {
			d, err := r.valueFromWire(schema, f, v)
			if err != nil {
				return nil, err
			}
			res[f.Name] = d
			continue
		}

		items, ok := v.([]interface{})
		if !ok {
			return nil, fieldError(schema, f, v)
		}
		list, err := r.listFromWire(schema, f, items)
		if err != nil {
			return nil, err
		}
		res[f.Name] = list
	}

	return res, nil
}

// listFromWire returns a typed slice for repeated fields, except for enums,
// whose elements may mix symbolic names and raw numbers.
func (r *Registry) listFromWire(schema *Schema, f Field, items []interface{}) (interface{}, error) {
	decoded := make([]interface{}, 0, len(items))
	for _, it := range items {
		d, err := r.valueFromWire(schema, f, it)
		if err != nil {
			return nil, err
		}
		decoded = append(decoded, d)
	}

	switch f.Kind {
	case KindString:
		out := make([]string, len(decoded))
		for i, d := range decoded {
			out[i] = d.(string)
		}
		return out, nil
	case KindBool:
		out := make([]bool, len(decoded))
		for i, d := range decoded {
			out[i] = d.(bool)
		}
		return out, nil
	case KindInt:
		out := make([]int64, len(decoded))
		for i, d := range decoded {
			out[i] = d.(int64)
		}
		return out, nil
	case KindUint:
		out := make([]uint64, len(decoded))
		for i, d := range decoded {
			out[i] = d.(uint64)
		}
		return out, nil
	case KindBytes:
		out := make([][]byte, len(decoded))
		for i, d := range decoded {
			out[i] = d.([]byte)
		}
		return out, nil
	case KindMessage:
		out := make([]Fields, len(decoded))
		for i, d := range decoded {
			out[i] = d.(Fields)
		}
		return out, nil
	default:
		return decoded, nil
	}
}

func (r *Registry) valueFromWire(schema *Schema, f Field, v interface{}) (interface{}, error) {
	switch f.Kind {
	case KindString:
		switch s := v.(type) {
		case string:
			return s, nil
		case []byte:
			return string(s), nil
		}
	case KindBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case KindInt:
		if n, ok := toInt64(v); ok {
			return n, nil
		}
	case KindUint:
		if n, ok := v.(uint64); ok {
			return n, nil
		}
		if n, ok := toInt64(v); ok && n >= 0 {
			return uint64(n), nil
		}
	case KindBytes:
		switch b := v.(type) {
		case []byte:
			return b, nil
		case string:
			return []byte(b), nil
		}
	case KindEnum:
		if n, ok := toInt64(v); ok {
			if enum, ok := r.enum(f.Ref); ok {
				if sym, ok := enum.names[n]; ok {
					return sym, nil
				}
			}
			return n, nil
		}
	case KindMessage:
		nested, ok := r.schema(f.Ref)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, f.Ref)
		}
		if m, ok := asFields(v); ok {
			return r.fromWire(nested, m)
		}
	}

	return nil, fieldError(schema, f, v)
}

func fieldError(schema *Schema, f Field, v interface{}) error {
	return fmt.Errorf("%w: %s.%s: expected %s, got %T", ErrInvalidMessage, schema.Type, f.Name, f.Kind, v)
}

func asFields(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case Fields:
		return m, true
	case map[string]interface{}:
		return m, true
	case map[interface{}]interface{}:
		res := make(map[string]interface{}, len(m))
		for k, val := range m {
			switch ks := k.(type) {
			case string:
				res[ks] = val
			case []byte:
				res[string(ks)] = val
			default:
				return nil, false
			}
		}
		return res, true
	}
	return nil, false
}

func toInt64(v interface{}) (int64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > 1<<63-1 {
			return 0, false
		}
		return int64(u), true
	}
	return 0, false
}
