package codec

import (
	"fmt"
	"sync"
)

// Kind is the value kind of a schema field.
type Kind uint8

const (
	// KindString is a UTF-8 string
	KindString Kind = iota
	// KindBool is a boolean
	KindBool
	// KindInt is a signed 64-bit integer
	KindInt
	// KindUint is an unsigned 64-bit integer
	KindUint
	// KindBytes is an opaque byte slice
	KindBytes
	// KindEnum is a numeric value with symbolic names, see Enum
	KindEnum
	// KindMessage is a nested message with its own schema
	KindMessage
)

// String returns the string representation of a Kind
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindBytes:
		return "bytes"
	case KindEnum:
		return "enum"
	case KindMessage:
		return "message"
	default:
		return "unknown"
	}
}

// Field describes one field of a message schema. Ref names the enum for
// KindEnum fields, and the message type for KindMessage fields.
type Field struct {
	Name     string
	Kind     Kind
	Required bool
	Repeated bool
	Ref      string
}

// Schema describes a message type.
type Schema struct {
	Type   string
	Fields []Field
}

// Enum maps the symbolic names of an enumeration to their wire values.
type Enum struct {
	Name   string
	Values map[string]int64

	names map[int64]string
}

// Registry holds the schemas and enums known to a codec. It is safe for
// concurrent use; registration normally happens once at construction.
type Registry struct {
	sync.RWMutex

	schemas map[string]*Schema
	enums   map[string]*Enum
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		schemas: make(map[string]*Schema),
		enums:   make(map[string]*Enum),
	}
}

// RegisterEnum adds an enumeration to the registry.
func (r *Registry) RegisterEnum(name string, values map[string]int64) {
	e := &Enum{
		Name:   name,
		Values: make(map[string]int64, len(values)),
		names:  make(map[int64]string, len(values)),
	}
	for sym, v := range values {
		e.Values[sym] = v
		e.names[v] = sym
	}

	r.Lock()
	defer r.Unlock()
	r.enums[name] = e
}

// Register adds a message schema to the registry. It fails if a field refers
// to an enum or message type that is not registered yet, so nested types must
// be registered first.
func (r *Registry) Register(s Schema) error {
	r.Lock()
	defer r.Unlock()

	for _, f := range s.Fields {
		switch f.Kind {
		case KindEnum:
			if _, ok := r.enums[f.Ref]; !ok {
				return fmt.Errorf("%s.%s: unknown enum %q", s.Type, f.Name, f.Ref)
			}
		case KindMessage:
			if _, ok := r.schemas[f.Ref]; !ok && f.Ref != s.Type {
				return fmt.Errorf("%s.%s: unknown message %q", s.Type, f.Name, f.Ref)
			}
		}
	}

	schema := s
	r.schemas[s.Type] = &schema

	return nil
}

// Has reports whether a schema is registered for typ.
func (r *Registry) Has(typ string) bool {
	_, ok := r.schema(typ)
	return ok
}

func (r *Registry) schema(typ string) (*Schema, bool) {
	r.RLock()
	defer r.RUnlock()
	s, ok := r.schemas[typ]
	return s, ok
}

func (r *Registry) enum(name string) (*Enum, bool) {
	r.RLock()
	defer r.RUnlock()
	e, ok := r.enums[name]
	return e, ok
}
