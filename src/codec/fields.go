package codec

// Fields holds the values of a message, keyed by field name.
type Fields map[string]interface{}

// String returns the string value of a field, or "" if it is absent or not a
// string.
func (f Fields) String(name string) string {
	switch s := f[name].(type) {
	case string:
		return s
	case []byte:
		return string(s)
	}
	return ""
}

// Bool returns the boolean value of a field, or false.
func (f Fields) Bool(name string) bool {
	b, _ := f[name].(bool)
	return b
}

// Int64 returns the integer value of a field, or 0.
func (f Fields) Int64(name string) int64 {
	n, _ := toInt64(f[name])
	return n
}

// Uint64 returns the unsigned integer value of a field, or 0.
func (f Fields) Uint64(name string) uint64 {
	if n, ok := f[name].(uint64); ok {
		return n
	}
	if n, ok := toInt64(f[name]); ok && n >= 0 {
		return uint64(n)
	}
	return 0
}

// Bytes returns the byte slice value of a field, or nil.
func (f Fields) Bytes(name string) []byte {
	switch b := f[name].(type) {
	case []byte:
		return b
	case string:
		return []byte(b)
	}
	return nil
}

// Message returns a nested message, or nil.
func (f Fields) Message(name string) Fields {
	if m, ok := asFields(f[name]); ok {
		return Fields(m)
	}
	return nil
}

// Strings returns a repeated string field, or nil.
func (f Fields) Strings(name string) []string {
	switch l := f[name].(type) {
	case []string:
		return l
	case []interface{}:
		res := make([]string, 0, len(l))
		for _, v := range l {
			if s, ok := v.(string); ok {
				res = append(res, s)
			}
		}
		return res
	}
	return nil
}

// Messages returns a repeated message field, or nil.
func (f Fields) Messages(name string) []Fields {
	switch l := f[name].(type) {
	case []Fields:
		return l
	case []interface{}:
		res := make([]Fields, 0, len(l))
		for _, v := range l {
			if m, ok := asFields(v); ok {
				res = append(res, Fields(m))
			}
		}
		return res
	}
	return nil
}

// Has reports whether a field is set.
func (f Fields) Has(name string) bool {
	v, ok := f[name]
	return ok && v != nil
}
