package postback

import (
	"net/url"
	"strings"
)

// Fields is an insertion ordered set of form fields, the portal is sensitive
// to the order fields are submitted in for some of its forms.
type Fields struct {
	keys   []string
	values map[string]string
}

func NewFields() *Fields {
	return &Fields{values: map[string]string{}}
}

// Set assigns a value to a field, an existing field keeps its position.
func (f *Fields) Set(key, value string) {
	if _, ok := f.values[key]; !ok {
		f.keys = append(f.keys, key)
	}
	f.values[key] = value
}

func (f *Fields) Get(key string) string {
	return f.values[key]
}

func (f *Fields) Has(key string) bool {
	_, ok := f.values[key]
	return ok
}

func (f *Fields) Keys() []string {
	out := make([]string, len(f.keys))
	copy(out, f.keys)
	return out
}

func (f *Fields) Len() int {
	return len(f.keys)
}

func (f *Fields) Clone() *Fields {
	out := &Fields{
		keys:   make([]string, len(f.keys)),
		values: make(map[string]string, len(f.values)),
	}
	copy(out.keys, f.keys)
	for k, v := range f.values {
		out.values[k] = v
	}
	return out
}

// Map returns a copy of the fields without ordering.
func (f *Fields) Map() map[string]string {
	out := make(map[string]string, len(f.values))
	for k, v := range f.values {
		out[k] = v
	}
	return out
}

// Encode serializes the fields as an application/x-www-form-urlencoded body
// in insertion order.
func (f *Fields) Encode() string {
	var sb strings.Builder
	for i, k := range f.keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(k))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(f.values[k]))
	}
	return sb.String()
}
