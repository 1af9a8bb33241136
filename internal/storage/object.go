package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	verrors "github.com/villain-cms/villain/pkg/core/errors"
)

// ObjectType is the discriminator of a plain nested Object.
const ObjectType = "storage.Object"

func init() {
	RegisterType(ObjectType, func() Storable { return NewObject() })
}

// Object is an ordered, open property bag.
type Object struct {
	keys   []string
	values map[string]any
}

// NewObject returns an empty Object.
func NewObject() *Object {
	return &Object{values: make(map[string]any)}
}

// NewFromMap builds an Object from its persisted form.
func NewFromMap(data map[string]any) (*Object, error) {
	o := NewObject()
	if err := o.FromMap(data); err != nil {
		return nil, err
	}
	return o, nil
}

// Get returns the named property or nil.
func (o *Object) Get(name string) any {
	return o.values[name]
}

// Lookup returns the named property and whether it is set.
func (o *Object) Lookup(name string) (any, bool) {
	v, ok := o.values[name]
	return v, ok
}

// Set stores a property. New names are appended to the key order.
func (o *Object) Set(name string, value any) {
	if o.values == nil {
		o.values = make(map[string]any)
	}
	if _, ok := o.values[name]; !ok {
		o.keys = append(o.keys, name)
	}
	o.values[name] = value
}

// Has reports whether name is set to a non-nil value.
func (o *Object) Has(name string) bool {
	return o.values[name] != nil
}

// Remove deletes a property.
func (o *Object) Remove(name string) {
	if _, ok := o.values[name]; !ok {
		return
	}
	delete(o.values, name)
	for i, k := range o.keys {
		if k == name {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the property names in insertion order.
func (o *Object) Keys() []string {
	return append([]string(nil), o.keys...)
}

// Len returns the number of properties.
func (o *Object) Len() int {
	return len(o.keys)
}

// GetString returns the property formatted as a string, or "" if unset.
func (o *Object) GetString(name string) string {
	switch v := o.values[name].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// GetInt returns the property as an int64 when it holds a number or a
// numeric string.
func (o *Object) GetInt(name string) (int64, bool) {
	switch v := o.values[name].(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	}
	return 0, false
}

// GetBool returns the property as a bool.
func (o *Object) GetBool(name string) bool {
	switch v := o.values[name].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	}
	return false
}

// Call maps accessor-style names onto the property bag: getTitle reads
// "title" and setTitle writes it.
func (o *Object) Call(method string, args ...any) (any, error) {
	if len(method) <= 3 {
		return nil, nil
	}
	prefix, rest := method[:3], method[3:]
	r, size := utf8.DecodeRuneInString(rest)
	prop := string(unicode.ToLower(r)) + rest[size:]

	switch prefix {
	case "get":
		return o.Get(prop), nil
	case "set":
		if len(args) == 0 {
			return nil, verrors.Newf("%s requires a value parameter", method).
				WithCode(verrors.CodeInvalidInput)
		}
		o.Set(prop, args[0])
		return args[0], nil
	}
	return nil, verrors.Newf("unknown method called: %s", method).WithCode(verrors.CodeInvalidInput)
}

// ToMap returns the persisted form of the object.
func (o *Object) ToMap() map[string]any {
	data := make(map[string]any, len(o.keys))
	for _, k := range o.keys {
		data[k] = Project(o.values[k])
	}
	return data
}

// MarshalJSON encodes the persisted form, so an Object answers like the
// document it would be saved as.
func (o *Object) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.ToMap())
}

// FromMap replaces the object's properties with data, rebuilding any tagged
// nested Storables.
func (o *Object) FromMap(data map[string]any) error {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make(map[string]any, len(data))
	for _, k := range keys {
		values[k] = data[k]
	}

	var failed []string
	for _, k := range keys {
		restored, err := Restore(values[k])
		if err != nil {
			failed = append(failed, k+": "+err.Error())
			continue
		}
		values[k] = restored
	}
	if len(failed) > 0 {
		return verrors.Newf("cannot restore properties: %s", strings.Join(failed, "; ")).
			WithCode(verrors.CodeInvalidInput).
			WithOperation("storage.FromMap")
	}

	o.keys = keys
	o.values = values
	return nil
}

// String implements fmt.Stringer for diagnostics.
func (o *Object) String() string {
	parts := make([]string, 0, len(o.keys))
	for _, k := range o.keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, o.values[k]))
	}
	return "{" + strings.Join(parts, " ") + "}"
}
