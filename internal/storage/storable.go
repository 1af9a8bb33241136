// ============================================================================
// Villain - Content Framework
// ============================================================================
//
// Package:     storage
// Description: Storable entities and their map projection for persistence
// License:     MIT
// ============================================================================

// Package storage defines the Storable capability and Object, the open
// property bag most Villain entities are built on. ToMap produces the form
// written to the datastore; nested Storables are tagged with AutocastKey so
// FromMap can rebuild them as their concrete type.
package storage

import (
	"encoding"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	verrors "github.com/villain-cms/villain/pkg/core/errors"
)

// AutocastKey is the reserved key holding the type of a nested Storable.
const AutocastKey = "__storable_autocast"

// Storable is an entity with a lossless map projection.
type Storable interface {
	ToMap() map[string]any
	FromMap(data map[string]any) error
}

// Typed lets a Storable name its own discriminator.
type Typed interface {
	StorableType() string
}

// Factory creates an empty Storable of one concrete type.
type Factory func() Storable

var (
	typesMu   sync.RWMutex
	factories = map[string]Factory{}
	typeNames = map[reflect.Type]string{}
)

// RegisterType makes name reconstructable by FromMap. Registering the same
// name twice replaces the factory.
func RegisterType(name string, factory Factory) {
	typesMu.Lock()
	defer typesMu.Unlock()
	factories[name] = factory
	if sample := factory(); sample != nil {
		typeNames[reflect.TypeOf(sample)] = name
	}
}

// NewOfType creates an empty instance of a registered type.
func NewOfType(name string) (Storable, error) {
	typesMu.RLock()
	factory, ok := factories[name]
	typesMu.RUnlock()
	if !ok {
		return nil, verrors.Newf("unknown storable type %q", name).
			WithCode(verrors.CodeInvalidInput).
			WithOperation("storage.NewOfType")
	}
	return factory(), nil
}

// TypeName returns the discriminator for s.
func TypeName(s Storable) string {
	if t, ok := s.(Typed); ok {
		return t.StorableType()
	}
	typesMu.RLock()
	name, ok := typeNames[reflect.TypeOf(s)]
	typesMu.RUnlock()
	if ok {
		return name
	}
	return reflect.TypeOf(s).String()
}

// Project converts a single property value to its persisted form: nested
// Storables become tagged maps, other structs are flattened one level, and
// everything else is returned unchanged.
func Project(val any) any {
	switch v := val.(type) {
	case nil:
		return nil
	case Storable:
		m := v.ToMap()
		m[AutocastKey] = TypeName(v)
		return m
	case time.Time, json.Marshaler, encoding.TextMarshaler, fmt.Stringer:
		return val
	}

	rv := reflect.ValueOf(val)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return val
	}
	return structToMap(rv)
}

func structToMap(rv reflect.Value) map[string]any {
	rt := rv.Type()
	out := make(map[string]any, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Name
		if tag, ok := f.Tag.Lookup("json"); ok {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}
		out[name] = rv.Field(i).Interface()
	}
	return out
}

// Restore is the inverse of Project for one value: maps carrying
// AutocastKey are rebuilt as their registered type.
func Restore(val any) (any, error) {
	m, ok := val.(map[string]any)
	if !ok {
		return val, nil
	}
	typeName, _ := m[AutocastKey].(string)
	if typeName == "" {
		return val, nil
	}

	obj, err := NewOfType(typeName)
	if err != nil {
		return nil, err
	}
	data := make(map[string]any, len(m)-1)
	for k, v := range m {
		if k != AutocastKey {
			data[k] = v
		}
	}
	if err := obj.FromMap(data); err != nil {
		return nil, verrors.Wrapf(err, "restore %s", typeName)
	}
	return obj, nil
}
