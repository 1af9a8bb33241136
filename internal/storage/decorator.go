package storage

import "encoding/json"

// Decorator wraps an Object and forwards every call to it. Typed entities
// embed a Decorator and add their own accessors on top.
type Decorator struct {
	inner *Object
}

// NewDecorator wraps o. A nil o gets a fresh Object.
func NewDecorator(o *Object) Decorator {
	if o == nil {
		o = NewObject()
	}
	return Decorator{inner: o}
}

func (d *Decorator) object() *Object {
	if d.inner == nil {
		d.inner = NewObject()
	}
	return d.inner
}

// Get forwards to the wrapped Object.
func (d *Decorator) Get(name string) any { return d.object().Get(name) }

// Set forwards to the wrapped Object.
func (d *Decorator) Set(name string, value any) { d.object().Set(name, value) }

// Has forwards to the wrapped Object.
func (d *Decorator) Has(name string) bool { return d.object().Has(name) }

// Remove forwards to the wrapped Object.
func (d *Decorator) Remove(name string) { d.object().Remove(name) }

// Keys forwards to the wrapped Object.
func (d *Decorator) Keys() []string { return d.object().Keys() }

// GetString forwards to the wrapped Object.
func (d *Decorator) GetString(name string) string { return d.object().GetString(name) }

// ToMap forwards to the wrapped Object.
func (d *Decorator) ToMap() map[string]any { return d.object().ToMap() }

// FromMap forwards to the wrapped Object.
func (d *Decorator) FromMap(data map[string]any) error { return d.object().FromMap(data) }

// MarshalJSON encodes the wrapped Object's persisted form.
func (d *Decorator) MarshalJSON() ([]byte, error) { return json.Marshal(d.object().ToMap()) }

// Unwrap returns the wrapped Object.
func (d *Decorator) Unwrap() *Object { return d.object() }
