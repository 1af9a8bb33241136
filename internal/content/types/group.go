package types

import (
	"go.uber.org/multierr"

	verrors "github.com/villain-cms/villain/pkg/core/errors"
)

// GroupField is a repeatable set of nested fields. Its value is a map
// keyed by the nested field names.
type GroupField struct {
	base
	fields []Field
}

// NewGroup creates a group of fields
func NewGroup(name, label string, fields ...Field) *GroupField {
	return &GroupField{base: newBase(KindGroup, name, label), fields: fields}
}

// AddField appends a nested field
func (f *GroupField) AddField(field Field) { f.fields = append(f.fields, field) }

// Fields returns the nested fields
func (f *GroupField) Fields() []Field { return append([]Field(nil), f.fields...) }

// SetDefault always fails: a group has no default value.
func (f *GroupField) SetDefault(any) error {
	return verrors.Newf("cannot set a default value on group %q", f.name).WithCode(verrors.CodeConfiguration)
}

// Validate checks every nested field of a group value.
func (f *GroupField) Validate(value any) error {
	m, ok := value.(map[string]any)
	if !ok {
		return FieldError(f.name, "a group needs a map of values, got %T", value)
	}
	var errs error
	for _, field := range f.fields {
		if err := ValidateOccurrences(field, Occurrences(field, m[field.Name()])); err != nil {
			errs = multierr.Append(errs, verrors.Wrapf(err, "group %q", f.name).WithDetail("group", f.name))
		}
	}
	return errs
}

// Normalize normalizes every nested field.
func (f *GroupField) Normalize(value any) (any, error) {
	if err := f.Validate(value); err != nil {
		return nil, err
	}
	return normalizeFields(f.fields, value.(map[string]any))
}

// Definition implements Field
func (f *GroupField) Definition() map[string]any {
	d := f.definition()
	delete(d, "default_value")
	for _, field := range f.fields {
		d[field.Name()] = field.Definition()
	}
	return d
}

func normalizeFields(fields []Field, values map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}
	for _, field := range fields {
		raw, ok := values[field.Name()]
		if !ok || raw == nil {
			if d, hasDefault := defaultOf(field); hasDefault {
				out[field.Name()] = d
			}
			continue
		}

		occ := Occurrences(field, raw)
		normalized := make([]any, len(occ))
		for i, v := range occ {
			n, err := field.Normalize(v)
			if err != nil {
				return nil, err
			}
			normalized[i] = n
		}
		if field.MaxRepeat() == 1 {
			out[field.Name()] = normalized[0]
		} else {
			out[field.Name()] = normalized
		}
	}
	return out, nil
}

type defaulter interface {
	Default() any
}

func defaultOf(f Field) (any, bool) {
	if d, ok := f.(defaulter); ok && d.Default() != nil {
		return d.Default(), true
	}
	return nil, false
}
