package types

import (
	"go.uber.org/multierr"

	verrors "github.com/villain-cms/villain/pkg/core/errors"
)

// TypeDefinition describes a content type as an ordered list of fields.
type TypeDefinition struct {
	name   string
	label  string
	fields []Field
	index  map[string]Field
}

// NewTypeDefinition creates an empty type.
func NewTypeDefinition(name, label string) *TypeDefinition {
	return &TypeDefinition{name: name, label: label, index: make(map[string]Field)}
}

// Name returns the type name
func (t *TypeDefinition) Name() string { return t.name }

// Label returns the human readable name
func (t *TypeDefinition) Label() string { return t.label }

// AddField appends a field. Field names are unique per type.
func (t *TypeDefinition) AddField(f Field) error {
	if _, exists := t.index[f.Name()]; exists {
		return verrors.Newf("type %q already has a field %q", t.name, f.Name()).
			WithCode(verrors.CodeConfiguration).
			WithDetail("field", f.Name())
	}
	t.fields = append(t.fields, f)
	t.index[f.Name()] = f
	return nil
}

// MustAddField is AddField for static definitions.
func (t *TypeDefinition) MustAddField(f Field) *TypeDefinition {
	if err := t.AddField(f); err != nil {
		panic(err)
	}
	return t
}

// Field looks up a field by name.
func (t *TypeDefinition) Field(name string) (Field, bool) {
	f, ok := t.index[name]
	return f, ok
}

// Fields returns the fields in declaration order.
func (t *TypeDefinition) Fields() []Field {
	return append([]Field(nil), t.fields...)
}

// Definition describes the type and all of its fields.
func (t *TypeDefinition) Definition() map[string]any {
	d := map[string]any{"name": t.name, "label": t.label}
	for _, f := range t.fields {
		d[f.Name()] = f.Definition()
	}
	return d
}

// Validate checks every declared field of doc, including occurrence
// counts. Keys without a field are ignored. All failures are reported.
func (t *TypeDefinition) Validate(doc map[string]any) error {
	var errs error
	for _, f := range t.fields {
		errs = multierr.Append(errs, ValidateOccurrences(f, Occurrences(f, doc[f.Name()])))
	}
	return errs
}

// Normalize validates doc and returns a copy with every declared field
// normalized and defaults applied.
func (t *TypeDefinition) Normalize(doc map[string]any) (map[string]any, error) {
	if err := t.Validate(doc); err != nil {
		return nil, err
	}
	return normalizeFields(t.fields, doc)
}

// Errors splits a Validate result into individual field errors.
func Errors(err error) []error {
	return multierr.Errors(err)
}
