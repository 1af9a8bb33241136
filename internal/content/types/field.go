// ============================================================================
// Villain - Content Framework
// ============================================================================
//
// Package:     types
// Description: Declarative field and content type definitions
// License:     MIT
// ============================================================================

// Package types describes the fields of a content type and validates and
// normalizes values against them.
package types

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	verrors "github.com/villain-cms/villain/pkg/core/errors"
)

// Unbounded as MaxRepeat allows any number of occurrences.
const Unbounded = -1

var validate = validator.New()

// Field is one typed attribute of a content type.
type Field interface {
	Name() string
	Label() string
	Kind() string
	// MinRepeat and MaxRepeat bound the number of occurrences. A MaxRepeat
	// of 0 means the field may never appear, -1 means unbounded.
	MinRepeat() int
	MaxRepeat() int
	Definition() map[string]any
	Validate(value any) error
	Normalize(value any) (any, error)
}

// FieldError builds a validation failure for field.
func FieldError(field, format string, args ...any) *verrors.Error {
	reason := fmt.Sprintf(format, args...)
	return verrors.Newf("field %q: %s", field, reason).
		WithCode(verrors.CodeValidationFailed).
		WithDetail("field", field).
		WithDetail("reason", reason)
}

// base carries what every field kind shares.
type base struct {
	name        string
	label       string
	kind        string
	description string
	defaultVal  any
	minRepeat   int
	maxRepeat   int
}

func newBase(kind, name, label string) base {
	return base{kind: kind, name: name, label: label, maxRepeat: 1}
}

func (b *base) Name() string   { return b.name }
func (b *base) Label() string  { return b.label }
func (b *base) Kind() string   { return b.kind }
func (b *base) MinRepeat() int { return b.minRepeat }
func (b *base) MaxRepeat() int { return b.maxRepeat }

// SetDescription sets the help text
func (b *base) SetDescription(desc string) { b.description = desc }

// SetDefault sets the value used when the field is absent.
func (b *base) SetDefault(v any) error {
	b.defaultVal = v
	return nil
}

// Default returns the default value
func (b *base) Default() any { return b.defaultVal }

// SetRepeats sets the occurrence bounds.
func (b *base) SetRepeats(max, min int) {
	b.maxRepeat = max
	b.minRepeat = min
}

func (b *base) definition() map[string]any {
	return map[string]any{
		"name":          b.name,
		"label":         b.label,
		"type":          b.kind,
		"max_repeat":    b.maxRepeat,
		"min_repeat":    b.minRepeat,
		"description":   b.description,
		"default_value": b.defaultVal,
	}
}

// ValidateOccurrences checks the number of values against the field's
// repeat range and then validates every value.
func ValidateOccurrences(f Field, values []any) error {
	n := len(values)
	switch limit := f.MaxRepeat(); {
	case limit == 0 && n > 0:
		return FieldError(f.Name(), "may not be set")
	case limit > 0 && n > limit:
		return FieldError(f.Name(), "occurs %d times, at most %d allowed", n, limit)
	}
	if n < f.MinRepeat() {
		return FieldError(f.Name(), "occurs %d times, at least %d required", n, f.MinRepeat())
	}
	for i, v := range values {
		if err := f.Validate(v); err != nil {
			if n > 1 {
				return verrors.Wrapf(err, "occurrence %d", i).WithDetail("index", i)
			}
			return err
		}
	}
	return nil
}

// Occurrences splits a stored value into its occurrences: nil is none, a
// list on a repeating field is one per item, anything else is one.
func Occurrences(f Field, value any) []any {
	if value == nil {
		return nil
	}
	if list, ok := value.([]any); ok && f.MaxRepeat() != 1 {
		return list
	}
	return []any{value}
}
