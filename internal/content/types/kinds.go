package types

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/araddon/dateparse"
)

// Field kinds
const (
	KindString     = "string"
	KindInteger    = "integer"
	KindFloat      = "float"
	KindBoolean    = "boolean"
	KindTimestamp  = "timestamp"
	KindURL        = "url"
	KindEmail      = "email"
	KindListMember = "list"
	KindMongoID    = "mongoid"
	KindGroup      = "group"
)

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, int, int32, int64, float32, float64:
		return true
	}
	return false
}

// StringField holds text.
type StringField struct {
	base
	strict bool
	maxLen int
}

// NewString creates a string field without length limit.
func NewString(name, label string) *StringField {
	return &StringField{base: newBase(KindString, name, label), maxLen: -1}
}

// SetStrict rejects non-string scalars when set.
func (f *StringField) SetStrict(strict bool) { f.strict = strict }

// SetMaxLength limits the length in characters; -1 disables the limit.
func (f *StringField) SetMaxLength(n int) { f.maxLen = n }

// Validate implements Field
func (f *StringField) Validate(value any) error {
	if _, ok := value.(string); !ok {
		if f.strict {
			return FieldError(f.name, "is not a string (checking is strict)")
		}
		if !isScalar(value) {
			return FieldError(f.name, "is not a string")
		}
	}
	if f.maxLen >= 0 {
		if n := utf8.RuneCountInString(fmt.Sprint(value)); n > f.maxLen {
			return FieldError(f.name, "is %d characters long, at most %d allowed", n, f.maxLen)
		}
	}
	return nil
}

// Normalize implements Field
func (f *StringField) Normalize(value any) (any, error) {
	if err := f.Validate(value); err != nil {
		return nil, err
	}
	return fmt.Sprint(value), nil
}

// Definition implements Field
func (f *StringField) Definition() map[string]any {
	d := f.definition()
	d["maxlen"] = f.maxLen
	d["strict"] = f.strict
	return d
}

// IntegerField holds whole numbers within an optional range.
type IntegerField struct {
	base
	min, max *int64
}

// NewInteger creates an unbounded integer field.
func NewInteger(name, label string) *IntegerField {
	return &IntegerField{base: newBase(KindInteger, name, label)}
}

// SetMin sets the smallest allowed value
func (f *IntegerField) SetMin(n int64) { f.min = &n }

// SetMax sets the largest allowed value
func (f *IntegerField) SetMax(n int64) { f.max = &n }

func toInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		if v == math.Trunc(v) && !math.IsInf(v, 0) {
			return int64(v), true
		}
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n, err == nil
	}
	return 0, false
}

// Validate implements Field
func (f *IntegerField) Validate(value any) error {
	n, ok := toInt64(value)
	if !ok {
		return FieldError(f.name, "%v is not an integer", value)
	}
	if f.min != nil && n < *f.min {
		return FieldError(f.name, "%d is lower than the field allows (%d)", n, *f.min)
	}
	if f.max != nil && n > *f.max {
		return FieldError(f.name, "%d is higher than the field allows (%d)", n, *f.max)
	}
	return nil
}

// Normalize implements Field
func (f *IntegerField) Normalize(value any) (any, error) {
	if err := f.Validate(value); err != nil {
		return nil, err
	}
	n, _ := toInt64(value)
	return n, nil
}

// Definition implements Field
func (f *IntegerField) Definition() map[string]any {
	d := f.definition()
	d["min"] = optional(f.min)
	d["max"] = optional(f.max)
	return d
}

func optional(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

// FloatField holds decimal numbers.
type FloatField struct {
	base
}

// NewFloat creates a float field
func NewFloat(name, label string) *FloatField {
	return &FloatField{base: newBase(KindFloat, name, label)}
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}

// Validate implements Field
func (f *FloatField) Validate(value any) error {
	if _, ok := toFloat(value); !ok {
		return FieldError(f.name, "%v is not a number", value)
	}
	return nil
}

// Normalize implements Field
func (f *FloatField) Normalize(value any) (any, error) {
	v, ok := toFloat(value)
	if !ok {
		return nil, FieldError(f.name, "%v is not a number", value)
	}
	return v, nil
}

// Definition implements Field
func (f *FloatField) Definition() map[string]any { return f.definition() }

// BooleanField holds a flag.
type BooleanField struct {
	base
}

// NewBoolean creates a boolean field
func NewBoolean(name, label string) *BooleanField {
	return &BooleanField{base: newBase(KindBoolean, name, label)}
}

func toBool(value any) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case int:
		return v != 0, v == 0 || v == 1
	case int64:
		return v != 0, v == 0 || v == 1
	case float64:
		return v != 0, v == 0 || v == 1
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "on":
			return true, true
		case "0", "false", "no", "off", "":
			return false, true
		}
	}
	return false, false
}

// Validate implements Field
func (f *BooleanField) Validate(value any) error {
	if _, ok := toBool(value); !ok {
		return FieldError(f.name, "%v is not a boolean", value)
	}
	return nil
}

// Normalize implements Field
func (f *BooleanField) Normalize(value any) (any, error) {
	b, ok := toBool(value)
	if !ok {
		return nil, FieldError(f.name, "%v is not a boolean", value)
	}
	return b, nil
}

// Definition implements Field
func (f *BooleanField) Definition() map[string]any { return f.definition() }

// TimestampField holds a point in time, given as unix seconds or as any
// date expression dateparse understands. Normalized values are unix
// seconds.
type TimestampField struct {
	base
	minTime, maxTime *time.Time
	loc              *time.Location
}

// NewTimestamp creates a timestamp field parsing text in UTC.
func NewTimestamp(name, label string) *TimestampField {
	return &TimestampField{base: newBase(KindTimestamp, name, label), loc: time.UTC}
}

// SetMinTime sets the earliest allowed time
func (f *TimestampField) SetMinTime(t time.Time) { f.minTime = &t }

// SetMaxTime sets the latest allowed time
func (f *TimestampField) SetMaxTime(t time.Time) { f.maxTime = &t }

// SetLocation sets the zone for dates without an explicit offset.
func (f *TimestampField) SetLocation(loc *time.Location) { f.loc = loc }

func (f *TimestampField) parse(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case int, int32, int64, float64:
		n, ok := toInt64(v)
		if !ok {
			return time.Time{}, FieldError(f.name, "%v is not a whole number of seconds", v)
		}
		return time.Unix(n, 0).UTC(), nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return time.Time{}, FieldError(f.name, "time could not be parsed into a timestamp")
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.Unix(n, 0).UTC(), nil
		}
		t, err := dateparse.ParseIn(s, f.loc)
		if err != nil {
			return time.Time{}, FieldError(f.name, "time %q could not be parsed into a timestamp", s)
		}
		return t, nil
	}
	return time.Time{}, FieldError(f.name, "%T is not a timestamp", value)
}

// Validate implements Field
func (f *TimestampField) Validate(value any) error {
	t, err := f.parse(value)
	if err != nil {
		return err
	}
	if f.minTime != nil && t.Before(*f.minTime) {
		return FieldError(f.name, "given time %d is lower than the field allows (%d)", t.Unix(), f.minTime.Unix())
	}
	if f.maxTime != nil && t.After(*f.maxTime) {
		return FieldError(f.name, "given time %d is higher than the field allows (%d)", t.Unix(), f.maxTime.Unix())
	}
	return nil
}

// Normalize implements Field
func (f *TimestampField) Normalize(value any) (any, error) {
	if err := f.Validate(value); err != nil {
		return nil, err
	}
	t, _ := f.parse(value)
	return t.Unix(), nil
}

// Definition implements Field
func (f *TimestampField) Definition() map[string]any {
	d := f.definition()
	d["minTime"] = unixOrNil(f.minTime)
	d["maxTime"] = unixOrNil(f.maxTime)
	return d
}

func unixOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

// URLField holds an absolute URL.
type URLField struct {
	base
}

// NewURL creates a URL field
func NewURL(name, label string) *URLField {
	return &URLField{base: newBase(KindURL, name, label)}
}

// Validate implements Field
func (f *URLField) Validate(value any) error {
	return validateTag(f.name, value, "url")
}

// Normalize implements Field
func (f *URLField) Normalize(value any) (any, error) {
	if err := f.Validate(value); err != nil {
		return nil, err
	}
	return strings.TrimSpace(value.(string)), nil
}

// Definition implements Field
func (f *URLField) Definition() map[string]any { return f.definition() }

// EmailField holds an email address.
type EmailField struct {
	base
}

// NewEmail creates an email field
func NewEmail(name, label string) *EmailField {
	return &EmailField{base: newBase(KindEmail, name, label)}
}

// Validate implements Field
func (f *EmailField) Validate(value any) error {
	return validateTag(f.name, value, "email")
}

// Normalize implements Field
func (f *EmailField) Normalize(value any) (any, error) {
	if err := f.Validate(value); err != nil {
		return nil, err
	}
	return strings.TrimSpace(value.(string)), nil
}

// Definition implements Field
func (f *EmailField) Definition() map[string]any { return f.definition() }

func validateTag(field string, value any, tag string) error {
	s, ok := value.(string)
	if !ok {
		return FieldError(field, "is not a string")
	}
	if err := validate.Var(strings.TrimSpace(s), "required,"+tag); err != nil {
		return FieldError(field, "%q is not a valid %s", s, tag)
	}
	return nil
}

// ListMemberField accepts one of a fixed set of values.
type ListMemberField struct {
	base
	accepted []any
}

// NewListMember creates a field accepting the given values
func NewListMember(name, label string, accepted ...any) *ListMemberField {
	return &ListMemberField{base: newBase(KindListMember, name, label), accepted: accepted}
}

// AcceptedValues replaces the accepted values
func (f *ListMemberField) AcceptedValues(values ...any) { f.accepted = values }

// Validate implements Field
func (f *ListMemberField) Validate(value any) error {
	for _, item := range f.accepted {
		if looselyEqual(item, value) {
			return nil
		}
	}
	return FieldError(f.name, "the given value %v was not in the list of acceptable values", value)
}

// Normalize returns the matching accepted value.
func (f *ListMemberField) Normalize(value any) (any, error) {
	for _, item := range f.accepted {
		if looselyEqual(item, value) {
			return item, nil
		}
	}
	return nil, f.Validate(value)
}

// Definition implements Field
func (f *ListMemberField) Definition() map[string]any {
	d := f.definition()
	d["list"] = append([]any(nil), f.accepted...)
	return d
}

// looselyEqual compares scalars by their text so that 1, 1.0 and "1" match.
func looselyEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == b
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

var mongoID = regexp.MustCompile(`^[[:xdigit:]]{24}$`)

// MongoIDField holds a 24 digit hexadecimal document identifier.
type MongoIDField struct {
	base
}

// NewMongoID creates an identifier field
func NewMongoID(name, label string) *MongoIDField {
	return &MongoIDField{base: newBase(KindMongoID, name, label)}
}

// Validate implements Field
func (f *MongoIDField) Validate(value any) error {
	s, ok := value.(string)
	if !ok || !mongoID.MatchString(s) {
		return FieldError(f.name, "%v is not a 24 digit hexadecimal identifier", value)
	}
	return nil
}

// Normalize implements Field
func (f *MongoIDField) Normalize(value any) (any, error) {
	if err := f.Validate(value); err != nil {
		return nil, err
	}
	return strings.ToLower(value.(string)), nil
}

// Definition implements Field
func (f *MongoIDField) Definition() map[string]any { return f.definition() }
