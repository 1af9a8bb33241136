package chain

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/araddon/dateparse"
	"github.com/go-playground/validator/v10"

	verrors "github.com/villain-cms/villain/pkg/core/errors"
)

// ParamFilter validates and converts a resolved parameter value. arg is the
// text after the first colon of the filter spec ("regexp:^[a-z]+$").
type ParamFilter func(value any, arg string) (any, error)

// ContextParamFilter is a ParamFilter that needs the request's context,
// typically because it reads from a datastore.
type ContextParamFilter func(ctx context.Context, value any, arg string) (any, error)

// ParamFilters is the set of filters available to parameter bindings.
type ParamFilters struct {
	mu       sync.RWMutex
	filters  map[string]ContextParamFilter
	validate *validator.Validate

	regexpMu sync.Mutex
	regexps  map[string]*regexp.Regexp
}

// NewParamFilters returns the built-in filters: string, trim, boolean,
// int, float, email, url, regexp, date, maxlen, minlen.
func NewParamFilters() *ParamFilters {
	pf := &ParamFilters{
		filters:  make(map[string]ContextParamFilter),
		validate: validator.New(),
		regexps:  make(map[string]*regexp.Regexp),
	}
	pf.Register("string", filterString)
	pf.Register("trim", filterTrim)
	pf.Register("boolean", filterBool)
	pf.Register("bool", filterBool)
	pf.Register("int", filterInt)
	pf.Register("float", filterFloat)
	pf.Register("email", pf.validatorFilter("email"))
	pf.Register("url", pf.validatorFilter("url"))
	pf.Register("regexp", pf.filterRegexp)
	pf.Register("date", filterDate)
	pf.Register("maxlen", filterMaxLen)
	pf.Register("minlen", filterMinLen)
	return pf
}

// Register adds or replaces a filter.
func (pf *ParamFilters) Register(name string, f ParamFilter) {
	pf.RegisterContext(name, func(_ context.Context, value any, arg string) (any, error) {
		return f(value, arg)
	})
}

// RegisterContext adds or replaces a filter that receives the request's
// context.
func (pf *ParamFilters) RegisterContext(name string, f ContextParamFilter) {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	pf.filters[name] = f
}

// Has reports whether a filter is registered.
func (pf *ParamFilters) Has(name string) bool {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	_, ok := pf.filters[name]
	return ok
}

// Apply runs the filter described by spec without a request context.
func (pf *ParamFilters) Apply(spec string, value any) (any, error) {
	return pf.ApplyContext(context.Background(), spec, value)
}

// ApplyContext runs the filter described by spec.
func (pf *ParamFilters) ApplyContext(ctx context.Context, spec string, value any) (any, error) {
	name, arg, _ := strings.Cut(spec, ":")
	pf.mu.RLock()
	f, ok := pf.filters[name]
	pf.mu.RUnlock()
	if !ok {
		return nil, verrors.Configuration(fmt.Sprintf("unknown parameter filter %q", name)).
			WithDetail("filter", name)
	}
	return f(ctx, value, arg)
}

func (pf *ParamFilters) validatorFilter(tag string) ParamFilter {
	return func(value any, _ string) (any, error) {
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected a string, got %T", value)
		}
		s = strings.TrimSpace(s)
		if err := pf.validate.Var(s, "required,"+tag); err != nil {
			return nil, fmt.Errorf("%q is not a valid %s", s, tag)
		}
		return s, nil
	}
}

func (pf *ParamFilters) filterRegexp(value any, expr string) (any, error) {
	pf.regexpMu.Lock()
	re, ok := pf.regexps[expr]
	if !ok {
		var err error
		re, err = regexp.Compile(expr)
		if err != nil {
			pf.regexpMu.Unlock()
			return nil, verrors.Wrap(err, "invalid regexp filter").WithCode(verrors.CodeConfiguration)
		}
		pf.regexps[expr] = re
	}
	pf.regexpMu.Unlock()

	s := fmt.Sprint(value)
	if !re.MatchString(s) {
		return nil, fmt.Errorf("%q does not match %s", s, expr)
	}
	return s, nil
}

func filterString(value any, _ string) (any, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case nil:
		return "", nil
	case map[string]any, []any:
		return nil, fmt.Errorf("expected a scalar, got %T", value)
	default:
		return fmt.Sprint(v), nil
	}
}

func filterTrim(value any, _ string) (any, error) {
	s, err := filterString(value, "")
	if err != nil {
		return nil, err
	}
	return strings.TrimSpace(s.(string)), nil
}

func filterBool(value any, _ string) (any, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case int:
		return v != 0, nil
	case int64:
		return v != 0, nil
	case float64:
		return v != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "on":
			return true, nil
		case "0", "false", "no", "off", "":
			return false, nil
		}
	}
	return nil, fmt.Errorf("%v is not a boolean", value)
}

func filterInt(value any, _ string) (any, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return nil, fmt.Errorf("%v is not an integer", v)
		}
		return int(v), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", v)
		}
		return n, nil
	}
	return nil, fmt.Errorf("%v is not an integer", value)
}

func filterFloat(value any, _ string) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", v)
		}
		return f, nil
	}
	return nil, fmt.Errorf("%v is not a number", value)
}

// filterDate accepts time values, unix timestamps and free-text dates.
func filterDate(value any, _ string) (any, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case int:
		return time.Unix(int64(v), 0).UTC(), nil
	case int64:
		return time.Unix(v, 0).UTC(), nil
	case float64:
		return time.Unix(int64(v), 0).UTC(), nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil, fmt.Errorf("empty date")
		}
		t, err := dateparse.ParseIn(s, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("%q is not a recognizable date", s)
		}
		return t, nil
	}
	return nil, fmt.Errorf("%v is not a date", value)
}

func filterMaxLen(value any, arg string) (any, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return nil, verrors.Configuration(fmt.Sprintf("maxlen needs a number, got %q", arg))
	}
	s := fmt.Sprint(value)
	if utf8.RuneCountInString(s) > n {
		return nil, fmt.Errorf("longer than %d characters", n)
	}
	return value, nil
}

func filterMinLen(value any, arg string) (any, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return nil, verrors.Configuration(fmt.Sprintf("minlen needs a number, got %q", arg))
	}
	s := fmt.Sprint(value)
	if value == nil || utf8.RuneCountInString(s) < n {
		return nil, fmt.Errorf("shorter than %d characters", n)
	}
	return value, nil
}
