package filters

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/villain-cms/villain/internal/util"
)

// Built-in transformer identifiers
const (
	Null          = "null"
	Plaintext     = "plaintext"
	EscapeMarkup  = "escape_markup"
	WhitelistTags = "whitelist_tags"
	Lowercase     = "lowercase"
	Trim          = "trim"
	ShortenText   = "shorten"
)

// DefaultWhitelist is the tag allow-list of whitelist_tags without an
// argument.
var DefaultWhitelist = []string{"b", "br", "em", "i", "p", "strong"}

func registerBuiltins(r *Registry) {
	r.Register(Null, func(any) (Filter, error) {
		return FilterFunc(func(s string) string { return s }), nil
	})
	r.Register(Plaintext, newPlaintext)
	r.Register(EscapeMarkup, func(any) (Filter, error) { return FilterFunc(escapeMarkup), nil })
	r.Register(WhitelistTags, newWhitelist)
	r.Register(Lowercase, func(any) (Filter, error) { return FilterFunc(strings.ToLower), nil })
	r.Register(Trim, func(any) (Filter, error) { return FilterFunc(strings.TrimSpace), nil })
	r.Register(ShortenText, newShorten)
}

// newPlaintext strips all markup and drops characters outside printable
// ASCII.
func newPlaintext(any) (Filter, error) {
	policy := bluemonday.StrictPolicy()
	return FilterFunc(func(s string) string {
		clean := policy.Sanitize(s)
		var b strings.Builder
		b.Grow(len(clean))
		for _, r := range clean {
			if r >= 32 && r <= 126 {
				b.WriteRune(r)
			}
		}
		return b.String()
	}), nil
}

// escapeMarkup encodes HTML special characters, control characters and
// everything above ASCII as numeric entities.
func escapeMarkup(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '<' || r == '>' || r == '&' || r == '"' || r == '\'' || r < 32 || r > 127:
			fmt.Fprintf(&b, "&#%d;", r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// newWhitelist keeps only the allowed elements. arg is a list of tag names.
func newWhitelist(arg any) (Filter, error) {
	tags := DefaultWhitelist
	switch v := arg.(type) {
	case nil:
	case []string:
		if len(v) > 0 {
			tags = v
		}
	case []any:
		if len(v) > 0 {
			tags = make([]string, 0, len(v))
			for _, item := range v {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("tag names must be strings, got %T", item)
				}
				tags = append(tags, s)
			}
		}
	case string:
		if v != "" {
			tags = strings.Fields(strings.ReplaceAll(v, ",", " "))
		}
	default:
		return nil, fmt.Errorf("whitelist must be a list of tags, got %T", arg)
	}

	policy := bluemonday.NewPolicy()
	policy.AllowElements(tags...)
	return FilterFunc(policy.Sanitize), nil
}

// newShorten takes {max, append} or a bare number.
func newShorten(arg any) (Filter, error) {
	max, suffix := 0, ""
	switch v := arg.(type) {
	case map[string]any:
		n, err := toInt(v["max"])
		if err != nil {
			return nil, err
		}
		max = n
		if s, ok := v["append"].(string); ok {
			suffix = s
		}
	default:
		n, err := toInt(v)
		if err != nil {
			return nil, err
		}
		max = n
	}
	if max <= 0 {
		return nil, fmt.Errorf("shorten needs a positive max, got %d", max)
	}
	return FilterFunc(func(s string) string { return util.Shorten(s, max, suffix) }), nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		return strconv.Atoi(n)
	}
	return 0, fmt.Errorf("expected a number, got %T", v)
}
