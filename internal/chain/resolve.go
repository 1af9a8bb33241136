package chain

import (
	"context"

	verrors "github.com/villain-cms/villain/pkg/core/errors"
)

// ResolveParams computes the parameters of one invocation. For every
// declared parameter the first hit wins:
//
//  1. the binding's literal value
//  2. external sources (arg, get, post, cookie, header, env) in declared order
//  3. context sources in declared order
//  4. the binding's default
//  5. the command's declared default
//
// A required parameter that resolves to nothing is a MissingParameter
// error. Values from steps 1-3 pass through the binding's filters and then
// the command's filters; defaults are used as given. Bindings for
// parameters the command does not declare are resolved the same way and
// passed through. Resolution only reads from the context.
func ResolveParams(def *Definition, spec CommandSpec, c *Context, input Input, filters *ParamFilters) (Params, error) {
	if filters == nil {
		filters = NewParamFilters()
	}
	ctx := context.Background()
	if c != nil {
		ctx = c.Context()
	}
	params := make(Params)
	declared := make(map[string]bool)

	if def != nil {
		for _, p := range def.Params {
			declared[p.Name] = true
			b, bound := spec.Bindings[p.Name]

			value, found, isDefault := resolveBinding(b, bound, c, input)
			if !found && p.HasDefault {
				value, found, isDefault = copyLiteral(p.Default), true, true
			}
			if !found {
				if p.Required || b.Required {
					return nil, verrors.MissingParameter(spec.Name, p.Name)
				}
				continue
			}

			if !isDefault {
				var err error
				value, err = applyFilters(ctx, filters, spec.Name, p.Name, value, b.Filters, p.Filters)
				if err != nil {
					return nil, err
				}
			}
			params[p.Name] = value
		}
	}

	for _, name := range sortedKeys(spec.Bindings) {
		if declared[name] {
			continue
		}
		b := spec.Bindings[name]
		value, found, isDefault := resolveBinding(b, true, c, input)
		if !found {
			if b.Required {
				return nil, verrors.MissingParameter(spec.Name, name)
			}
			continue
		}
		if !isDefault {
			var err error
			value, err = applyFilters(ctx, filters, spec.Name, name, value, b.Filters, nil)
			if err != nil {
				return nil, err
			}
		}
		params[name] = value
	}

	return params, nil
}

func resolveBinding(b Binding, bound bool, c *Context, input Input) (value any, found, isDefault bool) {
	if !bound {
		return nil, false, false
	}
	if b.HasValue {
		return copyLiteral(b.Value), true, false
	}

	for _, s := range b.From {
		if !s.External() {
			continue
		}
		if v, ok := lookupExternal(s, input); ok && v != nil {
			return v, true, false
		}
	}
	for _, s := range b.From {
		if s.External() || c == nil {
			continue
		}
		if v, ok := c.Path(s.Key); ok && v != nil {
			return v, true, false
		}
	}

	if b.HasDefault {
		return copyLiteral(b.Default), true, true
	}
	return nil, false, false
}

// copyLiteral returns a private copy of a table literal. Maps and lists
// are shared by every run of the request and must not be handed out.
func copyLiteral(v any) any {
	switch v := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = copyLiteral(e)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = copyLiteral(e)
		}
		return out
	case []string:
		return append([]string(nil), v...)
	default:
		return v
	}
}

func lookupExternal(s Source, input Input) (any, bool) {
	if s.Kind == SourceEnv {
		if input != nil {
			if v, ok := input.Lookup(s.Kind, s.Key); ok {
				return v, true
			}
		}
		return EnvInput{}.Lookup(s.Kind, s.Key)
	}
	if input == nil {
		return nil, false
	}
	return input.Lookup(s.Kind, s.Key)
}

func applyFilters(ctx context.Context, filters *ParamFilters, command, param string, value any, lists ...[]string) (any, error) {
	for _, list := range lists {
		for _, spec := range list {
			out, err := filters.ApplyContext(ctx, spec, value)
			if err != nil {
				if verrors.HasCode(err, verrors.CodeConfiguration) {
					return nil, verrors.Wrapf(err, "command %q parameter %q", command, param)
				}
				return nil, verrors.Validation(command, param, err.Error()).WithDetail("filter", spec)
			}
			value = out
		}
	}
	return value, nil
}
