package util

import (
	"sort"

	"github.com/villain-cms/villain/internal/chain"
	verrors "github.com/villain-cms/villain/pkg/core/errors"
)

// Command targets
const (
	TargetAddToContext       = "util.AddToContext"
	TargetCollectFromContext = "util.CollectFromContext"
	TargetEcho               = "util.Echo"
)

// Register adds the utility commands to reg.
func Register(reg *chain.Registry) error {
	for name, f := range map[string]chain.Factory{
		TargetAddToContext:       func() chain.Command { return chain.Func(addDef(), addToContext) },
		TargetCollectFromContext: func() chain.Command { return chain.Func(collectDef(), collectFromContext) },
		TargetEcho:               func() chain.Command { return chain.Func(echoDef(), echo) },
	} {
		if err := reg.Register(name, f); err != nil {
			return err
		}
	}
	return nil
}

func addDef() *chain.Definition {
	return chain.Describe("Adds every parameter it is given to the context.").
		Returns("Nothing. Values are inserted into the context.")
}

func addToContext(inv *chain.Invocation) (any, error) {
	for _, name := range inv.Params.Names() {
		inv.Context.Add(name, inv.Params[name])
	}
	return nil, nil
}

func collectDef() *chain.Definition {
	return chain.Describe("Given a map of new name to context name, collect the values into one map.").
		UsesParam("contextMap", "Map of new_name to context_name.").Required().
		UsesParam("assoc", "Return a map when true, a list ordered by new name when false.").WithFilter("boolean").HasDefault(true).
		UsesParam("mergeWith", "A map, or the name of a context item holding one, to merge the collected values on top of.").
		Returns("The collected values.")
}

func collectFromContext(inv *chain.Invocation) (any, error) {
	names := inv.Params.Map("contextMap")
	if names == nil {
		return nil, verrors.Validation(inv.Name, "contextMap", "must be a map")
	}

	dest := make(map[string]any)
	switch base := inv.Params.Get("mergeWith").(type) {
	case nil:
	case string:
		if m, ok := inv.Context.Get(base).(map[string]any); ok {
			for k, v := range m {
				dest[k] = v
			}
		}
	default:
		for k, v := range inv.Params.Map("mergeWith") {
			dest[k] = v
		}
	}

	for newName, from := range names {
		path, _ := from.(string)
		v, _ := inv.Context.Path(path)
		dest[newName] = v
	}

	if inv.Params.Bool("assoc") {
		return dest, nil
	}
	keys := make([]string, 0, len(dest))
	for k := range dest {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	list := make([]any, 0, len(keys))
	for _, k := range keys {
		list = append(list, dest[k])
	}
	return list, nil
}

func echoDef() *chain.Definition {
	return chain.Describe("Returns its value parameter.").
		UsesParam("value", "The value to return.").
		Returns("The value.")
}

func echo(inv *chain.Invocation) (any, error) {
	return inv.Params.Get("value"), nil
}
