// ============================================================================
// Villain - Content Framework
// ============================================================================
//
// Package:     configuration
// Description: Commands that load TOML, JSON and YAML data into the context
// License:     MIT
// ============================================================================

// Package configuration provides chain commands that parse a settings file
// or inline data and insert its top level keys into the request context.
package configuration

import (
	"encoding/json"
	"os"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/villain-cms/villain/internal/chain"
	verrors "github.com/villain-cms/villain/pkg/core/errors"
)

// Command targets
const (
	TargetAddToml = "configuration.AddToml"
	TargetAddJson = "configuration.AddJson"
	TargetAddYaml = "configuration.AddYaml"
)

type decoder func(data []byte) (map[string]any, error)

func decodeToml(data []byte) (map[string]any, error) {
	out := map[string]any{}
	if _, err := toml.Decode(string(data), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeJSON(data []byte) (map[string]any, error) {
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeYaml(data []byte) (map[string]any, error) {
	out := map[string]any{}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Register adds the configuration commands to reg.
func Register(reg *chain.Registry) error {
	cmds := []struct {
		name, format string
		decode       decoder
	}{
		{TargetAddToml, "TOML", decodeToml},
		{TargetAddJson, "JSON", decodeJSON},
		{TargetAddYaml, "YAML", decodeYaml},
	}
	for _, c := range cmds {
		if err := reg.Register(c.name, func() chain.Command {
			return chain.Func(definition(c.format), loader(c.format, c.decode))
		}); err != nil {
			return err
		}
	}
	return nil
}

func definition(format string) *chain.Definition {
	return chain.Describe("Parses "+format+" data and inserts it into the context.").
		UsesParam("filename", "Path of a file to parse. Ignored when data is given.").WithFilter("string").
		UsesParam("data", "The raw "+format+" data.").
		UsesParam("useSection", "Insert only the values of this top level table.").WithFilter("string").
		DeclaresEvent("onLoad", "Fired after parsing with the whole document in data[\"data\"]. Handlers may modify it.").
		Returns("Nothing. Values are inserted directly into the context.")
}

func loader(format string, decode decoder) func(inv *chain.Invocation) (any, error) {
	return func(inv *chain.Invocation) (any, error) {
		raw, source, err := input(inv)
		if err != nil {
			return nil, err
		}
		doc, err := decode(raw)
		if err != nil {
			return nil, verrors.Wrapf(err, "parse %s from %s", format, source).
				WithCode(verrors.CodeInvalidInput).
				WithDetail("source", source)
		}

		e, err := inv.Fire("onLoad", map[string]any{"data": doc, "source": source})
		if err != nil {
			return nil, err
		}
		if replaced, ok := e.Data["data"].(map[string]any); ok {
			doc = replaced
		}

		if section := inv.Params.String("useSection"); section != "" {
			sub, _ := doc[section].(map[string]any)
			doc = sub
		}
		inv.Context.AddAll(doc)
		inv.Logger.Debug("Configuration loaded", "source", source, "keys", len(doc))
		return nil, nil
	}
}

func input(inv *chain.Invocation) ([]byte, string, error) {
	switch data := inv.Params.Get("data").(type) {
	case string:
		return []byte(data), "data", nil
	case []byte:
		return data, "data", nil
	}
	filename := inv.Params.String("filename")
	if filename == "" {
		return nil, "", verrors.MissingParameter(inv.Name, "filename")
	}
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, "", verrors.Wrapf(err, "read %s", filename).
			WithCode(verrors.CodeConfiguration).
			WithDetail("filename", filename)
	}
	return raw, filename, nil
}
