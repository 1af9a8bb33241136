package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/villain-cms/villain/internal/chain"
	verrors "github.com/villain-cms/villain/pkg/core/errors"
)

// Command targets
const (
	TargetParseOptions = "cli.ParseOptions"
	TargetReadLine     = "cli.ReadLine"
)

// LineReader asks for a set of values.
type LineReader func(ctx context.Context, prompts []Prompt) (map[string]string, error)

// Commands builds the command line commands. Zero values read os.Args,
// os.Stdin and write to os.Stdout.
type Commands struct {
	Args   []string
	In     io.Reader
	Out    io.Writer
	Reader LineReader
}

// Register adds the commands to reg.
func (cc *Commands) Register(reg *chain.Registry) error {
	if err := reg.Register(TargetParseOptions, func() chain.Command {
		return chain.Func(parseOptionsDef(), cc.parseOptions)
	}); err != nil {
		return err
	}
	return reg.Register(TargetReadLine, func() chain.Command {
		return chain.Func(readLineDef(), cc.readLine)
	})
}

func parseOptionsDef() *chain.Definition {
	return chain.Describe("Parse an option string, typically from the command line.").
		UsesParam("options", "The values to parse. If none are supplied the process arguments are used.").
		UsesParam("optionSpec", "Map of --flag to {value, help}.").Required().
		UsesParam("help", "Return help text instead of processing the arguments.").WithFilter("boolean").HasDefault(false).
		Returns("The remaining positional arguments. Parsed options are placed directly into the context.")
}

func (cc *Commands) parseOptions(inv *chain.Invocation) (any, error) {
	specMap := inv.Params.Map("optionSpec")
	if specMap == nil {
		return nil, verrors.Validation(inv.Name, "optionSpec", "must be a map")
	}
	spec, err := SpecFromMap(specMap)
	if err != nil {
		return nil, err
	}
	if inv.Params.Bool("help") {
		return spec.Help(), nil
	}

	args := inv.Params.Strings("options")
	if !inv.Params.Has("options") {
		args = cc.Args
		if args == nil && len(os.Args) > 1 {
			args = os.Args[1:]
		}
	}

	parsed, rest, err := spec.Parse(args)
	if err != nil {
		return nil, err
	}
	inv.Context.AddAll(parsed)
	if rest == nil {
		rest = []string{}
	}
	return rest, nil
}

func readLineDef() *chain.Definition {
	return chain.Describe("Prompt for values on the terminal.").
		UsesParam("prompts", "List of {name, label, default, secret}, or a map of name to label.").Required().
		Returns("A map of the answers. Every answer is also added to the context.")
}

func (cc *Commands) readLine(inv *chain.Invocation) (any, error) {
	prompts, err := promptsFromParam(inv.Params.Get("prompts"))
	if err != nil {
		return nil, verrors.Validation(inv.Name, "prompts", err.Error())
	}

	read := cc.Reader
	if read == nil {
		read = func(ctx context.Context, prompts []Prompt) (map[string]string, error) {
			return ReadLines(ctx, prompts, cc.In, cc.Out)
		}
	}
	values, err := read(inv.Ctx(), prompts)
	if err != nil {
		return nil, err
	}

	out := make(map[string]any, len(values))
	for _, p := range prompts {
		v, ok := values[p.Name]
		if !ok {
			v = p.Default
		}
		out[p.Name] = v
		inv.Context.Add(p.Name, v)
	}
	return out, nil
}

func promptsFromParam(raw any) ([]Prompt, error) {
	switch v := raw.(type) {
	case []Prompt:
		return v, nil
	case map[string]any:
		names := make([]string, 0, len(v))
		for k := range v {
			names = append(names, k)
		}
		sort.Strings(names)
		prompts := make([]Prompt, 0, len(names))
		for _, name := range names {
			prompts = append(prompts, Prompt{Name: name, Label: fmt.Sprint(v[name])})
		}
		return prompts, nil
	case []any:
		prompts := make([]Prompt, 0, len(v))
		for i, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("item %d is not a map", i)
			}
			p := Prompt{}
			p.Name, _ = m["name"].(string)
			p.Label, _ = m["label"].(string)
			p.Secret, _ = m["secret"].(bool)
			if d, ok := m["default"]; ok && d != nil {
				p.Default = fmt.Sprint(d)
			}
			if p.Name == "" {
				return nil, fmt.Errorf("item %d has no name", i)
			}
			prompts = append(prompts, p)
		}
		return prompts, nil
	}
	return nil, fmt.Errorf("unsupported prompts %T", raw)
}
