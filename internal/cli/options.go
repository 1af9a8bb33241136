// ============================================================================
// Villain - Content Framework
// ============================================================================
//
// Package:     cli
// Description: Command line option parsing and interactive prompts
// License:     MIT
// ============================================================================

// Package cli provides the chain commands used by command line requests:
// ParseOptions reads flags described by an option spec table and ReadLine
// prompts the user for values.
package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/pflag"

	verrors "github.com/villain-cms/villain/pkg/core/errors"
)

// OptionSpec describes one flag.
type OptionSpec struct {
	// Value is true when the flag takes an argument
	Value bool
	Help  string
}

// Spec maps a flag such as "--title" to its description.
type Spec map[string]OptionSpec

// SpecFromMap reads the table form used in request definitions:
//
//	{"--title": {"value": true, "help": "Blog title"}, "--force": {"help": "..."}}
func SpecFromMap(m map[string]any) (Spec, error) {
	spec := make(Spec, len(m))
	for flag, raw := range m {
		if !strings.HasPrefix(flag, "--") || len(flag) < 3 {
			return nil, verrors.Configuration(fmt.Sprintf("option %q must look like --name", flag))
		}
		var o OptionSpec
		switch v := raw.(type) {
		case nil:
		case map[string]any:
			o.Value, _ = v["value"].(bool)
			o.Help, _ = v["help"].(string)
		case string:
			o.Help = v
		default:
			return nil, verrors.Configuration(fmt.Sprintf("option %q: unsupported spec %T", flag, raw))
		}
		spec[flag] = o
	}
	return spec, nil
}

// Parse reads flags from args until the first positional argument or "--".
// Any token that does not start with "--", including "-5" or "-x", is
// positional. Flags that were given are returned with their string value,
// or their boolean value for flags without an argument; the remaining
// arguments are returned unchanged.
func (s Spec) Parse(args []string) (map[string]any, []string, error) {
	fs := pflag.NewFlagSet("options", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SetInterspersed(false)
	fs.Usage = func() {}

	for flag, o := range s {
		name := strings.TrimPrefix(flag, "--")
		if o.Value {
			fs.String(name, "", o.Help)
		} else {
			fs.Bool(name, false, o.Help)
		}
	}

	n := s.flagPrefix(args)
	if err := fs.Parse(args[:n]); err != nil {
		return nil, nil, verrors.Wrap(err, "parse options").WithCode(verrors.CodeInvalidInput)
	}

	parsed := make(map[string]any)
	var err error
	fs.Visit(func(f *pflag.Flag) {
		if s["--"+f.Name].Value {
			parsed[f.Name] = f.Value.String()
			return
		}
		b, gerr := fs.GetBool(f.Name)
		if gerr != nil && err == nil {
			err = verrors.Wrap(gerr, "parse options").WithCode(verrors.CodeInvalidInput)
		}
		parsed[f.Name] = b
	})
	if err != nil {
		return nil, nil, err
	}
	return parsed, append(fs.Args(), args[n:]...), nil
}

// flagPrefix returns how many leading args belong to flags: every
// "--name" token, the argument of a value flag, and a closing "--".
func (s Spec) flagPrefix(args []string) int {
	i := 0
	for i < len(args) {
		arg := args[i]
		if arg == "--" {
			return i + 1
		}
		if !strings.HasPrefix(arg, "--") {
			return i
		}
		i++
		if !strings.Contains(arg, "=") && s[arg].Value && i < len(args) {
			i++
		}
	}
	return i
}

// Help renders one "flag:  help" line per option, sorted by flag.
func (s Spec) Help() []string {
	flags := make([]string, 0, len(s))
	for flag := range s {
		flags = append(flags, flag)
	}
	sort.Strings(flags)

	lines := make([]string, 0, len(flags))
	for _, flag := range flags {
		help := s[flag].Help
		if help == "" {
			help = "(undocumented)"
		}
		lines = append(lines, fmt.Sprintf("%s:  %s", flag, help))
	}
	return lines
}
