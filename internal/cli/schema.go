// Package cli renders pulsed's command tree as JSON for scripts and agents.
package cli

import (
	"encoding/json"
	"io"

	"github.com/cloo-solutions/reviewpulse/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const helpJSONFlag = "help-json"

type FlagSchema struct {
	Name        string `json:"name"`
	Shorthand   string `json:"shorthand,omitempty"`
	Type        string `json:"type"`
	Default     string `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
}

type CommandSchema struct {
	Name        string          `json:"name"`
	Use         string          `json:"use,omitempty"`
	Description string          `json:"description,omitempty"`
	Long        string          `json:"long,omitempty"`
	Flags       []FlagSchema    `json:"flags,omitempty"`
	Env         []config.EnvVar `json:"env,omitempty"`
	Subcommands []CommandSchema `json:"subcommands,omitempty"`
}

// GenerateSchema describes cmd and its visible subcommands.
func GenerateSchema(cmd *cobra.Command) CommandSchema {
	schema := CommandSchema{
		Name:        cmd.Name(),
		Use:         cmd.Use,
		Description: cmd.Short,
		Long:        cmd.Long,
	}

	cmd.LocalFlags().VisitAll(func(f *pflag.Flag) {
		if f.Name == helpJSONFlag || f.Name == "help" {
			return
		}
		_, required := f.Annotations[cobra.BashCompOneRequiredFlag]
		schema.Flags = append(schema.Flags, FlagSchema{
			Name:        f.Name,
			Shorthand:   f.Shorthand,
			Type:        f.Value.Type(),
			Default:     f.DefValue,
			Description: f.Usage,
			Required:    required,
		})
	})

	for _, sub := range cmd.Commands() {
		if sub.Hidden || sub.Name() == "help" || sub.Name() == "completion" {
			continue
		}
		schema.Subcommands = append(schema.Subcommands, GenerateSchema(sub))
	}
	return schema
}

// HelpJSON answers --help-json before cobra parses arguments, so commands
// with required args can still be described.
type HelpJSON struct {
	Root *cobra.Command
	// Env is attached to the root command's schema.
	Env []config.EnvVar
}

func (h HelpJSON) Register() {
	h.Root.PersistentFlags().Bool(helpJSONFlag, false, "Print the command schema as JSON and exit")
}

// Handle writes the schema for the command named in argv when argv carries
// --help-json, and reports whether it did.
func (h HelpJSON) Handle(argv []string, w io.Writer) (bool, error) {
	target := h.target(argv)
	if target == nil {
		return false, nil
	}

	schema := GenerateSchema(target)
	if target == h.Root {
		schema.Env = h.Env
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return true, enc.Encode(schema)
}

func (h HelpJSON) target(argv []string) *cobra.Command {
	for i := 1; i < len(argv); i++ {
		if argv[i] != "--"+helpJSONFlag {
			continue
		}
		cmd := h.Root
		for _, name := range argv[1:i] {
			next := subcommand(cmd, name)
			if next == nil {
				break
			}
			cmd = next
		}
		return cmd
	}
	return nil
}

func subcommand(cmd *cobra.Command, name string) *cobra.Command {
	for _, sub := range cmd.Commands() {
		if sub.Name() == name || sub.HasAlias(name) {
			return sub
		}
	}
	return nil
}
