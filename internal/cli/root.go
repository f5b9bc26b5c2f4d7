// Package cli implements the strata command line interface: model
// compilation and validation plus fixture inspection, with a shared
// text/json output layer.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the strata CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "strata",
		Short: "strata - entity query translation toolkit",
		Long:  "Compile and validate entity models and inspect fixture stores for the strata translation pipeline.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	model := &cobra.Command{
		Use:   "model",
		Short: "Work with entity model definitions",
	}
	model.AddCommand(NewModelCompileCommand(opts))
	model.AddCommand(NewModelValidateCommand(opts))
	cmd.AddCommand(model)

	fixture := &cobra.Command{
		Use:   "fixture",
		Short: "Work with conformance fixtures",
	}
	fixture.AddCommand(NewFixtureInspectCommand(opts))
	cmd.AddCommand(fixture)

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
