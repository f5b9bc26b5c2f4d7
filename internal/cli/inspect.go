package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stratahq/strata/internal/harness"
)

// InspectResult summarizes one loaded fixture.
type InspectResult struct {
	Fixture  string           `json:"fixture"`
	Model    string           `json:"model"`
	Hash     string           `json:"hash"`
	RunToken string           `json:"run_token"`
	Rows     []HierarchyCount `json:"rows"`
}

// HierarchyCount is the stored row count of one hierarchy.
type HierarchyCount struct {
	Root  string `json:"root"`
	Count int64  `json:"count"`
}

// NewFixtureInspectCommand creates the fixture inspect command.
func NewFixtureInspectCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <fixture.yaml>",
		Short: "Load a fixture and report its contents",
		Long: `Load a conformance fixture end to end - compile its model, populate
the store - and report what the session would execute against.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFixtureInspect(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runFixtureInspect(opts *RootOptions, fixturePath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	ctx := cmd.Context()
	session, err := harness.OpenSession(ctx, fixturePath)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return NewExitError(ExitCommandError, err.Error())
	}
	defer session.Close()

	model := session.Model()
	result := &InspectResult{
		Fixture:  session.Fixture().Name,
		Model:    model.Name(),
		Hash:     model.Hash(),
		RunToken: session.RunToken(),
	}
	for _, root := range model.Roots() {
		n, err := session.Store().CountRows(ctx, root.Name)
		if err != nil {
			_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
			return NewExitError(ExitCommandError, err.Error())
		}
		result.Rows = append(result.Rows, HierarchyCount{Root: root.Name, Count: n})
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "fixture %s\n", result.Fixture)
	fmt.Fprintf(formatter.Writer, "  model %s (hash %s)\n", result.Model, result.Hash)
	fmt.Fprintf(formatter.Writer, "  run token %s\n", result.RunToken)
	for _, h := range result.Rows {
		fmt.Fprintf(formatter.Writer, "  %s: %d row(s)\n", h.Root, h.Count)
	}
	return nil
}
