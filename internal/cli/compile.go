package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stratahq/strata/internal/compiler"
	"github.com/stratahq/strata/internal/schema"
)

// CompileOptions holds flags for the model compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult holds the compiled model summary.
type CompilationResult struct {
	Name     string `json:"name"`
	Hash     string `json:"hash"`
	Entities int    `json:"entities"`
	Roots    int    `json:"roots"`
	Columns  int    `json:"columns"`
}

// NewModelCompileCommand creates the model compile command.
func NewModelCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <model-dir>",
		Short: "Compile a CUE model to canonical JSON",
		Long: `Compile a CUE entity model to its canonical JSON form.

The compiler parses the CUE files, validates the model against the
schema rules, builds the hierarchy layout, and outputs the canonical
spec used for model hashing.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModelCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runModelCompile(opts *CompileOptions, modelDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	result, err := LoadModelDir(modelDir)
	if err != nil {
		return outputLoadError(formatter, err)
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", result.FileCount, modelDir)
	formatter.VerboseLog("Compiling model: %s", result.Spec.Name)

	if errs := compiler.Validate(result.Spec); len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}

	model, err := schema.NewModel(result.Spec)
	if err != nil {
		return outputLoadError(formatter, &LoadError{Code: ErrCodeCompileFailed, Message: err.Error()})
	}

	if opts.Output != "" {
		if err := writeCanonicalSpec(result.Spec, opts.Output); err != nil {
			return outputLoadError(formatter, &LoadError{Code: ErrCodeWriteFailed, Message: fmt.Sprintf("writing output file: %v", err)})
		}
	}

	summary := &CompilationResult{
		Name:     model.Name(),
		Hash:     model.Hash(),
		Entities: len(model.Entities()),
		Roots:    len(model.Roots()),
		Columns:  totalColumns(model),
	}
	return outputCompileSuccess(formatter, summary, opts.Output)
}

func totalColumns(model *schema.Model) int {
	n := 0
	for _, root := range model.Roots() {
		n += root.Width()
	}
	return n
}

// outputCompileSuccess outputs a successful compilation summary.
func outputCompileSuccess(formatter *OutputFormatter, summary *CompilationResult, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(summary)
	}

	fmt.Fprintf(formatter.Writer, "✓ Compiled model %s: %d entities, %d hierarchies, %d columns\n",
		summary.Name, summary.Entities, summary.Roots, summary.Columns)
	fmt.Fprintf(formatter.Writer, "  hash %s\n", summary.Hash)
	if outputFile != "" {
		fmt.Fprintf(formatter.Writer, "Wrote canonical model to %s\n", outputFile)
	}
	return nil
}

// outputLoadError outputs one load or compile error. Load errors are
// command-level errors (exit code 2).
func outputLoadError(formatter *OutputFormatter, err error) error {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		if formatter.Format == "text" && loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
				loadErr.Pos.Filename(), loadErr.Pos.Line(), loadErr.Pos.Column())
		}
		_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", loadErr.Code, loadErr.Message))
	}
	_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
	return NewExitError(ExitCommandError, err.Error())
}

// writeCanonicalSpec writes the canonical JSON form of a model spec.
func writeCanonicalSpec(spec *schema.ModelSpec, filename string) error {
	data, err := spec.CanonicalJSON()
	if err != nil {
		return fmt.Errorf("marshaling model: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
