package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/eventual2pc/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update  bool   // regenerate golden files
	Filter  string // scenario filter (glob pattern)
	Catalog string
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run scenario files against an in-memory bank",
		Long: `Run YAML scenarios deterministically and check their expectations.

When <scenarios-dir>/golden/<name>.golden exists the scenario's trace must
match it byte for byte. --update rewrites the golden files instead.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  eventual2pc test ./scenarios
  eventual2pc test ./scenarios --filter "transfer_*"
  eventual2pc test ./scenarios --update`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().StringVar(&opts.Catalog, "catalog", "", "CUE catalog file (default: built-in)")

	return cmd
}

func runTests(opts *TestOptions, dir string, cmd *cobra.Command) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", dir))
	}

	cat, err := loadCatalog(opts.Catalog)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load catalog", err)
	}

	files, err := findScenarioFiles(dir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	if len(files) == 0 {
		if opts.Format == "json" {
			return outputTestJSON(cmd, TestResult{Scenarios: []ScenarioResult{}})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No scenarios found.")
		return nil
	}

	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(files)),
		Total:     len(files),
	}
	for _, file := range files {
		sr := runScenario(file, filepath.Join(dir, "golden"), opts, harness.WithCatalog(cat))
		if opts.Format != "json" {
			printScenario(cmd, sr)
		}
		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if opts.Format == "json" {
		return outputTestJSON(cmd, result)
	}
	return outputTestText(cmd, result)
}

// findScenarioFiles lists the YAML files directly inside dir.
func findScenarioFiles(dir, filter string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		if filter != "" {
			matched, err := filepath.Match(filter, strings.TrimSuffix(e.Name(), ext))
			if err != nil {
				return nil, fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				continue
			}
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}

func runScenario(file, goldenDir string, opts *TestOptions, hopts ...harness.Option) ScenarioResult {
	name := filepath.Base(file)
	failed := func(format string, args ...any) ScenarioResult {
		return ScenarioResult{Name: name, Errors: []string{fmt.Sprintf(format, args...)}}
	}

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return failed("failed to load scenario: %v", err)
	}
	name = scenario.Name

	result, err := harness.Run(scenario, hopts...)
	if err != nil {
		return failed("execution failed: %v", err)
	}
	if !result.Pass {
		return ScenarioResult{Name: name, Errors: result.Errors}
	}

	snapshot, err := harness.Snapshot(scenario.Name, result.Trace)
	if err != nil {
		return failed("snapshot failed: %v", err)
	}
	goldenPath := filepath.Join(goldenDir, scenario.Name+".golden")

	if opts.Update {
		if err := os.MkdirAll(goldenDir, 0o755); err != nil {
			return failed("failed to update golden file: %v", err)
		}
		if err := os.WriteFile(goldenPath, snapshot, 0o644); err != nil {
			return failed("failed to update golden file: %v", err)
		}
		return ScenarioResult{Name: name, Pass: true}
	}

	want, err := os.ReadFile(goldenPath)
	switch {
	case os.IsNotExist(err):
		// Assertions only.
		return ScenarioResult{Name: name, Pass: true}
	case err != nil:
		return failed("golden comparison failed: %v", err)
	}
	if !bytes.Equal(want, snapshot) {
		return failed("trace differs from %s (run with --update to accept)", goldenPath)
	}
	return ScenarioResult{Name: name, Pass: true}
}

func printScenario(cmd *cobra.Command, sr ScenarioResult) {
	w := cmd.OutOrStdout()
	if sr.Pass {
		fmt.Fprintf(w, "✓ %s\n", sr.Name)
		return
	}
	fmt.Fprintf(w, "✗ %s\n", sr.Name)
	for _, e := range sr.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

func outputTestJSON(cmd *cobra.Command, result TestResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}
	if result.Failed > 0 {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_TEST_FAILED",
			Message: fmt.Sprintf("%d of %d scenarios failed", result.Failed, result.Total),
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}
	if result.Failed > 0 {
		return NewExitError(ExitFailure, "scenarios failed")
	}
	return nil
}

func outputTestText(cmd *cobra.Command, result TestResult) error {
	w := cmd.OutOrStdout()
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Results: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	if result.Failed > 0 {
		return NewExitError(ExitFailure, "scenarios failed")
	}
	return nil
}
