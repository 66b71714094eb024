package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/agreement/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // glob over scenario file names without extension
}

// Golden file outcomes reported per scenario.
const (
	goldenNone     = ""
	goldenMatched  = "matched"
	goldenUpdated  = "updated"
	goldenMismatch = "mismatch"
)

// ScenarioResult is the outcome of one scenario file.
type ScenarioResult struct {
	Name   string   `json:"name"`
	File   string   `json:"file"`
	Pass   bool     `json:"pass"`
	Steps  int      `json:"steps"`
	Events int      `json:"events"`
	Golden string   `json:"golden,omitempty"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult aggregates every scenario run by one invocation.
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
		Short: "Run scenario harness",
		Long: `Run scenario files against a fresh in-memory engine.

Each scenario runs on a deterministic clock with sequential identifiers.
Step expectations and assertions are checked, and the trace is compared
with golden/<name>.golden next to the scenario when that file exists.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  agreement test ./scenarios
  agreement test ./scenarios --filter "challenge_*"
  agreement test ./scenarios --update
  agreement test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, dir string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", dir))
	}

	files, err := findScenarioFiles(dir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	out := newFormatter(opts.RootOptions, cmd)
	result := TestResult{Scenarios: make([]ScenarioResult, 0, len(files)), Total: len(files)}
	if len(files) == 0 && out.Format != "json" {
		fmt.Fprintln(out.Writer, "No scenarios found.")
		return nil
	}

	for _, file := range files {
		r := runScenario(ctx, file, opts.Update)
		if r.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
		result.Scenarios = append(result.Scenarios, r)
		if out.Format != "json" {
			writeScenario(out.Writer, r)
		}
		out.VerboseLog("%s: %d step(s), %d event(s)", r.File, r.Steps, r.Events)
	}

	if out.Format == "json" {
		return writeTestJSON(out.Writer, result)
	}
	return writeTestSummary(out.Writer, result)
}

// findScenarioFiles lists .yaml and .yml files under dir whose base name
// matches filter.
func findScenarioFiles(dir, filter string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		ext := filepath.Ext(path)
		if d.IsDir() || (ext != ".yaml" && ext != ".yml") {
			return nil
		}
		if filter != "" {
			matched, err := filepath.Match(filter, strings.TrimSuffix(d.Name(), ext))
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

// runScenario loads and runs one scenario file, then checks or rewrites
// its golden trace.
func runScenario(ctx context.Context, file string, update bool) ScenarioResult {
	r := ScenarioResult{Name: filepath.Base(file), File: file}
	fail := func(format string, args ...any) ScenarioResult {
		r.Pass = false
		r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
		return r
	}

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return fail("Load error: %v", err)
	}
	r.Name = scenario.Name
	r.Steps = len(scenario.Steps)

	run, err := harness.RunContext(ctx, scenario)
	if err != nil {
		return fail("Execution error: %v", err)
	}
	r.Events = len(run.Committed())
	r.Pass = run.Pass
	r.Errors = append(r.Errors, run.Errors...)

	path := harness.GoldenPath(file)
	switch {
	case update:
		if err := harness.WriteGolden(path, scenario.Name, run); err != nil {
			return fail("Golden update error: %v", err)
		}
		r.Golden = goldenUpdated
	case fileExists(path):
		match, err := harness.MatchGolden(path, scenario.Name, run)
		if err != nil {
			return fail("Golden comparison error: %v", err)
		}
		if !match {
			r.Golden = goldenMismatch
			return fail("Golden file mismatch (run with --update to regenerate)")
		}
		r.Golden = goldenMatched
	default:
		r.Golden = goldenNone
	}
	return r
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func writeScenario(w io.Writer, r ScenarioResult) {
	if r.Pass {
		if r.Golden == goldenUpdated {
			fmt.Fprintf(w, "✓ %s (golden updated)\n", r.Name)
			return
		}
		fmt.Fprintf(w, "✓ %s\n", r.Name)
		return
	}
	fmt.Fprintf(w, "✗ %s\n", r.Name)
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

func writeTestJSON(w io.Writer, result TestResult) error {
	resp := CLIResponse{Status: "ok", Data: result}
	if result.Failed > 0 {
		resp.Status = "error"
		resp.Error = &CLIError{
			Code:    "E_TEST_FAILED",
			Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		return err
	}
	if result.Failed > 0 {
		return NewExitError(ExitFailure, resp.Error.Message)
	}
	return nil
}

func writeTestSummary(w io.Writer, result TestResult) error {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
