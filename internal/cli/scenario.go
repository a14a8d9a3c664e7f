package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/rdsync/internal/harness"
)

// ScenarioOptions holds flags for the scenario command.
type ScenarioOptions struct {
	*RootOptions
	Builtins []string
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string               `json:"name"`
	Source string               `json:"source"`
	Pass   bool                 `json:"pass"`
	Errors []string             `json:"errors,omitempty"`
	Trace  []harness.TraceEvent `json:"trace,omitempty"`
}

// ScenarioSummary holds the overall result.
type ScenarioSummary struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewScenarioCommand creates the scenario command.
func NewScenarioCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScenarioOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scenario [file...]",
		Short: "Run YAML scenarios",
		Long: `Validate and run scenario files against a fresh server/client pair.

Each file is checked against the scenario schema, then its steps are
applied in order. Without arguments the built-in scenarios run.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (unreadable or invalid scenario file)

Examples:
  rdsync scenario
  rdsync scenario ./scenarios/reorder.yaml
  rdsync scenario --builtin static-list --verbose
  rdsync scenario ./a.yaml ./b.yaml --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(opts, args, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Builtins, "builtin", nil, fmt.Sprintf("run a built-in scenario %v", harness.Builtins()))

	return cmd
}

type scenarioSource struct {
	label    string
	scenario *harness.Scenario
}

func runScenarios(opts *ScenarioOptions, files []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	names := opts.Builtins
	if len(files) == 0 && len(names) == 0 {
		names = harness.Builtins()
	}

	var sources []scenarioSource
	for _, name := range names {
		s, err := harness.Builtin(name)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load scenario", err)
		}
		sources = append(sources, scenarioSource{label: "builtin:" + name, scenario: s})
	}
	for _, file := range files {
		s, err := harness.LoadScenario(file)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to load %s", file), err)
		}
		sources = append(sources, scenarioSource{label: file, scenario: s})
	}

	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	summary := ScenarioSummary{
		Scenarios: make([]ScenarioResult, 0, len(sources)),
		Total:     len(sources),
	}
	for _, src := range sources {
		formatter.VerboseLog("running %s (%d steps)", src.scenario.Name, len(src.scenario.Steps))

		result, err := harness.Run(src.scenario, harness.WithLogger(logger))
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to run %s", src.label), err)
		}

		sr := ScenarioResult{
			Name:   src.scenario.Name,
			Source: src.label,
			Pass:   result.Pass,
			Errors: result.Errors,
		}
		if opts.Verbose {
			sr.Trace = result.Trace
		}
		summary.Scenarios = append(summary.Scenarios, sr)
		if result.Pass {
			summary.Passed++
		} else {
			summary.Failed++
		}
	}

	var failure *CLIError
	if summary.Failed > 0 {
		failure = &CLIError{
			Code:    CodeScenarioFailed,
			Message: fmt.Sprintf("%d of %d scenario(s) failed", summary.Failed, summary.Total),
		}
	}
	return formatter.Report(summary, func(w io.Writer) { writeScenarioText(w, summary) }, failure)
}

func writeScenarioText(w io.Writer, s ScenarioSummary) {
	for _, sc := range s.Scenarios {
		status := "PASS"
		if !sc.Pass {
			status = "FAIL"
		}
		fmt.Fprintf(w, "%s %s (%s)\n", status, sc.Name, sc.Source)

		for _, ev := range sc.Trace {
			line := fmt.Sprintf("  %2d %-6s %-8s %s", ev.Step, ev.Side, ev.Op, ev.Args)
			if ev.Error != "" {
				line += " -> " + ev.Error
			}
			fmt.Fprintf(w, "%s [server=%d client=%d]\n", line, ev.Server, ev.Client)
		}
		for _, e := range sc.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
	fmt.Fprintf(w, "\n%d passed, %d failed, %d total\n", s.Passed, s.Failed, s.Total)
}
