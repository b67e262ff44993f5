package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-lessons/internal/logger"
	"github.com/mind-engage/mindengage-lessons/internal/scenario"
)

var version = "dev" // set via ldflags

type rootOpts struct {
	verbose bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOpts{}
	cmd := &cobra.Command{
		Use:           "scenarioctl",
		Short:         "Inspect, validate and simulate branching lesson scenarios",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log playback transitions to stderr")

	cmd.AddCommand(newSegmentsCmd(opts))
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newPlayCmd(opts))
	return cmd
}

// logger is a no-op unless --verbose is set.
func (o *rootOpts) logger() (*zap.Logger, error) {
	if !o.verbose {
		return zap.NewNop(), nil
	}
	return logger.New(logger.Config{Level: "debug", Encoding: "console", OutputPath: "stderr"})
}

// load reads a JSON or YAML scenario and rejects structurally broken ones.
func load(path string) (scenario.Scenario, error) {
	sc, err := scenario.LoadFile(path)
	if err != nil {
		return scenario.Scenario{}, err
	}
	if err := scenario.Check(sc); err != nil {
		return scenario.Scenario{}, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

func parseFormat(s string) (scenario.Format, error) {
	switch f := scenario.Format(s); f {
	case scenario.FormatJSON, scenario.FormatYAML:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q (want json or yaml)", s)
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
