package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mind-engage/mindengage-lessons/internal/scenario"
)

func newValidateCmd() *cobra.Command {
	var (
		fix    bool
		out    string
		strict bool
	)
	cmd := &cobra.Command{
		Use:   "validate FILE",
		Short: "Report authoring problems in a scenario",
		Long: `Validate prints one line per warning: the script block, a code and a message.

With --fix, every block leading into a branch section without a branching
breakpoint gets one, and the result is written to --out (default: FILE).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			sc, err := load(path)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()

			warnings := scenario.Validate(sc)
			for _, wr := range warnings {
				printf(w, "%s\t%s\t%s\n", scenario.MainBlock{Index: wr.Index}, wr.Code, wr.Message)
			}
			if len(warnings) == 0 {
				printf(w, "ok: %d blocks, no warnings\n", len(sc.Script))
			}

			if fix {
				fixed := scenario.EnsureBranchSafety(sc)
				if out == "" {
					out = path
				}
				if err := writeScenario(out, fixed); err != nil {
					return err
				}
				printf(w, "fixed: %d warnings left, written to %s\n", len(scenario.Validate(fixed)), out)
				return nil
			}
			if strict && len(warnings) > 0 {
				return fmt.Errorf("%d warnings", len(warnings))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&fix, "fix", false, "Add missing branching breakpoints")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Where --fix writes the scenario (format by extension)")
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero when there are warnings")
	return cmd
}

func writeScenario(path string, sc scenario.Scenario) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := scenario.Encode(f, sc, scenario.FormatFor(path)); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
