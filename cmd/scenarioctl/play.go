package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mind-engage/mindengage-lessons/internal/playback"
	"github.com/mind-engage/mindengage-lessons/internal/segment"
)

// maxSteps bounds a simulation; every finite script ends well before it.
const maxSteps = 100000

func newPlayCmd(opts *rootOpts) *cobra.Command {
	var answers []int
	cmd := &cobra.Command{
		Use:   "play FILE",
		Short: "Simulate a playthrough with scripted breakpoint answers",
		Long: `Play walks the scenario as a player would: every segment is treated as
finished as soon as it is requested, and each breakpoint consumes the next
value of --answers as the chosen option index.`,
		Example: "  scenarioctl play lesson.yaml --answers 0,1",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := opts.logger()
			if err != nil {
				return err
			}
			sc, err := load(args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			m := segment.Build(sc.Script)

			e := playback.New(m, func(n int, typ string) {
				if typ == "" {
					typ = segment.MainKey
				}
				printf(w, "segment %s %d\n", typ, n)
			}, playback.WithLogger(log), playback.OnEnded(func() { printf(w, "ended\n") }))

			if m.Len(segment.MainKey) > 0 {
				printf(w, "segment %s 1\n", segment.MainKey)
			}
			next := 0
			for step := 0; step < maxSteps; step++ {
				st := e.State()
				switch st.Phase() {
				case playback.Ended:
					return nil
				case playback.AtBreakpoint:
					if next >= len(answers) {
						return fmt.Errorf("breakpoint at main segment %d needs an answer (--answers has %d)", st.SegmentNumber, len(answers))
					}
					idx := answers[next]
					next++
					printf(w, "answer %d%s\n", idx, describeOption(st, idx))
					if _, err := e.BreakpointAnswered(idx); err != nil {
						return err
					}
				default:
					eff, err := e.SegmentFinished()
					if err != nil {
						return err
					}
					if eff.Breakpoint != nil {
						printf(w, "breakpoint %q\n", eff.Breakpoint.Question)
					}
				}
			}
			return fmt.Errorf("playback did not end after %d steps", maxSteps)
		},
	}
	cmd.Flags().IntSliceVarP(&answers, "answers", "a", nil, "Option index to pick at each breakpoint, in order")
	return cmd
}

func describeOption(st playback.State, idx int) string {
	if st.Breakpoint == nil || idx < 0 || idx >= len(st.Breakpoint.Options) {
		return " (no such option)"
	}
	o := st.Breakpoint.Options[idx]
	s := fmt.Sprintf(" %q", o.Text)
	if o.IsCorrect {
		s += " correct"
	}
	if o.BranchTarget != "" {
		s += " -> " + o.BranchTarget
	}
	return s
}
