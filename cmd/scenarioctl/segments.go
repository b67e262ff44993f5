package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/mind-engage/mindengage-lessons/internal/scenario"
	"github.com/mind-engage/mindengage-lessons/internal/segment"
)

type segmentsOutput struct {
	Title string      `json:"title" yaml:"title"`
	Total int         `json:"total" yaml:"total"`
	Lists segment.Map `json:"lists" yaml:"lists"`
	// Media maps list key to the rendered file names, in segment order.
	Media map[string][]string `json:"media" yaml:"media"`
}

func newSegmentsCmd(opts *rootOpts) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "segments FILE",
		Short: "Print the segment map a scenario builds into",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseFormat(format)
			if err != nil {
				return err
			}
			log, err := opts.logger()
			if err != nil {
				return err
			}
			sc, err := load(args[0])
			if err != nil {
				return err
			}

			start := time.Now()
			m := segment.Build(sc.Script)
			log.Debug("segment map built", zap.Duration("took", time.Since(start)), zap.Int("segments", m.Total()))

			out := segmentsOutput{Title: sc.Title, Total: m.Total(), Lists: m, Media: map[string][]string{}}
			for _, key := range m.Keys() {
				for _, seg := range m[key] {
					out.Media[key] = append(out.Media[key], segment.MediaName(sc.Title, key, seg.Number))
				}
			}
			return writeOutput(cmd, f, out)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format: json or yaml")
	return cmd
}

func writeOutput(cmd *cobra.Command, f scenario.Format, v any) error {
	w := cmd.OutOrStdout()
	if f == scenario.FormatYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
