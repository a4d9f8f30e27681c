package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/lifesaver/plugin/ai/report"
)

var demoScripts = map[string][]string{
	"cardiac": {
		"My dad just collapsed and he isn't breathing",
		"ok, I called them, they're on the way",
		"done, he's on the floor",
		"I'm doing it now, I gave him an aspirin earlier",
		"The ambulance just arrived.",
	},
	"choking": {
		"my son is choking on a grape, something stuck in his throat",
		"yes, he shook his head",
		"done",
		"he went limp",
		"paramedics are here",
	},
	"stroke": {
		"My mom suddenly can't speak and one side of her face is drooping",
		"yes it's drooping",
		"done, her left arm drifts down",
		"yes slurred",
		"ok, it started around 3pm",
		"help is here",
	},
}

func newDemoCmd(v *viper.Viper) *cobra.Command {
	var scenario string
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Walk through a scripted emergency and print the incident report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			script, ok := demoScripts[scenario]
			if !ok {
				return fmt.Errorf("unknown scenario %q (try cardiac, choking or stroke)", scenario)
			}
			p, err := loadProfile(v)
			if err != nil {
				return err
			}
			setupLogger(p, os.Stderr)

			app, err := newApp(p)
			if err != nil {
				return err
			}
			defer app.close()

			out := cmd.OutOrStdout()
			last, err := runScript(cmd.Context(), out, app.orchestrator, script)
			if err != nil {
				return err
			}
			if last == nil || last.Report == nil {
				return nil
			}
			_, err = fmt.Fprintln(out, report.RenderMarkdown(last.Report))
			return err
		},
	}
	cmd.Flags().StringVar(&scenario, "scenario", "cardiac", "scripted scenario: cardiac, choking or stroke")
	return cmd
}
