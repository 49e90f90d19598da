package tree

import (
	"github.com/spf13/cobra"
)

var (
	planCfg = &planConfig{}
	PlanCmd = &cobra.Command{
		Use:   "plan",
		Short: "Show the release steps without running them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true

			m, root, err := loadManifest()
			if err != nil {
				return err
			}
			p, err := displayPipeline(m, root, planCfg.targets)
			if err != nil {
				return err
			}
			pl, err := p.plan(planOptions{display: true, archive: true, verify: true})
			if err != nil {
				return err
			}

			if planCfg.dot {
				return pl.DOT(cmd.OutOrStdout())
			}

			order, err := pl.Order()
			if err != nil {
				return err
			}
			for i, step := range order {
				cmd.Printf("%2d. %-40s %s\n", i+1, step.ID, step.Summary)
			}
			return nil
		},
	}
)

type planConfig struct {
	targets []string
	dot     bool
}

func init() {
	PlanCmd.Flags().StringSliceVar(&planCfg.targets, "target", nil,
		"Limit the plan to the given target triples. May be repeated.")

	PlanCmd.Flags().BoolVar(&planCfg.dot, "dot", false,
		"Emit the plan as a Graphviz digraph instead of a numbered list.")
}
