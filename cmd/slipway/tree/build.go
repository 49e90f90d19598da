package tree

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/slipway-dev/slipway/pkg/constants"
	"github.com/slipway-dev/slipway/pkg/manifest"
	"github.com/slipway-dev/slipway/pkg/runner"
	"github.com/slipway-dev/slipway/pkg/watch"
)

var (
	buildCfg = &buildConfig{}
	BuildCmd = &cobra.Command{
		Use:   "build",
		Short: "Build and stage release artifacts",
		Long: "Build runs swift build for every target and stages the product binaries\n" +
			"under dist/ with checksums and a build manifest. With --archive each\n" +
			"staging directory is also written out as a tarball.",
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			switch buildCfg.configuration {
			case "", constants.ConfigurationDebug, constants.ConfigurationRelease:
				return nil
			}
			return fmt.Errorf("%w: invalid configuration %q: must be %s or %s",
				errInvalidFlags, buildCfg.configuration,
				constants.ConfigurationDebug, constants.ConfigurationRelease)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true

			m, root, err := loadManifest()
			if err != nil {
				return err
			}

			overlay := &manifest.BuildBlock{
				Configuration: buildCfg.configuration,
				Product:       buildCfg.product,
				Jobs:          buildCfg.jobs,
			}
			if cmd.Flags().Changed("static-swift-stdlib") {
				overlay.StaticSwiftStdlib = &buildCfg.staticStdlib
			}
			if err = m.MergeBuild(overlay); err != nil {
				return err
			}
			if err = m.Validate(); err != nil {
				return fmt.Errorf("%w: %w", manifest.ErrInvalidManifest, err)
			}

			rnr := runner.NewExecRunner()
			run := func(ctx context.Context) error {
				p, err := newPipeline(ctx, m, root, rnr, buildCfg.targets)
				if err != nil {
					return err
				}
				for _, rel := range p.releases {
					rel.opts.Verbose = buildCfg.verbose
				}
				pl, err := p.plan(planOptions{archive: buildCfg.archive, verify: buildCfg.verify})
				if err != nil {
					return err
				}
				if err = pl.Run(ctx, buildCfg.concurrency); err != nil {
					return err
				}
				for _, rel := range p.releases {
					cmd.Printf("Staged %s\n", rel.artifact.Dir)
					if rel.archive != "" {
						cmd.Printf("Wrote  %s\n", rel.archive)
					}
				}
				return nil
			}

			ctx := cmd.Context()
			if !buildCfg.watch {
				return run(ctx)
			}

			// In watch mode a failed build is something to fix, not a
			// reason to exit.
			if err = run(ctx); err != nil {
				slog.Error("build failed", "error", err)
			}
			return watch.Watch(ctx, root, watch.Options{}, func(changed []string) {
				slog.Info("sources changed, rebuilding", "files", len(changed))
				if err := run(ctx); err != nil {
					slog.Error("build failed", "error", err)
				}
			})
		},
	}
)

type buildConfig struct {
	targets       []string
	configuration string
	product       string
	staticStdlib  bool
	jobs          int
	concurrency   int
	verbose       bool
	archive       bool
	verify        bool
	watch         bool
}

func init() {
	BuildCmd.Flags().StringSliceVar(&buildCfg.targets, "target", nil,
		"Build only the given target triples. May be repeated.")

	BuildCmd.Flags().StringVarP(&buildCfg.configuration, "configuration", "c", "",
		"Build configuration, debug or release. Overrides the manifest.")

	BuildCmd.Flags().StringVar(&buildCfg.product, "product", "",
		"Build a single product. Overrides the manifest.")

	BuildCmd.Flags().BoolVar(&buildCfg.staticStdlib, "static-swift-stdlib", false,
		"Link the Swift runtime statically. Overrides the manifest.")

	BuildCmd.Flags().IntVar(&buildCfg.jobs, "jobs", 0,
		"Number of parallel compiler jobs. Overrides the manifest.")

	BuildCmd.Flags().IntVar(&buildCfg.concurrency, "concurrency", 1,
		"Number of release steps to run at once.")

	BuildCmd.Flags().BoolVar(&buildCfg.verbose, "verbose", false,
		"Pass --verbose to swift build.")

	BuildCmd.Flags().BoolVar(&buildCfg.archive, "archive", false,
		"Write a tarball of each staging directory.")

	BuildCmd.Flags().BoolVar(&buildCfg.verify, "verify", false,
		"Smoke test each staged artifact in a container after building.")

	BuildCmd.Flags().BoolVar(&buildCfg.watch, "watch", false,
		"Rebuild whenever the package sources change.")
}
