package tree

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/slipway-dev/slipway/pkg/artifact"
	"github.com/slipway-dev/slipway/pkg/constants"
	"github.com/slipway-dev/slipway/pkg/hostinfo"
	"github.com/slipway-dev/slipway/pkg/inspect"
	"github.com/slipway-dev/slipway/pkg/runner"
)

// inspectEntry pairs a path with what file(1) said about it. Embedding
// flattens the Info fields into the JSON object.
type inspectEntry struct {
	Path string `json:"path"`
	*inspect.Info
}

var (
	inspectCfg = &inspectConfig{}
	InspectCmd = &cobra.Command{
		Use:   "inspect [path ...]",
		Short: "Identify binaries and check them against their targets",
		Long: "Inspect runs file(1) on binaries and reports their format, architecture,\n" +
			"and linkage. With no arguments it inspects every staged artifact and\n" +
			"checks each binary against the target it was built for.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			ctx := cmd.Context()
			rnr := runner.NewExecRunner()

			entries := []inspectEntry{}
			errs := []error{}

			if len(args) > 0 {
				for _, path := range args {
					info, err := inspect.Inspect(ctx, rnr, path)
					if err != nil {
						return err
					}
					entries = append(entries, inspectEntry{Path: path, Info: info})
					if inspectCfg.triple != "" {
						if err = info.MatchesTriple(inspectCfg.triple); err != nil {
							errs = append(errs, fmt.Errorf("%s: %w", path, err))
						}
					}
				}
			} else {
				m, root, err := loadManifest()
				if err != nil {
					return err
				}
				host, err := hostinfo.Detect()
				if err != nil {
					return err
				}
				targets, err := resolveTargets(m, host, inspectCfg.targets)
				if err != nil {
					return err
				}
				version, err := artifact.ResolveVersion(ctx, rnr, root, m.Project.Version)
				if err != nil {
					return err
				}
				stager := artifact.NewStager(artifact.WithDistDir(filepath.Join(root, constants.DirDist)))

				for _, target := range targets {
					dir := stager.Dir(artifact.Name(m.Project.Name, version, m.Build.Configuration, target.Triple))
					meta, err := artifact.LoadMeta(fs, dir)
					if err != nil {
						return fmt.Errorf("no staged artifact for %s, run slipway build first: %w", target.Triple, err)
					}
					for _, product := range meta.Products {
						path := filepath.Join(dir, product.File)
						info, err := inspect.Inspect(ctx, rnr, path)
						if err != nil {
							return err
						}
						entries = append(entries, inspectEntry{Path: path, Info: info})
						if err = info.MatchesTriple(target.Triple); err != nil {
							errs = append(errs, fmt.Errorf("%s: %w", path, err))
						}
					}
				}
			}

			if inspectCfg.jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(entries); err != nil {
					return fmt.Errorf("unable to encode results: %w", err)
				}
			} else {
				for _, entry := range entries {
					cmd.Printf("%s: %s\n", entry.Path, entry.Raw)
				}
			}
			return errors.Join(errs...)
		},
	}
)

type inspectConfig struct {
	targets []string
	triple  string
	jsonOut bool
}

func init() {
	InspectCmd.Flags().StringSliceVar(&inspectCfg.targets, "target", nil,
		"Inspect only the given target triples. May be repeated.")

	InspectCmd.Flags().StringVar(&inspectCfg.triple, "triple", "",
		"Check the given paths against this target triple.")

	InspectCmd.Flags().BoolVar(&inspectCfg.jsonOut, "json", false,
		"Emit the results as JSON instead of one line per binary.")
}
