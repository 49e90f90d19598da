package tree

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/slipway-dev/slipway/pkg/artifact"
	"github.com/slipway-dev/slipway/pkg/constants"
	"github.com/slipway-dev/slipway/pkg/hostinfo"
	"github.com/slipway-dev/slipway/pkg/manifest"
	"github.com/slipway-dev/slipway/pkg/runner"
	"github.com/slipway-dev/slipway/pkg/verify"
)

var (
	verifyCfg = &verifyConfig{}
	VerifyCmd = &cobra.Command{
		Use:   "verify",
		Short: "Smoke test staged artifacts in containers",
		Long: "Verify checks the integrity of each staged artifact set, then runs\n" +
			"every product binary inside a container on the target platform. A\n" +
			"cross-compiled binary has never run anywhere until this does.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			ctx := cmd.Context()

			m, root, err := loadManifest()
			if err != nil {
				return err
			}
			host, err := hostinfo.Detect()
			if err != nil {
				return err
			}
			targets, err := resolveTargets(m, host, verifyCfg.targets)
			if err != nil {
				return err
			}

			rnr := runner.NewExecRunner()
			version, err := artifact.ResolveVersion(ctx, rnr, root, m.Project.Version)
			if err != nil {
				return err
			}
			stager := artifact.NewStager(artifact.WithDistDir(filepath.Join(root, constants.DirDist)))

			for _, target := range targets {
				settings := verifyCfg.settingsFor(&target)
				if settings.platform == "" {
					settings.platform, err = verify.PlatformFor(target.Triple)
					if err != nil {
						slog.Warn("skipping target with no container platform", "triple", target.Triple)
						continue
					}
				}

				name := artifact.Name(m.Project.Name, version, m.Build.Configuration, target.Triple)
				dir := stager.Dir(name)
				meta, err := artifact.LoadMeta(fs, dir)
				if err != nil {
					return fmt.Errorf("no staged artifact for %s, run slipway build first: %w", target.Triple, err)
				}
				if err = stager.Verify(dir); err != nil {
					return err
				}

				if verifyCfg.checkImage {
					supported, err := verify.NewImageChecker().PlatformSupported(ctx, settings.image, settings.platform)
					if err != nil {
						return err
					}
					if !supported {
						return fmt.Errorf("image %s does not provide platform %s", settings.image, settings.platform)
					}
				}

				for _, product := range meta.Products {
					if verifyCfg.product != "" && product.Name != verifyCfg.product {
						continue
					}
					report, err := verify.Run(ctx, rnr, verify.Options{
						ArtifactDir: dir,
						Product:     product.Name,
						Triple:      target.Triple,
						Image:       settings.image,
						Platform:    settings.platform,
						Args:        settings.args,
						Runtime:     verifyCfg.runtime,
						Timeout:     settings.timeout,
					})
					if err != nil {
						return err
					}
					if !report.OK {
						cmd.PrintErrln(strings.TrimSpace(report.Stderr))
						return fmt.Errorf("smoke test failed for %s on %s: exit status %d",
							product.Name, target.Triple, report.ExitCode)
					}
					cmd.Printf("ok %s %s on %s in %s (%s)\n",
						product.Name, target.Triple, report.Platform,
						report.Image, report.Duration.Round(10*time.Millisecond))
				}
			}
			return nil
		},
	}
)

type verifyConfig struct {
	targets    []string
	product    string
	image      string
	platform   string
	args       []string
	runtime    string
	timeout    time.Duration
	checkImage bool
}

type verifySettings struct {
	image    string
	platform string
	args     []string
	timeout  time.Duration
}

// settingsFor resolves the smoke test settings for one target: flags win
// over the target's verify block, which wins over defaults.
func (c *verifyConfig) settingsFor(target *manifest.TargetBlock) verifySettings {
	settings := verifySettings{
		image:    c.image,
		platform: c.platform,
		args:     c.args,
		timeout:  c.timeout,
	}
	if vb := target.Verify; vb != nil {
		if settings.image == "" {
			settings.image = vb.Image
		}
		if settings.platform == "" {
			settings.platform = vb.Platform
		}
		if len(settings.args) == 0 {
			settings.args = vb.Args
		}
		if settings.timeout == 0 {
			settings.timeout = vb.TimeoutDuration()
		}
	}
	if settings.image == "" {
		settings.image = verify.DefaultImage
	}
	return settings
}

func init() {
	VerifyCmd.Flags().StringSliceVar(&verifyCfg.targets, "target", nil,
		"Verify only the given target triples. May be repeated.")

	VerifyCmd.Flags().StringVar(&verifyCfg.product, "product", "",
		"Verify a single product instead of every staged binary.")

	VerifyCmd.Flags().StringVar(&verifyCfg.image, "image", "",
		"Container image to run the smoke test in.")

	VerifyCmd.Flags().StringVar(&verifyCfg.platform, "platform", "",
		"Container platform, e.g. linux/arm64. Derived from the triple when empty.")

	VerifyCmd.Flags().StringSliceVar(&verifyCfg.args, "arg", nil,
		"Argument passed to the binary under test. May be repeated.")

	VerifyCmd.Flags().StringVar(&verifyCfg.runtime, "runtime", "",
		"Container runtime to use, docker or podman. Auto-detected when empty.")

	VerifyCmd.Flags().DurationVar(&verifyCfg.timeout, "timeout", 0,
		"Time limit per smoke test run, e.g. 90s. Zero means no limit.")

	VerifyCmd.Flags().BoolVar(&verifyCfg.checkImage, "check-image", false,
		"Ask the registry whether the image supports the platform before running.")
}
