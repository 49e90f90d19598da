package tree

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/slipway-dev/slipway/pkg/artifact"
	"github.com/slipway-dev/slipway/pkg/constants"
	"github.com/slipway-dev/slipway/pkg/hostinfo"
	"github.com/slipway-dev/slipway/pkg/manifest"
	"github.com/slipway-dev/slipway/pkg/publish"
	"github.com/slipway-dev/slipway/pkg/runner"
)

var (
	publishCfg = &publishConfig{}
	PublishCmd = &cobra.Command{
		Use:   "publish",
		Short: "Upload staged artifacts to S3",
		Long: "Publish uploads each target's archive, checksums, and build manifest\n" +
			"to S3 under <prefix>/<version>/. Checksums are verified before\n" +
			"anything leaves the machine.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			ctx := cmd.Context()

			m, root, err := loadManifest()
			if err != nil {
				return err
			}
			pub := publishCfg.settingsFor(m)
			if pub.Bucket == "" {
				return fmt.Errorf("%w: publish requires a bucket, set one in the manifest or pass --bucket",
					manifest.ErrInvalidManifest)
			}

			host, err := hostinfo.Detect()
			if err != nil {
				return err
			}
			targets, err := resolveTargets(m, host, publishCfg.targets)
			if err != nil {
				return err
			}

			rnr := runner.NewExecRunner()
			version, err := artifact.ResolveVersion(ctx, rnr, root, m.Project.Version)
			if err != nil {
				return err
			}
			stager := artifact.NewStager(artifact.WithFS(fs),
				artifact.WithDistDir(filepath.Join(root, constants.DirDist)))

			total := 0
			for _, target := range targets {
				name := artifact.Name(m.Project.Name, version, m.Build.Configuration, target.Triple)
				dir := stager.Dir(name)
				meta, err := artifact.LoadMeta(fs, dir)
				if err != nil {
					return fmt.Errorf("no staged artifact for %s, run slipway build first: %w", target.Triple, err)
				}
				if err = stager.Verify(dir); err != nil {
					return err
				}
				art := &artifact.Artifact{Dir: dir, Name: name, Meta: meta}

				// The archive is normally written by slipway build, but
				// recreating it is cheaper than telling the user to. A
				// dry run writes nothing, so the missing tarball stays
				// missing and the upload plan says so.
				archivePath := stager.ArchivePath(name)
				if _, err = fs.Stat(archivePath); errors.Is(err, os.ErrNotExist) {
					if !publishCfg.dryRun {
						if archivePath, err = stager.Archive(art); err != nil {
							return err
						}
					}
				} else if err != nil {
					return fmt.Errorf("unable to stat %s: %w", archivePath, err)
				}

				result, err := publish.Publish(ctx, fs, publish.Config{
					Bucket:       pub.Bucket,
					Prefix:       pub.Prefix,
					Region:       pub.Region,
					DryRun:       publishCfg.dryRun,
					SkipExisting: publishCfg.skipExisting,
					Output:       cmd.OutOrStdout(),
				}, art, archivePath)
				if err != nil {
					return err
				}
				for _, upload := range result.Uploads {
					if !upload.Skipped {
						total++
					}
				}
			}

			if publishCfg.dryRun {
				cmd.Printf("Dry run: would upload %d objects to s3://%s\n", total, pub.Bucket)
			} else {
				cmd.Printf("Uploaded %d objects to s3://%s\n", total, pub.Bucket)
			}
			return nil
		},
	}
)

type publishConfig struct {
	targets      []string
	bucket       string
	prefix       string
	region       string
	dryRun       bool
	skipExisting bool
}

// settingsFor overlays the publish flags onto the manifest's publish block.
func (c *publishConfig) settingsFor(m *manifest.Manifest) *manifest.PublishBlock {
	pub := &manifest.PublishBlock{}
	if m.Publish != nil {
		*pub = *m.Publish
	}
	if c.bucket != "" {
		pub.Bucket = c.bucket
	}
	if c.prefix != "" {
		pub.Prefix = c.prefix
	}
	if c.region != "" {
		pub.Region = c.region
	}
	if pub.Prefix == "" && m.Project != nil {
		pub.Prefix = m.Project.Name
	}
	return pub
}

func init() {
	PublishCmd.Flags().StringSliceVar(&publishCfg.targets, "target", nil,
		"Publish only the given target triples. May be repeated.")

	PublishCmd.Flags().StringVar(&publishCfg.bucket, "bucket", "",
		"S3 bucket to upload to. Overrides the manifest.")

	PublishCmd.Flags().StringVar(&publishCfg.prefix, "prefix", "",
		"Key prefix under the bucket. Overrides the manifest.")

	PublishCmd.Flags().StringVar(&publishCfg.region, "region", "",
		"AWS region of the bucket. Overrides the manifest.")

	PublishCmd.Flags().BoolVar(&publishCfg.dryRun, "dry-run", false,
		"Show what would be uploaded without contacting AWS.")

	PublishCmd.Flags().BoolVar(&publishCfg.skipExisting, "skip-existing", false,
		"Leave objects that already exist in the bucket alone.")
}
