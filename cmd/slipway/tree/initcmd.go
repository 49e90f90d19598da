package tree

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/slipway-dev/slipway/pkg/constants"
	"github.com/slipway-dev/slipway/pkg/hostinfo"
	"github.com/slipway-dev/slipway/pkg/runner"
	"github.com/slipway-dev/slipway/pkg/swiftpm"
	"github.com/slipway-dev/slipway/pkg/verify"
)

var (
	initCfg = &initConfig{}
	InitCmd = &cobra.Command{
		Use:   "init",
		Short: "Write a starter slipway.hcl",
		Long: "Init writes a slipway.hcl for the package in the working directory.\n" +
			"The project name is taken from Package.swift when the swift toolchain\n" +
			"is available, and from the directory name otherwise.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true

			dir, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("unable to get working directory: %w", err)
			}
			path := filepath.Join(dir, constants.FileManifest)
			found, err := afero.Exists(fs, path)
			if err != nil {
				return fmt.Errorf("unable to stat %s: %w", path, err)
			}
			if found && !initCfg.force {
				return fmt.Errorf("%s already exists, pass --force to overwrite", path)
			}

			name := initCfg.name
			if name == "" {
				name = detectProjectName(cmd, dir)
			}
			host, err := hostinfo.Detect()
			if err != nil {
				return err
			}

			if err = afero.WriteFile(fs, path, starterManifest(name, host), 0644); err != nil {
				return fmt.Errorf("unable to write %s: %w", path, err)
			}
			cmd.Printf("Wrote %s\n", path)
			return nil
		},
	}
)

type initConfig struct {
	name  string
	force bool
}

var invalidNameChars = regexp.MustCompile(`[^a-z0-9._-]+`)

// detectProjectName prefers the SwiftPM package name, falling back to the
// directory name when the toolchain or the package is missing.
func detectProjectName(cmd *cobra.Command, dir string) string {
	name := filepath.Base(dir)

	rnr := runner.NewExecRunner()
	if _, err := rnr.LookPath(constants.ToolSwift); err == nil {
		if pkg, err := swiftpm.DumpPackage(cmd.Context(), rnr, dir); err == nil && pkg.Name != "" {
			name = pkg.Name
		}
	}
	return sanitizeProjectName(name)
}

func sanitizeProjectName(name string) string {
	name = invalidNameChars.ReplaceAllString(strings.ToLower(name), "-")
	name = strings.TrimLeft(name, "._-")
	if name == "" {
		return "app"
	}
	return name
}

func starterManifest(name string, host hostinfo.Host) []byte {
	b := &strings.Builder{}
	fmt.Fprintf(b, "project {\n  name = %q\n}\n\n", name)
	fmt.Fprintf(b, "build {\n  configuration = %q\n}\n\n", constants.ConfigurationRelease)

	fmt.Fprintf(b, "target %q {", host.Triple)
	if strings.Contains(host.Triple, "linux") {
		fmt.Fprintf(b, "\n  verify {\n    image = %q\n  }\n", verify.DefaultImage)
	}
	fmt.Fprintf(b, "}\n")

	b.WriteString(`
# Cross-compile by adding targets backed by an installed Swift SDK:
#
# target "aarch64-unknown-linux-gnu" {
#   swift_sdk = "swift-6.0.1-RELEASE_static-linux-0.0.1"
#
#   verify {
#     image = "ubuntu:24.04"
#   }
# }

# publish {
#   bucket = "my-release-bucket"
#   region = "us-east-1"
# }
`)
	return []byte(b.String())
}

func init() {
	InitCmd.Flags().StringVar(&initCfg.name, "name", "",
		"Project name to write. Detected from the package when empty.")

	InitCmd.Flags().BoolVar(&initCfg.force, "force", false,
		"Overwrite an existing slipway.hcl.")
}
