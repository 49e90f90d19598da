package tree

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/slipway-dev/slipway/pkg/constants"
	"github.com/slipway-dev/slipway/pkg/manifest"
	"github.com/slipway-dev/slipway/pkg/runner"
	"github.com/slipway-dev/slipway/pkg/swiftpm"
	"github.com/slipway-dev/slipway/pkg/verify"
)

var (
	rootCfg = &rootConfig{}
	RootCmd = &cobra.Command{
		Use:   "slipway",
		Short: "Build, verify, and publish Swift server artifacts",
		Long: "Slipway drives swift build for release, stages the resulting binaries\n" +
			"with checksums and a build manifest, smoke-tests them in containers on\n" +
			"the target platform, and publishes them to S3. It also keeps the build\n" +
			"documentation honest.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(rootCfg.logLevel, rootCfg.logFormat)
		},
	}
)

type rootConfig struct {
	manifest  string
	logLevel  string
	logFormat string
}

// errInvalidFlags marks flag values rejected before a command runs, so
// they exit with the same code as an invalid manifest.
var errInvalidFlags = errors.New("invalid flags")

func init() {
	RootCmd.PersistentFlags().StringVar(&rootCfg.manifest, "manifest", "",
		"Path to slipway.hcl. Defaults to searching upward from the working directory.")

	RootCmd.PersistentFlags().StringVar(&rootCfg.logLevel, "log-level", "info",
		"Log level: debug, info, warn, or error.")

	RootCmd.PersistentFlags().StringVar(&rootCfg.logFormat, "log-format", "text",
		"Log format: text or json.")

	RootCmd.AddCommand(BuildCmd)
	RootCmd.AddCommand(DocsCmd)
	RootCmd.AddCommand(DoctorCmd)
	RootCmd.AddCommand(InitCmd)
	RootCmd.AddCommand(InspectCmd)
	RootCmd.AddCommand(PlanCmd)
	RootCmd.AddCommand(PublishCmd)
	RootCmd.AddCommand(SDKCmd)
	RootCmd.AddCommand(VerifyCmd)
	RootCmd.AddCommand(VersionCmd)
}

// Execute runs the command tree and maps errors onto exit codes: 2 for
// configuration problems, 3 for missing tools, 1 for everything else.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := RootCmd.ExecuteContext(ctx); err != nil {
		return exitCode(err)
	}
	return constants.ExitSuccess
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, manifest.ErrNoManifest),
		errors.Is(err, manifest.ErrInvalidManifest),
		errors.Is(err, errInvalidFlags),
		errors.Is(err, swiftpm.ErrNoExecutableProducts):
		return constants.ExitConfigError
	case errors.Is(err, runner.ErrToolNotFound),
		errors.Is(err, verify.ErrNoRuntime):
		return constants.ExitEnvError
	}
	return constants.ExitFailure
}
