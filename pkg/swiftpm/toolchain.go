package swiftpm

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/slipway-dev/slipway/pkg/constants"
	"github.com/slipway-dev/slipway/pkg/runner"
)

var (
	versionRegex = regexp.MustCompile(`Swift version (\S+)`)
	targetRegex  = regexp.MustCompile(`Target: (\S+)`)
)

// Toolchain describes the installed swift toolchain.
type Toolchain struct {
	Version string
	Target  string
}

// Version runs swift --version and picks the toolchain version and host
// target triple out of the banner.
func Version(ctx context.Context, rnr runner.Runner) (*Toolchain, error) {
	result, err := rnr.Run(ctx, runner.Command{
		Name: constants.ToolSwift,
		Args: []string{"--version"},
	})
	if err != nil {
		return nil, fmt.Errorf("unable to run swift --version: %w", err)
	}
	if result.ExitCode != 0 {
		return nil, fmt.Errorf("swift --version exited with status %d", result.ExitCode)
	}

	// Apple toolchains print a swift-driver banner line first; the
	// "Swift version" phrase appears on both Apple and Linux toolchains.
	out := string(result.Stdout)
	tc := &Toolchain{}
	if match := versionRegex.FindStringSubmatch(out); match != nil {
		tc.Version = match[1]
	}
	if match := targetRegex.FindStringSubmatch(out); match != nil {
		tc.Target = match[1]
	}
	if tc.Version == "" {
		return nil, fmt.Errorf("unable to parse swift --version output: %q", strings.TrimSpace(out))
	}
	return tc, nil
}

// SDKList returns the ids of the installed Swift SDKs.
func SDKList(ctx context.Context, rnr runner.Runner) ([]string, error) {
	result, err := rnr.Run(ctx, runner.Command{
		Name: constants.ToolSwift,
		Args: []string{"sdk", "list"},
	})
	if err != nil {
		return nil, fmt.Errorf("unable to run swift sdk list: %w", err)
	}
	if result.ExitCode != 0 {
		// Old toolchains predate the sdk subcommand.
		return nil, fmt.Errorf("swift sdk list exited with status %d: %s",
			result.ExitCode, result.StderrTail(3))
	}

	ids := []string{}
	for _, line := range strings.Split(string(result.Stdout), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ids = append(ids, line)
	}
	return ids, nil
}

// SDKInstall installs a Swift SDK bundle from a local path or URL. The
// checksum is required by swift for remote bundles.
func SDKInstall(ctx context.Context, rnr runner.Runner, bundle, checksum string) error {
	args := []string{"sdk", "install", bundle}
	if checksum != "" {
		args = append(args, "--checksum", checksum)
	}
	result, err := rnr.Run(ctx, runner.Command{
		Name:   constants.ToolSwift,
		Args:   args,
		Stream: true,
	})
	if err != nil {
		return fmt.Errorf("unable to run swift sdk install: %w", err)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("swift sdk install exited with status %d", result.ExitCode)
	}
	return nil
}
