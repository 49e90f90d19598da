package artifact

import (
	"context"
	"fmt"
	"strings"

	"github.com/slipway-dev/slipway/pkg/constants"
	"github.com/slipway-dev/slipway/pkg/runner"
)

// ResolveVersion picks the version string artifacts are named with. An
// explicit version wins; otherwise git describe supplies one, with a
// leading v stripped so tag and manifest spellings agree.
func ResolveVersion(ctx context.Context, rnr runner.Runner, dir, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	result, err := rnr.Run(ctx, runner.Command{
		Name: constants.ToolGit,
		Args: []string{"describe", "--tags", "--always", "--dirty"},
		Dir:  dir,
	})
	if err != nil {
		return "", fmt.Errorf("unable to run git describe: %w", err)
	}
	if result.ExitCode != 0 {
		return "", fmt.Errorf("no version in manifest and git describe exited with status %d: %s",
			result.ExitCode, result.StderrTail(2))
	}

	version := strings.TrimSpace(string(result.Stdout))
	version = strings.TrimPrefix(version, "v")
	if version == "" {
		return "", fmt.Errorf("no version in manifest and git describe printed nothing")
	}
	return version, nil
}
