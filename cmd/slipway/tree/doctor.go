package tree

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/slipway-dev/slipway/pkg/constants"
	"github.com/slipway-dev/slipway/pkg/hostinfo"
	"github.com/slipway-dev/slipway/pkg/runner"
	"github.com/slipway-dev/slipway/pkg/swiftpm"
	"github.com/slipway-dev/slipway/pkg/verify"
)

var DoctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that this machine can build, verify, and publish",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cmd.SilenceUsage = true
		ctx := cmd.Context()
		rnr := runner.NewExecRunner()

		host, err := hostinfo.Detect()
		if err != nil {
			return err
		}
		cmd.Printf("host: %s", host.Triple)
		if host.Kernel != "" {
			cmd.Printf(" (%s)", host.Kernel)
		}
		cmd.Println()

		checks := []struct {
			name     string
			required bool
			hint     string
			probe    func() (string, error)
		}{
			{
				name:     constants.ToolSwift,
				required: true,
				hint:     "slipway cannot build without the swift toolchain",
				probe: func() (string, error) {
					if _, err := rnr.LookPath(constants.ToolSwift); err != nil {
						return "", err
					}
					toolchain, err := swiftpm.Version(ctx, rnr)
					if err != nil {
						return "", err
					}
					detail := "version " + toolchain.Version
					if ids, err := swiftpm.SDKList(ctx, rnr); err == nil {
						detail += fmt.Sprintf(", %d Swift SDKs installed", len(ids))
					}
					return detail, nil
				},
			},
			{
				name: "container runtime",
				hint: "slipway verify needs docker or podman",
				probe: func() (string, error) {
					return verify.DetectRuntime(rnr)
				},
			},
			{
				name: constants.ToolFile,
				hint: "slipway inspect needs file(1)",
				probe: func() (string, error) {
					return rnr.LookPath(constants.ToolFile)
				},
			},
			{
				name: constants.ToolGit,
				hint: "versions fall back to git describe",
				probe: func() (string, error) {
					return rnr.LookPath(constants.ToolGit)
				},
			},
		}

		missing := []string{}
		for _, check := range checks {
			detail, err := check.probe()
			if err != nil {
				cmd.Printf("missing %s (%s)\n", check.name, check.hint)
				if check.required {
					missing = append(missing, check.name)
				}
				continue
			}
			cmd.Printf("ok      %s (%s)\n", check.name, detail)
		}

		if len(missing) > 0 {
			return fmt.Errorf("%w: %s", runner.ErrToolNotFound, strings.Join(missing, ", "))
		}
		return nil
	},
}
