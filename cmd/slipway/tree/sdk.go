package tree

import (
	"github.com/spf13/cobra"

	"github.com/slipway-dev/slipway/pkg/runner"
	"github.com/slipway-dev/slipway/pkg/swiftpm"
)

var (
	SDKCmd = &cobra.Command{
		Use:   "sdk",
		Short: "Manage Swift SDKs for cross-compilation",
	}

	sdkListCmd = &cobra.Command{
		Use:   "list",
		Short: "List the installed Swift SDKs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			ids, err := swiftpm.SDKList(cmd.Context(), runner.NewExecRunner())
			if err != nil {
				return err
			}
			for _, id := range ids {
				cmd.Println(id)
			}
			return nil
		},
	}

	sdkInstallCfg = &sdkInstallConfig{}
	sdkInstallCmd = &cobra.Command{
		Use:   "install <bundle>",
		Short: "Install a Swift SDK from a local path or URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return swiftpm.SDKInstall(cmd.Context(), runner.NewExecRunner(), args[0], sdkInstallCfg.checksum)
		},
	}
)

type sdkInstallConfig struct {
	checksum string
}

func init() {
	sdkInstallCmd.Flags().StringVar(&sdkInstallCfg.checksum, "checksum", "",
		"SHA256 checksum of the bundle, required by swift for remote bundles.")

	SDKCmd.AddCommand(sdkListCmd)
	SDKCmd.AddCommand(sdkInstallCmd)
}
