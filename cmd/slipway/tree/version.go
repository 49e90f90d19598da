package tree

import (
	"github.com/spf13/cobra"

	"github.com/slipway-dev/slipway/pkg/constants"
)

var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of slipway",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Println(constants.Version)
	},
}
