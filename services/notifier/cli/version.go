package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/petrovskifilip/agri-management-system/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("%s\n%s", serviceName, version.Get())
	},
}
