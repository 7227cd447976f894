package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the loyctl version",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println("loyctl", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
