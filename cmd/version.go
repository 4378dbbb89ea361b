/*
Copyright © 2026 Deutsche Telekom AG
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/telekom/api-catalog/internal/system"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprint(cmd.OutOrStdout(), system.PrettyInfo())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
