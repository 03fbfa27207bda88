package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Delete every stored option and cached website record",
	Long: `Remove the agent's persisted settings (enabled flag, API URL, API key and
last run time) and every cached website record in the configured cache
backend. Deployment overrides are not touched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			return errors.New("refusing to delete stored data without --yes")
		}

		services, err := getAppContext(cmd).Services()
		if err != nil {
			return err
		}
		removed, err := services.Uninstall(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s Removed stored options and %d cached website record(s)\n", colorSuccess("✓"), removed)
		return nil
	},
}

func init() {
	uninstallCmd.Flags().Bool("yes", false, "Confirm deletion")
	rootCmd.AddCommand(uninstallCmd)
}
