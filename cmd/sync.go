package cmd

import (
	"errors"
	"fmt"

	"github.com/headwalluk/vulnz-agent/internal/shared/constants"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Send the site's plugin inventory to the Vulnz API now",
	Long: `Report the site's title, TLS flag, admin URL, WordPress version and
installed plugins to the Vulnz API immediately. Unlike the scheduled sync
this runs whether or not the agent is enabled.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		services, err := appCtx.Services()
		if err != nil {
			return err
		}

		run, err := services.SyncNow(cmd.Context())
		out := cmd.OutOrStdout()
		if err != nil {
			appCtx.Logger.Debugw("sync failed", "run_id", run.ID, "error", err)
			fmt.Fprintf(out, "%s %s\n", colorError("✗"), constants.MessageSyncFailed)
			return errors.New(constants.MessageSyncFailed)
		}

		fmt.Fprintf(out, "%s %s\n", colorSuccess("✓"), constants.MessageSyncSuccessful)
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			fmt.Fprintf(out, "  Run:    %s\n", run.ID)
			fmt.Fprintf(out, "  Domain: %s\n", services.Site.Domain)
			if run.StartedAt != nil && run.FinishedAt != nil {
				fmt.Fprintf(out, "  Took:   %s\n", run.FinishedAt.Sub(*run.StartedAt))
			}
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().BoolP("verbose", "v", false, "Show run details")
	rootCmd.AddCommand(syncCmd)
}
