package cmd

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/headwalluk/vulnz-agent/internal/settings"
	"github.com/headwalluk/vulnz-agent/internal/shared/constants"
	sharedErrors "github.com/headwalluk/vulnz-agent/internal/shared/errors"
	"github.com/spf13/cobra"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change the agent's persisted settings",
	Long: `Settings are resolved from deployment overrides (VULNZ_AGENT_* environment
variables or the overrides block of the config file), then the persisted
options, then defaults. Overridden settings cannot be changed here.`,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List every setting with its effective value and origin",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := getAppContext(cmd).Services()
		if err != nil {
			return err
		}
		views, err := services.Settings.Views()
		if err != nil {
			return err
		}
		return renderSettings(cmd.OutOrStdout(), views, services.Settings.AnyOverridden())
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set NAME VALUE",
	Short: "Persist a setting (enabled, api_url, api_key)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := getAppContext(cmd).Services()
		if err != nil {
			return err
		}
		if err := services.Settings.Set(args[0], args[1]); err != nil {
			return settingsCommandError(args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Saved %s\n", colorSuccess("✓"), args[0])
		return nil
	},
}

var settingsUnsetCmd = &cobra.Command{
	Use:   "unset NAME",
	Short: "Remove a persisted setting so its default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := getAppContext(cmd).Services()
		if err != nil {
			return err
		}
		if err := services.Settings.Unset(args[0]); err != nil {
			return settingsCommandError(args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Removed %s\n", colorSuccess("✓"), args[0])
		return nil
	},
}

func settingsCommandError(name string, err error) error {
	switch {
	case errors.Is(err, sharedErrors.ErrSettingOverridden):
		return fmt.Errorf("%s is set by a deployment override and cannot be changed here", name)
	case errors.Is(err, sharedErrors.ErrUnknownSetting):
		return fmt.Errorf("unknown setting %q (valid: enabled, api_url, api_key)", name)
	}
	return err
}

func renderSettings(out io.Writer, views []settings.View, anyOverridden bool) error {
	if anyOverridden {
		fmt.Fprintf(out, "%s %s\n\n", colorWarn("!"), constants.MessageOverridden)
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SETTING\tVALUE\tORIGIN")
	for _, v := range views {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", v.Name, displayOrDash(v.Value), formatStatusWithColor(string(v.Origin)))
	}
	return tw.Flush()
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd, settingsUnsetCmd)
	rootCmd.AddCommand(settingsCmd)
}
