package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show configuration, data paths and platform information",
	Long: `Display vulnz-agent configuration information including:
  - Config file and database locations
  - Site root and cache backend
  - Which settings are fixed by deployment overrides
  - Platform information`,
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		cfg := appCtx.Config

		configFile := viper.ConfigFileUsed()
		configState := "✓ (loaded)"
		if configFile == "" {
			configFile = defaultConfigName + ".yaml"
			configState = "✗ (using defaults)"
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "vulnz-agent System Information")
		fmt.Fprintln(out, "==============================")
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Version:           %s\n", Version)
		fmt.Fprintf(out, "Platform:          %s/%s\n", runtime.GOOS, runtime.GOARCH)
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Configuration File:  %s %s\n", configFile, configState)
		fmt.Fprintf(out, "Database:            %s %s\n", cfg.Data.DBPath, existsMarker(cfg.Data.DBPath))
		fmt.Fprintf(out, "Cache Backend:       %s\n", cfg.Cache.Backend)
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Site:")
		fmt.Fprintf(out, "  Root:     %s %s\n", cfg.Site.Root, existsMarker(cfg.Site.Root))
		fmt.Fprintf(out, "  URL:      %s\n", displayOrDash(cfg.Site.URL))
		fmt.Fprintf(out, "  Title:    %s\n", displayOrDash(cfg.Site.Title))
		if appCtx.Overrides.Any() {
			fmt.Fprintln(out)
			fmt.Fprintf(out, "%s Deployment overrides are active (%s_ENABLED, %s_API_URL, %s_API_KEY or the overrides block)\n",
				colorWarn("!"), envPrefix, envPrefix, envPrefix)
		}
		return nil
	},
}

func existsMarker(path string) string {
	if path == "" {
		return ""
	}
	if _, err := os.Stat(path); err == nil {
		return "✓ (exists)"
	}
	return "✗ (not created yet)"
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
