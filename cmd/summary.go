package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/headwalluk/vulnz-agent/internal/application/sitesync"
	"github.com/headwalluk/vulnz-agent/internal/domain/website"
	"github.com/headwalluk/vulnz-agent/internal/shared/constants"
	"github.com/spf13/cobra"
)

var summaryCmd = &cobra.Command{
	Use:     "summary",
	Aliases: []string{"overview"},
	Short:   "Show the site's plugins and their known vulnerabilities",
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		services, err := appCtx.Services()
		if err != nil {
			return err
		}

		ov, err := services.Overview(cmd.Context())
		if err != nil {
			return err
		}
		if ov.FetchError != nil {
			appCtx.Logger.Debugw("website data unavailable", "domain", ov.Site.Domain, "error", ov.FetchError)
		}
		return renderSummary(cmd.OutOrStdout(), ov)
	},
}

// renderSummary prints the overview: notices first, then the plugin table
// in the order the API client sorted it.
func renderSummary(out io.Writer, ov sitesync.Overview) error {
	fmt.Fprintln(out, colorBold("Vulnz Agent"))
	fmt.Fprintln(out, "===========")

	if !ov.Enabled {
		fmt.Fprintf(out, "%s %s\n", colorWarn("!"), constants.MessageNotEnabled)
	}
	fmt.Fprintf(out, "Site:     %s\n", displayOrDash(ov.Site.URL))
	fmt.Fprintf(out, "Domain:   %s\n", displayOrDash(ov.Site.Domain))
	if ov.HasLastRun {
		fmt.Fprintf(out, "Last run: %s\n", ov.LastRun.Local().Format(time.RFC1123))
	} else {
		fmt.Fprintln(out, "Last run: never")
	}
	fmt.Fprintln(out)

	if ov.Record == nil {
		fmt.Fprintln(out, constants.MessageNoWebsiteData)
		return nil
	}
	if !ov.Record.HasExtensions() {
		fmt.Fprintln(out, constants.MessageNoPluginData)
		return nil
	}

	if n := ov.Record.VulnerableCount(); n > 0 {
		fmt.Fprintf(out, "%s %d of %d plugins have known vulnerabilities\n\n", colorError("✗"), n, len(ov.Record.Extensions))
	} else {
		fmt.Fprintf(out, "%s %d plugins, no known vulnerabilities\n\n", colorSuccess("✓"), len(ov.Record.Extensions))
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PLUGIN\tVERSION\tVULNERABILITIES")
	for _, ext := range ov.Record.Extensions {
		writeExtensionRows(tw, ext)
	}
	return tw.Flush()
}

// writeExtensionRows prints one row per vulnerability link; continuation
// rows leave the plugin and version columns empty.
func writeExtensionRows(w io.Writer, ext website.Extension) {
	name, version := ext.DisplayName(), displayOrDash(ext.Version)
	if !ext.IsVulnerable() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", name, version, constants.MessageNoVulns)
		return
	}
	if len(ext.Vulnerabilities) == 0 {
		fmt.Fprintf(w, "%s\t%s\t%s\n", name, version, formatStatusWithColor("vulnerable"))
		return
	}
	for i, ref := range ext.Vulnerabilities {
		link := ref.Link
		if link == "" {
			link = formatStatusWithColor("vulnerable")
		}
		if i == 0 {
			fmt.Fprintf(w, "%s\t%s\t%s\n", name, version, link)
			continue
		}
		fmt.Fprintf(w, "\t\t%s\n", link)
	}
}

func init() {
	rootCmd.AddCommand(summaryCmd)
}
