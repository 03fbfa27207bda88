package cmd

import (
	"strings"

	"github.com/fatih/color"
)

var (
	colorSuccess = color.New(color.FgGreen).SprintFunc()
	colorInfo    = color.New(color.FgCyan).SprintFunc()
	colorWarn    = color.New(color.FgYellow).SprintFunc()
	colorError   = color.New(color.FgRed).SprintFunc()
	colorBold    = color.New(color.Bold).SprintFunc()
)

// formatStatusWithColor colours run statuses and setting origins.
func formatStatusWithColor(status string) string {
	switch strings.ToLower(status) {
	case "ok", "done", "success", "enabled":
		return colorSuccess(status)
	case "error", "failed", "vulnerable":
		return colorError(status)
	case "running", "override", "disabled":
		return colorWarn(status)
	default:
		return status
	}
}
