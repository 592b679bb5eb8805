package commands

import (
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/uzx-v/renewbot/lib/browser"
	"github.com/uzx-v/renewbot/lib/serviceutil"
)

func init() {
	rootCmd.AddCommand(installCmd)
}

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Downloads the chromium build the scrapers drive.",
	Run: func(cmd *cobra.Command, args []string) {
		err := browser.Install()
		if err != nil {
			serviceutil.Fatal("failed to install chromium", err)
		}
		slog.Info("chromium installed")
	},
}
