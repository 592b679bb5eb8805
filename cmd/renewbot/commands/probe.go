package commands

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/uzx-v/renewbot/lib/expiry"
	"github.com/uzx-v/renewbot/lib/serviceutil"
	"github.com/uzx-v/renewbot/lib/timezone"
)

func init() {
	rootCmd.AddCommand(probeCmd)
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Reads live expirations over http, without launching a browser.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := readConfig()
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}
		service, store, err := cfg.Build()
		if err != nil {
			serviceutil.Fatal("failed to build renewal service", err)
		}
		defer store.Close()

		t := newTable()
		t.AppendHeader(table.Row{"Provider", "Target", "Expires", "Remaining"})
		for _, result := range service.ProbeAll(cmd.Context()) {
			if result.Err != nil {
				t.AppendRow(table.Row{result.Provider, result.Target, "error: " + result.Err.Error(), ""})
				continue
			}
			t.AppendRow(table.Row{
				result.Provider,
				result.Target,
				result.ExpiresAt.Format("2006-01-02 15:04"),
				expiry.Humanize(result.ExpiresAt.Sub(timezone.Now())),
			})
		}
		t.Render()
	},
}
