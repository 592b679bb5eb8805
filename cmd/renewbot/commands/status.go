package commands

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/uzx-v/renewbot/lib/expiry"
	"github.com/uzx-v/renewbot/lib/renewstore"
	"github.com/uzx-v/renewbot/lib/serviceutil"
	"github.com/uzx-v/renewbot/lib/timezone"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Prints the last known state of every tracked server.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := readConfig()
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}
		store, err := renewstore.Open(cfg.DatabasePath())
		if err != nil {
			serviceutil.Fatal("failed to open database", err)
		}
		defer store.Close()

		states, err := store.ProviderStates(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to read provider states", err)
		}

		t := newTable()
		t.AppendHeader(table.Row{"Provider", "Target", "Last status", "Expires", "Remaining", "Updated"})
		for _, s := range states {
			expires := ""
			remaining := ""
			if !s.ExpiresAt.IsZero() {
				expires = s.ExpiresAt.Format("2006-01-02 15:04")
				remaining = expiry.Humanize(s.ExpiresAt.Sub(timezone.Now()))
			}
			t.AppendRow(table.Row{
				s.Provider,
				s.Target,
				s.LastStatus,
				expires,
				remaining,
				s.UpdatedAt.Format("2006-01-02 15:04"),
			})
		}
		t.Render()
	},
}
