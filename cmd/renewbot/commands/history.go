package commands

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/uzx-v/renewbot/lib/renewstore"
	"github.com/uzx-v/renewbot/lib/serviceutil"
)

var historyProvider *string
var historyLimit *int

func init() {
	historyProvider = historyCmd.Flags().String("provider", "", "Filter attempts by provider.")
	historyLimit = historyCmd.Flags().Int("limit", 20, "How many attempts to show.")
	rootCmd.AddCommand(historyCmd)
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}

var historyCmd = &cobra.Command{
	Use:   "history [--provider <name>] [--limit <n>]",
	Short: "Prints recent renewal attempts.",
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

		attempts, err := store.ListAttempts(cmd.Context(), *historyProvider, *historyLimit)
		if err != nil {
			serviceutil.Fatal("failed to list attempts", err)
		}

		t := newTable()
		t.AppendHeader(table.Row{"When", "Provider", "Target", "Status", "Expires", "Detail"})
		for _, a := range attempts {
			expires := ""
			if !a.ExpiresAt.IsZero() {
				expires = a.ExpiresAt.Format("2006-01-02 15:04")
			}
			t.AppendRow(table.Row{
				a.AttemptedAt.Format("2006-01-02 15:04"),
				a.Provider,
				a.Target,
				a.Status,
				expires,
				a.Detail,
			})
		}
		t.Render()
	},
}
