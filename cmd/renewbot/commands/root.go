package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/uzx-v/renewbot/lib/configutil"
	"github.com/uzx-v/renewbot/lib/restyutil"
	"github.com/uzx-v/renewbot/lib/webclient"
	"github.com/uzx-v/renewbot/services/renewal"
)

var configPath *string
var debugHttp *bool

var rootCmd = &cobra.Command{
	Use:   "renewbot",
	Short: "renewbot keeps free hosting panel servers renewed.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if *debugHttp {
			webclient.SetInstrumentOutput(restyutil.NewFilesystemOutput(".dev/resty/renewbot"))
		}
	},
}

func init() {
	configPath = rootCmd.PersistentFlags().String("config", "config.json5", "Path to the config file.")
	debugHttp = rootCmd.PersistentFlags().Bool("debug-http", false, "Dump http exchanges to .dev/resty/renewbot.")
}

func readConfig() (renewal.Config, error) {
	return configutil.ReadConfig[renewal.Config](*configPath)
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
