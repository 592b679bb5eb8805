package commands

import (
	"errors"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/uzx-v/renewbot/lib/serviceutil"
)

var renewForce *bool

func init() {
	renewForce = renewCmd.Flags().Bool("force", false, "Renew even when the server is not close to expiring.")
	rootCmd.AddCommand(renewCmd)
}

var renewCmd = &cobra.Command{
	Use:   "renew [provider ...]",
	Short: "Runs one renewal pass, over every enabled provider or just the named ones.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := readConfig()
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}
		if *renewForce {
			cfg.Renew.Force = true
		}

		service, store, err := cfg.Build()
		if err != nil {
			serviceutil.Fatal("failed to build renewal service", err)
		}
		defer store.Close()

		t1 := time.Now()
		if len(args) > 0 {
			var errs []error
			for _, name := range args {
				if e := service.RunNamed(cmd.Context(), name); e != nil {
					errs = append(errs, e)
				}
			}
			err = errors.Join(errs...)
		} else {
			err = service.RunAll(cmd.Context())
		}
		slog.Info("renewal pass finished", "seconds", time.Since(t1).Seconds())
		if err != nil {
			serviceutil.Fatal("renewal pass had failures", err)
		}
	},
}
