package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"time"

	"github.com/mazen160/go-random"
	"github.com/uzx-v/renewbot/lib/configutil"
	"github.com/uzx-v/renewbot/lib/osutil"
	"github.com/uzx-v/renewbot/lib/serviceutil"
	"github.com/uzx-v/renewbot/lib/telemetry"
	"github.com/uzx-v/renewbot/services/monitor"
	"github.com/uzx-v/renewbot/services/renewal"
)

func main() {
	configPath := flag.String("config", "config.json5", "Path to the config file.")
	verbose := flag.Bool("verbose", false, "Enable debug logging.")
	flag.Parse()

	ctx := osutil.SignalContext()

	config, err := configutil.ReadConfig[renewal.Config](*configPath)
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}

	err = telemetry.SetupFromEnv(ctx, "renewd")
	if err != nil {
		serviceutil.Fatal("failed to setup telemetry", err)
	}
	defer telemetry.Shutdown(context.Background())
	telemetry.InitSlog(*verbose)
	telemetry.InstrumentPerfStats(ctx)

	service, store, err := config.Build()
	if err != nil {
		serviceutil.Fatal("failed to build renewal service", err)
	}
	defer store.Close()

	mux := http.NewServeMux()
	monitor.NewService(monitor.Options{
		Store:       store,
		AccessToken: config.AccessToken,
	}).Register(mux)
	go serviceutil.StartHttpServer(ctx, config.MonitorPort(), mux)

	interval := config.Interval()
	slog.Info("daemon started", "interval", interval.String(), "port", config.MonitorPort())

	for {
		err := service.RunAll(ctx)
		if err != nil {
			slog.Error("renewal pass had failures", "err", err)
		}

		// jitter keeps the runs from hitting the panels at the exact
		// same second every cycle
		jitter := time.Duration(0)
		if minutes, err := random.IntRange(0, 30); err == nil {
			jitter = time.Duration(minutes) * time.Minute
		}

		select {
		case <-ctx.Done():
			slog.Info("shutting down")
			return
		case <-time.After(interval + jitter):
		}
	}
}
