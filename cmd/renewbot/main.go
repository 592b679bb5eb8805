package main

import (
	"context"

	"github.com/uzx-v/renewbot/cmd/renewbot/commands"
	"github.com/uzx-v/renewbot/lib/osutil"
	"github.com/uzx-v/renewbot/lib/telemetry"
)

func main() {
	telemetry.SetupFromEnv(context.Background(), "renewbot")
	telemetry.InitSlog(true)
	commands.ExecuteContext(osutil.SignalContext())
}
