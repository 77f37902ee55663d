package main

import (
	"lbsassist/cmd/lbsassist/commands"
	"lbsassist/lib/serviceutil"
	"lbsassist/lib/telemetry"
)

func main() {
	ctx := serviceutil.SignalContext()
	telemetry.SetupFromEnv(ctx, "lbsassist")
	telemetry.InitSlog(false)
	commands.ExecuteContext(ctx)
}
