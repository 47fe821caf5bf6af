package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"readtrack-backend/lib/telemetry"
	"readtrack-backend/lib/util/serviceutil"
)

func InitTelemetry(ctx context.Context, verbose bool) {
	telemetry.InitSlog(verbose)

	_, err := telemetry.SetupFromEnv(ctx, "readtrackd")
	if errors.Is(err, os.ErrNotExist) {
		slog.Info("no telemetry.json5 found, otlp export disabled")
		return
	}
	if err != nil {
		serviceutil.Fatal("setup telemetry", err)
	}
	telemetry.InstrumentPerfStats(ctx)
}
