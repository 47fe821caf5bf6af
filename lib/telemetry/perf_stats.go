package telemetry

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"go.opentelemetry.io/otel"
)

// process health gauges for the long-running scrape daemon; before
// Setup runs these record into the no-op global meter
var (
	perfMeter           = otel.Meter("readtrack.perf_stats")
	cpuGauge, _         = perfMeter.Float64Gauge("cpu_usage")
	heapGauge, _        = perfMeter.Int64Gauge("heap_alloc_mb")
	liveObjectsGauge, _ = perfMeter.Int64Gauge("live_objects")
	goroutineGauge, _   = perfMeter.Int64Gauge("goroutine_count")
)

const perfSampleInterval = 30 * time.Second

// InstrumentPerfStats starts a sampler that records process health
// every 30 seconds until ctx is cancelled. A scrape pass holds the
// browser for minutes at a time, so these gauges are what shows
// whether the daemon itself is healthy between passes.
func InstrumentPerfStats(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(perfSampleInterval)
		defer ticker.Stop()

		var memStats runtime.MemStats
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runtime.ReadMemStats(&memStats)
				heapGauge.Record(ctx, int64(memStats.Alloc/1_000_000))
				liveObjectsGauge.Record(ctx, int64(memStats.Mallocs)-int64(memStats.Frees))
				goroutineGauge.Record(ctx, int64(runtime.NumGoroutine()))

				// sampled over a second so the ticker is not starved
				usage, err := cpu.Percent(time.Second, false)
				if err != nil {
					slog.WarnContext(ctx, "failed to read cpu usage", "err", err)
					continue
				}
				cpuGauge.Record(ctx, usage[0])
			}
		}
	}()
}
