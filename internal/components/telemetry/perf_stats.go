package telemetry

import (
	"context"
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// InstrumentPerfStats registers process gauges that are read whenever the
// meter provider collects, so it costs nothing while OTLP is disabled.
func InstrumentPerfStats() error {
	meter := otel.Meter("cinemas/perf_stats")

	cpuPercent, err := meter.Float64ObservableGauge("cpu_percent")
	if err != nil {
		return err
	}
	heapBytes, err := meter.Int64ObservableGauge("heap_alloc", metric.WithUnit("By"))
	if err != nil {
		return err
	}
	goroutines, err := meter.Int64ObservableGauge("goroutines")
	if err != nil {
		return err
	}

	_, err = meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)
		o.ObserveInt64(heapBytes, int64(mem.HeapAlloc))
		o.ObserveInt64(goroutines, int64(runtime.NumGoroutine()))

		// zero interval compares against the previous collection
		percent, err := cpu.PercentWithContext(ctx, 0, false)
		if err == nil && len(percent) > 0 {
			o.ObserveFloat64(cpuPercent, percent[0])
		}
		return nil
	}, cpuPercent, heapBytes, goroutines)
	return err
}
