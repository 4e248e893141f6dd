package metrics

import (
	"context"

	"go.uber.org/fx"
)

// Module provides the process-wide metrics registered in the default prometheus registry
var Module = fx.Module("metrics",
	fx.Provide(GetDefaultMetrics),
	fx.Invoke(resetOnStop),
)

// resetOnStop zeroes the gauges once the jobs and connections they count are gone
func resetOnStop(lc fx.Lifecycle, m *Metrics) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			m.ActiveJobs.Set(0)
			m.UpdateAccounts(0, 0)
			return nil
		},
	})
}
