package telemetry

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
)

// metricName turns a report id (`sigaa_account: account.classes`) into a
// valid instrument name (`sigaa_account.account.classes`).
func metricName(id string) string {
	return strings.ReplaceAll(strings.ReplaceAll(id, ": ", "."), " ", "_")
}

// recordCount records count on a gauge of the global meter provider.
func recordCount(id string, count int64) {
	gauge, err := otel.Meter("sigaa-scraper").Int64Gauge(metricName(id))
	if err != nil {
		slog.Warn("failed to create gauge", "id", id, "err", err)
		return
	}
	gauge.Record(context.Background(), count)
}
