package observability

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/shubhsaxena/search-insights/internal/models"
)

type SlowReportDetector struct {
	warningThreshold  time.Duration
	criticalThreshold time.Duration
	logger            *zap.Logger
	writer            PerformanceWriter
}

type PerformanceWriter interface {
	WriteReportPerformance(ctx context.Context, perf *models.ReportPerformance) error
}

func NewSlowReportDetector(warning, critical time.Duration, logger *zap.Logger, w PerformanceWriter) *SlowReportDetector {
	return &SlowReportDetector{
		warningThreshold:  warning,
		criticalThreshold: critical,
		logger:            logger,
		writer:            w,
	}
}

// Observe records a report build that exceeded the warning threshold. Faster
// builds return immediately.
func (d *SlowReportDetector) Observe(ctx context.Context, report string, lookbackDays int, duration time.Duration, eventCount, skipped int) {
	if duration <= d.warningThreshold {
		return
	}

	traceID := TraceIDFromContext(ctx)
	severity := d.classifySeverity(duration)

	SlowReportCounter.WithLabelValues(severity, report).Inc()

	d.logger.Warn("slow report detected",
		zap.String("trace_id", traceID),
		zap.String("report", report),
		zap.Int("lookback_days", lookbackDays),
		zap.Float64("duration_ms", float64(duration.Milliseconds())),
		zap.Int("event_count", eventCount),
		zap.Int("skipped", skipped),
		zap.String("severity", severity),
	)

	if d.writer == nil {
		return
	}
	perf := &models.ReportPerformance{
		Report:       report,
		LookbackDays: lookbackDays,
		DurationMs:   float64(duration.Milliseconds()),
		EventCount:   eventCount,
		Skipped:      skipped,
		Severity:     severity,
		Timestamp:    time.Now().UTC(),
		TraceID:      traceID,
	}
	go func() {
		writeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := d.writer.WriteReportPerformance(writeCtx, perf); err != nil {
			d.logger.Error("failed to write report performance",
				zap.String("trace_id", traceID),
				zap.Error(err),
			)
		}
	}()
}

func (d *SlowReportDetector) classifySeverity(dur time.Duration) string {
	if dur > d.criticalThreshold {
		return "critical"
	}
	if dur > d.warningThreshold {
		return "warning"
	}
	return "normal"
}
