// Package tracking records OpenTelemetry metrics for logical requests and
// their physical attempts.
package tracking

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// Meter name for request instrumentation
	ajaxMeterName = "retryajax/ajax"

	metricAttempts        = "ajax.attempts"         // Counter of physical attempts
	metricRetries         = "ajax.retries"          // Counter of scheduled retries
	metricRequestDuration = "ajax.request.duration" // Histogram in seconds, per logical request

	attrMethod    = "http.request.method"
	attrOutcome   = "ajax.outcome"
	attrErrorType = "error.type"
	attrAttempts  = "ajax.attempt.count"
)

var (
	ajaxMeter     metric.Meter
	meterOnce     sync.Once
	meterInitMu   sync.Mutex
	metricsInited bool

	attemptCounter  metric.Int64Counter
	retryCounter    metric.Int64Counter
	requestDuration metric.Float64Histogram
)

// logMetricError logs a metric initialization error to stderr.
func logMetricError(metricName string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: Failed to initialize ajax metric %s: %v\n", metricName, err)
	}
}

func initAjaxMeter() {
	meterInitMu.Lock()
	defer meterInitMu.Unlock()

	if ajaxMeter != nil {
		return
	}

	ajaxMeter = otel.Meter(ajaxMeterName)

	var err error

	attemptCounter, err = ajaxMeter.Int64Counter(
		metricAttempts,
		metric.WithDescription("Number of physical request attempts"),
		metric.WithUnit("{attempt}"),
	)
	logMetricError(metricAttempts, err)

	retryCounter, err = ajaxMeter.Int64Counter(
		metricRetries,
		metric.WithDescription("Number of retries scheduled after a failed attempt"),
		metric.WithUnit("{retry}"),
	)
	logMetricError(metricRetries, err)

	requestDuration, err = ajaxMeter.Float64Histogram(
		metricRequestDuration,
		metric.WithDescription("Duration of logical requests including retries and delays"),
		metric.WithUnit("s"),
	)
	logMetricError(metricRequestDuration, err)

	metricsInited = true
}

func ensureAjaxMeterInitialized() {
	meterOnce.Do(initAjaxMeter)
}

// RecordAttempt counts one settled physical attempt. outcome is the
// attempt's kind name ("success", "timeout", ...).
func RecordAttempt(ctx context.Context, method, outcome string) {
	ensureAjaxMeterInitialized()

	if attemptCounter != nil {
		attemptCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String(attrMethod, method),
			attribute.String(attrOutcome, outcome),
		))
	}
}

// RecordRetry counts a retry scheduled because of a failure of kind reason.
func RecordRetry(ctx context.Context, method, reason string) {
	ensureAjaxMeterInitialized()

	if retryCounter != nil {
		retryCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String(attrMethod, method),
			attribute.String(attrErrorType, reason),
		))
	}
}

// RecordRequest records the total duration of a settled logical request.
//
// Parameters:
//   - outcome: terminal kind name
//   - attempts: physical attempts made
//   - failed: whether the request settled as a failure; adds error.type
func RecordRequest(ctx context.Context, method, outcome string, attempts int, duration time.Duration, failed bool) {
	ensureAjaxMeterInitialized()

	attrs := []attribute.KeyValue{
		attribute.String(attrMethod, method),
		attribute.String(attrOutcome, outcome),
		attribute.Int(attrAttempts, attempts),
	}
	if failed {
		attrs = append(attrs, attribute.String(attrErrorType, outcome))
	}

	if requestDuration != nil {
		requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	}
}

// IsInitialized returns true if ajax metrics have been initialized.
func IsInitialized() bool {
	meterInitMu.Lock()
	defer meterInitMu.Unlock()
	return metricsInited
}

// ResetForTesting resets the metric state for testing purposes.
func ResetForTesting() {
	meterInitMu.Lock()
	defer meterInitMu.Unlock()

	ajaxMeter = nil
	attemptCounter = nil
	retryCounter = nil
	requestDuration = nil
	metricsInited = false
	meterOnce = sync.Once{}
}
