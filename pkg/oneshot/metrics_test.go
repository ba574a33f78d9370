package oneshot

import (
	"errors"
	"testing"
)

func TestMetrics_Observer(t *testing.T) {
	metrics := Metrics()

	metrics.ConnAccepted(0, "127.0.0.1:40000")
	metrics.ConnHeadersComplete(0)
	metrics.ConnResponded(0, nil)
	metrics.ConnClosed(0, nil)

	metrics.ConnAccepted(1, "127.0.0.1:40001")
	metrics.ConnProtocolError(1, errors.New("bad request"))
	metrics.ConnClosed(1, nil)

	metrics.ConnAccepted(2, "127.0.0.1:40002")
	metrics.ConnResponded(2, errors.New("write: broken pipe"))
	metrics.ConnClosed(2, nil)

	// Collectors are registered globally, just verify no panics
}

func TestMetricsConfig_Defaults(t *testing.T) {
	config := DefaultMetricsConfig()

	if !config.TrackDuration {
		t.Error("Expected duration tracking to be enabled by default")
	}
}

func TestMetrics_DurationTracking(t *testing.T) {
	observer := MetricsWithConfig(MetricsConfig{TrackDuration: true}).(*metricsObserver)

	observer.ConnAccepted(7, "127.0.0.1:40000")

	if _, ok := observer.started.Load(int64(7)); !ok {
		t.Error("Expected accept time to be recorded")
	}

	observer.ConnClosed(7, nil)

	if _, ok := observer.started.Load(int64(7)); ok {
		t.Error("Expected accept time to be removed on close")
	}
}

func TestMetricsWithConfig_NoDuration(t *testing.T) {
	observer := MetricsWithConfig(MetricsConfig{TrackDuration: false}).(*metricsObserver)

	observer.ConnAccepted(3, "127.0.0.1:40000")

	if _, ok := observer.started.Load(int64(3)); ok {
		t.Error("Expected no accept time with duration tracking disabled")
	}

	observer.ConnClosed(3, nil)
}
