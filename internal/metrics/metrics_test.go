package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Recorders(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.FramePublished()
	m.FramePublished()
	m.PublishFailed()
	m.ProgramRegistered(SourceProgram)
	m.ProgramRegistered(SourceAlert)
	m.ProgramRegistered(SourceAlert)
	m.DecodeFailed("frame_size")
	m.ProgramRetired()
	m.AlertPlayed()
	m.SetCatalogSize(3)
	m.RecordHTTPRequest("GET", "/healthz", 200, 3*time.Millisecond)

	tests := []struct {
		name     string
		got      float64
		expected float64
	}{
		{"frames published", testutil.ToFloat64(m.framesPublished), 2},
		{"publish failures", testutil.ToFloat64(m.publishFailures), 1},
		{"registered program", testutil.ToFloat64(m.programsRegistered.WithLabelValues(SourceProgram)), 1},
		{"registered alert", testutil.ToFloat64(m.programsRegistered.WithLabelValues(SourceAlert)), 2},
		{"decode failures", testutil.ToFloat64(m.decodeFailures.WithLabelValues("frame_size")), 1},
		{"retired", testutil.ToFloat64(m.programsRetired), 1},
		{"alerts played", testutil.ToFloat64(m.alertsPlayed), 1},
		{"catalog size", testutil.ToFloat64(m.catalogSize), 3},
		{"http requests", testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/healthz", "200")), 1},
	}
	for _, tt := range tests {
		if tt.got != tt.expected {
			t.Errorf("%s: want %v, got %v", tt.name, tt.expected, tt.got)
		}
	}
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	defer func() {
		if recover() == nil {
			t.Error("registering twice on the same registry should panic")
		}
	}()
	New(reg)
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	New(reg)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	if len(families) == 0 {
		t.Error("expected runtime collectors to report")
	}
}
