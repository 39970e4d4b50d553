package status

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/genricoloni/ledmatrix/internal/catalog"
	"github.com/genricoloni/ledmatrix/internal/config"
	"github.com/genricoloni/ledmatrix/internal/domain"
	"github.com/genricoloni/ledmatrix/internal/domain/mocks"
	"github.com/genricoloni/ledmatrix/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, tr domain.Transport) (*Server, *catalog.Catalog) {
	t.Helper()
	cfg := config.Default()
	cfg.Status.Addr = "127.0.0.1:0"
	reg := prometheus.NewRegistry()
	cat := catalog.New()
	return NewServer(cfg, zap.NewNop(), cat, tr, reg, metrics.New(reg)), cat
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name         string
		connected    bool
		expectedCode int
		expectedBody string
	}{
		{
			name:         "Success - Connected",
			connected:    true,
			expectedCode: http.StatusOK,
			expectedBody: `"status":"ok"`,
		},
		{
			name:         "Degraded - Disconnected",
			connected:    false,
			expectedCode: http.StatusServiceUnavailable,
			expectedBody: `"status":"degraded"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			tr := mocks.NewMockTransport(ctrl)
			tr.EXPECT().IsConnected().Return(tt.connected)

			srv, _ := newTestServer(t, tr)
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			if rec.Code != tt.expectedCode {
				t.Errorf("status: want %d, got %d", tt.expectedCode, rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.expectedBody) {
				t.Errorf("body %s does not contain %s", rec.Body.String(), tt.expectedBody)
			}
		})
	}
}

func TestPrograms(t *testing.T) {
	ctrl := gomock.NewController(t)
	srv, cat := newTestServer(t, mocks.NewMockTransport(ctrl))

	cat.Add("clock", domain.NewProgram("clock",
		domain.NewFrame([]byte("a"), 250*time.Millisecond),
		domain.NewFrame([]byte("b"), 250*time.Millisecond),
	))
	alert := domain.NewProgram("fire", domain.NewFrame([]byte("f"), time.Second))
	alert.Priority = domain.PriorityAlert
	cat.Add("fire", alert)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/programs", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status: want 200, got %d", rec.Code)
	}

	var got []programView
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 programs, got %d", len(got))
	}
	if got[0].ID != "clock" || got[0].Frames != 2 || got[0].DurationMs != 500 || got[0].Priority != "" {
		t.Errorf("unexpected first entry %+v", got[0])
	}
	if got[1].ID != "fire" || got[1].Priority != "alert" {
		t.Errorf("unexpected second entry %+v", got[1])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := mocks.NewMockTransport(ctrl)
	tr.EXPECT().IsConnected().Return(true)
	srv, _ := newTestServer(t, tr)
	handler := srv.Handler()

	// One request so the HTTP counter has a series
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status: want 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, name := range []string{
		"ledmatrix_scheduler_frames_published_total",
		"ledmatrix_catalog_programs",
		`ledmatrix_http_requests_total{method="GET",path="/healthz",status="200"} 1`,
	} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}

func TestUnknownRoute(t *testing.T) {
	ctrl := gomock.NewController(t)
	srv, _ := newTestServer(t, mocks.NewMockTransport(ctrl))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status: want 404, got %d", rec.Code)
	}
}

func TestStartStop(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := mocks.NewMockTransport(ctrl)
	tr.EXPECT().IsConnected().Return(true).AnyTimes()
	srv, _ := newTestServer(t, tr)

	if err := srv.Start(testContext(t)); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := srv.Stop(testContext(t)); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	// Stopping a server that never started is a no-op
	other, _ := newTestServer(t, tr)
	if err := other.Stop(testContext(t)); err != nil {
		t.Errorf("stop without start: %v", err)
	}
}

func TestStart_AddressInUse(t *testing.T) {
	ctrl := gomock.NewController(t)
	srv, _ := newTestServer(t, mocks.NewMockTransport(ctrl))
	if err := srv.Start(testContext(t)); err != nil {
		t.Fatal(err)
	}
	defer srv.Stop(testContext(t))

	clash, _ := newTestServer(t, mocks.NewMockTransport(ctrl))
	clash.addr = srv.boundAddr()
	if err := clash.Start(testContext(t)); err == nil {
		clash.Stop(testContext(t))
		t.Fatal("expected listen error on a used address")
	}
}
