package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHelpersAreSafeBeforeInit(t *testing.T) {
	if httpRequests != nil {
		t.Skip("metrics already registered by another test")
	}
	ObserveHTTP("/api/status", http.MethodGet, 200, time.Millisecond)
	ObserveCollection(errors.New("boom"), time.Millisecond)
	ObserveStorage("store_snapshot", nil, time.Millisecond)
	SetStorageSize(10)
	IncAlertRaised("CpuTemperature")
	IncAlertDropped()
	SetWebSocketConnections(1)
	ObserveWebSocketSend("metrics", nil)
	ObserveAuth("pair", true)
	ObserveNotify("log", nil)
}

func TestHandlerExposesRegisteredSeries(t *testing.T) {
	Init()
	Init()

	ObserveHTTP("/api/status", http.MethodGet, 200, 5*time.Millisecond)
	IncAlertRaised("CpuTemperature")
	SetWebSocketConnections(2)

	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{
		`syslink_http_requests_total{method="GET",route="/api/status",status="200"}`,
		`syslink_alerts_raised_total{type="CpuTemperature"}`,
		`syslink_websocket_connections 2`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected exposition to contain %q", want)
		}
	}
}
