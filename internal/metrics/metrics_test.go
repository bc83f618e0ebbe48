package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c interface{ Write(*dto.Metric) error }) float64 {
	t.Helper()
	var metric dto.Metric
	if err := c.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Counter != nil {
		return metric.Counter.GetValue()
	}
	return metric.Gauge.GetValue()
}

func TestNew(t *testing.T) {
	m := New()
	if m == nil {
		t.Fatal("New() returned nil")
	}
	if m.Registry() == nil {
		t.Error("Registry() returned nil")
	}
	if m.SocketEventsTotal == nil {
		t.Error("SocketEventsTotal is nil")
	}
	if m.BackendRequestsTotal == nil {
		t.Error("BackendRequestsTotal is nil")
	}
	if m.CampaignActionsTotal == nil {
		t.Error("CampaignActionsTotal is nil")
	}
}

func TestGlobalMetrics(t *testing.T) {
	SetGlobal(nil)
	if Global() != nil {
		t.Error("Global() should be nil before SetGlobal")
	}

	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	if Global() != m {
		t.Error("Global() did not return the set metrics")
	}
}

func TestHelpersWithoutGlobal(t *testing.T) {
	SetGlobal(nil)

	// Must not panic
	IncSocketEvent("campaign_progress")
	IncSocketReconnect()
	SetSocketConnected(true)
	AddRecipientsResolved("csv", 3, 1)
	ObserveBackendRequest("GET", "200", 0.1)
	IncCampaignAction("pause", nil)
	SetCampaignGauges(1, 1)
}

func TestIncSocketEvent(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	IncSocketEvent("campaign_progress")
	IncSocketEvent("campaign_progress")
	IncSocketEvent("new_message")

	counter, err := m.SocketEventsTotal.GetMetricWithLabelValues("campaign_progress")
	if err != nil {
		t.Fatalf("Failed to get counter: %v", err)
	}
	if got := counterValue(t, counter); got != 2 {
		t.Errorf("Expected counter value 2, got %f", got)
	}
}

func TestAddRecipientsResolved(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	AddRecipientsResolved("csv", 5, 2)
	AddRecipientsResolved("manual", 1, 0)

	counter, err := m.RecipientsResolvedTotal.GetMetricWithLabelValues("csv")
	if err != nil {
		t.Fatalf("Failed to get counter: %v", err)
	}
	if got := counterValue(t, counter); got != 5 {
		t.Errorf("Expected 5 csv recipients, got %f", got)
	}
	if got := counterValue(t, m.RecipientsDroppedTotal); got != 2 {
		t.Errorf("Expected 2 dropped, got %f", got)
	}
}

func TestIncCampaignAction(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	IncCampaignAction("pause", nil)
	IncCampaignAction("pause", errors.New("boom"))
	IncCampaignAction("pause", errors.New("boom"))

	counter, err := m.CampaignActionsTotal.GetMetricWithLabelValues("pause", "error")
	if err != nil {
		t.Fatalf("Failed to get counter: %v", err)
	}
	if got := counterValue(t, counter); got != 2 {
		t.Errorf("Expected 2 failed pauses, got %f", got)
	}
}

func TestSocketConnectedGauge(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	SetSocketConnected(true)
	if got := counterValue(t, m.SocketConnected); got != 1 {
		t.Errorf("Expected connected gauge 1, got %f", got)
	}
	SetSocketConnected(false)
	if got := counterValue(t, m.SocketConnected); got != 0 {
		t.Errorf("Expected connected gauge 0, got %f", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	IncSocketReconnect()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "zapdesk_socket_reconnects_total 1") {
		t.Error("Expected reconnect counter in scrape output")
	}
}
