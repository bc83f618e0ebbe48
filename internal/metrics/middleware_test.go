package metrics

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestHTTPMiddlewareLabelsRoutePattern(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	r := chi.NewRouter()
	r.Use(HTTPMiddleware)
	r.Post("/api/campaigns/{id}/pause", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	for _, id := range []string{"1", "2"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/campaigns/"+id+"/pause", nil))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
		}
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	if v := counterValue(t, m.HTTPRequestsTotal.WithLabelValues("POST", "/api/campaigns/{id}/pause", "204")); v != 2 {
		t.Errorf("pause requests = %v, want 2", v)
	}
	if v := counterValue(t, m.HTTPRequestsTotal.WithLabelValues("GET", "/health", "200")); v != 1 {
		t.Errorf("health requests = %v, want 1", v)
	}
}

func TestHTTPMiddlewareWithoutGlobal(t *testing.T) {
	SetGlobal(nil)

	h := HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}
}

func TestHTTPMiddlewareKeepsFlusher(t *testing.T) {
	SetGlobal(New())
	defer SetGlobal(nil)

	srv := httptest.NewServer(HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: 1\n\n"))
		if err := http.NewResponseController(w).Flush(); err != nil {
			t.Errorf("Flush() error = %v", err)
		}
	})))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()

	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	if err != nil {
		t.Fatalf("ReadString() error = %v", err)
	}
	if line != "data: 1\n" {
		t.Errorf("line = %q, want %q", line, "data: 1\n")
	}
}

func TestIsID(t *testing.T) {
	for in, want := range map[string]bool{
		"550e8400-e29b-41d4-a716-446655440000": true,
		"550E8400-E29B-41D4-A716-446655440000": true,
		"42":                                   true,
		"not-a-uuid":                           false,
		"550e8400e29b41d4a716446655440000":     false,
		"":                                     false,
		"campaigns":                            false,
		"550e8400-e29b-41d4-a716-44665544000":  false,
	} {
		if got := isID(in); got != want {
			t.Errorf("isID(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRouteLabelFallback(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/campaigns/17/pause", nil)
	if got := routeLabel(req); got != "/api/campaigns/{id}/pause" {
		t.Errorf("routeLabel() = %q, want /api/campaigns/{id}/pause", got)
	}
}
