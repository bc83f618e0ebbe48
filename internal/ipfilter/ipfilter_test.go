package ipfilter

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		entries []string
		want    []string
		wantErr bool
	}{
		{name: "empty", entries: nil, want: nil},
		{name: "single IPv4", entries: []string{"192.168.1.1"}, want: []string{"192.168.1.1/32"}},
		{name: "single IPv6", entries: []string{"::1"}, want: []string{"::1/128"}},
		{name: "CIDR is masked", entries: []string{"10.1.2.3/8"}, want: []string{"10.0.0.0/8"}},
		{name: "blank entries skipped", entries: []string{" ", "127.0.0.1 "}, want: []string{"127.0.0.1/32"}},
		{name: "invalid IP", entries: []string{"not-an-ip"}, wantErr: true},
		{name: "invalid CIDR", entries: []string{"10.0.0.0/99"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.entries)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Parse() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i].String() != tt.want[i] {
					t.Errorf("Parse()[%d] = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestAllowed(t *testing.T) {
	f, err := New([]string{"127.0.0.1", "10.0.0.0/8", "fd00::/8"}, newTestLogger())
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		ip   string
		want bool
	}{
		{"127.0.0.1", true},
		{"10.20.30.40", true},
		{"::ffff:10.0.0.1", true},
		{"fd00::1", true},
		{"192.168.1.1", false},
		{"2001:db8::1", false},
	}
	for _, tt := range tests {
		if got := f.Allowed(netip.MustParseAddr(tt.ip)); got != tt.want {
			t.Errorf("Allowed(%s) = %v, want %v", tt.ip, got, tt.want)
		}
	}
}

func TestEmptyFilterAllowsAll(t *testing.T) {
	f, err := New(nil, newTestLogger())
	if err != nil {
		t.Fatal(err)
	}
	if f.Enabled() {
		t.Error("empty filter should be disabled")
	}
	if !f.Allowed(netip.MustParseAddr("203.0.113.9")) {
		t.Error("empty filter should allow everything")
	}
}

func TestMiddleware(t *testing.T) {
	f, err := New([]string{"192.168.0.0/16"}, newTestLogger())
	if err != nil {
		t.Fatal(err)
	}
	handler := f.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		remoteAddr string
		want       int
	}{
		{"192.168.1.100:12345", http.StatusOK},
		{"192.168.1.100", http.StatusOK},
		{"10.0.0.1:12345", http.StatusForbidden},
		{"garbage", http.StatusForbidden},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/campaigns", nil)
		req.RemoteAddr = tt.remoteAddr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Errorf("RemoteAddr %s: status = %d, want %d", tt.remoteAddr, rec.Code, tt.want)
		}
	}
}
