package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubHealth struct{ healthy bool }

func (s stubHealth) Healthy(context.Context) bool { return s.healthy }

func TestHealthEndpoint(t *testing.T) {
	hs := NewHealthServer(":0", stubHealth{healthy: true})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	hs.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp healthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "ok" || resp.Service != "lumi" {
		t.Errorf("unexpected health response: %+v", resp)
	}
}

func TestStatusEndpointReportsMemoryHealth(t *testing.T) {
	tests := []struct {
		name    string
		healthy bool
		want    string
	}{
		{"healthy store", true, "ok"},
		{"unreachable store", false, "unreachable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hs := NewHealthServer(":0", stubHealth{healthy: tt.healthy})

			req := httptest.NewRequest(http.MethodGet, "/status", nil)
			w := httptest.NewRecorder()
			hs.ServeHTTP(w, req)

			var resp statusResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.MemoryStore != tt.want {
				t.Errorf("memory_store = %q, want %q", resp.MemoryStore, tt.want)
			}
		})
	}
}

func TestHomeEndpoint(t *testing.T) {
	hs := NewHealthServer(":0", stubHealth{healthy: true})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	hs.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp homeResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "active" || len(resp.Features) == 0 {
		t.Errorf("unexpected home response: %+v", resp)
	}
}

func TestExtraRouteRegistration(t *testing.T) {
	hs := NewHealthServer(":0", stubHealth{healthy: true})
	hs.Handle("/callback", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodPost, "/callback", nil)
	w := httptest.NewRecorder()
	hs.ServeHTTP(w, req)
	if w.Code != http.StatusTeapot {
		t.Errorf("expected registered handler to serve /callback, got %d", w.Code)
	}
}
