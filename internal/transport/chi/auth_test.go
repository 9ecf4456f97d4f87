package chi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	for _, keys := range [][]string{nil, {"", ""}} {
		handler := BearerAuthMiddleware(keys)(okHandler())

		req := httptest.NewRequest("GET", "/documents", http.NoBody)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("keys %q: got %d, want %d", keys, rr.Code, http.StatusOK)
		}
	}
}

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"missing header", "/documents", "", http.StatusUnauthorized},
		{"basic scheme", "/documents", "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
		{"scheme only", "/documents", "Bearer", http.StatusUnauthorized},
		{"empty token", "/documents", "Bearer   ", http.StatusUnauthorized},
		{"invalid token", "/search", "Bearer wrong-key", http.StatusUnauthorized},
		{"prefix of key", "/search", "Bearer key", http.StatusUnauthorized},
		{"first key", "/documents", "Bearer key1", http.StatusOK},
		{"second key", "/ask", "Bearer key2", http.StatusOK},
		{"lowercase scheme", "/ask", "bearer key2", http.StatusOK},
		{"health exempt", "/health", "", http.StatusOK},
		{"metrics exempt", "/metrics", "", http.StatusOK},
		{"usage not exempt", "/usage", "", http.StatusUnauthorized},
	}
	handler := BearerAuthMiddleware([]string{"key1", "key2"}, DefaultExemptPaths...)(okHandler())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.want {
				t.Fatalf("got %d, want %d", rr.Code, tt.want)
			}
			if tt.want != http.StatusUnauthorized {
				return
			}
			if rr.Header().Get("WWW-Authenticate") == "" {
				t.Error("401 without WWW-Authenticate challenge")
			}
			var errResp ErrorResponse
			if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
				t.Fatalf("decode error response: %v", err)
			}
			if errResp.Code != CodeUnauthorized {
				t.Errorf("error code: got %s, want %s", errResp.Code, CodeUnauthorized)
			}
		})
	}
}

func TestAuthMiddleware_NoExemptions(t *testing.T) {
	handler := BearerAuthMiddleware([]string{"key1"})(okHandler())
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/health", http.NoBody))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("got %d, want 401 without exempt paths", rr.Code)
	}
}

func TestAuthMiddleware_LogsKeyFingerprint(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := WideEvent(zap.New(core))(BearerAuthMiddleware([]string{"key1", "key2"})(okHandler()))

	for _, key := range []string{"key1", "key2"} {
		req := httptest.NewRequest("GET", "/documents", http.NoBody)
		req.Header.Set("Authorization", "Bearer "+key)
		h.ServeHTTP(httptest.NewRecorder(), req)
	}

	entries := logs.FilterMessage("http_request").All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 log lines, got %d", len(entries))
	}
	first, _ := entries[0].ContextMap()["api_key_id"].(string)
	second, _ := entries[1].ContextMap()["api_key_id"].(string)
	if len(first) != 8 || len(second) != 8 || first == second {
		t.Errorf("fingerprints = %q, %q", first, second)
	}
	if first == "key1" {
		t.Error("raw key must not be logged")
	}
}
