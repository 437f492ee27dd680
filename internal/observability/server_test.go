package observability

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danmuck/deskwire/internal/testutil/testlog"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestStatusServerRoutes(t *testing.T) {
	testlog.Start(t)
	s := NewStatusServer("deskctl", "127.0.0.1:0", nil, func() any {
		return map[string]any{"state": "connected", "pending": 2}
	})

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"deskctl"`) {
		t.Fatalf("health got=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	var status map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("status body: %v", err)
	}
	if status["state"] != "connected" || status["pending"] != float64(2) {
		t.Fatalf("status got=%v", status)
	}

	RecordFastPath("pong")
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "deskwire_tunnel_fast_path_replies_total") {
		t.Fatalf("metrics missing tunnel counters")
	}
}

func TestStatusServerWithoutStatusFunc(t *testing.T) {
	testlog.Start(t)
	s := NewStatusServer("deskpeer", "127.0.0.1:0", []string{"http://example.test"}, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "deskpeer") {
		t.Fatalf("status got=%d body=%s", rec.Code, rec.Body.String())
	}
	if got := normalizeOrigins(nil); len(got) != 1 {
		t.Fatalf("default origins got=%v", got)
	}
}

func TestUnmatchedRoutesShareOneLabel(t *testing.T) {
	testlog.Start(t)
	s := NewStatusServer("deskstatus", "127.0.0.1:0", nil, nil)
	for _, path := range []string{"/a", "/b/c", "/d?x=1"} {
		rec := httptest.NewRecorder()
		s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s got=%d", path, rec.Code)
		}
	}
	got := testutil.ToFloat64(httpRequests.WithLabelValues("deskstatus", http.MethodGet, "unmatched", "404"))
	if got != 3 {
		t.Fatalf("unmatched requests got=%v", got)
	}
}
