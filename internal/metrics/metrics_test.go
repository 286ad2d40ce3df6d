package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func scrape(t *testing.T) string {
	t.Helper()
	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
	return w.Body.String()
}

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/events/{eventID}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, id := range []string{"a", "b", "c"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/events/"+id, nil))
	}

	want := `urgency_http_requests_total{method="GET",path="/events/{eventID}",status="418"} 3`
	if body := scrape(t); !strings.Contains(body, want) {
		t.Errorf("metrics output missing %s", want)
	}
}

func TestMiddleware_UnmatchedRoutes(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/known", func(http.ResponseWriter, *http.Request) {})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope/123", nil))

	want := `urgency_http_requests_total{method="GET",path="unmatched",status="404"} 1`
	body := scrape(t)
	if !strings.Contains(body, want) {
		t.Errorf("metrics output missing %s", want)
	}
	if strings.Contains(body, "/nope/123") {
		t.Error("raw path leaked into labels")
	}
}

func TestDomainMetricsRegistered(t *testing.T) {
	QuotesTotal.WithLabelValues("high", "computed").Inc()
	ConfigFallbacks.WithLabelValues("pricing").Inc()

	body := scrape(t)
	for _, name := range []string{"urgency_quotes_total", "urgency_config_fallbacks_total", "urgency_websocket_clients"} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}
