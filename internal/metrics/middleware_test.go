package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/v1/contacts/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Get("/v1/stats", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("{}"))
	})

	beforeTeapot := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "418"))
	beforeRoute := testutil.CollectAndCount(httpRequestDurationSeconds)

	for _, target := range []string{"/v1/contacts/1", "/v1/contacts/2", "/v1/stats"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	}

	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "418")) - beforeTeapot; got != 2 {
		t.Fatalf("418 requests = %v, want 2", got)
	}
	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "200")); got < 1 {
		t.Fatalf("200 requests = %v, want >= 1", got)
	}
	// Both contact requests share the route pattern, so at most two new series.
	if got := testutil.CollectAndCount(httpRequestDurationSeconds) - beforeRoute; got > 2 {
		t.Fatalf("new duration series = %d, want <= 2", got)
	}
}

func TestMiddlewareUnknownRoute(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	// chi only runs middleware once the mux has at least one route.
	r.Get("/v1/stats", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodPost, "404"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/missing", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodPost, "404")) - before; got != 1 {
		t.Fatalf("404 requests = %v, want 1", got)
	}
}
