// internal/metrics/metrics_test.go

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInstrument_ObservesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Instrument)
	r.Get("/tours/{slug}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.CollectAndCount(HTTPRequestDuration)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tours/showroom", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want 418", rec.Code)
	}

	if after := testutil.CollectAndCount(HTTPRequestDuration); after != before+1 {
		t.Fatalf("series = %d, want %d", after, before+1)
	}
}

func TestRelayCounters(t *testing.T) {
	RelaySubmissionsTotal.WithLabelValues("sent").Inc()
	if got := testutil.ToFloat64(RelaySubmissionsTotal.WithLabelValues("sent")); got < 1 {
		t.Fatalf("relay_submissions_total{sent} = %v", got)
	}
}
