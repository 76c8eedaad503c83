package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"sales-engine/internal/domain"
)

func TestRecorder_Counters(t *testing.T) {
	r := NewRecorder(prometheus.NewRegistry())

	r.RecordBid(true)
	r.RecordBid(false)
	r.RecordBid(false)
	r.RecordOffer(true)
	r.RecordSettlement(domain.SaleKindBid, "success", 20*time.Millisecond)
	r.RecordSettlement(domain.SaleKindAuction, "payment_failed", time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.bids.WithLabelValues("accepted")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.bids.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.offers.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.settlements.WithLabelValues("bid", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.settlements.WithLabelValues("auction", "payment_failed")))
	assert.Equal(t, 2, testutil.CollectAndCount(r.settlementDuration))
}

func TestRecorder_Middleware(t *testing.T) {
	r := NewRecorder(prometheus.NewRegistry())
	e := echo.New()
	e.Use(r.Middleware())
	e.GET("/api/v1/bids/:id", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	for _, path := range []string{"/api/v1/bids/1", "/api/v1/bids/2", "/nowhere"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(r.httpRequests.WithLabelValues("GET", "/api/v1/bids/:id", "200")))
	assert.Equal(t, 2, testutil.CollectAndCount(r.httpRequests), "one series per route and status")
}

func TestRecorder_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewRecorder(reg)
	assert.Panics(t, func() { NewRecorder(reg) })
}
