package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"sales-engine/internal/domain"
)

const namespace = "sales_engine"

// Recorder implements domain.MetricsRecorder on Prometheus collectors.
type Recorder struct {
	bids                *prometheus.CounterVec
	offers              *prometheus.CounterVec
	settlements         *prometheus.CounterVec
	settlementDuration  *prometheus.HistogramVec
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)

	return &Recorder{
		bids: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bid",
			Name:      "placed_total",
			Help:      "Bids received by result",
		}, []string{"result"}),

		offers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auction",
			Name:      "offers_total",
			Help:      "Auction offers received by result",
		}, []string{"result"}),

		settlements: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "total",
			Help:      "Settlement attempts by sale kind and outcome",
		}, []string{"kind", "outcome"}),

		settlementDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "duration_seconds",
			Help:      "Settlement duration including gateway calls",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"kind"}),

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),

		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func result(accepted bool) string {
	if accepted {
		return "accepted"
	}
	return "rejected"
}

func (r *Recorder) RecordBid(accepted bool) {
	r.bids.WithLabelValues(result(accepted)).Inc()
}

func (r *Recorder) RecordOffer(accepted bool) {
	r.offers.WithLabelValues(result(accepted)).Inc()
}

func (r *Recorder) RecordSettlement(kind domain.SaleKind, outcome string, elapsed time.Duration) {
	r.settlements.WithLabelValues(string(kind), outcome).Inc()
	r.settlementDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

// Middleware counts and times every request by its route pattern.
func (r *Recorder) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			} else if err != nil && !c.Response().Committed {
				status = http.StatusInternalServerError
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			r.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			r.httpRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
