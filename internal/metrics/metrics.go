// Package metrics — прометеевские метрики сервиса.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/cwrk-planet/poker-service/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	roomOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poker_room_operations_total",
			Help: "Room mutations and reads by operation and result.",
		},
		[]string{"op", "result"},
	)

	roomOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "poker_room_operation_duration_seconds",
			Help:    "Latency of room operations in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	wsConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "poker_ws_connections",
			Help: "Open websocket connections.",
		},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poker_http_requests_total",
			Help: "HTTP requests by method and status code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "poker_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	grpcCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poker_grpc_calls_total",
			Help: "gRPC calls by method and status code.",
		},
		[]string{"method", "code"},
	)

	roomSubscriptions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "poker_room_subscriptions",
			Help: "Rooms with an active upstream subscription in the websocket hub.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		roomOperationsTotal,
		roomOperationDuration,
		wsConnections,
		httpRequestsTotal,
		httpRequestDuration,
		grpcCallsTotal,
		roomSubscriptions,
	)
}

// Result — метка результата операции.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrRoomNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidArgument):
		return "invalid"
	default:
		return "error"
	}
}

func ObserveOperation(op string, start time.Time, err error) {
	roomOperationsTotal.WithLabelValues(op, Result(err)).Inc()
	roomOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func ObserveHTTP(method string, status int, dur time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method).Observe(dur.Seconds())
}

func ObserveGRPC(method, code string) {
	grpcCallsTotal.WithLabelValues(method, code).Inc()
}

func WSConnected()    { wsConnections.Inc() }
func WSDisconnected() { wsConnections.Dec() }

func SetRoomSubscriptions(n int) { roomSubscriptions.Set(float64(n)) }

func Handler() http.Handler {
	return promhttp.Handler()
}
