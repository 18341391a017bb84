package main

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "library_http_requests_total",
		Help: "Total number of HTTP requests handled by the api",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "library_http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"path"})

	LoanOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "library_loan_operations_total",
		Help: "Total number of successful loan state changes",
	}, []string{"operation"})

	LoanEventsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "library_loan_events_consumed_total",
		Help: "Total number of loan events saved into the ledger",
	}, []string{"queue"})
)

// routeSegments lists the static path segments served by the router.
// Any other segment is reported as a parameter.
var routeSegments = map[string]struct{}{
	"api": {}, "auth": {}, "login": {}, "register": {}, "create-admin": {},
	"libros": {}, "mis-prestamos": {}, "categorias": {}, "prestar": {},
	"admin": {}, "usuarios": {}, "prestamos": {}, "activos": {}, "multas": {},
	"diagnostico": {}, "actualizar-multas": {}, "devolver": {}, "pagar-multa": {},
	"historial": {}, "upload": {}, "imagen": {}, "status": {},
	"ops": {}, "configs": {}, "stats": {}, "maintenance": {}, "metrics": {},
	"debug": {}, "vars": {}, "gc": {}, "fos": {},
}

const (
	maxRouteSegments = 5
	pprofRoutePrefix = "/ops/debug/pprof/"
)

// RouteLabel maps a request path to a bounded set of metrics labels.
// Unknown segments become `:id` and catch-all routes keep their pattern.
func RouteLabel(path string) string {
	switch {
	case strings.HasPrefix(path, UploadsRoutePrefix):
		return UploadsRoutePrefix + "*filepath"
	case strings.HasPrefix(path, "/swagger/"):
		return "/swagger/*any"
	case strings.HasPrefix(path, pprofRoutePrefix):
		return pprofRoutePrefix + "*profile"
	}
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(segments) > maxRouteSegments {
		segments = append(segments[:maxRouteSegments], "*")
	}
	for i, s := range segments {
		if s == "" || s == "*" {
			continue
		}
		if _, known := routeSegments[s]; !known {
			segments[i] = ":id"
		}
	}
	return "/" + strings.Join(segments, "/")
}
