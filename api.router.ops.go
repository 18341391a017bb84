package main

import (
	"net/http"
	"net/http/pprof"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// runtimeProfiles are served by name from the pprof package.
var runtimeProfiles = []string{"heap", "allocs", "goroutine", "threadcreate", "block", "mutex"}

// SetupOpsRoutes registers the operations endpoints. They skip the
// maintenance and auth middlewares so they stay reachable at all times.
func (api *APIHandler) SetupOpsRoutes(router *httprouter.Router, m *MiddlewareMap) *httprouter.Router {
	router.GET("/ops/configs", m.ops(api.GetConfigs))
	router.GET("/ops/stats", m.ops(api.GetStatistics))
	router.GET("/ops/maintenance", m.ops(api.Maintenance))
	router.GET("/ops/metrics", m.ops(api.OpsHandlerWrapper(promhttp.Handler())))
	router.GET("/ops/debug/vars", m.ops(GetMemStats))
	router.GET("/ops/debug/gc", m.ops(api.RunGC))
	router.GET("/ops/debug/fos", m.ops(api.FreeOSMemory))

	if !api.config.ProfilerEndpointsEnable {
		return router
	}

	prefix := "/ops/debug/pprof/"
	router.GET(prefix, m.ops(api.OpsHandlerWrapper(http.HandlerFunc(pprof.Index))))
	router.GET(prefix+"profile", m.ops(api.GetCPUProfile))
	router.GET(prefix+"trace", m.ops(api.GetTraceProfile))
	router.GET(prefix+"symbol", m.ops(api.GetSymbol))
	router.GET(prefix+"cmdline", m.ops(api.GetCmdLine))
	for _, name := range runtimeProfiles {
		router.GET(prefix+name, m.ops(api.OpsHandlerWrapper(pprof.Handler(name))))
	}
	return router
}
