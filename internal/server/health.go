package server

import (
	"fmt"
	"net/http"
	"runtime"
	"time"
)

var startedAt = time.Now()

// HealthAPI handles GET /health (spec §6). Always answers 200 once the
// process is serving; the status is "ok", or "degraded" when the
// persistence ping fails, rather than failing the check, since most Management API operations
// still function (archetype CRUD needs persist, but /mcp's synthesis-only
// handlers do not).
func (s *Server) HealthAPI(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if s.persist != nil {
		if db := s.persist.DB(); db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				status = "degraded"
			}
		}
	}

	httpResponseJSON(w, map[string]any{
		"status":     status,
		"uptime_sec": int64(time.Since(startedAt).Seconds()),
	}, http.StatusOK)
}

// MetricsAPI handles GET /metrics with a minimal Prometheus text exposition
// of process-level gauges. The gateway's telemetry middleware pushes
// traces/metrics via OTLP (see config.Telemetry); there is no pull-based
// Prometheus client in go.mod, so this hand-rolled exposition covers the
// scrape-endpoint contract spec §6 asks for without fabricating a
// dependency.
func (s *Server) MetricsAPI(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "# HELP metis_uptime_seconds Seconds since process start.\n")
	fmt.Fprintf(w, "# TYPE metis_uptime_seconds counter\n")
	fmt.Fprintf(w, "metis_uptime_seconds %f\n", time.Since(startedAt).Seconds())
	fmt.Fprintf(w, "# HELP metis_goroutines Current goroutine count.\n")
	fmt.Fprintf(w, "# TYPE metis_goroutines gauge\n")
	fmt.Fprintf(w, "metis_goroutines %d\n", runtime.NumGoroutine())
	fmt.Fprintf(w, "# HELP metis_heap_alloc_bytes Bytes of allocated heap objects.\n")
	fmt.Fprintf(w, "# TYPE metis_heap_alloc_bytes gauge\n")
	fmt.Fprintf(w, "metis_heap_alloc_bytes %d\n", mem.HeapAlloc)
}
