package server

import (
	"net/http"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// handleHealth reports service liveness plus basic host metrics.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "ok",
		"uptime":    time.Since(s.started).Round(time.Second).String(),
		"in_flight": s.coordinator.InFlight(),
	}

	if cpuPercent, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(cpuPercent) > 0 {
		health["cpu_percent"] = cpuPercent[0]
	}
	if memStat, err := mem.VirtualMemory(); err == nil {
		health["memory_percent"] = memStat.UsedPercent
	}

	s.writeJSON(w, http.StatusOK, health)
}
