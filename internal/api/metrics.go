package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/gray-logic-home/internal/bridges/launcher"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Runtime       RuntimeMetrics    `json:"runtime"`
	WebSocket     WSMetrics         `json:"websocket"`
	MQTT          MQTTMetrics       `json:"mqtt"`
	Capabilities  CapabilityMetrics `json:"capabilities"`
	Home          HomeMetrics       `json:"home"`

	BridgeProcesses []launcher.Stats `json:"bridge_processes,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// CapabilityMetrics counts supervised capability kinds.
type CapabilityMetrics struct {
	Registered int `json:"registered"`
	Available  int `json:"available"`
	Demoted    int `json:"demoted"`
}

// HomeMetrics summarises the orchestrator.
type HomeMetrics struct {
	SystemState   string `json:"system_state"`
	ArmingPending bool   `json:"arming_pending"`
	ConfigVersion uint64 `json:"config_version"`
}

// handleMetrics returns system metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
	}

	if s.mqtt != nil {
		metrics.MQTT = MQTTMetrics{Connected: s.mqtt.IsConnected()}
	}

	if s.capabilities != nil {
		for _, st := range s.capabilities.Statuses() {
			metrics.Capabilities.Registered++
			if st.Available {
				metrics.Capabilities.Available++
			}
			if st.Demoted {
				metrics.Capabilities.Demoted++
			}
		}
	}

	if s.processes != nil {
		metrics.BridgeProcesses = s.processes.Stats()
	}

	if snap, err := s.home.Snapshot(r.Context()); err == nil {
		metrics.Home = HomeMetrics{
			SystemState:   string(snap.SystemState),
			ArmingPending: snap.ArmingPending,
			ConfigVersion: snap.ConfigVersion,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
