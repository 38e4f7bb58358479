package api

import (
	"database/sql"
	"net/http"
	"runtime"
	"time"
)

// DBStatsProvider exposes connection pool statistics. Satisfied by
// *sql.DB and *database.DB.
type DBStatsProvider interface {
	Stats() sql.DBStats
}

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	WebSocket     WSMetrics        `json:"websocket"`
	Devices       DeviceMetrics    `json:"devices"`
	Scan          *ScanMetrics     `json:"scan,omitempty"`
	Database      *DatabaseMetrics `json:"database,omitempty"`
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

// DeviceMetrics contains device registry statistics.
type DeviceMetrics struct {
	Total   int            `json:"total"`
	ByState map[string]int `json:"by_state"`
}

// ScanMetrics summarises the discovery session.
type ScanMetrics struct {
	State      string `json:"state"`
	Mode       string `json:"mode"`
	Registered int    `json:"registered"`
	StopReason string `json:"stop_reason,omitempty"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns process, registry and storage metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
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

	regStats := s.registry.Stats()
	metrics.Devices = DeviceMetrics{
		Total:   regStats.Total,
		ByState: make(map[string]int, len(regStats.ByState)),
	}
	for state, count := range regStats.ByState {
		metrics.Devices.ByState[string(state)] = count
	}

	if s.scan != nil {
		st := s.scan.Status()
		metrics.Scan = &ScanMetrics{
			State:      st.State,
			Mode:       st.Mode,
			Registered: st.Registered,
			StopReason: st.StopReason,
		}
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
