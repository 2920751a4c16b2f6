package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/23skdu/longbow-weightwatcher/internal/logger"
	"github.com/23skdu/longbow-weightwatcher/internal/watcher"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxAlerts = 100

// HealthStatus is the body of /status.
type HealthStatus struct {
	Status       string        `json:"status"`
	Timestamp    time.Time     `json:"timestamp"`
	Version      string        `json:"version"`
	Uptime       time.Duration `json:"uptime"`
	System       SystemInfo    `json:"system"`
	LastAnalysis *AnalysisInfo `json:"last_analysis,omitempty"`
	Alerts       []Alert       `json:"alerts"`
}

type SystemInfo struct {
	GoVersion    string `json:"go_version"`
	OS           string `json:"os"`
	Arch         string `json:"arch"`
	NumCPU       int    `json:"num_cpu"`
	MemoryMB     int    `json:"memory_mb"`
	MemoryUsedMB int    `json:"memory_used_mb"`
}

// AnalysisInfo describes the most recent model analysis.
type AnalysisInfo struct {
	Model      string             `json:"model"`
	RunID      string             `json:"run_id"`
	FinishedAt time.Time          `json:"finished_at"`
	DurationMs float64            `json:"duration_ms"`
	Analyzed   int                `json:"analyzed"`
	Skipped    int                `json:"skipped"`
	Failed     int                `json:"failed"`
	Summary    map[string]float64 `json:"summary"`
	Error      string             `json:"error,omitempty"`
}

type Alert struct {
	Level     string    `json:"level"` // info, warning, error
	Component string    `json:"component"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Resolved  bool      `json:"resolved"`
}

// HealthMonitor serves liveness, run status and Prometheus metrics for a
// long running weightwatcher process.
type HealthMonitor struct {
	version   string
	startTime time.Time
	log       *logger.Logger
	server    *http.Server

	mu     sync.RWMutex
	last   *AnalysisInfo
	alerts []Alert
}

func NewHealthMonitor(version string, log *logger.Logger) *HealthMonitor {
	if log == nil {
		log = logger.Nop()
	}
	return &HealthMonitor{
		version:   version,
		startTime: time.Now(),
		log:       log,
		alerts:    make([]Alert, 0),
	}
}

func (hm *HealthMonitor) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", hm.handleHealth)
	mux.HandleFunc("/healthz", hm.handleHealth)
	mux.HandleFunc("/status", hm.handleStatus)
	mux.HandleFunc("/admin/alerts", hm.handleAlerts)
	mux.HandleFunc("/admin/clear-alerts", hm.handleClearAlerts)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Start blocks serving on addr until Stop is called.
func (hm *HealthMonitor) Start(addr string) error {
	hm.server = &http.Server{
		Addr:         addr,
		Handler:      hm.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	hm.log.Info("health monitor starting", "addr", addr)
	err := hm.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (hm *HealthMonitor) Stop(ctx context.Context) error {
	if hm.server != nil {
		return hm.server.Shutdown(ctx)
	}
	return nil
}

// RecordAnalysis stores the outcome of a run. Failed layers, empty models
// and run errors raise alerts.
func (hm *HealthMonitor) RecordAnalysis(model, runID string, s watcher.Summary, d time.Duration, runErr error) {
	info := &AnalysisInfo{
		Model:      model,
		RunID:      runID,
		FinishedAt: time.Now(),
		DurationMs: float64(d.Nanoseconds()) / 1e6,
		Analyzed:   s.Analyzed(),
		Skipped:    s.Skipped(),
		Failed:     s.Failed(),
		Summary:    s.Map(),
	}
	if runErr != nil {
		info.Error = runErr.Error()
	}

	hm.mu.Lock()
	hm.last = info
	hm.mu.Unlock()

	switch {
	case runErr != nil:
		hm.AddAlert("error", "analysis", fmt.Sprintf("%s: %v", model, runErr))
	case s.Empty():
		hm.AddAlert("warning", "analysis", fmt.Sprintf("%s: no layers analyzed", model))
	case s.Failed() > 0:
		hm.AddAlert("warning", "analysis", fmt.Sprintf("%s: %d layers failed", model, s.Failed()))
	}
}

func (hm *HealthMonitor) AddAlert(level, component, message string) {
	hm.mu.Lock()
	hm.alerts = append(hm.alerts, Alert{
		Level:     level,
		Component: component,
		Message:   message,
		Timestamp: time.Now(),
	})
	if len(hm.alerts) > maxAlerts {
		hm.alerts = hm.alerts[1:]
	}
	hm.mu.Unlock()

	hm.log.Warn("alert raised", "level", level, "component", component, "message", message)
}

func (hm *HealthMonitor) ResolveAlert(index int) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	if index >= 0 && index < len(hm.alerts) {
		hm.alerts[index].Resolved = true
	}
}

// Status is healthy unless an unresolved error alert exists.
func (hm *HealthMonitor) Status() HealthStatus {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	status := "healthy"
	for _, a := range hm.alerts {
		if a.Level == "error" && !a.Resolved {
			status = "degraded"
			break
		}
	}

	alerts := make([]Alert, len(hm.alerts))
	copy(alerts, hm.alerts)

	var last *AnalysisInfo
	if hm.last != nil {
		cp := *hm.last
		last = &cp
	}

	return HealthStatus{
		Status:       status,
		Timestamp:    time.Now(),
		Version:      hm.version,
		Uptime:       time.Since(hm.startTime),
		System:       systemInfo(),
		LastAnalysis: last,
		Alerts:       alerts,
	}
}

func (hm *HealthMonitor) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := hm.Status()
	w.Header().Set("Content-Type", "application/json")
	if status.Status == "healthy" {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":    status.Status,
		"timestamp": status.Timestamp.Format(time.RFC3339),
	})
}

func (hm *HealthMonitor) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(hm.Status())
}

func (hm *HealthMonitor) handleAlerts(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(hm.Status().Alerts)
}

func (hm *HealthMonitor) handleClearAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	hm.mu.Lock()
	hm.alerts = hm.alerts[:0]
	hm.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"message": "alerts cleared"})
}

func systemInfo() SystemInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return SystemInfo{
		GoVersion:    runtime.Version(),
		OS:           runtime.GOOS,
		Arch:         runtime.GOARCH,
		NumCPU:       runtime.NumCPU(),
		MemoryMB:     int(m.Sys / 1024 / 1024),
		MemoryUsedMB: int(m.Alloc / 1024 / 1024),
	}
}
