package profiling

import (
	"log"
	"runtime"
	"time"
)

// WorkerProfiler times one fit on a pool worker
type WorkerProfiler struct {
	startTime   time.Time
	startMemory uint64
	workerID    int
	operation   string
}

// NewWorkerProfiler creates a new worker profiler
func NewWorkerProfiler(workerID int, operation string) *WorkerProfiler {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return &WorkerProfiler{
		startTime:   time.Now(),
		startMemory: m.Alloc,
		workerID:    workerID,
		operation:   operation,
	}
}

// Finish logs the elapsed time and heap delta
func (wp *WorkerProfiler) Finish() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	memoryDelta := int64(m.Alloc) - int64(wp.startMemory)
	log.Printf("🔍 Worker[%d] %s: %.3fms, memory: %+d bytes, goroutines: %d",
		wp.workerID, wp.operation, ms(time.Since(wp.startTime)), memoryDelta, runtime.NumGoroutine())
}

// WebhookProfiler times one webhook delivery
type WebhookProfiler struct {
	startTime time.Time
	requestID string
}

// NewWebhookProfiler creates a new webhook profiler
func NewWebhookProfiler(requestID string) *WebhookProfiler {
	return &WebhookProfiler{startTime: time.Now(), requestID: requestID}
}

// Finish logs the delivery time
func (whp *WebhookProfiler) Finish(success bool) {
	status := "✅"
	if !success {
		status = "❌"
	}
	log.Printf("🌐 Webhook[%s] %s: %.3fms", whp.requestID, status, ms(time.Since(whp.startTime)))
}

// GCStats provides garbage collection statistics
type GCStats struct {
	NumGC        uint32        `json:"num_gc"`
	PauseTotal   time.Duration `json:"pause_total_ns"`
	PauseRecent  time.Duration `json:"pause_recent_ns"`
	LastGC       time.Time     `json:"last_gc"`
	GCCPUPercent float64       `json:"cpu_percent"`
}

// GetGCStats returns current garbage collection statistics
func GetGCStats() GCStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return gcStats(&m)
}

func gcStats(m *runtime.MemStats) GCStats {
	var recentPause time.Duration
	if m.NumGC > 0 {
		recentPause = time.Duration(m.PauseNs[(m.NumGC+255)%256])
	}
	return GCStats{
		NumGC:        m.NumGC,
		PauseTotal:   time.Duration(m.PauseTotalNs),
		PauseRecent:  recentPause,
		LastGC:       time.Unix(0, int64(m.LastGC)),
		GCCPUPercent: m.GCCPUFraction * 100,
	}
}

// LogGCStats logs garbage collection statistics
func LogGCStats() {
	stats := GetGCStats()
	log.Printf("🗑️  GC: Runs=%d, TotalPause=%.2fms, RecentPause=%.2fμs, CPU=%.2f%%, LastGC=%s",
		stats.NumGC, ms(stats.PauseTotal), float64(stats.PauseRecent.Nanoseconds())/1000.0,
		stats.GCCPUPercent, stats.LastGC.Format("15:04:05"))
}

// ForceGC triggers garbage collection and returns the resulting statistics
func ForceGC() GCStats {
	before := GetGCStats()
	runtime.GC()
	after := GetGCStats()

	log.Printf("🗑️  Forced GC: %d→%d runs, pause: %.2fμs",
		before.NumGC, after.NumGC, float64(after.PauseRecent.Nanoseconds())/1000.0)
	return after
}

func ms(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e6
}
