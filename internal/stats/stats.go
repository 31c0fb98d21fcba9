// Package stats accumulates the end-of-run summary.
package stats

import (
	"fmt"
	"sync"
	"time"

	"runcommand/internal/logging"
)

// Statistics is a point-in-time copy of the run counters
type Statistics struct {
	StartTime    time.Time
	TotalTargets int
	Succeeded    int
	Failed       int
	BytesWritten int64
	Elapsed      time.Duration
}

// Completed returns the number of targets that finished either way.
func (s Statistics) Completed() int {
	return s.Succeeded + s.Failed
}

// StatsTracker counts worker outcomes. It is safe for concurrent use.
type StatsTracker struct {
	mu    sync.RWMutex
	stats Statistics
}

// NewStatsTracker creates a tracker for a run over totalTargets controllers
func NewStatsTracker(totalTargets int) *StatsTracker {
	return &StatsTracker{
		stats: Statistics{
			StartTime:    time.Now(),
			TotalTargets: totalTargets,
		},
	}
}

// Record adds one finished target.
func (st *StatsTracker) Record(success bool, bytesWritten int64) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if success {
		st.stats.Succeeded++
		st.stats.BytesWritten += bytesWritten
	} else {
		st.stats.Failed++
	}
}

// GetStatistics returns a copy of current statistics
func (st *StatsTracker) GetStatistics() Statistics {
	st.mu.RLock()
	defer st.mu.RUnlock()

	s := st.stats
	s.Elapsed = time.Since(s.StartTime)
	return s
}

// Log writes the summary as a single record.
func (st *StatsTracker) Log(logger *logging.Logger) {
	s := st.GetStatistics()
	logger.Info("run summary",
		"targets", s.TotalTargets,
		"succeeded", s.Succeeded,
		"failed", s.Failed,
		"not_run", s.TotalTargets-s.Completed(),
		"written", formatBytes(s.BytesWritten),
		"elapsed", s.Elapsed.Round(time.Millisecond).String(),
	)
}

// formatBytes formats byte count in human readable format
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
