// Package observability provides operation statistics tracking for archive inspection and performance monitoring.
package observability

import (
	"sort"
	"sync"
	"time"
)

// Dispatch outcomes recorded per format.
const (
	OutcomeOK                = "ok"
	OutcomeParseError        = "parse_error"
	OutcomeContractViolation = "contract_violation"
)

// Group operations recorded per archive path.
const (
	OpRead     = "read"
	OpWrite    = "write"
	OpMerge    = "merge"
	OpSelect   = "select"
	OpValidate = "validate"
)

// OpStats tracks dispatch and group-operation frequency across an archive session.
type OpStats struct {
	mu         sync.RWMutex
	formatFreq map[string]*FormatStats
	pathFreq   map[string]*PathStats
	window     time.Duration
	counters   Snapshot
}

// FormatStats holds per-format dispatch statistics.
type FormatStats struct {
	Format    string
	Frequency int64
	LastSeen  time.Time
	Outcomes  map[string]int // outcome → count (e.g., "ok" → 5, "parse_error" → 2)
}

// PathStats holds per-path operation statistics.
type PathStats struct {
	Path      string
	Frequency int64
	LastSeen  time.Time
	Ops       map[string]int // operation → count (e.g., "read" → 12, "merge" → 1)
}

// Snapshot is a point-in-time copy of the session-wide counters.
type Snapshot struct {
	Dispatches         int64
	ParseFailures      int64
	ContractViolations int64
	Validations        int64
	ViolationsFound    int64
	Reads              int64
	Writes             int64
	Merges             int64
	Selects            int64
}

// NewOpStats creates a new operation statistics tracker.
// window: time duration for pruning old entries (e.g., 1 hour)
func NewOpStats(window time.Duration) *OpStats {
	return &OpStats{
		formatFreq: make(map[string]*FormatStats),
		pathFreq:   make(map[string]*PathStats),
		window:     window,
	}
}

// RecordDispatch records a registry dispatch for a format with its outcome.
// This method is O(1) and thread-safe.
func (o *OpStats) RecordDispatch(format, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	stats, exists := o.formatFreq[format]
	if !exists {
		stats = &FormatStats{
			Format:   format,
			Outcomes: make(map[string]int),
		}
		o.formatFreq[format] = stats
	}

	stats.Frequency++
	stats.LastSeen = time.Now()
	stats.Outcomes[outcome]++

	o.counters.Dispatches++
	switch outcome {
	case OutcomeParseError:
		o.counters.ParseFailures++
	case OutcomeContractViolation:
		o.counters.ContractViolations++
	}
}

// RecordOp records a group operation on an archive path.
// op: one of the Op* constants.
// This method is O(1) and thread-safe.
func (o *OpStats) RecordOp(path, op string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	stats, exists := o.pathFreq[path]
	if !exists {
		stats = &PathStats{
			Path: path,
			Ops:  make(map[string]int),
		}
		o.pathFreq[path] = stats
	}

	stats.Frequency++
	stats.LastSeen = time.Now()
	stats.Ops[op]++

	switch op {
	case OpRead:
		o.counters.Reads++
	case OpWrite:
		o.counters.Writes++
	case OpMerge:
		o.counters.Merges++
	case OpSelect:
		o.counters.Selects++
	case OpValidate:
		o.counters.Validations++
	}
}

// RecordViolations records schema violations found by a validation run.
func (o *OpStats) RecordViolations(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.counters.ViolationsFound += int64(n)
}

// Counters returns a copy of the session-wide counters.
func (o *OpStats) Counters() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.counters
}

// GetTopFormats returns the top N formats by dispatch frequency.
// Returns a copy of the stats sorted by frequency (descending).
func (o *OpStats) GetTopFormats(n int) []FormatStats {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if n <= 0 || len(o.formatFreq) == 0 {
		return []FormatStats{}
	}

	stats := make([]FormatStats, 0, len(o.formatFreq))
	for _, s := range o.formatFreq {
		// Deep copy to prevent external modification
		statsCopy := FormatStats{
			Format:    s.Format,
			Frequency: s.Frequency,
			LastSeen:  s.LastSeen,
			Outcomes:  make(map[string]int),
		}
		for outcome, count := range s.Outcomes {
			statsCopy.Outcomes[outcome] = count
		}
		stats = append(stats, statsCopy)
	}

	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Frequency > stats[j].Frequency
	})

	if n > len(stats) {
		n = len(stats)
	}
	return stats[:n]
}

// GetTopPaths returns the top N archive paths by operation frequency.
// Returns a copy of the stats sorted by frequency (descending).
func (o *OpStats) GetTopPaths(n int) []PathStats {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if n <= 0 || len(o.pathFreq) == 0 {
		return []PathStats{}
	}

	stats := make([]PathStats, 0, len(o.pathFreq))
	for _, s := range o.pathFreq {
		// Deep copy to prevent external modification
		statsCopy := PathStats{
			Path:      s.Path,
			Frequency: s.Frequency,
			LastSeen:  s.LastSeen,
			Ops:       make(map[string]int),
		}
		for op, count := range s.Ops {
			statsCopy.Ops[op] = count
		}
		stats = append(stats, statsCopy)
	}

	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Frequency > stats[j].Frequency
	})

	if n > len(stats) {
		n = len(stats)
	}
	return stats[:n]
}

// Prune removes entries where time.Since(LastSeen) > window.
// This should be called periodically (e.g., every 5 minutes).
// Session-wide counters are not reset.
func (o *OpStats) Prune() {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := time.Now()
	threshold := now.Add(-o.window)

	for format, stats := range o.formatFreq {
		if stats.LastSeen.Before(threshold) {
			delete(o.formatFreq, format)
		}
	}

	for path, stats := range o.pathFreq {
		if stats.LastSeen.Before(threshold) {
			delete(o.pathFreq, path)
		}
	}
}
