package observability

import (
	"math"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/ent0n29/intakedesk/internal/transport"
)

// Outcome labels for backend calls that did not fail with a backend status.
const (
	OutcomeOK      = "ok"
	OutcomeNetwork = "network"
	OutcomeOther   = "other"
)

// p95Targets are the latency budgets the UI is tuned for.
var p95Targets = map[string]time.Duration{
	transport.OpStartConversation: 3 * time.Second,
	transport.OpMessage:           8 * time.Second,
}

// OperationStats summarises the calls to one backend operation still in the window.
type OperationStats struct {
	Operation   string         `json:"operation"`
	Calls       int            `json:"calls"`
	SuccessRate float64        `json:"success_rate"`
	Outcomes    map[string]int `json:"outcomes"`
	LastMS      float64        `json:"last_ms"`
	AvgMS       float64        `json:"avg_ms"`
	P50MS       float64        `json:"p50_ms"`
	P95MS       float64        `json:"p95_ms"`
	P99MS       float64        `json:"p99_ms"`
	TargetP95MS float64        `json:"target_p95_ms,omitempty"`
	OverTarget  int            `json:"over_target,omitempty"`
}

type LatencySnapshot struct {
	GeneratedAt time.Time        `json:"generated_at"`
	WindowSize  int              `json:"window_size"`
	Operations  []OperationStats `json:"operations"`
}

type backendCall struct {
	ms      float64
	outcome string
}

// callLog keeps the most recent calls of one operation, oldest overwritten first.
type callLog struct {
	calls []backendCall
	head  int
	last  backendCall
}

func (l *callLog) add(c backendCall, limit int) {
	l.last = c
	if len(l.calls) < limit {
		l.calls = append(l.calls, c)
		return
	}
	l.calls[l.head] = c
	l.head = (l.head + 1) % limit
}

type latencyWindow struct {
	mu    sync.Mutex
	limit int
	ops   map[string]*callLog
}

func newLatencyWindow(limit int) *latencyWindow {
	if limit <= 0 {
		limit = 256
	}
	return &latencyWindow{limit: limit, ops: make(map[string]*callLog)}
}

func (w *latencyWindow) Record(op string, elapsed time.Duration, outcome string) {
	if op == "" || elapsed < 0 {
		return
	}
	if outcome == "" {
		outcome = OutcomeOther
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	log, ok := w.ops[op]
	if !ok {
		log = &callLog{}
		w.ops[op] = log
	}
	log.add(backendCall{ms: float64(elapsed) / float64(time.Millisecond), outcome: outcome}, w.limit)
}

func (w *latencyWindow) Snapshot() LatencySnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	names := make([]string, 0, len(w.ops))
	for op := range w.ops {
		names = append(names, op)
	}
	sort.Strings(names)

	stats := make([]OperationStats, 0, len(names))
	for _, op := range names {
		if s, ok := summarize(op, w.ops[op]); ok {
			stats = append(stats, s)
		}
	}
	return LatencySnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.limit,
		Operations:  stats,
	}
}

func summarize(op string, log *callLog) (OperationStats, bool) {
	n := len(log.calls)
	if n == 0 {
		return OperationStats{}, false
	}
	target := float64(p95Targets[op] / time.Millisecond)
	s := OperationStats{
		Operation:   op,
		Calls:       n,
		Outcomes:    make(map[string]int),
		LastMS:      round2(log.last.ms),
		TargetP95MS: target,
	}

	latencies := make([]float64, 0, n)
	var total float64
	for _, c := range log.calls {
		s.Outcomes[c.outcome]++
		latencies = append(latencies, c.ms)
		total += c.ms
		if target > 0 && c.ms > target {
			s.OverTarget++
		}
	}
	slices.Sort(latencies)

	s.SuccessRate = round2(float64(s.Outcomes[OutcomeOK]) / float64(n))
	s.AvgMS = round2(total / float64(n))
	s.P50MS = round2(nearestRank(latencies, 50))
	s.P95MS = round2(nearestRank(latencies, 95))
	s.P99MS = round2(nearestRank(latencies, 99))
	return s, true
}

// nearestRank returns the smallest sample with at least pct percent of the
// sorted samples at or below it.
func nearestRank(sorted []float64, pct int) float64 {
	rank := int(math.Ceil(float64(pct) / 100 * float64(len(sorted))))
	rank = max(1, min(rank, len(sorted)))
	return sorted[rank-1]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
