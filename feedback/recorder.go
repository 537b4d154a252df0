package feedback

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/aiser/queryengine/internal/metrics"
)

const defaultHistoryCapacity = 256

// AgentStats aggregates one pipeline stage's recorded history.
type AgentStats struct {
	Stage        string
	Successes    int64
	Failures     int64
	SuccessRate  float64
	AvgLatencyMs float64
	SampleCount  int
}

// ErrorCount is one entry of a top-N error-pattern breakdown.
type ErrorCount struct {
	Subtype string
	Count   int64
}

type sample struct {
	ok         bool
	durationMs int64
}

// agentHistory is a fixed-capacity ring of recent stage outcomes, mirroring
// cache.LRUCache's bounded/mutex-protected shape but without an eviction
// policy to choose: the ring simply overwrites its oldest slot.
type agentHistory struct {
	mu          sync.Mutex
	ring        []sample
	head        int
	count       int
	successes   int64
	failures    int64
	errorCounts map[string]int64
}

func newAgentHistory(capacity int) *agentHistory {
	return &agentHistory{
		ring:        make([]sample, capacity),
		errorCounts: make(map[string]int64),
	}
}

func (h *agentHistory) record(ok bool, durationMs int64, errorSubtype string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ok {
		h.successes++
	} else {
		h.failures++
		if errorSubtype != "" {
			h.errorCounts[errorSubtype]++
		}
	}

	h.ring[h.head] = sample{ok: ok, durationMs: durationMs}
	h.head = (h.head + 1) % len(h.ring)
	if h.count < len(h.ring) {
		h.count++
	}
}

func (h *agentHistory) stats(stage string) AgentStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	stats := AgentStats{Stage: stage, Successes: h.successes, Failures: h.failures, SampleCount: h.count}
	total := h.successes + h.failures
	if total > 0 {
		stats.SuccessRate = float64(h.successes) / float64(total)
	}
	if h.count > 0 {
		var sum int64
		for i := 0; i < h.count; i++ {
			sum += h.ring[i].durationMs
		}
		stats.AvgLatencyMs = float64(sum) / float64(h.count)
	}
	return stats
}

func (h *agentHistory) topErrors(n int) []ErrorCount {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]ErrorCount, 0, len(h.errorCounts))
	for subtype, count := range h.errorCounts {
		out = append(out, ErrorCount{Subtype: subtype, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Subtype < out[j].Subtype
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Recorder is the orchestrator.Recorder implementation for C11: it keeps a
// bounded history per stage and mirrors every observation onto the shared
// Prometheus collector. Recording never blocks orchestration and never
// panics outward; a nil *Recorder is valid and a no-op.
type Recorder struct {
	mu         sync.RWMutex
	histories  map[string]*agentHistory
	historyCap int
	collector  *metrics.Collector
	logger     *zap.Logger

	satisfactionUp   int64
	satisfactionDown int64
}

// New builds a Recorder backed by a fresh Prometheus collector under namespace.
func New(namespace string, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return NewWithCollector(metrics.NewCollector(namespace, logger), logger)
}

// NewWithCollector builds a Recorder that reports onto an existing
// collector, so the process-wide Collector (shared with the HTTP
// middleware, LLM gateway and executor) is registered exactly once.
func NewWithCollector(collector *metrics.Collector, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		histories:  make(map[string]*agentHistory),
		historyCap: defaultHistoryCapacity,
		collector:  collector,
		logger:     logger,
	}
}

func (r *Recorder) historyFor(stage string) *agentHistory {
	r.mu.RLock()
	h, ok := r.histories[stage]
	r.mu.RUnlock()
	if ok {
		return h
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.histories[stage]; ok {
		return h
	}
	h = newAgentHistory(r.historyCap)
	r.histories[stage] = h
	return h
}

// RecordStage implements orchestrator.Recorder. errorSubtype is empty on a
// successful stage and the classified error's Subtype on failure.
func (r *Recorder) RecordStage(stage string, ok bool, durationMs int64, errorSubtype string) {
	if r == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil && r.logger != nil {
			r.logger.Warn("feedback: recovered from panic recording stage outcome",
				zap.String("stage", stage), zap.Any("panic", rec))
		}
	}()

	r.historyFor(stage).record(ok, durationMs, errorSubtype)

	status := "success"
	if !ok {
		status = "failure"
	}
	r.collector.RecordStageExecution(stage, status, time.Duration(durationMs)*time.Millisecond)
}

// RecordSatisfaction records an explicit thumbs-up/down event from the user
// surface, independent of any particular stage.
func (r *Recorder) RecordSatisfaction(up bool) {
	if r == nil {
		return
	}
	if up {
		atomic.AddInt64(&r.satisfactionUp, 1)
	} else {
		atomic.AddInt64(&r.satisfactionDown, 1)
	}
}

// Stats returns the current aggregate for one stage; the zero value if the
// stage has never been recorded.
func (r *Recorder) Stats(stage string) AgentStats {
	r.mu.RLock()
	h, ok := r.histories[stage]
	r.mu.RUnlock()
	if !ok {
		return AgentStats{Stage: stage}
	}
	return h.stats(stage)
}

// AllStats returns every recorded stage's aggregate, ordered by stage name.
func (r *Recorder) AllStats() []AgentStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]AgentStats, 0, len(r.histories))
	for stage, h := range r.histories {
		out = append(out, h.stats(stage))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stage < out[j].Stage })
	return out
}

// WorstAgent returns the stage with the lowest success rate among those
// with at least one recorded sample; ok is false when nothing's recorded yet.
func (r *Recorder) WorstAgent() (stage string, successRate float64, ok bool) {
	stats := r.AllStats()
	worstRate := 2.0 // above any valid rate, so the first stage always wins
	for _, s := range stats {
		if s.SampleCount == 0 {
			continue
		}
		if s.SuccessRate < worstRate {
			worstRate = s.SuccessRate
			stage = s.Stage
			ok = true
		}
	}
	return stage, worstRate, ok
}

// TopErrors returns the n most frequent classified-error subtypes recorded
// for stage, most frequent first.
func (r *Recorder) TopErrors(stage string, n int) []ErrorCount {
	r.mu.RLock()
	h, ok := r.histories[stage]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return h.topErrors(n)
}

// SatisfactionRate returns the fraction of explicit feedback events that
// were thumbs-up; ok is false when no feedback has been recorded.
func (r *Recorder) SatisfactionRate() (rate float64, ok bool) {
	up := atomic.LoadInt64(&r.satisfactionUp)
	down := atomic.LoadInt64(&r.satisfactionDown)
	total := up + down
	if total == 0 {
		return 0, false
	}
	return float64(up) / float64(total), true
}
