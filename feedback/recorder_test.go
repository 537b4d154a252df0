package feedback

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var recorderNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&recorderNamespaceSeq, 1)
	return fmt.Sprintf("feedback_test_%d", seq)
}

func TestRecorder_StatsAggregatesSuccessAndFailure(t *testing.T) {
	r := New(nextTestNamespace(), zap.NewNop())

	r.RecordStage("nl2sql", true, 100, "")
	r.RecordStage("nl2sql", true, 200, "")
	r.RecordStage("nl2sql", false, 50, "missing_from_clause")

	stats := r.Stats("nl2sql")
	assert.Equal(t, int64(2), stats.Successes)
	assert.Equal(t, int64(1), stats.Failures)
	assert.InDelta(t, 2.0/3.0, stats.SuccessRate, 0.001)
	assert.InDelta(t, (100.0+200.0+50.0)/3.0, stats.AvgLatencyMs, 0.001)
	assert.Equal(t, 3, stats.SampleCount)
}

func TestRecorder_StatsForUnknownStageIsZeroValue(t *testing.T) {
	r := New(nextTestNamespace(), zap.NewNop())
	stats := r.Stats("nonexistent")
	assert.Equal(t, "nonexistent", stats.Stage)
	assert.Equal(t, 0, stats.SampleCount)
	assert.Equal(t, 0.0, stats.SuccessRate)
}

func TestRecorder_TopErrorsOrdersByFrequency(t *testing.T) {
	r := New(nextTestNamespace(), zap.NewNop())

	r.RecordStage("validate", false, 10, "syntax_error")
	r.RecordStage("validate", false, 10, "syntax_error")
	r.RecordStage("validate", false, 10, "missing_from_clause")
	r.RecordStage("validate", true, 10, "")

	top := r.TopErrors("validate", 1)
	require.Len(t, top, 1)
	assert.Equal(t, "syntax_error", top[0].Subtype)
	assert.Equal(t, int64(2), top[0].Count)

	all := r.TopErrors("validate", 0)
	require.Len(t, all, 2)
}

func TestRecorder_WorstAgentPicksLowestSuccessRate(t *testing.T) {
	r := New(nextTestNamespace(), zap.NewNop())

	r.RecordStage("chart", true, 10, "")
	r.RecordStage("chart", true, 10, "")

	r.RecordStage("execute", true, 10, "")
	r.RecordStage("execute", false, 10, "connection_refused")

	stage, rate, ok := r.WorstAgent()
	require.True(t, ok)
	assert.Equal(t, "execute", stage)
	assert.InDelta(t, 0.5, rate, 0.001)
}

func TestRecorder_WorstAgentWithNoDataIsNotOK(t *testing.T) {
	r := New(nextTestNamespace(), zap.NewNop())
	_, _, ok := r.WorstAgent()
	assert.False(t, ok)
}

func TestRecorder_RingEvictsOldestSampleAtCapacity(t *testing.T) {
	r := New(nextTestNamespace(), zap.NewNop())
	r.historyCap = 3
	for i := 0; i < 5; i++ {
		r.RecordStage("insights", true, int64(i+1)*1000, "")
	}

	stats := r.Stats("insights")
	assert.Equal(t, 3, stats.SampleCount, "ring capacity bounds the latency sample count")
	assert.Equal(t, int64(5), stats.Successes, "success/failure counters are cumulative, not ring-bounded")
}

func TestRecorder_SatisfactionRate(t *testing.T) {
	r := New(nextTestNamespace(), zap.NewNop())
	_, ok := r.SatisfactionRate()
	assert.False(t, ok)

	r.RecordSatisfaction(true)
	r.RecordSatisfaction(true)
	r.RecordSatisfaction(false)

	rate, ok := r.SatisfactionRate()
	require.True(t, ok)
	assert.InDelta(t, 2.0/3.0, rate, 0.001)
}

func TestRecorder_NilRecorderIsANoOp(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.RecordStage("route", true, 10, "")
		r.RecordSatisfaction(true)
	})
}
