// SPDX-License-Identifier: MIT

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, name string) *dto.MetricFamily {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func counterValue(mf *dto.MetricFamily, labels map[string]string) float64 {
	for _, m := range mf.GetMetric() {
		match := true
		for _, lp := range m.GetLabel() {
			if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
				match = false
				break
			}
		}
		if match && len(m.GetLabel()) == len(labels) {
			return m.GetCounter().GetValue()
		}
	}
	return -1
}

func TestAPICallCounter(t *testing.T) {
	APICall("espn", "scoreboard")
	APICall("espn", "scoreboard")
	APICall("tsdb", "schedule")

	mf := gather(t, "teamcast_provider_api_calls_total")
	require.NotNil(t, mf)
	assert.Equal(t, dto.MetricType_COUNTER, mf.GetType())
	assert.Equal(t, float64(2), counterValue(mf, map[string]string{"provider": "espn", "operation": "scoreboard"}))
	assert.Equal(t, float64(1), counterValue(mf, map[string]string{"provider": "tsdb", "operation": "schedule"}))
}

func TestProgramAndStreamCounters(t *testing.T) {
	ProgramGenerated("game")
	ProgramGenerated("idle")
	StreamMatched("2")
	StreamMatched("cache")
	LifecycleOp("create")

	mf := gather(t, "teamcast_programs_generated_total")
	require.NotNil(t, mf)
	assert.GreaterOrEqual(t, counterValue(mf, map[string]string{"kind": "game"}), float64(1))

	mf = gather(t, "teamcast_streams_matched_total")
	require.NotNil(t, mf)
	assert.GreaterOrEqual(t, counterValue(mf, map[string]string{"tier": "cache"}), float64(1))

	mf = gather(t, "teamcast_lifecycle_channel_ops_total")
	require.NotNil(t, mf)
	assert.GreaterOrEqual(t, counterValue(mf, map[string]string{"op": "create"}), float64(1))
}

func TestGenerationHistogram(t *testing.T) {
	GenerationObserved(1.5)
	GenerationObserved(12)

	mf := gather(t, "teamcast_generation_duration_seconds")
	require.NotNil(t, mf)
	assert.Equal(t, dto.MetricType_HISTOGRAM, mf.GetType())
	h := mf.GetMetric()[0].GetHistogram()
	assert.GreaterOrEqual(t, h.GetSampleCount(), uint64(2))
	assert.GreaterOrEqual(t, h.GetSampleSum(), 13.5)
}
