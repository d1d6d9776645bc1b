package live

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		in    string
		want  Kind
		known bool
	}{
		{"text", KindText, true},
		{"gauge", KindGauge, true},
		{"sparkline", KindSparkline, true},
		{" Gauge ", KindGauge, true},
		{"", KindText, false},
		{"chart", KindText, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseKind(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.known, ok)
		})
	}
}

func TestHistory_EvictsOldestAtCapacity(t *testing.T) {
	h := NewHistory(3)
	for i := 1; i <= 4; i++ {
		h.Push(float64(i))
	}

	assert.Equal(t, 3, h.Len())
	assert.Equal(t, []float64{2, 3, 4}, h.Values())

	last, ok := h.Last()
	require.True(t, ok)
	assert.Equal(t, 4.0, last)
}

func TestHistory_DefaultCapacity(t *testing.T) {
	h := NewHistory(0)
	assert.Equal(t, DefaultHistorySize, h.Cap())

	_, ok := h.Last()
	assert.False(t, ok)
}

func TestHistory_NeverExceedsCapacity(t *testing.T) {
	h := NewHistory(DefaultHistorySize)
	for i := 0; i < DefaultHistorySize+1; i++ {
		h.Push(float64(i))
		require.LessOrEqual(t, h.Len(), DefaultHistorySize)
	}

	values := h.Values()
	assert.NotContains(t, values, 0.0)
	assert.Equal(t, float64(DefaultHistorySize), values[len(values)-1])
}

func TestState_SetGaugeClamps(t *testing.T) {
	s := NewState(KindGauge, 0)

	_, ok := s.Gauge()
	assert.False(t, ok)

	s.SetGauge(150)
	g, ok := s.Gauge()
	require.True(t, ok)
	assert.Equal(t, 100.0, g)

	s.SetGauge(-3)
	g, _ = s.Gauge()
	assert.Equal(t, 0.0, g)

	s.SetGauge(math.Inf(1))
	g, _ = s.Gauge()
	assert.Equal(t, 100.0, g)

	s.SetGauge(42.5)
	assert.False(t, s.SetGauge(math.NaN()))
	g, _ = s.Gauge()
	assert.Equal(t, 42.5, g)
}

func TestState_Snapshot(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	spark := NewState(KindSparkline, 5)
	spark.SetPayload("7", now)
	spark.AddSample(7)

	u := spark.Snapshot("sensor/#")
	assert.Equal(t, "sensor/#", u.Pattern)
	assert.Equal(t, KindSparkline, u.Kind)
	assert.Equal(t, "7", u.LastPayload)
	assert.True(t, u.HasPayload)
	assert.Equal(t, now, u.LastUpdate)
	assert.Equal(t, []float64{7}, u.History)
	assert.Nil(t, u.Gauge)

	// the snapshot is a copy
	spark.AddSample(8)
	assert.Len(t, u.History, 1)

	gauge := NewState(KindGauge, 0)
	assert.Nil(t, gauge.Snapshot("g").Gauge)
	gauge.SetGauge(12)
	require.NotNil(t, gauge.Snapshot("g").Gauge)
	assert.Equal(t, 12.0, *gauge.Snapshot("g").Gauge)
}
