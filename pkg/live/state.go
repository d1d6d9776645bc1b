package live

import (
	"math"
	"time"
)

const (
	GaugeMin = 0.0
	GaugeMax = 100.0
)

// State is the mutable view of one subscription. It is not safe for
// concurrent use; the session loop is its only writer.
type State struct {
	kind        Kind
	lastPayload string
	hasPayload  bool
	lastUpdate  time.Time
	history     *History
	gauge       float64
	hasGauge    bool
}

func NewState(kind Kind, historySize int) *State {
	s := &State{kind: kind}
	if kind == KindSparkline {
		s.history = NewHistory(historySize)
	}
	return s
}

func (s *State) Kind() Kind {
	return s.kind
}

// SetPayload records the text shown for the latest message and its arrival time.
func (s *State) SetPayload(text string, now time.Time) {
	s.lastPayload = text
	s.hasPayload = true
	s.lastUpdate = now
}

// SetGauge stores v clamped to [GaugeMin, GaugeMax]. NaN is ignored and
// reported as false.
func (s *State) SetGauge(v float64) bool {
	if math.IsNaN(v) {
		return false
	}
	s.gauge = math.Max(GaugeMin, math.Min(GaugeMax, v))
	s.hasGauge = true
	return true
}

// AddSample appends v to the sparkline history. NaN and infinities are
// ignored since they cannot be scaled.
func (s *State) AddSample(v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	if s.history == nil {
		s.history = NewHistory(DefaultHistorySize)
	}
	s.history.Push(v)
	return true
}

func (s *State) LastPayload() (string, bool) {
	return s.lastPayload, s.hasPayload
}

func (s *State) LastUpdate() time.Time {
	return s.lastUpdate
}

func (s *State) Gauge() (float64, bool) {
	return s.gauge, s.hasGauge
}

// History returns a copy of the sparkline samples, oldest first.
func (s *State) History() []float64 {
	if s.history == nil {
		return nil
	}
	return s.history.Values()
}

func (s *State) HistoryCap() int {
	if s.history == nil {
		return 0
	}
	return s.history.Cap()
}

// Snapshot copies the state into an Update for the display layer.
func (s *State) Snapshot(pattern string) Update {
	u := Update{
		Pattern:     pattern,
		Kind:        s.kind,
		LastPayload: s.lastPayload,
		HasPayload:  s.hasPayload,
		LastUpdate:  s.lastUpdate,
	}
	switch s.kind {
	case KindGauge:
		if s.hasGauge {
			g := s.gauge
			u.Gauge = &g
		}
	case KindSparkline:
		u.History = s.History()
	}
	return u
}
