package tui

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denwilliams/go-mqtt-dashboard/pkg/live"
	"github.com/denwilliams/go-mqtt-dashboard/pkg/router"
	"github.com/denwilliams/go-mqtt-dashboard/pkg/session"
)

func TestSparkline(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		width  int
		want   string
	}{
		{"empty", nil, 10, ""},
		{"ramp", []float64{0, 1, 2, 3, 4, 5, 6, 7}, 0, "▁▂▃▄▅▆▇█"},
		{"flat", []float64{5, 5, 5}, 0, "▄▄▄"},
		{"extremes", []float64{-10, 10}, 0, "▁█"},
		{"width keeps newest", []float64{100, 0, 7}, 2, "▁█"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sparkline(tt.values, tt.width))
		})
	}
}

func TestGaugeBar(t *testing.T) {
	tests := []struct {
		value float64
		width int
		want  string
	}{
		{0, 4, "░░░░"},
		{50, 4, "██░░"},
		{100, 4, "████"},
		{150, 4, "████"},
		{-5, 4, "░░░░"},
		{50, 0, ""},
	}

	for _, tt := range tests {
		got := GaugeBar(tt.value, tt.width)
		assert.Equal(t, tt.want, got, "value %v width %d", tt.value, tt.width)
		assert.Equal(t, tt.width, utf8.RuneCountInString(got))
	}
}

func TestFormatValue(t *testing.T) {
	gauge := 42.0

	assert.Equal(t, "-", FormatValue(live.Update{Kind: live.KindText}, 10))
	assert.Equal(t, "hello world", FormatValue(live.Update{Kind: live.KindText, HasPayload: true, LastPayload: "hello\nworld"}, 10))
	assert.Equal(t, "-", FormatValue(live.Update{Kind: live.KindGauge}, 10))
	assert.Equal(t, "████░░░░░░ 42", FormatValue(live.Update{Kind: live.KindGauge, Gauge: &gauge}, 10))
	assert.Equal(t, "-", FormatValue(live.Update{Kind: live.KindSparkline}, 10))
	assert.Equal(t, "▁█ 21.5", FormatValue(live.Update{Kind: live.KindSparkline, History: []float64{20, 21.5}}, 10))

	// the row carries the payload text, not only the number parsed from it
	assert.Equal(t, `████░░░░░░ {"temp": 42}`, FormatValue(live.Update{
		Kind: live.KindGauge, Gauge: &gauge, HasPayload: true, LastPayload: `{"temp": 42}`,
	}, 10))
	assert.Equal(t, "▁█ 21.5 C rising", FormatValue(live.Update{
		Kind: live.KindSparkline, History: []float64{20, 21.5}, HasPayload: true, LastPayload: "21.5 C\nrising",
	}, 10))
}

func TestAge(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, "never", Age(time.Time{}, now))
	assert.Equal(t, "3 seconds ago", Age(now.Add(-3*time.Second), now))
	assert.Equal(t, "2 minutes ago", Age(now.Add(-2*time.Minute), now))
}

func TestStatusLine(t *testing.T) {
	status := session.Status{
		State:         session.StateConnected,
		Host:          "broker.local",
		Port:          1883,
		Subscriptions: 3,
		Dropped:       12345,
		Now:           time.Date(2024, 5, 1, 9, 30, 15, 0, time.UTC),
	}

	line := StatusLine(status)
	assert.True(t, strings.HasPrefix(line, "[green]"))
	assert.Contains(t, line, "broker.local:1883")
	assert.Contains(t, line, "3 subscriptions | 09:30:15")
	assert.Contains(t, line, "dropped 12,345")

	status.State = session.StateDisconnected
	status.LastError = "connection refused [x]"
	line = StatusLine(status)
	assert.True(t, strings.HasPrefix(line, "[red]"))
	assert.Contains(t, line, "connection refused")
}

func TestDashboard_ApplyBatch(t *testing.T) {
	d := New(Options{LogLines: 3}, zerolog.Nop())
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	gauge := 75.0

	d.StateChanged(live.Update{Pattern: "a/#", Kind: live.KindText})
	d.StateChanged(live.Update{Pattern: "b/+", Kind: live.KindGauge, Gauge: &gauge, LastUpdate: now.Add(-5 * time.Second)})
	d.StatusChanged(session.Status{State: session.StateConnecting, Host: "h", Port: 1})
	d.apply(d.take(), now)

	require.Equal(t, 3, d.table.GetRowCount())
	assert.Equal(t, "a/#", d.table.GetCell(1, 0).Text)
	assert.Equal(t, "b/+", d.table.GetCell(2, 0).Text)
	assert.Equal(t, "gauge", d.table.GetCell(2, 1).Text)
	assert.Contains(t, d.table.GetCell(2, 2).Text, "75")
	assert.Equal(t, "5 seconds ago", d.table.GetCell(2, 3).Text)
	assert.Contains(t, d.statusView.GetText(true), "connecting")

	d.SubscriptionRemoved("a/#")
	d.apply(d.take(), now)

	require.Equal(t, 2, d.table.GetRowCount())
	assert.Equal(t, "b/+", d.table.GetCell(1, 0).Text)
	assert.Equal(t, 1, d.rows["b/+"])
}

func TestDashboard_RemoveThenReAdd(t *testing.T) {
	d := New(Options{}, zerolog.Nop())
	now := time.Now()

	d.StateChanged(live.Update{Pattern: "a/#", Kind: live.KindText})
	d.SubscriptionRemoved("a/#")
	d.StateChanged(live.Update{Pattern: "a/#", Kind: live.KindSparkline})
	d.apply(d.take(), now)

	require.Equal(t, 2, d.table.GetRowCount())
	assert.Equal(t, "sparkline", d.table.GetCell(1, 1).Text)
}

func TestDashboard_MessageLogBounded(t *testing.T) {
	d := New(Options{LogLines: 2}, zerolog.Nop())
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for _, topic := range []string{"one", "two", "three"} {
		d.MessageLogged(router.LogEntry{Time: now, Topic: topic, Payload: "x"})
	}

	b := d.take()
	require.Len(t, b.logs, 2)
	assert.Equal(t, "two", b.logs[0].Topic)

	d.apply(b, now)
	text := d.logView.GetText(true)
	assert.Contains(t, text, "12:00:00 three x")
	assert.NotContains(t, text, "one")
}
