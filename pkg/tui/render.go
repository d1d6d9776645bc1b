package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rivo/tview"

	"github.com/denwilliams/go-mqtt-dashboard/pkg/live"
	"github.com/denwilliams/go-mqtt-dashboard/pkg/session"
)

var sparkLevels = []rune("▁▂▃▄▅▆▇█")

const (
	gaugeFull  = '█'
	gaugeEmpty = '░'
	noValue    = "-"
)

// Sparkline draws the newest width values, scaled between their own minimum
// and maximum. A flat series is drawn at mid height.
func Sparkline(values []float64, width int) string {
	if width > 0 && len(values) > width {
		values = values[len(values)-width:]
	}
	if len(values) == 0 {
		return ""
	}

	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	top := len(sparkLevels) - 1
	var b strings.Builder
	for _, v := range values {
		level := top / 2
		if hi > lo {
			level = int(math.Round((v - lo) / (hi - lo) * float64(top)))
		}
		b.WriteRune(sparkLevels[level])
	}
	return b.String()
}

// GaugeBar draws value on the gauge range as a bar width cells wide.
func GaugeBar(value float64, width int) string {
	if width <= 0 {
		return ""
	}
	fraction := (value - live.GaugeMin) / (live.GaugeMax - live.GaugeMin)
	fraction = math.Max(0, math.Min(1, fraction))
	filled := int(math.Round(fraction * float64(width)))

	return strings.Repeat(string(gaugeFull), filled) + strings.Repeat(string(gaugeEmpty), width-filled)
}

// FormatValue renders the value column for one subscription.
func FormatValue(u live.Update, width int) string {
	switch u.Kind {
	case live.KindGauge:
		if u.Gauge == nil {
			return noValue
		}
		return GaugeBar(*u.Gauge, width) + " " + payloadText(u, *u.Gauge)
	case live.KindSparkline:
		if len(u.History) == 0 {
			return noValue
		}
		return Sparkline(u.History, width) + " " + payloadText(u, u.History[len(u.History)-1])
	default:
		if !u.HasPayload {
			return noValue
		}
		return singleLine(u.LastPayload)
	}
}

// Age renders how long ago t was, relative to now.
func Age(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

// StatusLine renders the connection summary shown above the table.
func StatusLine(status session.Status) string {
	color := "red"
	switch status.State {
	case session.StateConnected:
		color = "green"
	case session.StateConnecting:
		color = "yellow"
	}

	line := fmt.Sprintf("[%s]%s[-] %s:%d | %s",
		color, status.State, status.Host, status.Port, status.String())
	if status.Dropped > 0 {
		line += " | dropped " + humanize.Comma(status.Dropped)
	}
	if status.LastError != "" {
		line += " | [red]" + tview.Escape(status.LastError) + "[-]"
	}
	return line
}

// payloadText is the last payload beside a numeric view, or the number itself
// when no payload was kept.
func payloadText(u live.Update, value float64) string {
	if !u.HasPayload {
		return fmt.Sprintf("%g", value)
	}
	return singleLine(u.LastPayload)
}

func singleLine(s string) string {
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
}
