// Package live holds the rolling per-subscription values shown on the dashboard.
package live

import "strings"

// Kind selects how a subscription's payloads are presented.
type Kind string

const (
	KindText      Kind = "text"
	KindGauge     Kind = "gauge"
	KindSparkline Kind = "sparkline"
)

// Kinds lists the supported kinds in display order.
var Kinds = []Kind{KindText, KindGauge, KindSparkline}

// ParseKind maps a persisted type name to a Kind. Unknown names fall back to
// KindText and report false.
func ParseKind(name string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(name))) {
	case KindText:
		return KindText, true
	case KindGauge:
		return KindGauge, true
	case KindSparkline:
		return KindSparkline, true
	default:
		return KindText, false
	}
}

func (k Kind) String() string {
	return string(k)
}

// Numeric reports whether payloads for this kind are parsed as numbers.
func (k Kind) Numeric() bool {
	return k == KindGauge || k == KindSparkline
}
