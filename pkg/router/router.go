// Package router applies inbound MQTT messages to the subscriptions whose
// patterns match them.
package router

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/denwilliams/go-mqtt-dashboard/pkg/live"
	"github.com/denwilliams/go-mqtt-dashboard/pkg/metrics"
	"github.com/denwilliams/go-mqtt-dashboard/pkg/topics"
	"github.com/denwilliams/go-mqtt-dashboard/pkg/transform"
)

// DefaultTextLimit bounds the payload text kept per subscription and log entry.
const DefaultTextLimit = 500

type Options struct {
	TextLimit int
	LogSize   int
}

// Router is not safe for concurrent use. It is driven by the session loop,
// which also owns the registry.
type Router struct {
	registry  *topics.Registry
	executor  *transform.Executor
	notifier  Notifier
	log       *MessageLog
	textLimit int
	logger    zerolog.Logger
}

func New(registry *topics.Registry, executor *transform.Executor, notifier Notifier, opts Options, logger zerolog.Logger) *Router {
	if opts.TextLimit <= 0 {
		opts.TextLimit = DefaultTextLimit
	}
	if notifier == nil {
		notifier = Notifiers(nil)
	}

	return &Router{
		registry:  registry,
		executor:  executor,
		notifier:  notifier,
		log:       NewMessageLog(opts.LogSize),
		textLimit: opts.TextLimit,
		logger:    logger,
	}
}

func (r *Router) Registry() *topics.Registry {
	return r.registry
}

func (r *Router) Log() *MessageLog {
	return r.log
}

// Route applies payload to every subscription matching topic and appends the
// message to the log. It returns the number of subscriptions updated.
func (r *Router) Route(topic string, payload []byte, now time.Time) int {
	start := time.Now()
	text := decodePayload(payload)

	matches := r.registry.MatchingFor(topic)
	for _, entry := range matches {
		r.apply(entry, topic, text, now)
		r.notifier.StateChanged(entry.State.Snapshot(entry.Pattern))
	}

	logged := LogEntry{Time: now, Topic: topic, Payload: Truncate(text, r.textLimit)}
	r.log.Append(logged)
	r.notifier.MessageLogged(logged)

	metrics.RecordRoute(time.Since(start).Seconds())
	return len(matches)
}

func (r *Router) apply(entry *topics.Entry, topic, text string, now time.Time) {
	value := text
	transformed := true
	if entry.Program != nil && r.executor != nil {
		result, err := r.executor.Apply(entry.Program, topic, text)
		if err != nil {
			transformed = false
			metrics.RecordTransformError(transformErrorType(err))
			r.logger.Debug().Err(err).Str("pattern", entry.Pattern).Str("topic", topic).Msg("transform failed")
		} else {
			value = result
		}
	}

	entry.State.SetPayload(Truncate(value, r.textLimit), now)
	metrics.RecordSubscriptionUpdate(entry.Kind.String())

	if !entry.Kind.Numeric() || !transformed {
		return
	}

	number, err := ParseNumber(value)
	if err != nil {
		metrics.RecordParseError(entry.Kind.String())
		r.logger.Debug().Str("pattern", entry.Pattern).Str("payload", Truncate(value, 64)).Msg("ignoring non-numeric payload")
		return
	}

	switch entry.Kind {
	case live.KindGauge:
		entry.State.SetGauge(number)
	case live.KindSparkline:
		entry.State.AddSample(number)
	}
}

// ParseNumber reads a payload as a float, ignoring surrounding whitespace.
func ParseNumber(text string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return 0, fmt.Errorf("payload is not a number: %w", err)
	}
	return v, nil
}

// Truncate shortens s to at most limit runes.
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	count := 0
	for i := range s {
		if count == limit {
			return s[:i]
		}
		count++
	}
	return s
}

func decodePayload(payload []byte) string {
	if utf8.Valid(payload) {
		return string(payload)
	}
	return fmt.Sprintf("%q", payload)
}

func transformErrorType(err error) string {
	switch {
	case errors.Is(err, transform.ErrTimeout):
		return "timeout"
	case errors.Is(err, transform.ErrEmptyResult):
		return "empty_result"
	default:
		return "runtime"
	}
}
