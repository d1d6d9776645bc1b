package topics

import (
	"github.com/rs/zerolog"

	"github.com/denwilliams/go-mqtt-dashboard/pkg/live"
	"github.com/denwilliams/go-mqtt-dashboard/pkg/transform"
)

// Subscription is a subscribed pattern and how its values are presented.
type Subscription struct {
	Pattern   string    `json:"pattern"`
	Kind      live.Kind `json:"kind"`
	Transform string    `json:"transform,omitempty"`
}

// Entry is a registered subscription together with its live state.
type Entry struct {
	Subscription
	State   *live.State
	Program *transform.Program

	pattern Pattern
}

// Match reports whether topic is delivered to this entry.
func (e *Entry) Match(topic string) bool {
	return e.pattern.Match(topic)
}

// Registry maps subscribed patterns to their entries, in insertion order.
//
// Registry is not safe for concurrent use. The session loop owns it and is
// its only reader and writer.
type Registry struct {
	entries     []*Entry
	index       map[string]*Entry
	historySize int
	logger      zerolog.Logger
}

func NewRegistry(historySize int, logger zerolog.Logger) *Registry {
	if historySize <= 0 {
		historySize = live.DefaultHistorySize
	}

	return &Registry{
		index:       make(map[string]*Entry),
		historySize: historySize,
		logger:      logger,
	}
}

// Add registers sub. Adding a pattern that already exists is a no-op: the
// existing entry is returned unchanged together with false.
func (r *Registry) Add(sub Subscription) (*Entry, bool) {
	if existing, exists := r.index[sub.Pattern]; exists {
		return existing, false
	}

	if sub.Kind == "" {
		sub.Kind = live.KindText
	}

	entry := &Entry{
		Subscription: sub,
		State:        live.NewState(sub.Kind, r.historySize),
		pattern:      ParsePattern(sub.Pattern),
	}

	r.entries = append(r.entries, entry)
	r.index[sub.Pattern] = entry

	r.logger.Debug().Str("pattern", sub.Pattern).Str("kind", sub.Kind.String()).Msg("added subscription")
	return entry, true
}

// Remove drops pattern and its state. It reports whether it existed.
func (r *Registry) Remove(pattern string) bool {
	if _, exists := r.index[pattern]; !exists {
		return false
	}
	delete(r.index, pattern)

	for i, entry := range r.entries {
		if entry.Pattern == pattern {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			break
		}
	}

	r.logger.Debug().Str("pattern", pattern).Msg("removed subscription")
	return true
}

func (r *Registry) Get(pattern string) *Entry {
	return r.index[pattern]
}

func (r *Registry) Len() int {
	return len(r.entries)
}

// All returns the subscriptions in insertion order.
func (r *Registry) All() []Subscription {
	result := make([]Subscription, 0, len(r.entries))
	for _, entry := range r.entries {
		result = append(result, entry.Subscription)
	}
	return result
}

// Entries returns the registered entries in insertion order. The slice is a
// copy; the entries are not.
func (r *Registry) Entries() []*Entry {
	result := make([]*Entry, len(r.entries))
	copy(result, r.entries)
	return result
}

// MatchingFor returns every entry whose pattern matches topic, in insertion
// order.
func (r *Registry) MatchingFor(topic string) []*Entry {
	var matches []*Entry
	for _, entry := range r.entries {
		if entry.Pattern == topic || entry.pattern.Match(topic) {
			matches = append(matches, entry)
		}
	}
	return matches
}
