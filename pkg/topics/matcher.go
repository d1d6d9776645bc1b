// Package topics matches MQTT topic patterns and keeps the dashboard's
// subscription registry.
package topics

import (
	"errors"
	"strings"
)

const (
	// SingleLevelWildcard matches exactly one topic segment.
	SingleLevelWildcard = "+"
	// MultiLevelWildcard matches the remainder of a topic, including nothing.
	MultiLevelWildcard = "#"

	separator = "/"
)

var ErrEmptyPattern = errors.New("topic pattern is empty")

// Matches checks if a topic matches a pattern with MQTT wildcards.
// Supports:
// + (single-level wildcard): matches exactly one level
// # (multi-level wildcard): matches zero or more levels
//
// A # that is not the last segment is not rejected; it matches whatever
// follows it.
func Matches(pattern, topic string) bool {
	if pattern == MultiLevelWildcard {
		return true
	}

	topicDone := false
	for {
		segment, rest, more := strings.Cut(pattern, separator)
		if segment == MultiLevelWildcard {
			return true
		}
		if topicDone {
			return false
		}

		topicSegment, topicRest, topicMore := strings.Cut(topic, separator)
		if segment != SingleLevelWildcard && segment != topicSegment {
			return false
		}

		if !more {
			// pattern exhausted, topic must be too
			return !topicMore
		}
		pattern = rest
		if topicMore {
			topic = topicRest
		} else {
			topicDone = true
		}
	}
}

// Pattern is a topic pattern split into segments once, so repeated matching
// does not re-split it.
type Pattern struct {
	raw      string
	segments []string
	wildcard bool
}

func ParsePattern(raw string) Pattern {
	segments := strings.Split(raw, separator)
	wildcard := false
	for _, s := range segments {
		if s == SingleLevelWildcard || s == MultiLevelWildcard {
			wildcard = true
			break
		}
	}
	return Pattern{raw: raw, segments: segments, wildcard: wildcard}
}

func (p Pattern) String() string {
	return p.raw
}

// HasWildcard reports whether any segment is + or #.
func (p Pattern) HasWildcard() bool {
	return p.wildcard
}

// Match applies the same rules as Matches using the precomputed segments.
func (p Pattern) Match(topic string) bool {
	if topic == p.raw {
		return true
	}
	if !p.wildcard {
		return false
	}
	if len(p.segments) == 1 && p.segments[0] == MultiLevelWildcard {
		return true
	}

	for i, segment := range p.segments {
		if segment == MultiLevelWildcard {
			return true
		}
		if i > 0 {
			next, ok := strings.CutPrefix(topic, separator)
			if !ok {
				// fewer topic segments than pattern segments
				return false
			}
			topic = next
		}

		end := strings.Index(topic, separator)
		if end < 0 {
			end = len(topic)
		}
		if segment != SingleLevelWildcard && segment != topic[:end] {
			return false
		}
		topic = topic[end:]
	}

	return topic == ""
}

// ValidatePattern rejects patterns that can never be subscribed to.
func ValidatePattern(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return ErrEmptyPattern
	}
	return nil
}
