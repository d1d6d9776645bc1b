package topics

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/denwilliams/go-mqtt-dashboard/pkg/live"
)

func newTestRegistry() *Registry {
	return NewRegistry(0, zerolog.Nop())
}

func TestNewRegistry(t *testing.T) {
	registry := newTestRegistry()

	if registry == nil {
		t.Fatal("NewRegistry() returned nil")
	}
	if registry.index == nil {
		t.Error("index map not initialized")
	}
	if registry.historySize != live.DefaultHistorySize {
		t.Errorf("historySize = %d, want %d", registry.historySize, live.DefaultHistorySize)
	}
	if registry.Len() != 0 {
		t.Errorf("Len() = %d, want 0", registry.Len())
	}
}

func TestRegistryAdd(t *testing.T) {
	registry := newTestRegistry()

	entry, created := registry.Add(Subscription{Pattern: "sensor/temp", Kind: live.KindGauge})
	if !created {
		t.Fatal("Add() should create a new entry")
	}
	if entry.Pattern != "sensor/temp" {
		t.Errorf("entry pattern = %q, want 'sensor/temp'", entry.Pattern)
	}
	if entry.State == nil || entry.State.Kind() != live.KindGauge {
		t.Error("entry state not initialized with the subscription kind")
	}
	if registry.Get("sensor/temp") != entry {
		t.Error("Get() did not return the added entry")
	}
}

func TestRegistryAddDefaultsToText(t *testing.T) {
	registry := newTestRegistry()

	entry, _ := registry.Add(Subscription{Pattern: "a"})
	if entry.Kind != live.KindText {
		t.Errorf("kind = %q, want text", entry.Kind)
	}
}

func TestRegistryAddIsIdempotent(t *testing.T) {
	registry := newTestRegistry()

	first, _ := registry.Add(Subscription{Pattern: "sensor/temp", Kind: live.KindGauge})
	first.State.SetGauge(40)
	first.State.SetPayload("40", time.Unix(100, 0))

	second, created := registry.Add(Subscription{Pattern: "sensor/temp", Kind: live.KindText})
	if created {
		t.Error("re-adding an existing pattern should not create an entry")
	}
	if second != first {
		t.Error("re-adding should return the existing entry")
	}
	if registry.Len() != 1 {
		t.Errorf("Len() = %d, want 1", registry.Len())
	}
	if second.Kind != live.KindGauge {
		t.Errorf("kind changed to %q on duplicate add", second.Kind)
	}
	if g, ok := second.State.Gauge(); !ok || g != 40 {
		t.Errorf("gauge = %v/%v, want 40/true", g, ok)
	}
}

func TestRegistryRemove(t *testing.T) {
	registry := newTestRegistry()
	registry.Add(Subscription{Pattern: "a"})
	registry.Add(Subscription{Pattern: "b"})
	registry.Add(Subscription{Pattern: "c"})

	if !registry.Remove("b") {
		t.Error("Remove(b) should report true")
	}
	if registry.Remove("b") {
		t.Error("second Remove(b) should report false")
	}
	if registry.Get("b") != nil {
		t.Error("b still present after Remove")
	}

	all := registry.All()
	if len(all) != 2 || all[0].Pattern != "a" || all[1].Pattern != "c" {
		t.Errorf("All() = %v, want [a c]", all)
	}
}

func TestRegistryAllPreservesInsertionOrder(t *testing.T) {
	registry := newTestRegistry()
	patterns := []string{"z/#", "a/+", "m", "b/c"}
	for _, p := range patterns {
		registry.Add(Subscription{Pattern: p})
	}

	all := registry.All()
	for i, sub := range all {
		if sub.Pattern != patterns[i] {
			t.Errorf("All()[%d] = %q, want %q", i, sub.Pattern, patterns[i])
		}
	}
}

func TestRegistryMatchingFor(t *testing.T) {
	registry := newTestRegistry()
	registry.Add(Subscription{Pattern: "sensor/+/room1", Kind: live.KindGauge})
	registry.Add(Subscription{Pattern: "sensor/#", Kind: live.KindText})
	registry.Add(Subscription{Pattern: "sensor/temp/room2"})
	registry.Add(Subscription{Pattern: "other/#"})

	matches := registry.MatchingFor("sensor/temp/room1")
	if len(matches) != 2 {
		t.Fatalf("MatchingFor() returned %d entries, want 2", len(matches))
	}
	if matches[0].Pattern != "sensor/+/room1" || matches[1].Pattern != "sensor/#" {
		t.Errorf("unexpected matches: %q, %q", matches[0].Pattern, matches[1].Pattern)
	}

	exact := registry.MatchingFor("sensor/temp/room2")
	if len(exact) != 2 {
		t.Errorf("exact topic should match itself and sensor/#, got %d", len(exact))
	}

	if none := registry.MatchingFor("nothing/here"); len(none) != 0 {
		t.Errorf("expected no matches, got %d", len(none))
	}
}
