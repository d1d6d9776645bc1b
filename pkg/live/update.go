package live

import "time"

// Update is the notification pushed to display collaborators whenever a
// subscription's state changes. It is a copy and may be retained.
type Update struct {
	Pattern     string    `json:"pattern"`
	Kind        Kind      `json:"kind"`
	LastPayload string    `json:"last_payload"`
	HasPayload  bool      `json:"has_payload"`
	LastUpdate  time.Time `json:"last_update"`
	History     []float64 `json:"history,omitempty"`
	Gauge       *float64  `json:"gauge,omitempty"`
}
