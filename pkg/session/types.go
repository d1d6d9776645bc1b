package session

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotConnected = errors.New("not connected to MQTT broker")
	ErrEmptyTopic   = errors.New("topic is empty")
	ErrStopped      = errors.New("session stopped")
)

// State is the connection state of the session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is the periodic summary shown in the status bar.
type Status struct {
	State         State     `json:"state"`
	Host          string    `json:"host"`
	Port          int       `json:"port"`
	Subscriptions int       `json:"subscriptions"`
	Dropped       int64     `json:"dropped"`
	LastError     string    `json:"last_error,omitempty"`
	Now           time.Time `json:"now"`
}

func (s Status) String() string {
	return fmt.Sprintf("%d subscriptions | %s", s.Subscriptions, s.Now.Format("15:04:05"))
}

// Handlers are the callbacks a Transport invokes from its own goroutines.
type Handlers struct {
	OnConnect      func()
	OnDisconnect   func(err error)
	OnReconnecting func()
	OnMessage      func(topic string, payload []byte)
}

// Transport is the MQTT connection used by the session.
//
// Connect blocks until the first connection attempt finishes and reports its
// failure; success is signalled through Handlers.OnConnect.
type Transport interface {
	SetHandlers(handlers Handlers)
	Connect(ctx context.Context, host string, port int) error
	Disconnect()
	Subscribe(pattern string) error
	Unsubscribe(pattern string) error
	Publish(topic string, payload []byte) error
}

// StatusListener is told about connection changes and removed subscriptions.
// It is called from the session loop and must not block.
type StatusListener interface {
	StatusChanged(status Status)
	SubscriptionRemoved(pattern string)
}

// StatusListeners fans out to each member in order.
type StatusListeners []StatusListener

func (l StatusListeners) StatusChanged(status Status) {
	for _, listener := range l {
		listener.StatusChanged(status)
	}
}

func (l StatusListeners) SubscriptionRemoved(pattern string) {
	for _, listener := range l {
		listener.SubscriptionRemoved(pattern)
	}
}
