package router

import "github.com/denwilliams/go-mqtt-dashboard/pkg/live"

// Notifier receives the router's output. Implementations are called from the
// session loop and must not block.
type Notifier interface {
	StateChanged(update live.Update)
	MessageLogged(entry LogEntry)
}

// Notifiers fans every notification out to each member in order.
type Notifiers []Notifier

func (n Notifiers) StateChanged(update live.Update) {
	for _, notifier := range n {
		notifier.StateChanged(update)
	}
}

func (n Notifiers) MessageLogged(entry LogEntry) {
	for _, notifier := range n {
		notifier.MessageLogged(entry)
	}
}
