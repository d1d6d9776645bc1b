package router

import "time"

// DefaultLogSize caps the in-memory message log.
const DefaultLogSize = 10000

// LogEntry is one inbound message as shown in the message log.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Topic   string    `json:"topic"`
	Payload string    `json:"payload"`
}

// MessageLog is a fixed-size FIFO of log entries. The oldest entry is
// evicted once the log is full.
type MessageLog struct {
	entries []LogEntry
	start   int
	size    int
}

func NewMessageLog(capacity int) *MessageLog {
	if capacity <= 0 {
		capacity = DefaultLogSize
	}
	return &MessageLog{entries: make([]LogEntry, capacity)}
}

func (l *MessageLog) Append(entry LogEntry) {
	capacity := len(l.entries)
	if l.size < capacity {
		l.entries[(l.start+l.size)%capacity] = entry
		l.size++
		return
	}
	l.entries[l.start] = entry
	l.start = (l.start + 1) % capacity
}

func (l *MessageLog) Len() int {
	return l.size
}

func (l *MessageLog) Cap() int {
	return len(l.entries)
}

// Tail returns up to n of the newest entries, oldest first. n <= 0 returns
// the whole log.
func (l *MessageLog) Tail(n int) []LogEntry {
	if n <= 0 || n > l.size {
		n = l.size
	}
	result := make([]LogEntry, n)
	offset := l.size - n
	for i := 0; i < n; i++ {
		result[i] = l.entries[(l.start+offset+i)%len(l.entries)]
	}
	return result
}
