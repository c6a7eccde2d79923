package session

import (
	"strings"
	"time"
)

// DefaultLogCapacity is how many log entries a session keeps.
const DefaultLogCapacity = 50

// LogEntry is one timestamped session log line.
type LogEntry struct {
	Time    time.Time
	Message string
}

func (e LogEntry) String() string {
	return "[" + e.Time.Format(time.RFC3339) + "] " + e.Message
}

// LogBuffer is a fixed-capacity FIFO ring. The oldest entry is evicted when
// a new one arrives at capacity. It is not safe for concurrent use; Session
// guards it with its own lock.
type LogBuffer struct {
	entries []LogEntry
	start   int
	size    int
}

// NewLogBuffer creates a ring holding at most capacity entries.
func NewLogBuffer(capacity int) *LogBuffer {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &LogBuffer{entries: make([]LogEntry, capacity)}
}

// Append adds an entry, evicting the oldest one when full.
func (b *LogBuffer) Append(e LogEntry) {
	capacity := len(b.entries)
	if b.size < capacity {
		b.entries[(b.start+b.size)%capacity] = e
		b.size++
		return
	}
	b.entries[b.start] = e
	b.start = (b.start + 1) % capacity
}

// Entries returns the buffered entries, oldest first.
func (b *LogBuffer) Entries() []LogEntry {
	out := make([]LogEntry, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.entries[(b.start+i)%len(b.entries)]
	}
	return out
}

// Lines renders the entries as strings, oldest first.
func (b *LogBuffer) Lines() []string {
	entries := b.Entries()
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.String()
	}
	return lines
}

// Text joins the rendered entries with newlines.
func (b *LogBuffer) Text() string {
	return strings.Join(b.Lines(), "\n")
}

// Len returns the number of buffered entries.
func (b *LogBuffer) Len() int {
	return b.size
}

// Cap returns the ring capacity.
func (b *LogBuffer) Cap() int {
	return len(b.entries)
}
