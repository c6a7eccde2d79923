package session

import "time"

// EventType identifies a session event.
type EventType string

const (
	EventStatus   EventType = "status"
	EventLog      EventType = "log"
	EventEndpoint EventType = "endpoint"
)

// Event is pushed to subscribers whenever the session changes.
type Event struct {
	Type         EventType `json:"type"`
	Time         time.Time `json:"time,omitempty"`
	Status       string    `json:"status,omitempty"`
	Generation   uint64    `json:"generation,omitempty"`
	Message      string    `json:"message,omitempty"`
	PublicURL    string    `json:"publicUrl,omitempty"`
	ConnectionID string    `json:"connectionId,omitempty"`
}

// Subscribe registers a listener. Events are dropped for a subscriber whose
// buffer is full. The returned cancel func closes the channel.
func (s *Session) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	var closed bool
	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if closed {
			return
		}
		closed = true
		delete(s.subs, id)
		close(ch)
	}
	return ch, cancel
}

// publishLocked must be called with mu held.
func (s *Session) publishLocked(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = s.now()
	}
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
