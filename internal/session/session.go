// Package session holds the process-wide state shared by the control server,
// the tunnel launcher and the build monitor.
package session

import (
	"crypto/subtle"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// FileFix is one proposed file replacement.
type FileFix struct {
	Path string `json:"path"`
	Code string `json:"code"`
}

// FailureSummary locates the cause of a failed build.
type FailureSummary struct {
	Message string `json:"message"`
	File    string `json:"file"`
	// Line is 1-based; -1 means unknown.
	Line int `json:"line"`
}

// Endpoint is the public address of the running bridge.
type Endpoint struct {
	PublicURL    string `json:"publicUrl"`
	ConnectionID string `json:"connectionId"`
	QRCode       string `json:"qrCode"`
}

// Snapshot is a consistent copy of the session state.
type Snapshot struct {
	Endpoint
	Status       BuildStatus `json:"status"`
	Generation   uint64      `json:"generation"`
	Logs         []string    `json:"logs"`
	BuildMessage string      `json:"buildMessage,omitempty"`
	Fixes        []FileFix   `json:"fixes,omitempty"`
	HasPushToken bool        `json:"hasPushToken"`
}

// Session is the single guarded state object. All fields are read and
// written under mu so handlers never observe a torn combination of status,
// logs and endpoint.
type Session struct {
	mu sync.RWMutex

	endpoint     Endpoint
	status       BuildStatus
	generation   uint64
	logs         *LogBuffer
	buildMessage string
	summary      *FailureSummary
	summaryGen   uint64
	fixes        []FileFix
	pushToken    string

	subs    map[int]chan Event
	nextSub int

	log zerolog.Logger
	now func() time.Time
}

// Option configures a Session.
type Option func(*Session)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// New creates an idle session with no endpoint.
func New(log zerolog.Logger, opts ...Option) *Session {
	s := &Session{
		logs: NewLogBuffer(DefaultLogCapacity),
		subs: make(map[int]chan Event),
		log:  log.With().Str("component", "session").Logger(),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetEndpoint publishes a new public URL, replacing the previous endpoint in
// place. The connection id and QR payload are derived from the URL.
func (s *Session) SetEndpoint(publicURL string) Endpoint {
	ep := Endpoint{
		PublicURL:    publicURL,
		ConnectionID: DeriveConnectionID(publicURL),
	}
	qr, err := EncodeQR(publicURL, QRSize)
	if err != nil {
		s.log.Warn().Err(err).Msg("qr encoding failed")
	}
	ep.QRCode = qr

	s.mu.Lock()
	s.endpoint = ep
	s.appendLocked(fmt.Sprintf("Session connection ID set to: %s", ep.ConnectionID))
	s.appendLocked(fmt.Sprintf("Public URL: %s", ep.PublicURL))
	s.publishLocked(Event{Type: EventEndpoint, PublicURL: ep.PublicURL, ConnectionID: ep.ConnectionID})
	s.mu.Unlock()

	return ep
}

// ClearEndpoint forgets the public URL, e.g. while the tunnel restarts.
func (s *Session) ClearEndpoint() {
	s.mu.Lock()
	s.endpoint = Endpoint{}
	s.publishLocked(Event{Type: EventEndpoint})
	s.mu.Unlock()
}

// Endpoint returns the current endpoint.
func (s *Session) Endpoint() Endpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.endpoint
}

// Authorize reports whether connectionID pairs with the current endpoint.
func (s *Session) Authorize(connectionID string) bool {
	s.mu.RLock()
	current := s.endpoint.ConnectionID
	s.mu.RUnlock()

	if current == "" || connectionID == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(current), []byte(connectionID)) == 1
}

// Log appends a message to the ring and mirrors it to the logger.
func (s *Session) Log(msg string) {
	s.mu.Lock()
	s.appendLocked(msg)
	s.mu.Unlock()
}

// Logf is Log with formatting.
func (s *Session) Logf(format string, args ...any) {
	s.Log(fmt.Sprintf(format, args...))
}

func (s *Session) appendLocked(msg string) {
	entry := LogEntry{Time: s.now(), Message: msg}
	s.logs.Append(entry)
	s.log.Info().Msg(msg)
	s.publishLocked(Event{Type: EventLog, Time: entry.Time, Message: entry.String()})
}

// Logs returns the rendered log ring, oldest first.
func (s *Session) Logs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logs.Lines()
}

// LogText returns the log ring joined by newlines.
func (s *Session) LogText() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logs.Text()
}

// Status returns the current build status.
func (s *Session) Status() BuildStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Generation returns the id of the current run (0 before any run).
func (s *Session) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// BeginRun moves the session to Running under a new run generation and
// returns that generation.
func (s *Session) BeginRun() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.summary = nil
	s.setStatusLocked(StatusRunning)
	return s.generation
}

// Finish sets a terminal status for run gen. It is a no-op returning false
// when gen is no longer the current run.
func (s *Session) Finish(gen uint64, status BuildStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		return false
	}
	s.setStatusLocked(status)
	return true
}

func (s *Session) setStatusLocked(status BuildStatus) {
	if s.status == status {
		return
	}
	s.status = status
	s.publishLocked(Event{Type: EventStatus, Status: status.String(), Generation: s.generation})
}

// SetBuildMessage records the log text the fix pipeline should work from.
func (s *Session) SetBuildMessage(msg string) {
	s.mu.Lock()
	s.buildMessage = msg
	s.mu.Unlock()
}

// BuildMessage returns the last recorded build message.
func (s *Session) BuildMessage() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buildMessage
}

// CachedSummary returns the failure summary stored for run gen.
func (s *Session) CachedSummary(gen uint64) (FailureSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.summary == nil || s.summaryGen != gen {
		return FailureSummary{}, false
	}
	return *s.summary, true
}

// StoreSummary caches a failure summary for run gen.
func (s *Session) StoreSummary(gen uint64, summary FailureSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return
	}
	s.summary = &summary
	s.summaryGen = gen
}

// SetFixes replaces the proposed FixSet.
func (s *Session) SetFixes(fixes []FileFix) {
	cp := append([]FileFix(nil), fixes...)
	s.mu.Lock()
	s.fixes = cp
	s.mu.Unlock()
}

// Fixes returns a copy of the proposed FixSet.
func (s *Session) Fixes() []FileFix {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]FileFix(nil), s.fixes...)
}

// SetPushToken registers the device to notify.
func (s *Session) SetPushToken(token string) {
	s.mu.Lock()
	s.pushToken = token
	s.mu.Unlock()
}

// PushToken returns the registered device token, if any.
func (s *Session) PushToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pushToken
}

// Snapshot copies the whole state under one read lock.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Endpoint:     s.endpoint,
		Status:       s.status,
		Generation:   s.generation,
		Logs:         s.logs.Lines(),
		BuildMessage: s.buildMessage,
		Fixes:        append([]FileFix(nil), s.fixes...),
		HasPushToken: s.pushToken != "",
	}
}
