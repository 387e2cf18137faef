package ime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"kanaime/internal/logging"
)

// Default session parameters.
const (
	DefaultLanguage     = "ja_JP"
	DefaultContextRunes = 20
	DefaultKeyTimeout   = 2 * time.Second
)

// SessionConfig is the part of the configuration a session reads per key.
type SessionConfig struct {
	Language     string
	Learning     LearningMode
	ContextRunes int
	KeyTimeout   time.Duration
}

// DefaultSessionConfig returns the defaults used by NewSession.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Language:     DefaultLanguage,
		Learning:     LearnInputOutput,
		ContextRunes: DefaultContextRunes,
		KeyTimeout:   DefaultKeyTimeout,
	}
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSessionLogger sets the logger.
func WithSessionLogger(l *logging.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// WithSessionConfig sets the initial configuration.
func WithSessionConfig(cfg SessionConfig) SessionOption {
	return func(s *Session) { s.cfg = cfg.withDefaults() }
}

// KeyObserver is told the outcome of every OnKeyDown. It runs with the
// session locked and must not call back into it.
type KeyObserver func(eaten bool, intent IntentKind)

// WithKeyObserver sets the key observer.
func WithKeyObserver(fn KeyObserver) SessionOption {
	return func(s *Session) { s.observe = fn }
}

// WithSessionID overrides the generated session id.
func WithSessionID(id string) SessionOption {
	return func(s *Session) { s.id = id }
}

func (c SessionConfig) withDefaults() SessionConfig {
	d := DefaultSessionConfig()
	if c.Language == "" {
		c.Language = d.Language
	}
	if c.ContextRunes <= 0 {
		c.ContextRunes = d.ContextRunes
	}
	if c.KeyTimeout <= 0 {
		c.KeyTimeout = d.KeyTimeout
	}
	return c
}

// Session is the composition core for one document. All entry points are
// serialised; none of them returns an error to the caller.
type Session struct {
	id      string
	logger  *logging.Logger
	observe KeyObserver

	mu        sync.Mutex
	composer  *Composer
	coord     *Coordinator
	cfg       SessionConfig
	preceding []rune
	closed    bool

	terminated atomic.Bool
	pendingCfg atomic.Pointer[SessionConfig]
}

// NewSession wires a Composer and a Coordinator for host. source may be nil
// to compose without conversion.
func NewSession(host HostEditingSession, source CandidateSource, opts ...SessionOption) *Session {
	s := &Session{
		id:  uuid.NewString(),
		cfg: DefaultSessionConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	s.logger = s.logger.With("sid", s.id)
	s.composer = NewComposer(source)
	s.coord = NewCoordinator(host, s.logger)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Phase returns the current composition phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.composer.Phase()
}

// State is a snapshot of a session.
type State struct {
	Phase          Phase
	Buffer         string
	Candidates     []string
	Selected       int
	HasComposition bool
}

// State returns a snapshot of the session.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	cands, sel := s.composer.Candidates()
	return State{
		Phase:          s.composer.Phase(),
		Buffer:         string(s.composer.Buffer()),
		Candidates:     cands,
		Selected:       sel,
		HasComposition: s.coord.HasComposition(),
	}
}

// OnTestKeyDown reports whether OnKeyDown would eat key, without changing
// the composition.
func (s *Session) OnTestKeyDown(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.drainTerminationLocked()
	return Classify(s.composer.Phase(), key).Eat
}

// OnKeyDown processes one key-down event and reports whether it was eaten.
func (s *Session) OnKeyDown(ctx context.Context, key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.applyPendingConfigLocked()
	s.drainTerminationLocked()

	d := Classify(s.composer.Phase(), key)
	if !d.Eat {
		s.notify(false, IntentNone)
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.KeyTimeout)
	defer cancel()

	from := s.composer.Phase()
	step := s.composer.Handle(ctx, d, s.requestContextLocked())
	if step.EngineErr != nil {
		s.logger.Debug("conversion degraded", "cmd", d.Command.String(), "err", step.EngineErr)
	}
	if step.Intent.Kind == IntentCommit {
		s.rememberLocked(step.Intent.Text)
	}

	out := s.coord.Apply(ctx, step.Intent)
	if out.Invalidated() {
		s.composer.Terminate()
		s.coord.Forget()
		s.logger.Info("composition invalidated by host, cancelled")
	}
	s.drainTerminationLocked()

	s.logger.Debug("key handled",
		"cmd", d.Command.String(),
		"from", from.String(),
		"phase", s.composer.Phase().String(),
		"intent", step.Intent.Kind.String(),
		"applied", out.Applied)
	s.notify(true, step.Intent.Kind)
	return true
}

func (s *Session) notify(eaten bool, intent IntentKind) {
	if s.observe != nil {
		s.observe(eaten, intent)
	}
}

// OnCompositionTerminated tells the session that the host ended the
// composition on its own. It may be called from inside a host call.
func (s *Session) OnCompositionTerminated() {
	s.terminated.Store(true)
	if s.mu.TryLock() {
		s.drainTerminationLocked()
		s.mu.Unlock()
	}
}

func (s *Session) drainTerminationLocked() {
	if !s.terminated.Swap(false) {
		return
	}
	s.coord.Forget()
	if s.composer.Terminate() {
		s.logger.Debug("composition terminated by host")
	}
}

// SetSurroundingText replaces the preceding-text context with the text left
// of the caret as reported by the host.
func (s *Session) SetSurroundingText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preceding = tailRunes([]rune(text), s.cfg.ContextRunes)
}

// UpdateConfig queues cfg; it takes effect at the start of the next key
// event so a key's test and real classification see the same state.
func (s *Session) UpdateConfig(cfg SessionConfig) {
	cfg = cfg.withDefaults()
	s.pendingCfg.Store(&cfg)
}

func (s *Session) applyPendingConfigLocked() {
	if cfg := s.pendingCfg.Swap(nil); cfg != nil {
		s.cfg = *cfg
		s.preceding = tailRunes(s.preceding, s.cfg.ContextRunes)
		s.logger.Debug("session config applied", "learning", cfg.Learning.String(), "language", cfg.Language)
	}
}

func (s *Session) requestContextLocked() RequestContext {
	return RequestContext{
		PrecedingText: string(s.preceding),
		Language:      s.cfg.Language,
		Learning:      s.cfg.Learning,
	}
}

func (s *Session) rememberLocked(text string) {
	s.preceding = tailRunes(append(s.preceding, []rune(text)...), s.cfg.ContextRunes)
}

// Close cancels any live composition. Further key events pass through.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.drainTerminationLocked()
	if step := s.composer.Handle(ctx, Decision{Eat: true, Command: CmdCancel}, RequestContext{}); !step.Intent.IsNone() {
		s.coord.Apply(ctx, step.Intent)
	}
	s.coord.Forget()
	s.closed = true
}

func tailRunes(r []rune, n int) []rune {
	if len(r) > n {
		r = r[len(r)-n:]
	}
	return append([]rune(nil), r...)
}

// Manager maps host document identifiers to sessions.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	factory  func(docID string) *Session
}

// NewManager returns a Manager creating sessions with factory. factory may
// be nil when sessions are only registered with Add.
func NewManager(factory func(docID string) *Session) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		factory:  factory,
	}
}

// Open returns the session for docID, creating it if needed.
func (m *Manager) Open(docID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[docID]; ok || m.factory == nil {
		return s
	}
	s := m.factory(docID)
	m.sessions[docID] = s
	return s
}

// Add registers a session created elsewhere under docID.
func (m *Manager) Add(docID string, s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[docID] = s
}

// Get returns the session for docID, or nil.
func (m *Manager) Get(docID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[docID]
}

// Close closes and forgets the session for docID.
func (m *Manager) Close(ctx context.Context, docID string) {
	m.mu.Lock()
	s, ok := m.sessions[docID]
	delete(m.sessions, docID)
	m.mu.Unlock()
	if ok {
		s.Close(ctx)
	}
}

// Each calls fn for every open session.
func (m *Manager) Each(fn func(docID string, s *Session)) {
	m.mu.Lock()
	snapshot := make(map[string]*Session, len(m.sessions))
	for id, s := range m.sessions {
		snapshot[id] = s
	}
	m.mu.Unlock()
	for id, s := range snapshot {
		fn(id, s)
	}
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
