//go:build linux

package ime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"

	"kanaime/internal/logging"
)

// IBus D-Bus names.
const (
	IBusFactoryInterface = "org.freedesktop.IBus.Factory"
	IBusEngineInterface  = "org.freedesktop.IBus.Engine"
	IBusFactoryPath      = dbus.ObjectPath("/org/freedesktop/IBus/Factory")
	KanaimeBusName       = "org.freedesktop.IBus.Kanaime"
	KanaimeEngineName    = "kanaime"
)

// signalEmitter is the part of *dbus.Conn the host adapter needs.
type signalEmitter interface {
	Emit(path dbus.ObjectPath, name string, values ...interface{}) error
}

// ibusText mirrors the serialised IBusText: (sa{sv}sv).
type ibusText struct {
	Name        string
	Attachments map[string]dbus.Variant
	Text        string
	Attrs       dbus.Variant
}

// ibusAttrList mirrors the serialised IBusAttrList: (sa{sv}av).
type ibusAttrList struct {
	Name        string
	Attachments map[string]dbus.Variant
	Attributes  []dbus.Variant
}

func makeIBusText(s string) dbus.Variant {
	attrs := ibusAttrList{
		Name:        "IBusAttrList",
		Attachments: map[string]dbus.Variant{},
		Attributes:  []dbus.Variant{},
	}
	return dbus.MakeVariant(ibusText{
		Name:        "IBusText",
		Attachments: map[string]dbus.Variant{},
		Text:        s,
		Attrs:       dbus.MakeVariant(attrs),
	})
}

// textFromVariant extracts the string of a serialised IBusText, accepting a
// plain string as well.
func textFromVariant(v dbus.Variant) string {
	switch val := v.Value().(type) {
	case string:
		return val
	case ibusText:
		return val.Text
	case []interface{}:
		if len(val) >= 3 {
			if s, ok := val[2].(string); ok {
				return s
			}
		}
	}
	return ""
}

// IBusHost is the HostEditingSession for one IBus input context. IBus owns
// no document model: the composition is the client's preedit, and ending it
// commits the preedit text.
type IBusHost struct {
	emitter signalEmitter
	path    dbus.ObjectPath

	mu        sync.Mutex
	focused   bool
	nextToken SessionToken
	active    SessionToken
	nextRange RangeHandle
	ranges    map[RangeHandle]bool // value: composing
	preedit   string
}

// NewIBusHost returns a host adapter emitting on the engine object at path.
func NewIBusHost(emitter signalEmitter, path dbus.ObjectPath) *IBusHost {
	return &IBusHost{
		emitter: emitter,
		path:    path,
		ranges:  make(map[RangeHandle]bool),
	}
}

func (h *IBusHost) emit(signal string, values ...interface{}) error {
	return h.emitter.Emit(h.path, IBusEngineInterface+"."+signal, values...)
}

func (h *IBusHost) setFocused(focused bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.focused = focused
}

// dropComposition forgets the preedit after the client discarded it. It
// reports whether a composition was live.
func (h *IBusHost) dropComposition() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	live := false
	for r, composing := range h.ranges {
		if composing {
			live = true
		}
		delete(h.ranges, r)
	}
	h.preedit = ""
	return live
}

// BeginWrite implements HostEditingSession.
func (h *IBusHost) BeginWrite(ctx context.Context) (SessionToken, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrHostSessionDenied, err)
	}
	if !h.focused {
		return 0, fmt.Errorf("%w: input context not focused", ErrHostSessionDenied)
	}
	if h.active != 0 {
		return 0, fmt.Errorf("%w: write session already open", ErrHostSessionDenied)
	}
	h.nextToken++
	h.active = h.nextToken
	return h.active, nil
}

func (h *IBusHost) checkToken(tok SessionToken) error {
	if tok == 0 || tok != h.active {
		return fmt.Errorf("%w: stale write token", ErrHostSessionDenied)
	}
	return nil
}

// InsertRangeAtSelection implements HostEditingSession.
func (h *IBusHost) InsertRangeAtSelection(tok SessionToken) (RangeHandle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.checkToken(tok); err != nil {
		return 0, err
	}
	h.nextRange++
	h.ranges[h.nextRange] = false
	return h.nextRange, nil
}

// StartComposition implements HostEditingSession.
func (h *IBusHost) StartComposition(tok SessionToken, r RangeHandle) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.checkToken(tok); err != nil {
		return err
	}
	if _, ok := h.ranges[r]; !ok {
		return ErrCompositionInvalidated
	}
	h.ranges[r] = true
	h.preedit = ""
	return nil
}

// SetRangeText implements HostEditingSession. On the composition range it
// updates the preedit; on a plain range it commits the text directly.
func (h *IBusHost) SetRangeText(tok SessionToken, r RangeHandle, text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.checkToken(tok); err != nil {
		return err
	}
	composing, ok := h.ranges[r]
	if !ok {
		return ErrCompositionInvalidated
	}

	if !composing {
		delete(h.ranges, r)
		if text == "" {
			return nil
		}
		return h.emit("CommitText", makeIBusText(text))
	}
	h.preedit = text
	n := uint32(len([]rune(text)))
	return h.emit("UpdatePreeditText", makeIBusText(text), n, text != "", uint32(0))
}

// EndComposition implements HostEditingSession. A non-empty preedit is
// committed; the preedit is hidden either way.
func (h *IBusHost) EndComposition(tok SessionToken, r RangeHandle) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.checkToken(tok); err != nil {
		return err
	}
	if composing, ok := h.ranges[r]; !ok || !composing {
		return ErrCompositionInvalidated
	}
	delete(h.ranges, r)

	text := h.preedit
	h.preedit = ""
	var errs []error
	if text != "" {
		errs = append(errs, h.emit("CommitText", makeIBusText(text)))
	}
	errs = append(errs, h.emit("HidePreeditText"))
	return errors.Join(errs...)
}

// EndWrite implements HostEditingSession.
func (h *IBusHost) EndWrite(tok SessionToken) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if tok == h.active {
		h.active = 0
	}
}

// IBusEngine is the D-Bus object IBus talks to for one input context.
type IBusEngine struct {
	host    *IBusHost
	session *Session
	logger  *logging.Logger
}

// NewIBusEngine pairs a session with its host adapter.
func NewIBusEngine(host *IBusHost, session *Session, logger *logging.Logger) *IBusEngine {
	if logger == nil {
		logger = logging.Discard()
	}
	return &IBusEngine{host: host, session: session, logger: logger}
}

// Session returns the composition session behind the engine.
func (e *IBusEngine) Session() *Session { return e.session }

// ProcessKeyEvent handles key press/release events from IBus.
// Returns true if the key was consumed, false to pass through.
func (e *IBusEngine) ProcessKeyEvent(keyval, keycode, state uint32) (bool, *dbus.Error) {
	key, ok := KeyFromKeysym(keyval, state)
	if !ok {
		return false, nil
	}
	return e.session.OnKeyDown(context.Background(), key), nil
}

// FocusIn is called when the input context gains focus.
func (e *IBusEngine) FocusIn() *dbus.Error {
	e.host.setFocused(true)
	return nil
}

// FocusOut is called when the input context loses focus. The client
// discards the preedit, which ends the composition.
func (e *IBusEngine) FocusOut() *dbus.Error {
	e.host.setFocused(false)
	e.terminate("focus_out")
	return nil
}

// Reset is called when the client resets the input context.
func (e *IBusEngine) Reset() *dbus.Error {
	e.terminate("reset")
	return nil
}

// Enable is called when the user switches to this engine.
func (e *IBusEngine) Enable() *dbus.Error {
	e.host.setFocused(true)
	return nil
}

// Disable is called when the user switches away from this engine.
func (e *IBusEngine) Disable() *dbus.Error {
	e.terminate("disable")
	e.host.setFocused(false)
	return nil
}

func (e *IBusEngine) terminate(reason string) {
	e.host.dropComposition()
	e.session.OnCompositionTerminated()
	e.logger.Debug("composition terminated", "reason", reason)
}

// SetSurroundingText receives the text around the caret.
func (e *IBusEngine) SetSurroundingText(text dbus.Variant, cursorPos, anchorPos uint32) *dbus.Error {
	r := []rune(textFromVariant(text))
	if int(cursorPos) <= len(r) {
		r = r[:cursorPos]
	}
	e.session.SetSurroundingText(string(r))
	return nil
}

// SetCapabilities informs about client capabilities.
func (e *IBusEngine) SetCapabilities(caps uint32) *dbus.Error { return nil }

// SetContentType informs about the type of content being edited.
func (e *IBusEngine) SetContentType(purpose, hints uint32) *dbus.Error { return nil }

// SetCursorLocation reports the caret rectangle.
func (e *IBusEngine) SetCursorLocation(x, y, w, h int32) *dbus.Error { return nil }

// PropertyActivate is sent for engine menu items; kanaime exposes none.
func (e *IBusEngine) PropertyActivate(name string, state uint32) *dbus.Error { return nil }

// PageUp moves the selection like the Up key.
func (e *IBusEngine) PageUp() *dbus.Error {
	e.session.OnKeyDown(context.Background(), Key{Code: VKUp})
	return nil
}

// PageDown moves the selection like the Down key.
func (e *IBusEngine) PageDown() *dbus.Error {
	e.session.OnKeyDown(context.Background(), Key{Code: VKDown})
	return nil
}

// CursorUp moves the selection like the Up key.
func (e *IBusEngine) CursorUp() *dbus.Error {
	e.session.OnKeyDown(context.Background(), Key{Code: VKUp})
	return nil
}

// CursorDown moves the selection like the Down key.
func (e *IBusEngine) CursorDown() *dbus.Error {
	e.session.OnKeyDown(context.Background(), Key{Code: VKDown})
	return nil
}

// CandidateClicked is a no-op: candidates are cycled in place.
func (e *IBusEngine) CandidateClicked(index, button, state uint32) *dbus.Error { return nil }

// IBusFactory implements the IBus Factory D-Bus interface and owns one
// session per created engine.
type IBusFactory struct {
	conn     *dbus.Conn
	manager  *Manager
	newSess  func(host HostEditingSession) *Session
	logger   *logging.Logger
	mu       sync.Mutex
	engineID uint32
	engines  map[dbus.ObjectPath]*IBusEngine
}

// NewIBusFactory returns a factory creating sessions with newSession.
func NewIBusFactory(conn *dbus.Conn, newSession func(host HostEditingSession) *Session, logger *logging.Logger) *IBusFactory {
	if logger == nil {
		logger = logging.Discard()
	}
	f := &IBusFactory{
		conn:    conn,
		newSess: newSession,
		logger:  logger.WithComponent("ibus"),
		engines: make(map[dbus.ObjectPath]*IBusEngine),
	}
	f.manager = NewManager(nil)
	return f
}

// Manager returns the sessions of all live engines.
func (f *IBusFactory) Manager() *Manager { return f.manager }

// CreateEngine creates a new engine instance for IBus.
func (f *IBusFactory) CreateEngine(engineName string) (dbus.ObjectPath, *dbus.Error) {
	if engineName != KanaimeEngineName {
		return "", dbus.NewError("org.freedesktop.IBus.NoEngine",
			[]interface{}{"Unknown engine: " + engineName})
	}

	f.mu.Lock()
	f.engineID++
	path := dbus.ObjectPath(fmt.Sprintf("/org/freedesktop/IBus/Engine/kanaime/%d", f.engineID))
	f.mu.Unlock()

	host := NewIBusHost(f.conn, path)
	sess := f.newSess(host)
	engine := NewIBusEngine(host, sess, f.logger.With("path", string(path)))

	if err := f.conn.Export(engine, path, IBusEngineInterface); err != nil {
		return "", dbus.MakeFailedError(err)
	}
	f.mu.Lock()
	f.engines[path] = engine
	f.mu.Unlock()
	f.manager.Add(string(path), sess)

	f.logger.Info("engine created", "path", string(path), "sid", sess.ID())
	return path, nil
}

// DestroyEngine releases the engine exported at path.
func (f *IBusFactory) DestroyEngine(path dbus.ObjectPath) *dbus.Error {
	f.mu.Lock()
	_, ok := f.engines[path]
	delete(f.engines, path)
	f.mu.Unlock()
	if !ok {
		return nil
	}
	f.conn.Export(nil, path, IBusEngineInterface)
	f.manager.Close(context.Background(), string(path))
	return nil
}

// ServeIBus claims the kanaime bus name and exports the factory.
func ServeIBus(conn *dbus.Conn, factory *IBusFactory) error {
	reply, err := conn.RequestName(KanaimeBusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return errors.New("bus name already taken")
	}
	if err := conn.Export(factory, IBusFactoryPath, IBusFactoryInterface); err != nil {
		return fmt.Errorf("export factory: %w", err)
	}
	return nil
}
