package ime

import (
	"context"
	"fmt"
	"sync"
)

// MemoryDocument is an in-memory HostEditingSession. It backs kanaimectl
// replay and the tests, and records every host call it receives.
type MemoryDocument struct {
	mu sync.Mutex

	text   []rune
	caret  int
	ranges map[RangeHandle]*memRange

	nextRange  RangeHandle
	nextToken  SessionToken
	active     SessionToken
	denyWrites bool
	calls      []string

	onTerminate func()
}

type memRange struct {
	start, end int
	composing  bool
}

// NewMemoryDocument returns a document holding text with the caret at the
// end.
func NewMemoryDocument(text string) *MemoryDocument {
	r := []rune(text)
	return &MemoryDocument{
		text:   r,
		caret:  len(r),
		ranges: make(map[RangeHandle]*memRange),
	}
}

// Text returns the full document text, composition included.
func (d *MemoryDocument) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return string(d.text)
}

// Caret returns the caret position in runes.
func (d *MemoryDocument) Caret() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.caret
}

// Composition returns the text of the live composition, if any.
func (d *MemoryDocument) Composition() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range d.ranges {
		if r.composing {
			return string(d.text[r.start:r.end]), true
		}
	}
	return "", false
}

// Ranges returns the number of ranges the document still tracks.
func (d *MemoryDocument) Ranges() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.ranges)
}

// Preceding returns up to n runes left of the caret.
func (d *MemoryDocument) Preceding(n int) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	start := d.caret - n
	if start < 0 {
		start = 0
	}
	return string(d.text[start:d.caret])
}

// Calls returns the recorded host calls.
func (d *MemoryDocument) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

// ResetCalls clears the call log.
func (d *MemoryDocument) ResetCalls() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = nil
}

// DenyWrites makes BeginWrite fail while deny is true.
func (d *MemoryDocument) DenyWrites(deny bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.denyWrites = deny
}

// OnTerminate registers the callback run when the document ends a
// composition on its own.
func (d *MemoryDocument) OnTerminate(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onTerminate = fn
}

// TerminateComposition simulates the host ending the composition (focus
// change, application reset): the composed text stays in the document, the
// range is discarded and the termination callback runs.
func (d *MemoryDocument) TerminateComposition() {
	d.mu.Lock()
	dropped := d.dropCompositionsLocked()
	fn := d.onTerminate
	d.mu.Unlock()

	if dropped && fn != nil {
		fn()
	}
}

// InvalidateComposition discards the composition range without notifying
// anyone, so the next write to it fails with ErrCompositionInvalidated.
func (d *MemoryDocument) InvalidateComposition() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dropCompositionsLocked()
}

func (d *MemoryDocument) dropCompositionsLocked() bool {
	dropped := false
	for h, r := range d.ranges {
		if r.composing {
			delete(d.ranges, h)
			dropped = true
		}
	}
	return dropped
}

func (d *MemoryDocument) record(format string, args ...any) {
	d.calls = append(d.calls, fmt.Sprintf(format, args...))
}

func (d *MemoryDocument) checkToken(tok SessionToken) error {
	if tok == 0 || tok != d.active {
		return fmt.Errorf("%w: token %d is not the active session", ErrHostSessionDenied, tok)
	}
	return nil
}

// DeleteBackward removes the rune before the caret, as a text field does for
// a backspace the input method passed. Ranges after the caret shift left.
func (d *MemoryDocument) DeleteBackward() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.caret == 0 {
		return false
	}
	at := d.caret - 1
	d.text = append(d.text[:at], d.text[d.caret:]...)
	d.caret = at
	for _, r := range d.ranges {
		if r.start > at {
			r.start--
			r.end--
		}
	}
	return true
}

// BeginWrite implements HostEditingSession.
func (d *MemoryDocument) BeginWrite(ctx context.Context) (SessionToken, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.record("BeginWrite")
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrHostSessionDenied, err)
	}
	if d.denyWrites {
		return 0, ErrHostSessionDenied
	}
	if d.active != 0 {
		return 0, fmt.Errorf("%w: session %d still open", ErrHostSessionDenied, d.active)
	}
	d.nextToken++
	d.active = d.nextToken
	return d.active, nil
}

// InsertRangeAtSelection implements HostEditingSession.
func (d *MemoryDocument) InsertRangeAtSelection(tok SessionToken) (RangeHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.record("InsertRangeAtSelection")
	if err := d.checkToken(tok); err != nil {
		return 0, err
	}
	d.nextRange++
	d.ranges[d.nextRange] = &memRange{start: d.caret, end: d.caret}
	return d.nextRange, nil
}

// StartComposition implements HostEditingSession.
func (d *MemoryDocument) StartComposition(tok SessionToken, h RangeHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.record("StartComposition")
	if err := d.checkToken(tok); err != nil {
		return err
	}
	r, ok := d.ranges[h]
	if !ok {
		return ErrCompositionInvalidated
	}
	r.composing = true
	return nil
}

// SetRangeText implements HostEditingSession.
func (d *MemoryDocument) SetRangeText(tok SessionToken, h RangeHandle, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.record("SetRangeText(%s)", text)
	if err := d.checkToken(tok); err != nil {
		return err
	}
	r, ok := d.ranges[h]
	if !ok {
		return ErrCompositionInvalidated
	}

	repl := []rune(text)
	tail := append([]rune(nil), d.text[r.end:]...)
	d.text = append(append(d.text[:r.start], repl...), tail...)

	delta := len(repl) - (r.end - r.start)
	oldEnd := r.end
	r.end = r.start + len(repl)
	for other, o := range d.ranges {
		if other != h && o.start >= oldEnd {
			o.start += delta
			o.end += delta
		}
	}
	d.caret = r.end
	if !r.composing {
		delete(d.ranges, h)
	}
	return nil
}

// EndComposition implements HostEditingSession.
func (d *MemoryDocument) EndComposition(tok SessionToken, h RangeHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.record("EndComposition")
	if err := d.checkToken(tok); err != nil {
		return err
	}
	r, ok := d.ranges[h]
	if !ok {
		return ErrCompositionInvalidated
	}
	d.caret = r.end
	delete(d.ranges, h)
	return nil
}

// EndWrite implements HostEditingSession.
func (d *MemoryDocument) EndWrite(tok SessionToken) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.record("EndWrite")
	if tok == d.active {
		d.active = 0
	}
}
