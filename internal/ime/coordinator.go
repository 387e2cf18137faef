package ime

import (
	"context"
	"errors"
	"fmt"

	"kanaime/internal/logging"
)

// SessionToken identifies one granted write session.
type SessionToken uint64

// RangeHandle identifies a text range inside the host document.
type RangeHandle uint64

// HostEditingSession is the host text framework seen from the core. Every
// mutation happens between BeginWrite and EndWrite; the host may refuse a
// session with ErrHostSessionDenied and report a range it has discarded
// with ErrCompositionInvalidated.
type HostEditingSession interface {
	BeginWrite(ctx context.Context) (SessionToken, error)
	InsertRangeAtSelection(tok SessionToken) (RangeHandle, error)
	StartComposition(tok SessionToken, r RangeHandle) error
	SetRangeText(tok SessionToken, r RangeHandle, text string) error
	EndComposition(tok SessionToken, r RangeHandle) error
	EndWrite(tok SessionToken)
}

// Outcome reports how an intent was applied.
type Outcome struct {
	// Applied is true when every host call succeeded.
	Applied bool

	// HostCalls counts write sessions opened; zero means the host was not
	// touched.
	HostCalls int

	// Err is the recovered failure, if any.
	Err error
}

// Invalidated reports whether the host discarded the composition.
func (o Outcome) Invalidated() bool {
	return errors.Is(o.Err, ErrCompositionInvalidated)
}

// Coordinator turns EditIntents into scoped host edit sessions and owns the
// composition handle between them.
type Coordinator struct {
	host   HostEditingSession
	logger *logging.Logger

	handle    RangeHandle
	hasHandle bool
	inFlight  bool
}

// NewCoordinator returns a Coordinator writing to host.
func NewCoordinator(host HostEditingSession, logger *logging.Logger) *Coordinator {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Coordinator{host: host, logger: logger}
}

// HasComposition reports whether a composition handle is live.
func (c *Coordinator) HasComposition() bool {
	return c.hasHandle
}

// Forget drops the composition handle without touching the host. Used when
// the host has already ended the composition.
func (c *Coordinator) Forget() {
	c.handle = 0
	c.hasHandle = false
}

// Apply performs intent as a single host write session. Host failures are
// logged and returned in the Outcome, never as a panic.
func (c *Coordinator) Apply(ctx context.Context, intent EditIntent) Outcome {
	if intent.IsNone() {
		return Outcome{Applied: true}
	}
	if c.inFlight {
		c.logger.Warn("edit dropped", "intent", intent.Kind.String(), "err", ErrReentrantEdit)
		return Outcome{Err: ErrReentrantEdit}
	}
	if intent.Kind == IntentCancel && !c.hasHandle {
		return Outcome{Applied: true}
	}

	c.inFlight = true
	defer func() { c.inFlight = false }()

	tok, err := c.host.BeginWrite(ctx)
	if err != nil {
		if !errors.Is(err, ErrHostSessionDenied) {
			err = fmt.Errorf("%w: %w", ErrHostSessionDenied, err)
		}
		if intent.Kind != IntentUpdateDisplay {
			c.Forget()
		}
		c.logger.Warn("edit session denied", "intent", intent.Kind.String(), "err", err)
		return Outcome{Err: err}
	}
	defer c.host.EndWrite(tok)

	switch intent.Kind {
	case IntentUpdateDisplay:
		err = c.updateDisplay(tok, intent.Text)
	case IntentCommit:
		err = c.commit(tok, intent.Text)
	case IntentCancel:
		err = c.cancel(tok)
	default:
		err = fmt.Errorf("unknown intent kind %d", intent.Kind)
	}

	if err != nil {
		if errors.Is(err, ErrCompositionInvalidated) {
			c.Forget()
		}
		c.logger.Warn("edit failed", "intent", intent.Kind.String(), "err", err)
		return Outcome{HostCalls: 1, Err: err}
	}
	return Outcome{Applied: true, HostCalls: 1}
}

func (c *Coordinator) updateDisplay(tok SessionToken, text string) error {
	if !c.hasHandle {
		r, err := c.host.InsertRangeAtSelection(tok)
		if err != nil {
			return fmt.Errorf("insert composition range: %w", err)
		}
		if err := c.host.StartComposition(tok, r); err != nil {
			c.release(tok, r)
			return fmt.Errorf("start composition: %w", err)
		}
		c.handle = r
		c.hasHandle = true
	}
	if err := c.host.SetRangeText(tok, c.handle, text); err != nil {
		return fmt.Errorf("set composition text: %w", err)
	}
	return nil
}

// release empties a range that never became a composition. Setting the text
// of a plain range consumes it on every host.
func (c *Coordinator) release(tok SessionToken, r RangeHandle) {
	if err := c.host.SetRangeText(tok, r, ""); err != nil {
		c.logger.Debug("release range failed", "err", err)
	}
}

func (c *Coordinator) commit(tok SessionToken, text string) error {
	if !c.hasHandle {
		r, err := c.host.InsertRangeAtSelection(tok)
		if err != nil {
			return fmt.Errorf("insert commit range: %w", err)
		}
		if err := c.host.SetRangeText(tok, r, text); err != nil {
			return fmt.Errorf("insert committed text: %w", err)
		}
		return nil
	}

	r := c.handle
	c.Forget()
	if err := c.host.SetRangeText(tok, r, text); err != nil {
		return fmt.Errorf("set committed text: %w", err)
	}
	if err := c.host.EndComposition(tok, r); err != nil {
		return fmt.Errorf("end composition: %w", err)
	}
	return nil
}

func (c *Coordinator) cancel(tok SessionToken) error {
	r := c.handle
	c.Forget()
	if err := c.host.SetRangeText(tok, r, ""); err != nil {
		return fmt.Errorf("clear composition text: %w", err)
	}
	if err := c.host.EndComposition(tok, r); err != nil {
		return fmt.Errorf("end composition: %w", err)
	}
	return nil
}
