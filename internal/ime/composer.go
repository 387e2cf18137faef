package ime

import (
	"context"
	"errors"
)

// CandidateSource is the part of ConverterClient the Composer depends on.
type CandidateSource interface {
	ComposedText(ctx context.Context, buffer []rune, rc RequestContext) (string, error)
	Candidates(ctx context.Context, buffer []rune, rc RequestContext) ([]string, error)
	NotifySelected(ctx context.Context, reading, candidate string, mode LearningMode) error
}

// Step is the result of one Composer command.
type Step struct {
	// Intent is the host edit to apply; IntentNone when nothing changes.
	Intent EditIntent

	// EngineErr records a conversion failure that was recovered from.
	EngineErr error
}

// Composer is the composition state machine. It owns the phase, the romaji
// input buffer and the candidate list. A Composer is not safe for concurrent
// use; Session serialises access.
type Composer struct {
	source CandidateSource

	phase      Phase
	buffer     []rune
	candidates []string
	selected   int
}

// NewComposer returns an idle Composer. source may be nil, in which case
// every conversion falls back to the raw buffer.
func NewComposer(source CandidateSource) *Composer {
	return &Composer{source: source}
}

// Phase returns the current phase.
func (c *Composer) Phase() Phase { return c.phase }

// Buffer returns a copy of the input buffer.
func (c *Composer) Buffer() []rune {
	return append([]rune(nil), c.buffer...)
}

// Candidates returns a copy of the candidate list and the selected index.
// The index is -1 when the list is empty.
func (c *Composer) Candidates() ([]string, int) {
	if len(c.candidates) == 0 {
		return nil, -1
	}
	return append([]string(nil), c.candidates...), c.selected
}

// Handle applies d to the state machine. Decisions that were not eaten are
// ignored.
func (c *Composer) Handle(ctx context.Context, d Decision, rc RequestContext) Step {
	if !d.Eat {
		return Step{}
	}

	switch d.Command {
	case CmdAppendChar:
		return c.appendChar(ctx, d.Char, rc)
	case CmdDeleteBack:
		return c.deleteBack(ctx, rc)
	case CmdRequestCandidates:
		return c.requestCandidates(ctx, rc)
	case CmdNextCandidate:
		return c.move(+1)
	case CmdPrevCandidate:
		return c.move(-1)
	case CmdCommit:
		return c.commit(ctx, rc)
	case CmdCancel:
		return c.cancel()
	}
	return Step{}
}

// Terminate handles HostCompositionTerminated: it drops to Idle without
// producing an intent. It reports whether there was anything to drop.
func (c *Composer) Terminate() bool {
	if c.phase == PhaseIdle {
		return false
	}
	c.reset()
	return true
}

func (c *Composer) appendChar(ctx context.Context, r rune, rc RequestContext) Step {
	if r == 0 {
		return Step{}
	}
	c.buffer = append(c.buffer, r)
	c.clearCandidates()
	c.phase = PhaseComposing

	text, err := c.preview(ctx, rc)
	return Step{Intent: UpdateDisplay(text), EngineErr: err}
}

func (c *Composer) deleteBack(ctx context.Context, rc RequestContext) Step {
	if len(c.buffer) == 0 {
		return Step{}
	}
	c.buffer = c.buffer[:len(c.buffer)-1]
	c.clearCandidates()

	if len(c.buffer) == 0 {
		c.reset()
		return Step{Intent: Cancel()}
	}
	c.phase = PhaseComposing
	text, err := c.preview(ctx, rc)
	return Step{Intent: UpdateDisplay(text), EngineErr: err}
}

func (c *Composer) requestCandidates(ctx context.Context, rc RequestContext) Step {
	if c.phase != PhaseComposing || len(c.buffer) == 0 {
		return Step{}
	}
	cands, err := c.lookup(ctx, rc)
	if err != nil || len(cands) == 0 {
		return Step{EngineErr: err}
	}
	c.candidates = cands
	c.selected = 0
	c.phase = PhaseSelecting
	return Step{Intent: UpdateDisplay(cands[0])}
}

func (c *Composer) move(delta int) Step {
	if c.phase != PhaseSelecting || len(c.candidates) == 0 {
		return Step{}
	}
	next := c.selected + delta
	if next < 0 {
		next = 0
	}
	if next > len(c.candidates)-1 {
		next = len(c.candidates) - 1
	}
	if next == c.selected {
		return Step{}
	}
	c.selected = next
	return Step{Intent: UpdateDisplay(c.candidates[next])}
}

func (c *Composer) commit(ctx context.Context, rc RequestContext) Step {
	var (
		text string
		err  error
	)
	switch c.phase {
	case PhaseIdle:
		return Step{}
	case PhaseSelecting:
		text = c.candidates[c.selected]
		if c.source != nil {
			err = c.source.NotifySelected(ctx, string(c.buffer), text, rc.Learning)
		}
	default:
		text, err = c.preview(ctx, rc)
	}
	c.reset()
	return Step{Intent: Commit(text), EngineErr: err}
}

func (c *Composer) cancel() Step {
	if c.phase == PhaseIdle {
		return Step{}
	}
	c.reset()
	return Step{Intent: Cancel()}
}

// preview returns the composed kana for the buffer, or the raw buffer when
// the engine has nothing. Kanji only appear once candidates are requested.
func (c *Composer) preview(ctx context.Context, rc RequestContext) (string, error) {
	if c.source == nil {
		return string(c.buffer), ErrEngineUnavailable
	}
	text, err := c.source.ComposedText(ctx, c.buffer, rc)
	if err != nil {
		return string(c.buffer), classifyEngineErr(err)
	}
	if text == "" {
		return string(c.buffer), nil
	}
	return text, nil
}

func (c *Composer) lookup(ctx context.Context, rc RequestContext) ([]string, error) {
	if c.source == nil {
		return nil, ErrEngineUnavailable
	}
	cands, err := c.source.Candidates(ctx, c.buffer, rc)
	return cands, classifyEngineErr(err)
}

func classifyEngineErr(err error) error {
	if err != nil && !errors.Is(err, ErrEngineUnavailable) && !errors.Is(err, ErrEngineTransient) {
		return errors.Join(ErrEngineTransient, err)
	}
	return err
}

func (c *Composer) clearCandidates() {
	c.candidates = nil
	c.selected = 0
}

func (c *Composer) reset() {
	c.phase = PhaseIdle
	c.buffer = nil
	c.clearCandidates()
}
