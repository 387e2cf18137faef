package ime

// Phase is the composition phase of a session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseComposing
	PhaseSelecting
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseComposing:
		return "composing"
	case PhaseSelecting:
		return "selecting"
	default:
		return "unknown"
	}
}

// Command is the action a classified key asks the Composer to perform.
type Command int

const (
	CmdNone Command = iota
	CmdAppendChar
	CmdDeleteBack
	CmdCommit
	CmdCancel
	CmdRequestCandidates
	CmdNextCandidate
	CmdPrevCandidate
)

func (c Command) String() string {
	switch c {
	case CmdNone:
		return "none"
	case CmdAppendChar:
		return "append"
	case CmdDeleteBack:
		return "delete_back"
	case CmdCommit:
		return "commit"
	case CmdCancel:
		return "cancel"
	case CmdRequestCandidates:
		return "request_candidates"
	case CmdNextCandidate:
		return "next_candidate"
	case CmdPrevCandidate:
		return "prev_candidate"
	default:
		return "unknown"
	}
}

// Decision is the classifier verdict for one key event.
type Decision struct {
	// Eat is true when the input method consumes the key and the host must
	// not deliver it to the application.
	Eat bool

	// Command is set whenever Eat is true.
	Command Command

	// Char is the rune to append for CmdAppendChar.
	Char rune
}

var pass = Decision{}

func eat(cmd Command) Decision {
	return Decision{Eat: true, Command: cmd}
}

// Classify decides whether key is consumed in phase and which command it
// maps to. It is pure: the same arguments always give the same Decision.
func Classify(phase Phase, key Key) Decision {
	if key.Modifiers.shortcut() {
		return pass
	}

	// Only a letter opens a composition; '-' extends one that is already
	// open and otherwise reaches the application.
	if r := key.Code.Rune(); r != 0 && (phase != PhaseIdle || key.Code.IsLetter()) {
		return Decision{Eat: true, Command: CmdAppendChar, Char: r}
	}

	switch phase {
	case PhaseComposing:
		switch key.Code {
		case VKBack:
			return eat(CmdDeleteBack)
		case VKReturn:
			return eat(CmdCommit)
		case VKEscape:
			return eat(CmdCancel)
		case VKSpace:
			return eat(CmdRequestCandidates)
		}
	case PhaseSelecting:
		switch key.Code {
		case VKUp:
			return eat(CmdPrevCandidate)
		case VKDown, VKSpace:
			return eat(CmdNextCandidate)
		case VKReturn:
			return eat(CmdCommit)
		case VKEscape:
			return eat(CmdCancel)
		case VKBack:
			return eat(CmdDeleteBack)
		}
	}
	return pass
}
