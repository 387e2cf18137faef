package ime

// IntentKind identifies the kind of host edit requested by the Composer.
type IntentKind int

const (
	// IntentNone means the key event needs no host edit.
	IntentNone IntentKind = iota
	// IntentUpdateDisplay replaces the composition text shown in the host.
	IntentUpdateDisplay
	// IntentCommit finalises text into the document.
	IntentCommit
	// IntentCancel clears the composition without committing.
	IntentCancel
)

func (k IntentKind) String() string {
	switch k {
	case IntentNone:
		return "none"
	case IntentUpdateDisplay:
		return "update_display"
	case IntentCommit:
		return "commit"
	case IntentCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// EditIntent is a single requested change to the host document. At most one
// is produced per key event and it is applied immediately.
type EditIntent struct {
	Kind IntentKind
	Text string
}

// UpdateDisplay returns an intent replacing the composition text.
func UpdateDisplay(text string) EditIntent {
	return EditIntent{Kind: IntentUpdateDisplay, Text: text}
}

// Commit returns an intent committing text.
func Commit(text string) EditIntent {
	return EditIntent{Kind: IntentCommit, Text: text}
}

// Cancel returns an intent discarding the composition.
func Cancel() EditIntent {
	return EditIntent{Kind: IntentCancel}
}

// IsNone reports whether the intent requests no host edit.
func (e EditIntent) IsNone() bool {
	return e.Kind == IntentNone
}
