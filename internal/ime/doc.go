// Package ime implements the composition core of a Japanese input method:
// it turns raw key-down events into committed text through a scoped,
// synchronous editing protocol with the host text framework, while asking an
// external conversion engine for ranked candidates.
//
// # Pipeline
//
//	KeyEventSource ──(vk, mods)──→ Classify ──Command──→ Composer
//	                                   │                     │
//	                              eat / pass            EditIntent
//	                                                         │
//	                    ConverterClient ←──candidates────────┤
//	                                                         ↓
//	                                                   Coordinator
//	                                                         │
//	                                          one BeginWrite … EndWrite
//	                                                         ↓
//	                                                HostEditingSession
//
// Classify is a pure function of (phase, key, modifiers). The test-key path
// and the real key path call it with the same arguments, so the host never
// sees them disagree about whether a key is eaten.
//
// # Phases
//
//	┌────────────┬─────────────────────────────────────────────────────────┐
//	│ Phase      │ Eaten keys                                              │
//	├────────────┼─────────────────────────────────────────────────────────┤
//	│ Idle       │ letters and '-' only                                    │
//	│ Composing  │ letters, '-', Backspace, Enter, Escape, Space           │
//	│ Selecting  │ letters, '-', Up, Down, Space, Enter, Escape, Backspace │
//	└────────────┴─────────────────────────────────────────────────────────┘
//
// Any key chord holding Control, Alt or Meta passes through in every phase.
//
// # Composition lifecycle
//
//	Idle ──AppendChar──→ Composing ──RequestCandidates──→ Selecting
//	 ↑                    │  ↑                               │
//	 │                    │  └──────AppendChar/DeleteBack────┘
//	 └──Commit/Cancel/────┴────────Commit/Cancel─────────────┘
//	    DeleteBack-to-empty/host termination
//
// The host-side composition range is created lazily by the first display
// update and released on every path back to Idle. When the host ends the
// composition on its own (focus loss, reset), the session drops to Idle
// without writing to the host.
//
// # Failure model
//
// Nothing raised by the engine or the host reaches the key-event caller.
// Engine failures degrade to the raw romaji buffer; host failures are turned
// into Outcome values by the Coordinator and logged.
package ime
