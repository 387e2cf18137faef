// Package ipc carries conversion engine requests over a unix socket.
//
// Each message is one JSON object terminated by a newline. A client sends a
// Request and reads exactly one Response with the same ID.
//
// The two halves live in different processes. Client is what the input
// method dials: it implements ime.ConversionEngine and is wrapped by
// ime.ConverterClient. Server is the library side for the engine process,
// which links this package, hands its ime.ConversionEngine to Listen and
// runs Serve. kanaime ships no engine of its own, so no binary in this
// module calls Listen; kanaimectl engine ping checks that one is up.
package ipc

import (
	"fmt"
	"os"
	"path/filepath"

	"kanaime/internal/ime"
)

// Op names an engine operation.
type Op string

const (
	OpInit         Op = "init"
	OpComposedText Op = "composed_text"
	OpCandidates   Op = "candidates"
	OpLearn        Op = "learn"
	OpShutdown     Op = "shutdown"
	OpPing         Op = "ping"
)

// Error codes carried in Response.Error.
const (
	CodeInvalidRequest = "invalid_request"
	CodeUnknownOp      = "unknown_op"
	CodeEngine         = "engine_error"
)

// Request is a single engine call.
type Request struct {
	ID        string              `json:"id"`
	Op        Op                  `json:"op"`
	Input     string              `json:"input,omitempty"`
	Context   *ime.RequestContext `json:"context,omitempty"`
	Settings  *ime.EngineSettings `json:"settings,omitempty"`
	Candidate string              `json:"candidate,omitempty"`
}

func (r *Request) requestContext() ime.RequestContext {
	if r.Context == nil {
		return ime.RequestContext{}
	}
	return *r.Context
}

// Response answers the Request with the same ID.
type Response struct {
	ID         string   `json:"id"`
	Text       string   `json:"text,omitempty"`
	Candidates []string `json:"candidates,omitempty"`
	Error      *Error   `json:"error,omitempty"`
}

// Error is a failure reported by the peer.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// DefaultSocketPath resolves the engine socket: $KANAIME_ENGINE_SOCKET, then
// $XDG_RUNTIME_DIR, then a per-user path in /tmp.
func DefaultSocketPath() string {
	if p := os.Getenv("KANAIME_ENGINE_SOCKET"); p != "" {
		return p
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "kanaime-engine.sock")
	}
	return fmt.Sprintf("/tmp/kanaime-engine-%d.sock", os.Getuid())
}
