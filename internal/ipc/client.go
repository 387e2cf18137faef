package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"

	"kanaime/internal/ime"
)

// DefaultTimeout bounds a single engine call.
const DefaultTimeout = 2 * time.Second

// maxLine bounds a single response line.
const maxLine = 1 << 20

var (
	// ErrEngineNotRunning means nothing is listening on the socket. Errors
	// wrapping it also wrap ime.ErrEngineLost.
	ErrEngineNotRunning = errors.New("ipc: engine is not running")
	// ErrMismatchedResponse means the peer answered a different request.
	ErrMismatchedResponse = errors.New("ipc: response id mismatch")
)

// Client talks to an engine Server. It implements ime.ConversionEngine and
// opens one connection per call, so it is safe for concurrent use.
type Client struct {
	socketPath string
	timeout    time.Duration
	dialer     net.Dialer
}

var _ ime.ConversionEngine = (*Client)(nil)

// NewClient returns a client for the socket at path. A zero timeout means
// DefaultTimeout.
func NewClient(path string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{socketPath: path, timeout: timeout}
}

// SocketPath returns the socket the client dials.
func (c *Client) SocketPath() string {
	return c.socketPath
}

// Init initialises the remote engine.
func (c *Client) Init(ctx context.Context, settings ime.EngineSettings) error {
	_, err := c.call(ctx, &Request{Op: OpInit, Settings: &settings})
	return err
}

// ComposedText asks the remote engine for the kana rendering of input.
func (c *Client) ComposedText(ctx context.Context, input string, rc ime.RequestContext) (string, error) {
	resp, err := c.call(ctx, &Request{Op: OpComposedText, Input: input, Context: &rc})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// Candidates asks the remote engine to convert input.
func (c *Client) Candidates(ctx context.Context, input string, rc ime.RequestContext) ([]string, error) {
	resp, err := c.call(ctx, &Request{Op: OpCandidates, Input: input, Context: &rc})
	if err != nil {
		return nil, err
	}
	return resp.Candidates, nil
}

// Learn tells the remote engine that candidate was chosen.
func (c *Client) Learn(ctx context.Context, candidate string) error {
	_, err := c.call(ctx, &Request{Op: OpLearn, Candidate: candidate})
	return err
}

// Shutdown stops the remote engine. The server keeps listening.
func (c *Client) Shutdown(ctx context.Context) error {
	_, err := c.call(ctx, &Request{Op: OpShutdown})
	return err
}

// Ping checks that the server answers.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.call(ctx, &Request{Op: OpPing})
	return err
}

func (c *Client) call(ctx context.Context, req *Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req.ID = uuid.NewString()

	conn, err := c.dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %w", ErrEngineNotRunning, ime.ErrEngineLost, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	if _, err := conn.Write(append(data, '\n')); err != nil {
		return nil, fmt.Errorf("write %s request: %w", req.Op, c.ctxErr(ctx, err))
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxLine)
	if !scanner.Scan() {
		err := scanner.Err()
		if err == nil {
			err = errors.New("connection closed")
		}
		return nil, fmt.Errorf("read %s response: %w", req.Op, c.ctxErr(ctx, err))
	}

	var resp Response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", req.Op, err)
	}
	if resp.ID != req.ID {
		return nil, fmt.Errorf("%w: sent %s, got %s", ErrMismatchedResponse, req.ID, resp.ID)
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return &resp, nil
}

// ctxErr prefers the context error when the deadline tripped the I/O.
func (c *Client) ctxErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
