package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"kanaime/internal/ime"
	"kanaime/internal/logging"
)

// Server exposes a ConversionEngine on a unix socket.
type Server struct {
	listener net.Listener
	sockPath string
	engine   ime.ConversionEngine
	logger   *logging.Logger

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	wg     sync.WaitGroup
	closed atomic.Bool
}

// Listen binds a server for engine at sockPath. A stale socket file is
// removed first; anything else at that path is an error.
func Listen(sockPath string, engine ime.ConversionEngine, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	if err := os.MkdirAll(filepath.Dir(sockPath), 0700); err != nil {
		return nil, fmt.Errorf("create socket directory: %w", err)
	}
	if IsSocketListening(sockPath) {
		return nil, fmt.Errorf("socket already in use: %s", sockPath)
	}
	if err := CleanupSocket(sockPath); err != nil {
		return nil, err
	}

	listener, err := net.Listen("unix", sockPath)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}
	if err := os.Chmod(sockPath, 0600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("set socket permissions: %w", err)
	}

	return &Server{
		listener: listener,
		sockPath: sockPath,
		engine:   engine,
		logger:   logger.WithComponent("ipc"),
		conns:    make(map[net.Conn]struct{}),
	}, nil
}

// SocketPath returns the socket the server listens on.
func (s *Server) SocketPath() string {
	return s.sockPath
}

// Serve accepts connections until Close is called or ctx ends.
func (s *Server) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closed.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		s.mu.Lock()
		if s.closed.Load() {
			s.mu.Unlock()
			conn.Close()
			return nil
		}
		s.conns[conn] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()

		go s.handleConn(ctx, conn)
	}
}

// Close stops accepting, drops open connections and removes the socket.
func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := s.listener.Close()

	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	os.Remove(s.sockPath)
	return err
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	if err := verifyPeer(conn); err != nil {
		s.logger.Warn("rejected peer", "err", err)
		return
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxLine)
	for scanner.Scan() {
		var req Request
		var resp Response
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			resp.Error = &Error{Code: CodeInvalidRequest, Message: err.Error()}
		} else {
			resp = s.dispatch(ctx, &req)
		}

		data, err := json.Marshal(resp)
		if err != nil {
			s.logger.Error("failed to marshal response", "err", err)
			return
		}
		if _, err := conn.Write(append(data, '\n')); err != nil {
			s.logger.Debug("write response failed", "err", err)
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, req *Request) Response {
	resp := Response{ID: req.ID}
	s.logger.Debug("request", "id", req.ID, "op", string(req.Op))

	var err error
	switch req.Op {
	case OpPing:
	case OpInit:
		if req.Settings == nil {
			resp.Error = &Error{Code: CodeInvalidRequest, Message: "settings are required"}
			return resp
		}
		err = s.engine.Init(ctx, *req.Settings)
	case OpComposedText:
		resp.Text, err = s.engine.ComposedText(ctx, req.Input, req.requestContext())
	case OpCandidates:
		resp.Candidates, err = s.engine.Candidates(ctx, req.Input, req.requestContext())
	case OpLearn:
		err = s.engine.Learn(ctx, req.Candidate)
	case OpShutdown:
		err = s.engine.Shutdown(ctx)
	default:
		resp.Error = &Error{Code: CodeUnknownOp, Message: fmt.Sprintf("unknown op %q", req.Op)}
		return resp
	}

	if err != nil {
		s.logger.Debug("engine call failed", "op", string(req.Op), "err", err)
		resp.Text = ""
		resp.Candidates = nil
		resp.Error = &Error{Code: CodeEngine, Message: err.Error()}
	}
	return resp
}
