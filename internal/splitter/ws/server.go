// Package ws exposes a splitter.Bus over a websocket listener: the
// daemon's default choice for "the splitter bus" spec.md §1 otherwise
// leaves unspecified (JSON parsing/validation/serialization is this
// package's concern, not the bus's). Grounded on the teacher's
// net.Listen + errgroup-supervised http.Server pattern in
// controlplane/internal/gateway/gateway.go's Run/runHTTPServer.
package ws

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/iqrf/iqmesh-gateway/internal/splitter"
)

// listenAddr accepts either a plain "host:port" or a "ws://host:port"
// endpoint (SplitterConfig.Endpoint's documented form) and returns the
// host:port net.Listen expects.
func listenAddr(addr string) string {
	u, err := url.Parse(addr)
	if err != nil || u.Host == "" {
		return addr
	}
	return u.Host
}

// Server serves one splitter.Bus over websocket connections at Addr.
// Every connected client receives every outgoing envelope the bus
// publishes (spec.md §6 does not distinguish clients at the transport
// level); every inbound text message is handed to Bus.Dispatch.
type Server struct {
	Addr string
	Bus  *splitter.Bus
	Log  *zap.SugaredLogger

	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewServer builds a Server and wires its Bus's outgoing sink to
// broadcast to every connected client.
func NewServer(addr string, bus *splitter.Bus, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &Server{
		Addr:  addr,
		Bus:   bus,
		Log:   log,
		conns: make(map[*websocket.Conn]struct{}),
	}
	return s
}

// Sink is the splitter.Bus publish callback this server installs: it
// broadcasts env to every currently connected client.
func (s *Server) Sink(ctx context.Context, env splitter.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for conn := range s.conns {
		if err := conn.WriteJSON(env); err != nil {
			s.Log.Warnw("ws: failed to write envelope, dropping connection", "error", err)
			conn.Close()
			delete(s.conns, conn)
		}
	}
	return nil
}

// Run listens on s.Addr until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", listenAddr(s.Addr))
	if err != nil {
		return fmt.Errorf("ws: failed to listen on %s: %w", s.Addr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleConn)
	server := &http.Server{Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		_ = server.Close()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleConn(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.Warnw("ws: upgrade failed", "error", err)
		return
	}

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	ctx := r.Context()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := s.Bus.Dispatch(ctx, raw); err != nil {
			s.Log.Warnw("ws: dispatch failed", "error", err)
		}
	}
}
