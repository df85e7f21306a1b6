// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

// Package api serves the local HTTP and websocket interface to the chat
// engine.
package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/samber/oops"

	"github.com/peerchat/peerchat/internal/core"
	"github.com/peerchat/peerchat/internal/observability"
)

// Chat is the engine surface the API drives.
type Chat interface {
	JoinRoom(ctx context.Context, room string) (core.RoomHandle, error)
	LeaveRoom(ctx context.Context, room string) error
	SendMessage(ctx context.Context, room string, in core.MessageInput) (core.ChatMessage, error)
	ChatHistory(ctx context.Context, room string) ([]core.ChatMessage, error)
	ActiveRooms() []core.RoomStatus
	MarkRead(room string) error
	OnMessage(room string, fn core.MessageHandler)
}

// Server is the HTTP API listener.
type Server struct {
	addr       string
	chat       Chat
	events     *core.Broadcaster
	metrics    *observability.Metrics
	log        *slog.Logger
	listener   net.Listener
	httpServer *http.Server
	cancel     context.CancelFunc
	running    atomic.Bool
}

// NewServer creates an API server. Messages of rooms joined through it are
// published to events; metrics may be nil.
func NewServer(addr string, chat Chat, events *core.Broadcaster, metrics *observability.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:    addr,
		chat:    chat,
		events:  events,
		metrics: metrics,
		log:     logger.With("component", "api"),
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/rooms", s.handleRooms)
	mux.HandleFunc("GET /api/history/{room}", s.handleHistory)
	mux.HandleFunc("POST /api/join/{room}", s.handleJoin)
	mux.HandleFunc("POST /api/leave/{room}", s.handleLeave)
	mux.HandleFunc("POST /api/message/{room}", s.handleMessage)
	mux.HandleFunc("POST /api/read/{room}", s.handleRead)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	return mux
}

// Start begins serving. The returned channel reports a serve failure and is
// closed when the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("api server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	// Event streams are hijacked connections that Shutdown does not wait
	// for; they end when this context is canceled.
	baseCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			s.log.Error("api server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.log.Info("api server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop shuts the server down. Open event streams are closed.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_api_server").Wrap(err)
		}
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.log.Info("api server stopped")
	return nil
}

// Addr returns the listen address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
