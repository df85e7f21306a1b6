// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

// Package telnet provides a line-oriented chat console for terminal users.
package telnet

import (
	"context"
	"log/slog"
	"net"
	"sync"

	"github.com/samber/oops"

	"github.com/peerchat/peerchat/internal/core"
	"github.com/peerchat/peerchat/internal/observability"
)

// Chat is the engine surface the console drives.
type Chat interface {
	Username() string
	JoinRoom(ctx context.Context, room string) (core.RoomHandle, error)
	LeaveRoom(ctx context.Context, room string) error
	SendMessage(ctx context.Context, room string, in core.MessageInput) (core.ChatMessage, error)
	ChatHistory(ctx context.Context, room string) ([]core.ChatMessage, error)
	ActiveRooms() []core.RoomStatus
	MarkRead(room string) error
	OnMessage(room string, fn core.MessageHandler)
}

// Server accepts console connections.
type Server struct {
	addr     string
	chat     Chat
	events   *core.Broadcaster
	metrics  *observability.Metrics
	log      *slog.Logger
	listener net.Listener
	mu       sync.RWMutex
	wg       sync.WaitGroup
}

// NewServer creates a console server. metrics may be nil.
func NewServer(addr string, chat Chat, events *core.Broadcaster, metrics *observability.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:    addr,
		chat:    chat,
		events:  events,
		metrics: metrics,
		log:     logger.With("component", "telnet"),
	}
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Listen binds the listen address. Run calls it when it has not been called.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return oops.With("addr", s.addr).Wrapf(err, "telnet listen")
	}
	s.listener = listener
	s.log.Info("telnet server started", "addr", listener.Addr().String())
	return nil
}

// Run serves connections until ctx is canceled, then waits for open
// sessions to end.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.mu.RLock()
	listener := s.listener
	s.mu.RUnlock()

	go func() {
		<-ctx.Done()
		if err := listener.Close(); err != nil {
			s.log.Debug("error closing listener", "error", err)
		}
	}()
	defer s.wg.Wait()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.log.Error("accept failed", "error", err)
				continue
			}
		}
		s.metrics.FrontendConnected("telnet")
		handler := NewConnectionHandler(conn, s.chat, s.events, s.log)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			handler.Handle(ctx)
		}()
	}
}
