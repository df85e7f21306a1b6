// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

// Package chat is the peer-to-peer chat engine. It joins rooms on the
// overlay, keeps each room's log in sync with its peers and reports
// messages and presence to the host application.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/gobwas/glob"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/peerchat/peerchat/internal/core"
	"github.com/peerchat/peerchat/internal/overlay"
	"github.com/peerchat/peerchat/internal/protocol"
	"github.com/peerchat/peerchat/pkg/errutil"
)

var tracer = otel.Tracer("peerchat/chat")

// Engine runs any number of rooms for one local user.
type Engine struct {
	cfg      Config
	log      *slog.Logger
	ids      *core.IDGenerator
	presence *core.PresenceTracker
	dispatch *core.Dispatcher
	validate *validator.Validate
	allowed  []glob.Glob

	mu     sync.Mutex
	rooms  map[string]*room
	closed bool
}

// NewEngine creates an engine. No room is joined.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	allowed, err := compilePatterns(cfg.AllowedRooms)
	if err != nil {
		return nil, err
	}
	return &Engine{
		cfg:      cfg,
		log:      cfg.Logger.With("component", "chat", "username", cfg.Username),
		ids:      core.NewIDGenerator(cfg.Now),
		presence: core.NewPresenceTracker(),
		dispatch: core.NewDispatcher(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		allowed:  allowed,
		rooms:    make(map[string]*room),
	}, nil
}

// Username returns the name used for local messages.
func (e *Engine) Username() string { return e.cfg.Username }

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (e *Engine) roomAllowed(name string) bool {
	if len(e.allowed) == 0 {
		return true
	}
	for _, g := range e.allowed {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// JoinRoom joins a room, or returns the existing handle if the room is
// already joined or being joined.
func (e *Engine) JoinRoom(ctx context.Context, name string) (handle core.RoomHandle, err error) {
	ctx, span := tracer.Start(ctx, "chat.join_room", trace.WithAttributes(attribute.String("room", name)))
	defer func() { endSpan(span, err) }()

	if !e.roomAllowed(name) {
		return core.RoomHandle{}, ErrRoomNotAllowed(name)
	}

	r, existing := e.claimRoom(name)
	for existing != nil {
		select {
		case <-existing.ready:
		case <-ctx.Done():
			return core.RoomHandle{}, OverlayError(name, ctx.Err())
		}
		if existing.joinErr != nil {
			return core.RoomHandle{}, existing.joinErr
		}
		if existing.getState() != stateLeaving {
			return existing.handle(), nil
		}
		// A leave is in progress; join afresh once it has finished.
		select {
		case <-existing.left:
		case <-ctx.Done():
			return core.RoomHandle{}, OverlayError(name, ctx.Err())
		}
		r, existing = e.claimRoom(name)
	}
	if r == nil {
		return core.RoomHandle{}, ErrEngineClosed
	}

	if err := e.join(ctx, r); err != nil {
		e.mu.Lock()
		if e.rooms[name] == r {
			delete(e.rooms, name)
		}
		e.mu.Unlock()
		r.joinErr = err
		close(r.ready)
		return core.RoomHandle{}, err
	}
	close(r.ready)

	e.cfg.Metrics.RoomJoined()
	e.log.Info("joined room", "room", name, "topic", r.topic.String())
	e.notifyRooms()
	e.requestHistory(r)

	if e.cfg.WelcomeMessage != "" {
		text := strings.ReplaceAll(e.cfg.WelcomeMessage, "%s", name)
		if _, err := e.send(ctx, r, core.MessageInput{Name: core.SystemName, Message: text}); err != nil {
			errutil.LogWarn(e.log, "welcome message failed", err)
		}
	}
	return r.handle(), nil
}

// claimRoom registers a new joining room under name and returns it. If the
// name is taken it returns the existing room instead. Both are nil once the
// engine is closed.
func (e *Engine) claimRoom(name string) (claimed, existing *room) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, nil
	}
	if r, ok := e.rooms[name]; ok {
		return nil, r
	}
	r := newRoom(name)
	e.rooms[name] = r
	return r, nil
}

// join opens the log, registers presence and joins the overlay.
func (e *Engine) join(ctx context.Context, r *room) error {
	log, err := e.cfg.Logs.Open(ctx, r.name)
	if err != nil {
		return StorageError(r.name, err)
	}
	r.mu.Lock()
	r.log = log
	r.mu.Unlock()

	e.presence.Join(r.name)

	membership, err := e.cfg.Overlay.Join(ctx, r.topic, func(c overlay.Conn) { e.acceptPeer(r, c) })
	if err != nil {
		r.mu.Lock()
		r.state = stateLeaving
		r.mu.Unlock()
		r.peers.CloseAll()
		_ = log.Close()
		e.presence.Leave(r.name)
		return OverlayError(r.name, err)
	}

	r.mu.Lock()
	r.membership = membership
	r.state = stateJoined
	r.joinedAt = e.cfg.Now()
	r.mu.Unlock()
	return nil
}

// LeaveRoom leaves a joined room. Peers are dropped without notice; the log
// stays on disk.
func (e *Engine) LeaveRoom(ctx context.Context, name string) (err error) {
	_, span := tracer.Start(ctx, "chat.leave_room", trace.WithAttributes(attribute.String("room", name)))
	defer func() { endSpan(span, err) }()

	e.mu.Lock()
	r, ok := e.rooms[name]
	e.mu.Unlock()
	if !ok {
		return ErrRoomNotJoined(name)
	}

	select {
	case <-r.ready:
	case <-ctx.Done():
		return OverlayError(name, ctx.Err())
	}
	if r.joinErr != nil {
		return ErrRoomNotJoined(name)
	}

	r.mu.Lock()
	if r.state == stateLeaving {
		r.mu.Unlock()
		return nil
	}
	r.state = stateLeaving
	membership, log := r.membership, r.log
	r.mu.Unlock()

	if membership != nil {
		if err := membership.Leave(); err != nil {
			errutil.LogWarn(e.log, "overlay leave failed", OverlayError(name, err))
		}
	}
	r.peers.CloseAll()
	if err := log.Close(); err != nil {
		errutil.LogWarn(e.log, "closing message log failed", err)
	}
	e.presence.Leave(name)

	e.mu.Lock()
	if e.rooms[name] == r {
		delete(e.rooms, name)
	}
	e.mu.Unlock()
	close(r.left)

	e.cfg.Metrics.RoomLeft(name)
	e.log.Info("left room", "room", name)
	e.notifyRooms()
	return nil
}

// joinedRoom returns a room in the Joined state.
func (e *Engine) joinedRoom(name string) (*room, error) {
	e.mu.Lock()
	r, ok := e.rooms[name]
	e.mu.Unlock()
	if !ok || r.getState() != stateJoined {
		return nil, ErrRoomNotJoined(name)
	}
	return r, nil
}

// SendMessage stores a message in the room's log, sends it to every peer
// and returns the stored form.
func (e *Engine) SendMessage(ctx context.Context, name string, in core.MessageInput) (msg core.ChatMessage, err error) {
	ctx, span := tracer.Start(ctx, "chat.send_message", trace.WithAttributes(attribute.String("room", name)))
	defer func() { endSpan(span, err) }()

	if err := e.validate.Struct(in); err != nil {
		return core.ChatMessage{}, ErrInvalidMessage(name, err)
	}
	if strings.TrimSpace(in.Message) == "" {
		return core.ChatMessage{}, ErrInvalidMessage(name, nil)
	}
	r, err := e.joinedRoom(name)
	if err != nil {
		return core.ChatMessage{}, err
	}
	return e.send(ctx, r, in)
}

func (e *Engine) send(ctx context.Context, r *room, in core.MessageInput) (core.ChatMessage, error) {
	msg := core.ChatMessage{
		ID:        in.ID,
		Name:      in.Name,
		Message:   in.Message,
		Timestamp: in.Timestamp,
	}
	if msg.ID == 0 {
		msg.ID = e.ids.Next()
	} else {
		e.ids.Observe(msg.ID)
	}
	if msg.Name == "" {
		msg.Name = e.cfg.Username
	}
	if msg.Timestamp == "" {
		msg.Timestamp = core.FormatTimestamp(e.cfg.Now())
	}

	log, ok := r.messageLog()
	if !ok {
		return core.ChatMessage{}, ErrRoomNotJoined(r.name)
	}
	if err := log.Append(ctx, msg); err != nil {
		return core.ChatMessage{}, StorageError(r.name, err)
	}

	frame, err := protocol.EncodeChat(msg)
	if err != nil {
		return core.ChatMessage{}, err
	}
	delivered, errs := r.peers.Broadcast(frame)
	for _, err := range errs {
		errutil.LogWarn(e.log, "peer dropped during broadcast", err)
	}
	e.log.Debug("message sent", "room", r.name, "id", msg.ID, "peers", delivered)

	e.presence.MarkNew(r.name)
	e.cfg.Metrics.MessageSent()
	e.notifyRooms()
	e.dispatch.DispatchMessage(r.name, msg)
	return msg, nil
}

// ChatHistory returns the room's full log ordered by message ID.
func (e *Engine) ChatHistory(ctx context.Context, name string) (msgs []core.ChatMessage, err error) {
	ctx, span := tracer.Start(ctx, "chat.history", trace.WithAttributes(attribute.String("room", name)))
	defer func() { endSpan(span, err) }()

	r, err := e.joinedRoom(name)
	if err != nil {
		return nil, err
	}
	log, ok := r.messageLog()
	if !ok {
		return nil, ErrRoomNotJoined(name)
	}
	msgs, err = log.ReadAll(ctx)
	if err != nil {
		return nil, StorageError(name, err)
	}
	span.SetAttributes(attribute.Int("messages", len(msgs)))
	return msgs, nil
}

// ActiveRooms returns the presence of every joined room, ordered by name.
func (e *Engine) ActiveRooms() []core.RoomStatus {
	return e.presence.Snapshot()
}

// MarkRead clears the room's unseen-messages flag.
func (e *Engine) MarkRead(name string) error {
	if _, err := e.joinedRoom(name); err != nil {
		return err
	}
	e.presence.MarkRead(name)
	e.notifyRooms()
	return nil
}

// PeerCount returns the number of open peer connections in a room.
func (e *Engine) PeerCount(name string) int {
	r, err := e.joinedRoom(name)
	if err != nil {
		return 0
	}
	return r.peers.Count()
}

// OnMessage sets the room's message callback, replacing any previous one.
// It may be called before the room is joined. A nil fn removes it.
func (e *Engine) OnMessage(name string, fn core.MessageHandler) {
	e.dispatch.SetMessageHandler(name, fn)
}

// OnRoomUpdate subscribes fn to room status changes. The returned function
// unsubscribes it.
func (e *Engine) OnRoomUpdate(fn core.RoomUpdateHandler) func() {
	return e.dispatch.AddRoomUpdateHandler(fn)
}

// Close leaves every room. Further joins fail with ENGINE_CLOSED.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	names := make([]string, 0, len(e.rooms))
	for name := range e.rooms {
		names = append(names, name)
	}
	e.mu.Unlock()

	var errs []error
	for _, name := range names {
		if err := e.LeaveRoom(ctx, name); err != nil && !errutil.HasCode(err, core.CodeRoomNotJoined) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close chat engine: %w", errs[0])
	}
	return nil
}

func (e *Engine) notifyRooms() {
	e.dispatch.DispatchRoomUpdate(e.presence.Snapshot())
}
