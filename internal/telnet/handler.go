// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

package telnet

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/peerchat/peerchat/internal/core"
	"github.com/peerchat/peerchat/pkg/errutil"
)

const helpText = `Commands:
  nick <name>   set the name on your messages
  join <room>   join a room and make it current
  leave         leave the current room
  say <text>    send a message to the current room
  history       show the current room's messages
  rooms         list joined rooms
  quit          disconnect`

// ConnectionHandler runs one console session.
type ConnectionHandler struct {
	conn     net.Conn
	reader   *bufio.Reader
	chat     Chat
	events   *core.Broadcaster
	log      *slog.Logger
	connID   ulid.ULID
	nick     string
	room     string
	eventCh  chan core.Event
	sent     map[int64]struct{}
	quitting bool
}

// NewConnectionHandler creates a session handler for conn.
func NewConnectionHandler(conn net.Conn, chat Chat, events *core.Broadcaster, logger *slog.Logger) *ConnectionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	connID := core.NewULID()
	return &ConnectionHandler{
		conn:   conn,
		reader: bufio.NewReader(conn),
		chat:   chat,
		events: events,
		log:    logger.With("conn_id", connID.String()),
		connID: connID,
		nick:   chat.Username(),
		sent:   make(map[int64]struct{}),
	}
}

// Handle processes the connection until it closes, the user quits or ctx is
// canceled.
func (h *ConnectionHandler) Handle(ctx context.Context) {
	lineCh := make(chan string)
	errCh := make(chan error, 1)
	done := make(chan struct{})

	defer func() {
		h.unsubscribe()
		close(done)
		if err := h.conn.Close(); err != nil {
			h.log.Debug("error closing connection", "error", err)
		}
	}()

	h.send("Welcome to PeerChat, " + h.nick + "!")
	h.send("Type 'help' for commands.")

	go func() {
		for {
			line, err := h.reader.ReadString('\n')
			if err != nil {
				errCh <- err
				return
			}
			select {
			case lineCh <- strings.TrimSpace(line):
			case <-done:
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case err := <-errCh:
			if !errors.Is(err, io.EOF) {
				h.log.Debug("connection read error", "error", err)
			}
			return

		case line := <-lineCh:
			h.processLine(ctx, line)
			if h.quitting {
				return
			}

		case event, ok := <-h.eventCh:
			if !ok {
				h.eventCh = nil
				continue
			}
			h.showEvent(event)
		}
	}
}

func (h *ConnectionHandler) processLine(ctx context.Context, line string) {
	cmd, arg := ParseCommand(line)

	switch cmd {
	case "":
	case "help":
		h.send(helpText)
	case "nick":
		h.handleNick(arg)
	case "join":
		h.handleJoin(ctx, arg)
	case "leave":
		h.handleLeave(ctx)
	case "say":
		h.handleSay(ctx, arg)
	case "history":
		h.handleHistory(ctx)
	case "rooms":
		h.handleRooms()
	case "quit":
		h.send("Goodbye!")
		h.quitting = true
	default:
		h.send("Unknown command: " + cmd)
	}
}

func (h *ConnectionHandler) handleNick(name string) {
	if name == "" {
		h.send("Usage: nick <name>")
		return
	}
	h.nick = name
	h.send("You are now known as " + name + ".")
}

func (h *ConnectionHandler) handleJoin(ctx context.Context, room string) {
	if room == "" {
		h.send("Usage: join <room>")
		return
	}
	h.chat.OnMessage(room, func(msg core.ChatMessage) { h.events.PublishMessage(room, msg) })
	if _, err := h.chat.JoinRoom(ctx, room); err != nil {
		h.sendError("join failed", err)
		return
	}

	h.unsubscribe()
	h.room = room
	h.eventCh = h.events.Subscribe(room)
	h.send("Joined " + room + ".")
	if err := h.chat.MarkRead(room); err != nil {
		h.log.Debug("mark read failed", "room", room, "error", err)
	}
}

func (h *ConnectionHandler) handleLeave(ctx context.Context) {
	if h.room == "" {
		h.send("You are not in a room.")
		return
	}
	room := h.room
	h.unsubscribe()
	h.room = ""
	if err := h.chat.LeaveRoom(ctx, room); err != nil {
		h.sendError("leave failed", err)
		return
	}
	h.send("Left " + room + ".")
}

func (h *ConnectionHandler) handleSay(ctx context.Context, text string) {
	if h.room == "" {
		h.send("Join a room first.")
		return
	}
	if text == "" {
		h.send("Say what?")
		return
	}
	msg, err := h.chat.SendMessage(ctx, h.room, core.MessageInput{Name: h.nick, Message: text})
	if err != nil {
		h.sendError("send failed", err)
		return
	}
	h.sent[msg.ID] = struct{}{}
	h.send(fmt.Sprintf("You say, %q", text))
}

func (h *ConnectionHandler) handleHistory(ctx context.Context) {
	if h.room == "" {
		h.send("Join a room first.")
		return
	}
	msgs, err := h.chat.ChatHistory(ctx, h.room)
	if err != nil {
		h.sendError("history failed", err)
		return
	}
	if len(msgs) == 0 {
		h.send("No messages in " + h.room + ".")
		return
	}
	h.send(fmt.Sprintf("--- %d messages in %s ---", len(msgs), h.room))
	for _, msg := range msgs {
		h.send(formatMessage(msg))
	}
	h.send("--- end of history ---")
	if err := h.chat.MarkRead(h.room); err != nil {
		h.log.Debug("mark read failed", "room", h.room, "error", err)
	}
}

func (h *ConnectionHandler) handleRooms() {
	rooms := h.chat.ActiveRooms()
	if len(rooms) == 0 {
		h.send("No rooms joined.")
		return
	}
	for _, r := range rooms {
		marker := " "
		if r.Room == h.room {
			marker = "*"
		}
		unread := ""
		if r.HasNewMessages {
			unread = " (new)"
		}
		h.send(fmt.Sprintf("%s %s: %d users%s", marker, r.Room, r.Users, unread))
	}
}

func (h *ConnectionHandler) unsubscribe() {
	if h.eventCh != nil && h.room != "" {
		h.events.Unsubscribe(h.room, h.eventCh)
	}
	h.eventCh = nil
}

func (h *ConnectionHandler) showEvent(e core.Event) {
	if e.Kind != core.EventMessage || e.Message == nil {
		return
	}
	if _, own := h.sent[e.Message.ID]; own {
		delete(h.sent, e.Message.ID)
		return
	}
	h.send(formatMessage(*e.Message))
}

func formatMessage(msg core.ChatMessage) string {
	return fmt.Sprintf("[%s] %s: %s", msg.Timestamp, msg.Name, msg.Message)
}

// sendError reports err to the user with a message per error code.
func (h *ConnectionHandler) sendError(op string, err error) {
	switch errutil.Code(err) {
	case core.CodeRoomNotJoined:
		h.send("You are not in that room.")
	case core.CodeRoomNotAllowed:
		h.send("That room is not allowed.")
	case core.CodeInvalidMessage:
		h.send("That message cannot be sent.")
	default:
		errutil.LogError(h.log, "console "+op, err)
		h.send("Error: " + op + ". Please try again.")
	}
}

func (h *ConnectionHandler) send(msg string) {
	if _, err := fmt.Fprintln(h.conn, msg); err != nil {
		h.log.Debug("failed to send message to client", "error", err)
	}
}
