// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/peerchat/peerchat/internal/core"
)

// wireEvent is the websocket form of a core.Event.
type wireEvent struct {
	Type core.EventKind `json:"type"`
	Room string         `json:"room,omitempty"`
	Data any            `json:"data"`
}

func toWire(e core.Event) wireEvent {
	out := wireEvent{Type: e.Kind, Room: e.Room}
	switch e.Kind {
	case core.EventMessage:
		out.Data = e.Message
	case core.EventRooms:
		rooms := e.Rooms
		if rooms == nil {
			rooms = []core.RoomStatus{}
		}
		out.Data = rooms
	}
	return out
}

// handleEvents streams every message and room update to a websocket client.
// The current room list is sent first.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		s.log.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	s.metrics.FrontendConnected("websocket")

	events := s.events.Subscribe(core.AllRooms)
	defer s.events.Unsubscribe(core.AllRooms, events)

	// The client sends nothing; CloseRead handles its close frame.
	ctx := conn.CloseRead(r.Context())

	err = s.stream(ctx, conn, events)
	if err == nil || errors.Is(err, context.Canceled) || websocket.CloseStatus(err) != -1 {
		conn.Close(websocket.StatusNormalClosure, "closing")
		return
	}
	s.log.Warn("event stream closed with error", "error", err)
	conn.Close(websocket.StatusInternalError, err.Error())
}

func (s *Server) stream(ctx context.Context, conn *websocket.Conn, events <-chan core.Event) error {
	initial := toWire(core.Event{Kind: core.EventRooms, Rooms: s.chat.ActiveRooms()})
	if err := wsjson.Write(ctx, conn, initial); err != nil {
		return err
	}
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, toWire(event)); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
