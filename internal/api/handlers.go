// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

package api

import (
	"encoding/json"
	"net/http"

	"github.com/peerchat/peerchat/internal/core"
	"github.com/peerchat/peerchat/pkg/errutil"
)

type successResponse struct {
	Success bool              `json:"success"`
	Message *core.ChatMessage `json:"message,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client may have gone away
	json.NewEncoder(w).Encode(v)
}

// statusFor maps an engine error code to an HTTP status.
func statusFor(err error) int {
	switch errutil.Code(err) {
	case core.CodeRoomNotJoined:
		return http.StatusNotFound
	case core.CodeInvalidMessage, core.CodeRoomNotAllowed:
		return http.StatusBadRequest
	case core.CodeEngineClosed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		errutil.LogError(s.log, msg, err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: errutil.Code(err)})
}

func (s *Server) handleRooms(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.chat.ActiveRooms())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.chat.ChatHistory(r.Context(), r.PathValue("room"))
	if err != nil {
		s.writeError(w, "read history failed", err)
		return
	}
	if msgs == nil {
		msgs = []core.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	room := r.PathValue("room")
	s.chat.OnMessage(room, func(msg core.ChatMessage) { s.events.PublishMessage(room, msg) })
	if _, err := s.chat.JoinRoom(r.Context(), room); err != nil {
		s.writeError(w, "join room failed", err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	if err := s.chat.LeaveRoom(r.Context(), r.PathValue("room")); err != nil {
		s.writeError(w, "leave room failed", err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var in core.MessageInput
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	if err := dec.Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid message data", Code: core.CodeInvalidMessage})
		return
	}
	msg, err := s.chat.SendMessage(r.Context(), r.PathValue("room"), in)
	if err != nil {
		if statusFor(err) == http.StatusBadRequest {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid message data", Code: errutil.Code(err)})
			return
		}
		s.writeError(w, "send message failed", err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true, Message: &msg})
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	if err := s.chat.MarkRead(r.PathValue("room")); err != nil {
		s.writeError(w, "mark read failed", err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}
