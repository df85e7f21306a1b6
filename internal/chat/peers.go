// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

package chat

import (
	"context"

	"github.com/peerchat/peerchat/internal/core"
	"github.com/peerchat/peerchat/internal/overlay"
	"github.com/peerchat/peerchat/internal/peer"
	"github.com/peerchat/peerchat/internal/protocol"
	"github.com/peerchat/peerchat/pkg/errutil"
)

// acceptPeer adopts a connection handed over by the overlay. The peer is
// registered and counted under the room lock before its reader starts;
// peerClosed undoes both under the same lock.
func (e *Engine) acceptPeer(r *room, c overlay.Conn) {
	pc := peer.NewConnection(c, r.name, peer.Options{
		SendQueue:     e.cfg.SendQueue,
		WriteTimeout:  e.cfg.WriteTimeout,
		MaxFrameBytes: e.cfg.MaxFrameBytes,
		Logger:        e.log,
		OnFrame:       func(pc *peer.Connection, frame []byte) { e.handleFrame(r, pc, frame) },
		OnClose:       func(pc *peer.Connection, err error) { e.peerClosed(r, pc, err) },
	})

	r.mu.Lock()
	if r.state == stateLeaving {
		r.mu.Unlock()
		_ = c.Close()
		return
	}
	r.peers.Add(pc)
	e.presence.PeerConnected(r.name)
	r.mu.Unlock()

	pc.Start()
	e.cfg.Metrics.SetPeers(r.name, r.peers.Count())
	e.log.Info("peer connected", "room", r.name, "peer", pc.Remote(), "conn_id", pc.ID().String())

	users := 1
	if status, ok := e.presence.Get(r.name); ok {
		users = status.Users
	}
	info, err := protocol.EncodeRoomInfo(protocol.RoomInfo{Room: r.name, Users: users})
	if err == nil {
		err = pc.Send(info)
	}
	if err != nil {
		errutil.LogWarn(e.log, "sending room info failed", err)
	}

	pc.ExpectHistory(e.cfg.HistoryTimeout)
	e.requestHistory(r)
	e.notifyRooms()
}

// requestHistory asks every peer of the room for its log.
func (e *Engine) requestHistory(r *room) {
	frame, err := protocol.EncodeRequestHistory()
	if err != nil {
		errutil.LogError(e.log, "encoding history request failed", err)
		return
	}
	_, errs := r.peers.Broadcast(frame)
	for _, err := range errs {
		errutil.LogWarn(e.log, "history request not delivered", err)
	}
}

func (e *Engine) peerClosed(r *room, pc *peer.Connection, err error) {
	if err != nil {
		e.cfg.Metrics.TransportError()
		errutil.LogWarn(e.log.With("peer", pc.Remote()), "peer connection failed", err)
	} else {
		e.log.Debug("peer connection closed", "room", r.name, "peer", pc.Remote())
	}
	r.mu.Lock()
	counted := r.peers.Remove(pc.ID()) && r.state != stateLeaving
	if counted {
		e.presence.PeerDisconnected(r.name)
	}
	r.mu.Unlock()
	if !counted {
		return
	}
	e.cfg.Metrics.SetPeers(r.name, r.peers.Count())
	e.notifyRooms()
}

// handleFrame runs on the peer's reader goroutine. A malformed frame is
// dropped and the connection kept.
func (e *Engine) handleFrame(r *room, pc *peer.Connection, line []byte) {
	frame, err := protocol.Decode(line)
	if err != nil {
		e.cfg.Metrics.ProtocolError()
		errutil.LogWarn(e.log.With("room", r.name, "peer", pc.Remote()), "dropping malformed frame", err)
		return
	}

	switch frame.Type {
	case protocol.TypeChat:
		e.receiveChat(r, *frame.Chat)
	case protocol.TypeRequestHistory:
		go e.serveHistory(r, pc)
	case protocol.TypeHistoryChunk:
		e.receiveHistory(r, pc, *frame.Chunk)
	case protocol.TypeRoomInfo:
		pc.SetRemoteUsers(frame.Info.Users)
		e.log.Debug("room info received", "room", r.name, "peer", pc.Remote(), "users", frame.Info.Users)
	}
}

func (e *Engine) receiveChat(r *room, msg core.ChatMessage) {
	log, ok := r.messageLog()
	if !ok {
		return
	}
	if err := log.Append(context.Background(), msg); err != nil {
		errutil.LogError(e.log, "storing received message failed", StorageError(r.name, err))
		return
	}
	e.ids.Observe(msg.ID)
	e.presence.MarkNew(r.name)
	e.cfg.Metrics.MessageReceived()
	e.dispatch.DispatchMessage(r.name, msg)
	e.notifyRooms()
}

// serveHistory streams the full log to one peer in bounded chunks.
func (e *Engine) serveHistory(r *room, pc *peer.Connection) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.HistoryTimeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "chat.serve_history")
	var err error
	defer func() { endSpan(span, err) }()

	log, ok := r.messageLog()
	if !ok {
		return
	}
	msgs, err := log.ReadAll(ctx)
	if err != nil {
		err = StorageError(r.name, err)
		errutil.LogError(e.log, "reading history failed", err)
		return
	}
	for _, chunk := range protocol.HistoryChunks(msgs, e.cfg.ChunkSize) {
		var frame []byte
		frame, err = protocol.EncodeHistoryChunk(chunk)
		if err != nil {
			errutil.LogError(e.log, "encoding history chunk failed", err)
			return
		}
		if err = pc.SendWait(ctx, frame); err != nil {
			errutil.LogWarn(e.log.With("peer", pc.Remote()), "sending history failed", err)
			return
		}
		e.cfg.Metrics.HistoryChunkSent()
	}
	e.log.Debug("history served", "room", r.name, "peer", pc.Remote(), "messages", len(msgs))
}

// receiveHistory merges a chunk into the local log and surfaces the
// messages that were missing.
func (e *Engine) receiveHistory(r *room, pc *peer.Connection, chunk protocol.HistoryChunk) {
	if chunk.IsLast {
		defer pc.HistoryComplete()
	}
	log, ok := r.messageLog()
	if !ok || len(chunk.Messages) == 0 {
		return
	}
	added, err := log.Merge(context.Background(), chunk.Messages)
	if err != nil {
		errutil.LogError(e.log, "merging history failed", StorageError(r.name, err))
		return
	}
	if len(added) == 0 {
		return
	}
	for _, msg := range added {
		e.ids.Observe(msg.ID)
		e.dispatch.DispatchMessage(r.name, msg)
	}
	e.presence.MarkNew(r.name)
	e.cfg.Metrics.HistoryMerged(len(added))
	e.notifyRooms()
}
