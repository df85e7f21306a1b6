// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peerchat/peerchat/internal/chat"
	"github.com/peerchat/peerchat/internal/core"
	"github.com/peerchat/peerchat/internal/overlay"
)

type fixture struct {
	engine *chat.Engine
	srv    *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	engine, err := chat.NewEngine(chat.Config{
		Username: "alice",
		Overlay:  overlay.NewHub().Node("alice"),
		Logs:     core.NewMemoryLogStore(),
	})
	require.NoError(t, err)

	events := core.NewBroadcaster(16, nil)
	unsubscribe := engine.OnRoomUpdate(events.PublishRooms)

	srv := httptest.NewServer(NewServer("", engine, events, nil, nil).Handler())
	t.Cleanup(func() {
		srv.Close()
		unsubscribe()
		_ = engine.Close(context.Background())
	})
	return &fixture{engine: engine, srv: srv}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, []byte(buf.String())
}

func TestAPI_JoinSendHistory(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, "/api/join/lobby", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.JSONEq(t, `{"success":true}`, string(body))

	resp, body = f.do(t, http.MethodGet, "/api/rooms", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[{"room":"lobby","users":1,"hasNewMessages":false}]`, string(body))

	resp, body = f.do(t, http.MethodPost, "/api/message/lobby", `{"message":"hello"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var sent struct {
		Success bool             `json:"success"`
		Message core.ChatMessage `json:"message"`
	}
	require.NoError(t, json.Unmarshal(body, &sent))
	assert.True(t, sent.Success)
	assert.Equal(t, "alice", sent.Message.Name)
	assert.Equal(t, "hello", sent.Message.Message)
	assert.NotZero(t, sent.Message.ID)

	resp, body = f.do(t, http.MethodGet, "/api/history/lobby", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var history []core.ChatMessage
	require.NoError(t, json.Unmarshal(body, &history))
	assert.Equal(t, []core.ChatMessage{sent.Message}, history)

	_, body = f.do(t, http.MethodGet, "/api/rooms", "")
	assert.JSONEq(t, `[{"room":"lobby","users":1,"hasNewMessages":true}]`, string(body))

	resp, _ = f.do(t, http.MethodPost, "/api/read/lobby", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, body = f.do(t, http.MethodGet, "/api/rooms", "")
	assert.JSONEq(t, `[{"room":"lobby","users":1,"hasNewMessages":false}]`, string(body))

	resp, _ = f.do(t, http.MethodPost, "/api/leave/lobby", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, body = f.do(t, http.MethodGet, "/api/rooms", "")
	assert.JSONEq(t, `[]`, string(body))
}

func TestAPI_EmptyHistoryIsArray(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/api/join/lobby", "")

	resp, body := f.do(t, http.MethodGet, "/api/history/lobby", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(body))
}

func TestAPI_Errors(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/api/join/lobby", "")

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"history of unjoined room", http.MethodGet, "/api/history/nowhere", "", http.StatusNotFound, core.CodeRoomNotJoined},
		{"leave unjoined room", http.MethodPost, "/api/leave/nowhere", "", http.StatusNotFound, core.CodeRoomNotJoined},
		{"message to unjoined room", http.MethodPost, "/api/message/nowhere", `{"message":"x"}`, http.StatusNotFound, core.CodeRoomNotJoined},
		{"read unjoined room", http.MethodPost, "/api/read/nowhere", "", http.StatusNotFound, core.CodeRoomNotJoined},
		{"malformed body", http.MethodPost, "/api/message/lobby", `{`, http.StatusBadRequest, core.CodeInvalidMessage},
		{"empty message", http.MethodPost, "/api/message/lobby", `{"message":""}`, http.StatusBadRequest, core.CodeInvalidMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := f.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode, string(body))

			var got errorResponse
			require.NoError(t, json.Unmarshal(body, &got))
			assert.Equal(t, tt.code, got.Code)
			assert.NotEmpty(t, got.Error)
		})
	}
}

func TestAPI_MethodNotAllowed(t *testing.T) {
	f := newFixture(t)
	resp, _ := f.do(t, http.MethodGet, "/api/join/lobby", "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(oops.Code(core.CodeRoomNotJoined).Errorf("x")))
	assert.Equal(t, http.StatusBadRequest, statusFor(oops.Code(core.CodeRoomNotAllowed).Errorf("x")))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(oops.Code(core.CodeEngineClosed).Errorf("x")))
	assert.Equal(t, http.StatusInternalServerError, statusFor(oops.Code(core.CodeStorage).Errorf("x")))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("plain")))
}

func TestAPI_EventStream(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/api/events"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	var first map[string]any
	require.NoError(t, wsjson.Read(ctx, conn, &first))
	assert.Equal(t, "rooms", first["type"])
	assert.Equal(t, []any{}, first["data"])

	f.do(t, http.MethodPost, "/api/join/lobby", "")
	f.do(t, http.MethodPost, "/api/message/lobby", `{"message":"streamed"}`)

	// Room updates and the message arrive in engine order; find the message.
	for {
		var event struct {
			Type string          `json:"type"`
			Room string          `json:"room"`
			Data json.RawMessage `json:"data"`
		}
		require.NoError(t, wsjson.Read(ctx, conn, &event))
		if event.Type != "message" {
			assert.Equal(t, "rooms", event.Type)
			continue
		}
		assert.Equal(t, "lobby", event.Room)
		var msg core.ChatMessage
		require.NoError(t, json.Unmarshal(event.Data, &msg))
		assert.Equal(t, "streamed", msg.Message)
		return
	}
}

func TestServer_StartStop(t *testing.T) {
	engine, err := chat.NewEngine(chat.Config{
		Overlay: overlay.NewHub().Node("alice"),
		Logs:    core.NewMemoryLogStore(),
	})
	require.NoError(t, err)
	defer func() { _ = engine.Close(context.Background()) }()

	s := NewServer("127.0.0.1:0", engine, core.NewBroadcaster(4, nil), nil, nil)
	errCh, err := s.Start()
	require.NoError(t, err)
	require.NotEmpty(t, s.Addr())

	_, err = s.Start()
	assert.Error(t, err, "double start fails")

	resp, err := http.Get("http://" + s.Addr() + "/api/rooms")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx), "stop is idempotent")

	select {
	case err, ok := <-errCh:
		if ok {
			assert.NoError(t, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("error channel not closed after stop")
	}
}
