// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

package core

import (
	"testing"
	"time"
)

func TestBroadcaster_Subscribe(t *testing.T) {
	bc := NewBroadcaster(0, nil)

	ch := bc.Subscribe("lobby")
	if ch == nil {
		t.Fatal("Expected channel")
	}

	bc.PublishMessage("lobby", ChatMessage{ID: 7, Message: "hi"})

	select {
	case received := <-ch:
		if received.Kind != EventMessage || received.Message == nil || received.Message.ID != 7 {
			t.Errorf("unexpected event %+v", received)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("Timeout waiting for event")
	}
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	bc := NewBroadcaster(0, nil)

	ch := bc.Subscribe("lobby")
	bc.Unsubscribe("lobby", ch)

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("Channel should be closed")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("Channel should be closed immediately")
	}
}

func TestBroadcaster_MultipleSubscribers(t *testing.T) {
	bc := NewBroadcaster(0, nil)

	ch1 := bc.Subscribe("lobby")
	ch2 := bc.Subscribe("lobby")

	bc.PublishMessage("lobby", ChatMessage{ID: 1})

	for i, ch := range []chan Event{ch1, ch2} {
		select {
		case <-ch:
		case <-time.After(100 * time.Millisecond):
			t.Errorf("subscriber %d timed out", i)
		}
	}
}

func TestBroadcaster_OtherRoomNotDelivered(t *testing.T) {
	bc := NewBroadcaster(0, nil)

	ch := bc.Subscribe("dev")
	bc.PublishMessage("lobby", ChatMessage{ID: 1})

	select {
	case e := <-ch:
		t.Errorf("unexpected event %+v", e)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBroadcaster_AllRoomsReceivesEverything(t *testing.T) {
	bc := NewBroadcaster(0, nil)

	all := bc.Subscribe(AllRooms)
	bc.PublishMessage("lobby", ChatMessage{ID: 1})
	bc.PublishRooms([]RoomStatus{{Room: "lobby", Users: 1}})

	first := <-all
	second := <-all
	if first.Kind != EventMessage || first.Room != "lobby" {
		t.Errorf("unexpected first event %+v", first)
	}
	if second.Kind != EventRooms || len(second.Rooms) != 1 {
		t.Errorf("unexpected second event %+v", second)
	}
}

func TestBroadcaster_FullBufferDrops(t *testing.T) {
	bc := NewBroadcaster(1, nil)

	ch := bc.Subscribe("lobby")
	bc.PublishMessage("lobby", ChatMessage{ID: 1})
	bc.PublishMessage("lobby", ChatMessage{ID: 2})

	got := <-ch
	if got.Message.ID != 1 {
		t.Errorf("expected first event to be kept, got %d", got.Message.ID)
	}
	select {
	case e := <-ch:
		t.Errorf("expected drop, got %+v", e)
	default:
	}
}
