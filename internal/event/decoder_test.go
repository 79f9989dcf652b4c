// Driftline - Client-Side Chat State Synchronization Engine
// Copyright 2026 Driftline Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/driftline/driftline

package event

import (
	"errors"
	"testing"
	"time"

	"github.com/driftline/driftline/internal/wire"
)

func newTestDecoder() *Decoder {
	return NewDecoder(wire.NewDecoder(nil))
}

func TestDecoder_ChannelEvents(t *testing.T) {
	dec := newTestDecoder()

	t.Run("channel.updated", func(t *testing.T) {
		raw := `{
			"type": "channel.updated",
			"cid": "messaging:new_channel_7070",
			"user": {"id": "broken-waterfall-5"},
			"channel": {"cid": "messaging:new_channel_7070", "name": "General"}
		}`
		ev, err := dec.Decode([]byte(raw))
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		updated, ok := ev.(ChannelUpdatedEvent)
		if !ok {
			t.Fatalf("Expected ChannelUpdatedEvent, got %T", ev)
		}
		if updated.CID.String() != "messaging:new_channel_7070" {
			t.Errorf("Unexpected cid: %v", updated.CID)
		}
		if updated.UserID != "broken-waterfall-5" {
			t.Errorf("Unexpected user id: %q", updated.UserID)
		}
		if updated.Channel == nil || updated.Channel.Name != "General" {
			t.Errorf("Unexpected channel payload: %+v", updated.Channel)
		}
	})

	t.Run("channel.deleted", func(t *testing.T) {
		raw := `{
			"type": "channel.deleted",
			"cid": "messaging:new_channel_6631",
			"user": {"id": "broken-waterfall-5"},
			"created_at": "2020-07-17T12:02:39Z"
		}`
		ev, err := dec.Decode([]byte(raw))
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		deleted, ok := ev.(ChannelDeletedEvent)
		if !ok {
			t.Fatalf("Expected ChannelDeletedEvent, got %T", ev)
		}
		want := time.Date(2020, 7, 17, 12, 2, 39, 0, time.UTC)
		if !deleted.DeletedAt.Equal(want) {
			t.Errorf("Unexpected deleted at: %v", deleted.DeletedAt)
		}
	})

	t.Run("channel.hidden without clear_history", func(t *testing.T) {
		raw := `{
			"type": "channel.hidden",
			"cid": "messaging:new_channel_7011",
			"user": {"id": "broken-waterfall-5"},
			"created_at": "2020-07-17T12:10:44Z"
		}`
		ev, err := dec.Decode([]byte(raw))
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		hidden, ok := ev.(ChannelHiddenEvent)
		if !ok {
			t.Fatalf("Expected ChannelHiddenEvent, got %T", ev)
		}
		if hidden.HistoryCleared {
			t.Error("Expected history cleared to default to false")
		}
	})

	t.Run("channel.hidden with clear_history", func(t *testing.T) {
		raw := `{
			"type": "channel.hidden",
			"cid": "messaging:new_channel_1328",
			"user": {"id": "broken-waterfall-5"},
			"created_at": "2020-07-17T12:11:46Z",
			"clear_history": true
		}`
		ev, err := dec.Decode([]byte(raw))
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		hidden := ev.(ChannelHiddenEvent)
		if !hidden.HistoryCleared {
			t.Error("Expected history cleared to be true")
		}
	})
}

func TestDecoder_MessageEvents(t *testing.T) {
	dec := newTestDecoder()

	messageDoc := `{
		"id": "msg-1",
		"type": "regular",
		"user": {"id": "u1"},
		"created_at": "2020-07-17T12:02:39Z",
		"updated_at": "2020-07-17T12:02:39Z",
		"text": "hello",
		"mentioned_users": [],
		"reply_count": 0,
		"latest_reactions": [],
		"own_reactions": [],
		"attachments": []
	}`

	t.Run("message.new", func(t *testing.T) {
		raw := `{
			"type": "message.new",
			"cid": "messaging:general",
			"watcher_count": 7,
			"unread_count": 2,
			"message": ` + messageDoc + `
		}`
		ev, err := dec.Decode([]byte(raw))
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		created, ok := ev.(MessageNewEvent)
		if !ok {
			t.Fatalf("Expected MessageNewEvent, got %T", ev)
		}
		if created.Message.ID != "msg-1" {
			t.Errorf("Unexpected message id: %q", created.Message.ID)
		}
		if created.WatcherCount != 7 || created.UnreadCount != 2 {
			t.Errorf("Unexpected counts: %d/%d", created.WatcherCount, created.UnreadCount)
		}
	})

	t.Run("message.read", func(t *testing.T) {
		raw := `{
			"type": "message.read",
			"cid": "messaging:general",
			"user": {"id": "u1"},
			"created_at": "2020-07-17T13:00:00Z",
			"unread_messages": 0
		}`
		ev, err := dec.Decode([]byte(raw))
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		read, ok := ev.(MessageReadEvent)
		if !ok {
			t.Fatalf("Expected MessageReadEvent, got %T", ev)
		}
		if read.User.ID != "u1" {
			t.Errorf("Unexpected user: %+v", read.User)
		}
	})

	t.Run("malformed message payload is a hard error", func(t *testing.T) {
		raw := `{
			"type": "message.new",
			"cid": "messaging:general",
			"message": {"id": "msg-1"}
		}`
		_, err := dec.Decode([]byte(raw))
		var malformed *MalformedEventError
		if !errors.As(err, &malformed) {
			t.Fatalf("Expected MalformedEventError, got %v", err)
		}
		if malformed.Type != TypeMessageNew {
			t.Errorf("Unexpected event type: %v", malformed.Type)
		}
		var payloadErr *wire.MalformedPayloadError
		if !errors.As(err, &payloadErr) {
			t.Errorf("Expected wrapped payload error, got %v", err)
		}
	})
}

func TestDecoder_UnknownType(t *testing.T) {
	dec := newTestDecoder()

	raw := `{"type": "some.future.event", "whatever": {"nested": [1, 2, 3]}}`
	ev, err := dec.Decode([]byte(raw))
	if err != nil {
		t.Fatalf("Unknown types must decode successfully, got %v", err)
	}
	unknown, ok := ev.(UnknownEvent)
	if !ok {
		t.Fatalf("Expected UnknownEvent, got %T", ev)
	}
	if unknown.Type != "some.future.event" {
		t.Errorf("Unexpected raw type: %q", unknown.Type)
	}
	if len(unknown.Raw) == 0 {
		t.Error("Expected raw payload to be carried")
	}
	if unknown.EventType() != Type("some.future.event") {
		t.Errorf("Unexpected EventType(): %v", unknown.EventType())
	}
}

func TestDecoder_MalformedEnvelopes(t *testing.T) {
	dec := newTestDecoder()

	tests := []struct {
		name      string
		raw       string
		wantType  Type
		wantField string
	}{
		{"missing type", `{"cid": "messaging:general"}`, "", "type"},
		{"channel.deleted missing cid", `{"type": "channel.deleted", "created_at": "2020-07-17T12:02:39Z"}`, TypeChannelDeleted, "cid"},
		{"channel.deleted missing created_at", `{"type": "channel.deleted", "cid": "messaging:x"}`, TypeChannelDeleted, "created_at"},
		{"channel.hidden missing cid", `{"type": "channel.hidden", "created_at": "2020-07-17T12:02:39Z"}`, TypeChannelHidden, "cid"},
		{"message.new missing message", `{"type": "message.new", "cid": "messaging:x"}`, TypeMessageNew, "message"},
		{"message.read missing user", `{"type": "message.read", "cid": "messaging:x", "created_at": "2020-07-17T12:02:39Z"}`, TypeMessageRead, "user"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := dec.Decode([]byte(tt.raw))
			var malformed *MalformedEventError
			if !errors.As(err, &malformed) {
				t.Fatalf("Expected MalformedEventError, got %v", err)
			}
			if malformed.Type != tt.wantType || malformed.Field != tt.wantField {
				t.Errorf("Got type=%q field=%q, want type=%q field=%q",
					malformed.Type, malformed.Field, tt.wantType, tt.wantField)
			}
		})
	}
}

func TestDecoder_TableCoversAllDeclaredTypes(t *testing.T) {
	dec := newTestDecoder()

	declared := []Type{
		TypeUserUpdated, TypeChannelUpdated, TypeChannelDeleted, TypeChannelHidden,
		TypeMessageNew, TypeMessageUpdated, TypeMessageDeleted, TypeMessageRead,
		TypeNotificationMarkRead, TypeHealthCheck,
	}

	recognized := make(map[Type]bool)
	for _, typ := range dec.Types() {
		recognized[typ] = true
	}
	for _, typ := range declared {
		if !recognized[typ] {
			t.Errorf("Type %q has no dispatch entry", typ)
		}
	}
	if len(recognized) != len(declared) {
		t.Errorf("Dispatch table has %d entries, declared %d", len(recognized), len(declared))
	}
}
