// Driftline - Client-Side Chat State Synchronization Engine
// Copyright 2026 Driftline Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/driftline/driftline

// Package event decodes real-time event envelopes into a closed set of
// typed variants.
//
// Every envelope carries a "type" discriminator. Recognized discriminators
// dispatch through an immutable table to a per-variant decode function; a
// malformed envelope for a recognized type is a hard decode error. An
// unrecognized discriminator is not an error: it decodes into UnknownEvent,
// which carries the raw type string and payload so newer server event types
// pass through the client untouched.
package event

import (
	"time"

	"github.com/goccy/go-json"

	"github.com/driftline/driftline/internal/wire"
)

// Type is the event discriminator string from the envelope's "type" field.
type Type string

// Recognized event types.
const (
	TypeUserUpdated          Type = "user.updated"
	TypeChannelUpdated       Type = "channel.updated"
	TypeChannelDeleted       Type = "channel.deleted"
	TypeChannelHidden        Type = "channel.hidden"
	TypeMessageNew           Type = "message.new"
	TypeMessageUpdated       Type = "message.updated"
	TypeMessageDeleted       Type = "message.deleted"
	TypeMessageRead          Type = "message.read"
	TypeNotificationMarkRead Type = "notification.mark_read"
	TypeHealthCheck          Type = "health.check"
)

// Event is one decoded real-time change notification.
type Event interface {
	// EventType returns the envelope discriminator this event was decoded from.
	EventType() Type
}

// UserUpdatedEvent signals that a user's profile changed.
type UserUpdatedEvent struct {
	User *wire.UserPayload
}

func (UserUpdatedEvent) EventType() Type { return TypeUserUpdated }

// ChannelUpdatedEvent carries the full updated channel payload.
type ChannelUpdatedEvent struct {
	CID     wire.ChannelID
	UserID  string
	Channel *wire.ChannelPayload
}

func (ChannelUpdatedEvent) EventType() Type { return TypeChannelUpdated }

// ChannelDeletedEvent signals that a channel was deleted server-side.
type ChannelDeletedEvent struct {
	CID       wire.ChannelID
	UserID    string
	DeletedAt time.Time
}

func (ChannelDeletedEvent) EventType() Type { return TypeChannelDeleted }

// ChannelHiddenEvent signals that the current user hid a channel.
// HistoryCleared additionally truncates the visible message history at the
// hide point.
type ChannelHiddenEvent struct {
	CID            wire.ChannelID
	UserID         string
	HiddenAt       time.Time
	HistoryCleared bool
}

func (ChannelHiddenEvent) EventType() Type { return TypeChannelHidden }

// MessageNewEvent carries a newly posted message.
type MessageNewEvent struct {
	CID          wire.ChannelID
	Message      *wire.MessagePayload
	WatcherCount int
	UnreadCount  int
}

func (MessageNewEvent) EventType() Type { return TypeMessageNew }

// MessageUpdatedEvent carries an edited message.
type MessageUpdatedEvent struct {
	CID     wire.ChannelID
	Message *wire.MessagePayload
}

func (MessageUpdatedEvent) EventType() Type { return TypeMessageUpdated }

// MessageDeletedEvent carries a soft-deleted message; its payload has a
// non-null deleted_at.
type MessageDeletedEvent struct {
	CID     wire.ChannelID
	Message *wire.MessagePayload
}

func (MessageDeletedEvent) EventType() Type { return TypeMessageDeleted }

// MessageReadEvent signals that a user read a channel up to CreatedAt.
type MessageReadEvent struct {
	CID            wire.ChannelID
	User           *wire.UserPayload
	CreatedAt      time.Time
	UnreadMessages int
}

func (MessageReadEvent) EventType() Type { return TypeMessageRead }

// NotificationMarkReadEvent is the notification-channel variant of a read
// cursor update for the current user.
type NotificationMarkReadEvent struct {
	CID            wire.ChannelID
	User           *wire.UserPayload
	CreatedAt      time.Time
	UnreadMessages int
	UnreadChannels int
}

func (NotificationMarkReadEvent) EventType() Type { return TypeNotificationMarkRead }

// HealthCheckEvent is the connection keepalive. The pipeline ignores it;
// connection bookkeeping belongs to the transport layer.
type HealthCheckEvent struct {
	ConnectionID string
}

func (HealthCheckEvent) EventType() Type { return TypeHealthCheck }

// UnknownEvent is the forward-compatibility catch-all for unrecognized
// discriminators. Decoding one is a success, never an error.
type UnknownEvent struct {
	Type Type
	Raw  json.RawMessage
}

func (e UnknownEvent) EventType() Type { return e.Type }
