// Driftline - Client-Side Chat State Synchronization Engine
// Copyright 2026 Driftline Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/driftline/driftline

package event

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/driftline/driftline/internal/wire"
)

// MalformedEventError reports a recognized event type whose envelope is
// missing a required field. The single event is dropped; the stream
// continues.
type MalformedEventError struct {
	Type  Type
	Field string
	Err   error
}

func (e *MalformedEventError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed %s event: field %q: %v", e.Type, e.Field, e.Err)
	}
	return fmt.Sprintf("malformed %s event: missing or invalid field %q", e.Type, e.Field)
}

func (e *MalformedEventError) Unwrap() error { return e.Err }

type decodeFunc func(d *Decoder, raw []byte) (Event, error)

// Decoder classifies raw event envelopes and parses them into typed
// variants. The dispatch table is built once at construction and never
// mutated; Decode is pure per call and safe for concurrent use.
type Decoder struct {
	payloads *wire.Decoder
	table    map[Type]decodeFunc
}

// NewDecoder creates an event decoder. Embedded entity payloads (users,
// channels, messages) are decoded through the given payload decoder so the
// extension pass applies to them as well.
func NewDecoder(payloads *wire.Decoder) *Decoder {
	return &Decoder{
		payloads: payloads,
		table: map[Type]decodeFunc{
			TypeUserUpdated:          decodeUserUpdated,
			TypeChannelUpdated:       decodeChannelUpdated,
			TypeChannelDeleted:       decodeChannelDeleted,
			TypeChannelHidden:        decodeChannelHidden,
			TypeMessageNew:           decodeMessageNew,
			TypeMessageUpdated:       decodeMessageUpdated,
			TypeMessageDeleted:       decodeMessageDeleted,
			TypeMessageRead:          decodeMessageRead,
			TypeNotificationMarkRead: decodeNotificationMarkRead,
			TypeHealthCheck:          decodeHealthCheck,
		},
	}
}

// Types returns the set of recognized discriminators.
func (d *Decoder) Types() []Type {
	types := make([]Type, 0, len(d.table))
	for t := range d.table {
		types = append(types, t)
	}
	return types
}

// Decode inspects the envelope's type discriminator and produces exactly one
// typed variant. Unrecognized discriminators decode into UnknownEvent; a
// recognized discriminator with a bad envelope returns MalformedEventError.
func (d *Decoder) Decode(raw []byte) (Event, error) {
	var envelope struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("parse event envelope: %w", err)
	}
	if envelope.Type == "" {
		return nil, &MalformedEventError{Type: envelope.Type, Field: "type"}
	}

	decode, recognized := d.table[envelope.Type]
	if !recognized {
		// Forward compatibility: unreleased server event types flow
		// through as a successful decode.
		rawCopy := make(json.RawMessage, len(raw))
		copy(rawCopy, raw)
		return UnknownEvent{Type: envelope.Type, Raw: rawCopy}, nil
	}
	return decode(d, raw)
}

// eventJSON is the superset envelope shape shared by all recognized types.
// Each variant validates only the fields it needs.
type eventJSON struct {
	CID            *wire.ChannelID `json:"cid"`
	User           json.RawMessage `json:"user"`
	Channel        json.RawMessage `json:"channel"`
	Message        json.RawMessage `json:"message"`
	CreatedAt      *time.Time      `json:"created_at"`
	ClearHistory   *bool           `json:"clear_history"`
	WatcherCount   int             `json:"watcher_count"`
	UnreadCount    int             `json:"unread_count"`
	UnreadMessages int             `json:"unread_messages"`
	UnreadChannels int             `json:"unread_channels"`
	ConnectionID   string          `json:"connection_id"`
}

func parseEnvelope(typ Type, raw []byte) (*eventJSON, error) {
	var env eventJSON
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &MalformedEventError{Type: typ, Field: "(envelope)", Err: err}
	}
	return &env, nil
}

// userID extracts the acting user's id from the embedded user payload.
func userID(raw json.RawMessage) string {
	var user struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &user); err != nil {
		return ""
	}
	return user.ID
}

func decodeUserUpdated(d *Decoder, raw []byte) (Event, error) {
	env, err := parseEnvelope(TypeUserUpdated, raw)
	if err != nil {
		return nil, err
	}
	if len(env.User) == 0 {
		return nil, &MalformedEventError{Type: TypeUserUpdated, Field: "user"}
	}
	user, err := d.payloads.DecodeUser(env.User)
	if err != nil {
		return nil, &MalformedEventError{Type: TypeUserUpdated, Field: "user", Err: err}
	}
	return UserUpdatedEvent{User: user}, nil
}

func decodeChannelUpdated(d *Decoder, raw []byte) (Event, error) {
	env, err := parseEnvelope(TypeChannelUpdated, raw)
	if err != nil {
		return nil, err
	}
	if env.CID == nil {
		return nil, &MalformedEventError{Type: TypeChannelUpdated, Field: "cid"}
	}
	if len(env.Channel) == 0 {
		return nil, &MalformedEventError{Type: TypeChannelUpdated, Field: "channel"}
	}
	channel, err := d.payloads.DecodeChannel(env.Channel)
	if err != nil {
		return nil, &MalformedEventError{Type: TypeChannelUpdated, Field: "channel", Err: err}
	}
	return ChannelUpdatedEvent{
		CID:     *env.CID,
		UserID:  userID(env.User),
		Channel: channel,
	}, nil
}

func decodeChannelDeleted(_ *Decoder, raw []byte) (Event, error) {
	env, err := parseEnvelope(TypeChannelDeleted, raw)
	if err != nil {
		return nil, err
	}
	if env.CID == nil {
		return nil, &MalformedEventError{Type: TypeChannelDeleted, Field: "cid"}
	}
	if env.CreatedAt == nil {
		return nil, &MalformedEventError{Type: TypeChannelDeleted, Field: "created_at"}
	}
	return ChannelDeletedEvent{
		CID:       *env.CID,
		UserID:    userID(env.User),
		DeletedAt: *env.CreatedAt,
	}, nil
}

func decodeChannelHidden(_ *Decoder, raw []byte) (Event, error) {
	env, err := parseEnvelope(TypeChannelHidden, raw)
	if err != nil {
		return nil, err
	}
	if env.CID == nil {
		return nil, &MalformedEventError{Type: TypeChannelHidden, Field: "cid"}
	}
	if env.CreatedAt == nil {
		return nil, &MalformedEventError{Type: TypeChannelHidden, Field: "created_at"}
	}
	// clear_history is optional and defaults to false.
	cleared := env.ClearHistory != nil && *env.ClearHistory
	return ChannelHiddenEvent{
		CID:            *env.CID,
		UserID:         userID(env.User),
		HiddenAt:       *env.CreatedAt,
		HistoryCleared: cleared,
	}, nil
}

func decodeMessageEvent(d *Decoder, typ Type, raw []byte) (wire.ChannelID, *wire.MessagePayload, *eventJSON, error) {
	env, err := parseEnvelope(typ, raw)
	if err != nil {
		return wire.ChannelID{}, nil, nil, err
	}
	if env.CID == nil {
		return wire.ChannelID{}, nil, nil, &MalformedEventError{Type: typ, Field: "cid"}
	}
	if len(env.Message) == 0 {
		return wire.ChannelID{}, nil, nil, &MalformedEventError{Type: typ, Field: "message"}
	}
	msg, err := d.payloads.DecodeMessage(env.Message)
	if err != nil {
		return wire.ChannelID{}, nil, nil, &MalformedEventError{Type: typ, Field: "message", Err: err}
	}
	return *env.CID, msg, env, nil
}

func decodeMessageNew(d *Decoder, raw []byte) (Event, error) {
	cid, msg, env, err := decodeMessageEvent(d, TypeMessageNew, raw)
	if err != nil {
		return nil, err
	}
	return MessageNewEvent{
		CID:          cid,
		Message:      msg,
		WatcherCount: env.WatcherCount,
		UnreadCount:  env.UnreadCount,
	}, nil
}

func decodeMessageUpdated(d *Decoder, raw []byte) (Event, error) {
	cid, msg, _, err := decodeMessageEvent(d, TypeMessageUpdated, raw)
	if err != nil {
		return nil, err
	}
	return MessageUpdatedEvent{CID: cid, Message: msg}, nil
}

func decodeMessageDeleted(d *Decoder, raw []byte) (Event, error) {
	cid, msg, _, err := decodeMessageEvent(d, TypeMessageDeleted, raw)
	if err != nil {
		return nil, err
	}
	return MessageDeletedEvent{CID: cid, Message: msg}, nil
}

func decodeMessageRead(d *Decoder, raw []byte) (Event, error) {
	env, err := parseEnvelope(TypeMessageRead, raw)
	if err != nil {
		return nil, err
	}
	if env.CID == nil {
		return nil, &MalformedEventError{Type: TypeMessageRead, Field: "cid"}
	}
	if len(env.User) == 0 {
		return nil, &MalformedEventError{Type: TypeMessageRead, Field: "user"}
	}
	if env.CreatedAt == nil {
		return nil, &MalformedEventError{Type: TypeMessageRead, Field: "created_at"}
	}
	user, err := d.payloads.DecodeUser(env.User)
	if err != nil {
		return nil, &MalformedEventError{Type: TypeMessageRead, Field: "user", Err: err}
	}
	return MessageReadEvent{
		CID:            *env.CID,
		User:           user,
		CreatedAt:      *env.CreatedAt,
		UnreadMessages: env.UnreadMessages,
	}, nil
}

func decodeNotificationMarkRead(d *Decoder, raw []byte) (Event, error) {
	env, err := parseEnvelope(TypeNotificationMarkRead, raw)
	if err != nil {
		return nil, err
	}
	if env.CID == nil {
		return nil, &MalformedEventError{Type: TypeNotificationMarkRead, Field: "cid"}
	}
	if len(env.User) == 0 {
		return nil, &MalformedEventError{Type: TypeNotificationMarkRead, Field: "user"}
	}
	if env.CreatedAt == nil {
		return nil, &MalformedEventError{Type: TypeNotificationMarkRead, Field: "created_at"}
	}
	user, err := d.payloads.DecodeUser(env.User)
	if err != nil {
		return nil, &MalformedEventError{Type: TypeNotificationMarkRead, Field: "user", Err: err}
	}
	return NotificationMarkReadEvent{
		CID:            *env.CID,
		User:           user,
		CreatedAt:      *env.CreatedAt,
		UnreadMessages: env.UnreadMessages,
		UnreadChannels: env.UnreadChannels,
	}, nil
}

func decodeHealthCheck(_ *Decoder, raw []byte) (Event, error) {
	env, err := parseEnvelope(TypeHealthCheck, raw)
	if err != nil {
		return nil, err
	}
	return HealthCheckEvent{ConnectionID: env.ConnectionID}, nil
}
