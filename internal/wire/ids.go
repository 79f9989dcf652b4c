// Driftline - Client-Side Chat State Synchronization Engine
// Copyright 2026 Driftline Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/driftline/driftline

package wire

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// ErrInvalidChannelID is returned when a raw channel id is not of the
// form "<type>:<id>".
var ErrInvalidChannelID = errors.New("invalid channel id")

// ChannelID is the composite natural key of a channel: a channel type
// (e.g. "messaging") plus a type-scoped identifier. On the wire it is a
// single string "<type>:<id>" under the "cid" key.
type ChannelID struct {
	Type string
	ID   string
}

// ParseChannelID parses a raw "<type>:<id>" string.
func ParseChannelID(raw string) (ChannelID, error) {
	typ, id, ok := strings.Cut(raw, ":")
	if !ok || typ == "" || id == "" {
		return ChannelID{}, fmt.Errorf("%w: %q", ErrInvalidChannelID, raw)
	}
	return ChannelID{Type: typ, ID: id}, nil
}

// String returns the wire form "<type>:<id>".
func (c ChannelID) String() string {
	return c.Type + ":" + c.ID
}

// IsZero reports whether the id is unset.
func (c ChannelID) IsZero() bool {
	return c.Type == "" && c.ID == ""
}

// MarshalJSON encodes the id as its wire string.
func (c ChannelID) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON decodes the id from its wire string.
func (c *ChannelID) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseChannelID(raw)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ReactionType identifies a reaction kind ("like", "love", ...). It is an
// open string-backed type: server-side additions decode into valid values
// rather than being dropped.
type ReactionType string

// MessageType describes how a message should be treated by consumers.
type MessageType string

// Known message types. The type field is open; values outside this set are
// preserved as-is.
const (
	MessageTypeRegular   MessageType = "regular"
	MessageTypeEphemeral MessageType = "ephemeral"
	MessageTypeError     MessageType = "error"
	MessageTypeReply     MessageType = "reply"
	MessageTypeSystem    MessageType = "system"
	MessageTypeDeleted   MessageType = "deleted"
)
