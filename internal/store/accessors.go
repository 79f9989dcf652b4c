// Driftline - Client-Side Chat State Synchronization Engine
// Copyright 2026 Driftline Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/driftline/driftline

package store

import (
	"time"

	"github.com/goccy/go-json"

	"github.com/driftline/driftline/internal/models"
	"github.com/driftline/driftline/internal/wire"
)

// The accessors below are the consumer-facing read API. They run on
// read-only transactions, concurrently with the writer, and always observe
// a consistent committed state.

// UserSnapshot returns the current snapshot of a user.
func (s *Store) UserSnapshot(id string) (models.User, error) {
	var m models.User
	err := s.View(func(t *Txn) error {
		var err error
		m, err = t.SnapshotUser(id)
		return err
	})
	return m, err
}

// ChannelSnapshot returns the current snapshot of a channel.
func (s *Store) ChannelSnapshot(cid wire.ChannelID) (models.Channel, error) {
	var m models.Channel
	err := s.View(func(t *Txn) error {
		var err error
		m, err = t.SnapshotChannel(cid)
		return err
	})
	return m, err
}

// MessageSnapshot returns the current snapshot of a message.
func (s *Store) MessageSnapshot(id string) (models.Message, error) {
	var m models.Message
	err := s.View(func(t *Txn) error {
		var err error
		m, err = t.SnapshotMessage(id)
		return err
	})
	return m, err
}

// ReadSnapshot returns the current snapshot of a (channel, user) cursor.
func (s *Store) ReadSnapshot(cid wire.ChannelID, userID string) (models.ChannelRead, error) {
	var m models.ChannelRead
	err := s.View(func(t *Txn) error {
		var err error
		m, err = t.SnapshotRead(cid, userID)
		return err
	})
	return m, err
}

// ChannelMessages returns a channel's visible messages in creation order.
func (s *Store) ChannelMessages(cid wire.ChannelID) ([]models.Message, error) {
	var msgs []models.Message
	err := s.View(func(t *Txn) error {
		var err error
		msgs, err = t.ChannelMessages(cid)
		return err
	})
	return msgs, err
}

func jsonUnmarshal(data []byte, out interface{}) error {
	return json.Unmarshal(data, out)
}

func timeCopy(src *time.Time) *time.Time {
	if src == nil {
		return nil
	}
	dst := *src
	return &dst
}

// channelConfigCopy detaches the commands slice so a snapshot cannot alias
// the stored record.
func channelConfigCopy(cfg wire.ChannelConfig) wire.ChannelConfig {
	out := cfg
	if len(cfg.Commands) > 0 {
		out.Commands = make([]wire.Command, len(cfg.Commands))
		copy(out.Commands, cfg.Commands)
	}
	return out
}
