// Driftline - Client-Side Chat State Synchronization Engine
// Copyright 2026 Driftline Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/driftline/driftline

package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/driftline/driftline/internal/wire"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{InMemory: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func mustCID(t *testing.T, raw string) wire.ChannelID {
	t.Helper()
	cid, err := wire.ParseChannelID(raw)
	if err != nil {
		t.Fatalf("ParseChannelID(%q): %v", raw, err)
	}
	return cid
}

func testMessagePayload(id, userID string) *wire.MessagePayload {
	created := time.Date(2020, 7, 17, 12, 0, 0, 0, time.UTC)
	return &wire.MessagePayload{
		ID:             id,
		Type:           wire.MessageTypeRegular,
		User:           &wire.UserPayload{ID: userID, Name: "Author"},
		CreatedAt:      created,
		UpdatedAt:      created,
		Text:           "hello",
		MentionedUsers: nil,
		ReplyCount:     0,
		ReactionScores: map[wire.ReactionType]int{"like": 2},
	}
}

func TestLoadOrCreateRead_ExactlyOnePerPair(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	cid := mustCID(t, "messaging:abc")

	var first, second *ReadRecord
	err := s.Update(ctx, func(tx *Txn) error {
		var err error
		first, err = tx.LoadOrCreateRead(cid, "u1")
		return err
	})
	if err != nil {
		t.Fatalf("First LoadOrCreateRead: %v", err)
	}

	err = s.Update(ctx, func(tx *Txn) error {
		var err error
		second, err = tx.LoadOrCreateRead(cid, "u1")
		return err
	})
	if err != nil {
		t.Fatalf("Second LoadOrCreateRead: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("Second call returned a different cursor: %+v vs %+v", first, second)
	}

	// The side-effect channel and user exist exactly once.
	err = s.View(func(tx *Txn) error {
		if _, err := tx.Channel(cid); err != nil {
			return fmt.Errorf("channel: %w", err)
		}
		if _, err := tx.User("u1"); err != nil {
			return fmt.Errorf("user: %w", err)
		}
		return nil
	})
	if err != nil {
		t.Errorf("Side-effect entities missing: %v", err)
	}
}

func TestSaveUser_LastWriteWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	payloadA := &wire.UserPayload{ID: "u1", Name: "First", Role: "admin"}
	payloadB := &wire.UserPayload{ID: "u1", Name: "Second", Role: "user"}

	for _, p := range []*wire.UserPayload{payloadA, payloadB} {
		err := s.Update(ctx, func(tx *Txn) error {
			_, err := tx.SaveUser(p)
			return err
		})
		if err != nil {
			t.Fatalf("SaveUser: %v", err)
		}
	}

	user, err := s.UserSnapshot("u1")
	if err != nil {
		t.Fatalf("UserSnapshot: %v", err)
	}
	if user.Name != "Second" || user.Role != "user" {
		t.Errorf("Expected B's values to win, got %+v", user)
	}
}

func TestSaveChannel_MemberSetReplacedWholesale(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	cid := mustCID(t, "messaging:general")

	member := func(id, role string) *wire.MemberPayload {
		return &wire.MemberPayload{User: &wire.UserPayload{ID: id}, Role: role}
	}

	full := &wire.ChannelPayload{CID: cid, Members: []*wire.MemberPayload{
		member("ada", "owner"),
		member("luke", "member"),
	}}
	shrunk := &wire.ChannelPayload{CID: cid, Members: []*wire.MemberPayload{
		member("ada", "owner"),
	}}

	for _, p := range []*wire.ChannelPayload{full, shrunk} {
		err := s.Update(ctx, func(tx *Txn) error {
			_, err := tx.SaveChannel(p)
			return err
		})
		if err != nil {
			t.Fatalf("SaveChannel: %v", err)
		}
	}

	err := s.View(func(tx *Txn) error {
		rec, err := tx.Channel(cid)
		if err != nil {
			return err
		}
		if len(rec.MemberIDs) != 1 || rec.MemberIDs[0] != "ada" {
			t.Errorf("MemberIDs = %v, want [ada]", rec.MemberIDs)
		}
		if len(rec.MemberRoles) != 1 {
			t.Errorf("MemberRoles = %v, want only ada (departed members must leave no role residue)", rec.MemberRoles)
		}
		if rec.MemberRoles["ada"] != "owner" {
			t.Errorf("ada role = %q, want owner", rec.MemberRoles["ada"])
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}

	channel, err := s.ChannelSnapshot(cid)
	if err != nil {
		t.Fatalf("ChannelSnapshot: %v", err)
	}
	if len(channel.Members) != 1 || channel.Members[0].User.ID != "ada" {
		t.Errorf("snapshot members = %+v, want only ada", channel.Members)
	}
}

func TestSaveMessage_CascadeCreatesAuthorAndChannel(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	cid := mustCID(t, "messaging:general")

	err := s.Update(ctx, func(tx *Txn) error {
		_, err := tx.SaveMessage(cid, testMessagePayload("m1", "author-1"))
		return err
	})
	if err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}

	msg, err := s.MessageSnapshot("m1")
	if err != nil {
		t.Fatalf("MessageSnapshot: %v", err)
	}
	if msg.Author.ID != "author-1" {
		t.Errorf("Expected author reference, got %+v", msg.Author)
	}
	if msg.CID != cid {
		t.Errorf("Expected channel reference, got %v", msg.CID)
	}
	if got := msg.ReactionScores[wire.ReactionType("like")]; got != 2 {
		t.Errorf("Expected like=2, got %d", got)
	}
}

func TestSaveMessage_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	cid := mustCID(t, "messaging:general")

	save := func() error {
		return s.Update(ctx, func(tx *Txn) error {
			_, err := tx.SaveMessage(cid, testMessagePayload("m1", "author-1"))
			return err
		})
	}

	if err := save(); err != nil {
		t.Fatalf("First save: %v", err)
	}
	once, err := s.MessageSnapshot("m1")
	if err != nil {
		t.Fatalf("MessageSnapshot: %v", err)
	}

	if err := save(); err != nil {
		t.Fatalf("Second save: %v", err)
	}
	twice, err := s.MessageSnapshot("m1")
	if err != nil {
		t.Fatalf("MessageSnapshot: %v", err)
	}

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("Applying the same payload twice diverged:\n%+v\n%+v", once, twice)
	}

	msgs, err := s.ChannelMessages(cid)
	if err != nil {
		t.Fatalf("ChannelMessages: %v", err)
	}
	if len(msgs) != 1 {
		t.Errorf("Expected exactly one message, got %d", len(msgs))
	}
}

func TestSaveMessage_MissingAuthorFailsAtomically(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	cid := mustCID(t, "messaging:general")

	payload := testMessagePayload("m1", "author-1")
	payload.User = nil

	err := s.Update(ctx, func(tx *Txn) error {
		if _, err := tx.SaveUser(&wire.UserPayload{ID: "bystander"}); err != nil {
			return err
		}
		_, err := tx.SaveMessage(cid, payload)
		return err
	})

	var integrity *IntegrityViolationError
	if !errors.As(err, &integrity) {
		t.Fatalf("Expected IntegrityViolationError, got %v", err)
	}
	if integrity.Reference != "user" {
		t.Errorf("Expected missing user reference, got %q", integrity.Reference)
	}

	// The whole unit was discarded, including writes preceding the failure.
	viewErr := s.View(func(tx *Txn) error {
		_, err := tx.User("bystander")
		return err
	})
	if !errors.Is(viewErr, ErrNotFound) {
		t.Errorf("Expected no partial writes, got %v", viewErr)
	}
}

func TestMessageDeletedAt_NeverCleared(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	cid := mustCID(t, "messaging:general")

	deleted := testMessagePayload("m1", "author-1")
	deletedAt := time.Date(2020, 7, 17, 13, 0, 0, 0, time.UTC)
	deleted.DeletedAt = &deletedAt

	if err := s.Update(ctx, func(tx *Txn) error {
		_, err := tx.SaveMessage(cid, deleted)
		return err
	}); err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}

	// A later payload without deleted_at must not resurrect the message.
	if err := s.Update(ctx, func(tx *Txn) error {
		_, err := tx.SaveMessage(cid, testMessagePayload("m1", "author-1"))
		return err
	}); err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}

	msg, err := s.MessageSnapshot("m1")
	if err != nil {
		t.Fatalf("MessageSnapshot: %v", err)
	}
	if msg.DeletedAt == nil || !msg.DeletedAt.Equal(deletedAt) {
		t.Errorf("Expected deleted_at preserved, got %v", msg.DeletedAt)
	}
}

func TestChannelMessages_DeletedChannelListsNothing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	cid := mustCID(t, "messaging:general")

	if err := s.Update(ctx, func(tx *Txn) error {
		_, err := tx.SaveMessage(cid, testMessagePayload("m1", "author-1"))
		return err
	}); err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}

	if err := s.Update(ctx, func(tx *Txn) error {
		_, err := tx.MarkChannelDeleted(cid, time.Now())
		return err
	}); err != nil {
		t.Fatalf("MarkChannelDeleted: %v", err)
	}

	msgs, err := s.ChannelMessages(cid)
	if err != nil {
		t.Fatalf("ChannelMessages: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("Expected no listed messages for a deleted channel, got %d", len(msgs))
	}

	// The message record itself survives for thread references.
	if _, err := s.MessageSnapshot("m1"); err != nil {
		t.Errorf("Expected message record to survive, got %v", err)
	}
}

func TestChannelHidden_TruncationFiltersHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	cid := mustCID(t, "messaging:general")

	early := testMessagePayload("m1", "author-1")
	late := testMessagePayload("m2", "author-1")
	late.CreatedAt = late.CreatedAt.Add(2 * time.Hour)
	late.UpdatedAt = late.CreatedAt

	if err := s.Update(ctx, func(tx *Txn) error {
		if _, err := tx.SaveMessage(cid, early); err != nil {
			return err
		}
		_, err := tx.SaveMessage(cid, late)
		return err
	}); err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}

	hideAt := early.CreatedAt.Add(time.Hour)
	if err := s.Update(ctx, func(tx *Txn) error {
		_, err := tx.MarkChannelHidden(cid, hideAt, true)
		return err
	}); err != nil {
		t.Fatalf("MarkChannelHidden: %v", err)
	}

	msgs, err := s.ChannelMessages(cid)
	if err != nil {
		t.Fatalf("ChannelMessages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != "m2" {
		t.Errorf("Expected only m2 after truncation, got %+v", msgs)
	}

	channel, err := s.ChannelSnapshot(cid)
	if err != nil {
		t.Fatalf("ChannelSnapshot: %v", err)
	}
	if !channel.IsHidden {
		t.Error("Expected hidden flag set")
	}
	if channel.TruncatedAt == nil || !channel.TruncatedAt.Equal(hideAt) {
		t.Errorf("Expected truncation pointer at hide point, got %v", channel.TruncatedAt)
	}
}

func TestSnapshot_DetachedFromLaterMutations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Update(ctx, func(tx *Txn) error {
		_, err := tx.SaveUser(&wire.UserPayload{ID: "u1", Name: "Before"})
		return err
	}); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}

	before, err := s.UserSnapshot("u1")
	if err != nil {
		t.Fatalf("UserSnapshot: %v", err)
	}

	if err := s.Update(ctx, func(tx *Txn) error {
		_, err := tx.SaveUser(&wire.UserPayload{ID: "u1", Name: "After"})
		return err
	}); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}

	if before.Name != "Before" {
		t.Errorf("Snapshot changed after store mutation: %+v", before)
	}
}

func TestUpdate_AfterCloseFails(t *testing.T) {
	s, err := Open(Config{InMemory: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	err = s.Update(context.Background(), func(tx *Txn) error {
		_, err := tx.SaveUser(&wire.UserPayload{ID: "u1"})
		return err
	})
	if !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

func TestUpdate_SerializedLoadOrCreateIsRaceFree(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	cid := mustCID(t, "messaging:busy")

	var wg sync.WaitGroup
	errCh := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errCh <- s.Update(ctx, func(tx *Txn) error {
				_, err := tx.LoadOrCreateRead(cid, "u1")
				return err
			})
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			t.Fatalf("Concurrent LoadOrCreateRead: %v", err)
		}
	}

	err := s.View(func(tx *Txn) error {
		reads, err := tx.ChannelReads(cid)
		if err != nil {
			return err
		}
		if len(reads) != 1 {
			return fmt.Errorf("expected 1 cursor, got %d", len(reads))
		}
		return nil
	})
	if err != nil {
		t.Error(err)
	}
}

func TestPersistence_AcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(Config{Path: dir})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Update(ctx, func(tx *Txn) error {
		_, err := tx.SaveUser(&wire.UserPayload{ID: "u1", Name: "Durable"})
		return err
	}); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(Config{Path: dir})
	if err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	defer func() {
		_ = reopened.Close()
	}()

	user, err := reopened.UserSnapshot("u1")
	if err != nil {
		t.Fatalf("UserSnapshot after reopen: %v", err)
	}
	if user.Name != "Durable" {
		t.Errorf("Expected persisted user, got %+v", user)
	}
}
