// Driftline - Client-Side Chat State Synchronization Engine
// Copyright 2026 Driftline Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/driftline/driftline

package wire

import (
	"testing"

	"github.com/goccy/go-json"
)

func TestMessageRequestBody_MarshalJSON(t *testing.T) {
	t.Run("empty attachments key omitted entirely", func(t *testing.T) {
		body := &MessageRequestBody{ID: "m1", Text: "hi"}

		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		var doc map[string]json.RawMessage
		if err := json.Unmarshal(raw, &doc); err != nil {
			t.Fatalf("Invalid JSON: %v", err)
		}
		if _, exists := doc["attachments"]; exists {
			t.Errorf("Expected no attachments key, got %s", raw)
		}
	})

	t.Run("extra fields merged flat alongside core fields", func(t *testing.T) {
		body := &MessageRequestBody{
			ID:   "m1",
			Text: "hi",
			Extra: ExtraData{
				"priority": json.RawMessage(`"high"`),
			},
		}

		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		var doc map[string]json.RawMessage
		if err := json.Unmarshal(raw, &doc); err != nil {
			t.Fatalf("Invalid JSON: %v", err)
		}
		if string(doc["priority"]) != `"high"` {
			t.Errorf("Expected flat priority key, got %s", raw)
		}
		if string(doc["id"]) != `"m1"` {
			t.Errorf("Expected id key, got %s", raw)
		}
	})

	t.Run("core fields win over colliding extra keys", func(t *testing.T) {
		body := &MessageRequestBody{
			ID:    "m1",
			Text:  "hi",
			Extra: ExtraData{"text": json.RawMessage(`"spoofed"`)},
		}

		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		var doc map[string]json.RawMessage
		if err := json.Unmarshal(raw, &doc); err != nil {
			t.Fatalf("Invalid JSON: %v", err)
		}
		if string(doc["text"]) != `"hi"` {
			t.Errorf("Expected core text to win, got %s", doc["text"])
		}
	})

	t.Run("show_in_channel encoded only with parent_id", func(t *testing.T) {
		body := &MessageRequestBody{ID: "m1", Text: "hi", ShowReplyInChannel: true}

		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		var doc map[string]json.RawMessage
		if err := json.Unmarshal(raw, &doc); err != nil {
			t.Fatalf("Invalid JSON: %v", err)
		}
		if _, exists := doc["show_in_channel"]; exists {
			t.Errorf("Expected show_in_channel omitted without parent_id, got %s", raw)
		}

		body.ParentID = "m0"
		raw, err = json.Marshal(body)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if err := json.Unmarshal(raw, &doc); err != nil {
			t.Fatalf("Invalid JSON: %v", err)
		}
		if string(doc["show_in_channel"]) != "true" {
			t.Errorf("Expected show_in_channel=true with parent_id, got %s", raw)
		}
	})

	t.Run("attachment extra keys flattened", func(t *testing.T) {
		body := &MessageRequestBody{
			ID:   "m1",
			Text: "hi",
			Attachments: []*AttachmentPayload{{
				Type:  "image",
				Extra: ExtraData{"blurhash": json.RawMessage(`"LKO2"`)},
			}},
		}

		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		var doc struct {
			Attachments []map[string]json.RawMessage `json:"attachments"`
		}
		if err := json.Unmarshal(raw, &doc); err != nil {
			t.Fatalf("Invalid JSON: %v", err)
		}
		if len(doc.Attachments) != 1 {
			t.Fatalf("Expected 1 attachment, got %d", len(doc.Attachments))
		}
		if string(doc.Attachments[0]["blurhash"]) != `"LKO2"` {
			t.Errorf("Expected blurhash flattened, got %v", doc.Attachments[0])
		}
	})
}

func TestNewMessageRequestBody(t *testing.T) {
	a := NewMessageRequestBody("one")
	b := NewMessageRequestBody("two")
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("Expected unique non-empty ids, got %q and %q", a.ID, b.ID)
	}
}
