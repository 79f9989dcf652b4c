// Driftline - Client-Side Chat State Synchronization Engine
// Copyright 2026 Driftline Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/driftline/driftline

package wire

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// MessageRequestBody is the outbound document for message send and edit
// requests. Core fields and extension fields share one flat encoded
// document; optional collections are omitted entirely when empty.
type MessageRequestBody struct {
	ID                 string
	Text               string
	Command            string
	Args               string
	ParentID           string
	ShowReplyInChannel bool
	Attachments        []*AttachmentPayload
	Extra              ExtraData
}

// NewMessageRequestBody creates a request body for a new message with a
// client-generated unique id.
func NewMessageRequestBody(text string) *MessageRequestBody {
	return &MessageRequestBody{
		ID:   uuid.New().String(),
		Text: text,
	}
}

// MarshalJSON builds the flat outbound document. Extension keys that would
// shadow a core field are skipped; the core schema wins.
func (b *MessageRequestBody) MarshalJSON() ([]byte, error) {
	doc := make(map[string]interface{}, 8+len(b.Extra))

	for key, raw := range b.Extra {
		doc[key] = raw
	}

	doc["id"] = b.ID
	doc["text"] = b.Text
	if b.Command != "" {
		doc["command"] = b.Command
	}
	if b.Args != "" {
		doc["args"] = b.Args
	}
	if b.ParentID != "" {
		doc["parent_id"] = b.ParentID
		doc["show_in_channel"] = b.ShowReplyInChannel
	}
	if len(b.Attachments) > 0 {
		attachments := make([]json.RawMessage, 0, len(b.Attachments))
		for _, att := range b.Attachments {
			encoded, err := encodeAttachment(att)
			if err != nil {
				return nil, err
			}
			attachments = append(attachments, encoded)
		}
		doc["attachments"] = attachments
	}

	return json.Marshal(doc)
}

// encodeAttachment flattens an attachment's envelope and extra keys into
// one document, mirroring the inbound shape.
func encodeAttachment(att *AttachmentPayload) (json.RawMessage, error) {
	core, err := json.Marshal(att)
	if err != nil {
		return nil, fmt.Errorf("marshal attachment: %w", err)
	}
	if len(att.Extra) == 0 {
		return core, nil
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(core, &doc); err != nil {
		return nil, fmt.Errorf("marshal attachment: %w", err)
	}
	for key, raw := range att.Extra {
		if _, exists := doc[key]; !exists {
			doc[key] = raw
		}
	}
	return json.Marshal(doc)
}
