// Driftline - Client-Side Chat State Synchronization Engine
// Copyright 2026 Driftline Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/driftline/driftline

// Package wire defines the typed payload records exchanged with the chat
// backend and the Decoder that produces them from raw JSON documents.
//
// Payloads are the decoded representation of one remote entity as received
// in an API response. Decoding is strict about required fields (a missing
// required field yields a MalformedPayloadError naming the field) and
// lenient about optional ones (absent keys default). Deployment-specific
// custom attributes are captured by a pluggable ExtraDecoder pass that runs
// against the same raw document and fails the whole decode on error.
//
// The package also builds outbound request bodies for message send/edit.
// Outbound encoding omits empty optional collections entirely and merges
// extension fields into the same flat document as the core fields.
package wire
