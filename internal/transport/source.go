// Driftline - Client-Side Chat State Synchronization Engine
// Copyright 2026 Driftline Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/driftline/driftline

// Package transport maintains the realtime websocket connection and feeds
// raw event envelopes to the apply pipeline. It deliberately does not
// interpret envelopes; decoding is the pipeline's job.
package transport

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/driftline/driftline/internal/logging"
)

const (
	handshakeTimeout = 10 * time.Second
	pingInterval     = 25 * time.Second
	pongWait         = 60 * time.Second
	writeWait        = 10 * time.Second
)

// Config holds connection settings.
type Config struct {
	// URL is the websocket endpoint, e.g. wss://host/connect.
	URL string

	// Key is the application api key, sent as a query parameter.
	Key string

	// UserID identifies the connecting user.
	UserID string

	// Token authenticates the connection.
	Token string
}

// Source is one realtime connection. It implements suture.Service: Serve
// dials, pumps envelopes until the connection drops, and returns the
// failure so the supervisor can restart it with backoff.
type Source struct {
	cfg    Config
	out    chan []byte
	logger zerolog.Logger
}

// NewSource creates a source. Envelopes are delivered on Events.
func NewSource(cfg Config) *Source {
	return &Source{
		cfg:    cfg,
		out:    make(chan []byte, 64),
		logger: logging.With().Str("component", "transport").Logger(),
	}
}

// Events is the stream of raw envelopes. It stays open across reconnects.
func (s *Source) Events() <-chan []byte {
	return s.out
}

// Serve dials and pumps one connection lifetime.
func (s *Source) Serve(ctx context.Context) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	s.logger.Info().Str("url", s.cfg.URL).Msg("connected")

	go s.pingLoop(ctx, conn)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read envelope: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		select {
		case s.out <- raw:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Source) dial(ctx context.Context) (*websocket.Conn, error) {
	endpoint, err := url.Parse(s.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse websocket url: %w", err)
	}
	query := endpoint.Query()
	query.Set("api_key", s.cfg.Key)
	query.Set("user_id", s.cfg.UserID)
	query.Set("authorization", s.cfg.Token)
	endpoint.RawQuery = query.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, endpoint.String(), nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("websocket dial (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, nil
}

func (s *Source) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(writeWait)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.logger.Debug().Err(err).Msg("ping failed")
				return
			}
		}
	}
}
