// Driftline - Client-Side Chat State Synchronization Engine
// Copyright 2026 Driftline Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/driftline/driftline

// Package api is the REST client for the chat backend. Requests pass
// through a client-side rate limiter and a circuit breaker so a degraded
// backend cannot pile up goroutines or hammer a failing endpoint.
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/driftline/driftline/internal/logging"
	"github.com/driftline/driftline/internal/metrics"
	"github.com/driftline/driftline/internal/wire"
)

// Error is a non-2xx backend response.
type Error struct {
	StatusCode int
	Code       int    `json:"code"`
	Message    string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend error %d (code %d): %s", e.StatusCode, e.Code, e.Message)
}

// Config holds client settings.
type Config struct {
	BaseURL       string
	Key           string
	Token         string
	Timeout       time.Duration
	RatePerSecond float64
	RateBurst     int
}

// Client talks to the chat backend.
type Client struct {
	baseURL string
	key     string
	token   string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	limiter *rate.Limiter
	decoder *wire.Decoder
	logger  zerolog.Logger
}

// New creates a client. The decoder is used for response payloads; pass
// wire.NewDecoder(nil) when no extra-data pass is needed.
func New(cfg Config, decoder *wire.Decoder) *Client {
	logger := logging.With().Str("component", "api").Logger()

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "chat-backend",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})

	return &Client{
		baseURL: cfg.BaseURL,
		key:     cfg.Key,
		token:   cfg.Token,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RateBurst),
		decoder: decoder,
		logger:  logger,
	}
}

// QueryChannelOptions selects the message page for a channel query.
type QueryChannelOptions struct {
	// MessageLimit caps the returned message page. 0 uses the backend
	// default.
	MessageLimit int

	// MessageIDBefore requests messages older than the given id, for
	// backward pagination.
	MessageIDBefore string
}

// QueryChannel fetches a channel's current remote state: the channel, one
// page of messages, members, and read cursors.
func (c *Client) QueryChannel(ctx context.Context, cid wire.ChannelID, opts QueryChannelOptions) (*wire.ChannelStatePayload, error) {
	messages := map[string]interface{}{}
	if opts.MessageLimit > 0 {
		messages["limit"] = opts.MessageLimit
	}
	if opts.MessageIDBefore != "" {
		messages["id_lt"] = opts.MessageIDBefore
	}
	body := map[string]interface{}{
		"state":    true,
		"messages": messages,
	}

	path := fmt.Sprintf("channels/%s/%s/query", cid.Type, cid.ID)
	raw, err := c.post(ctx, "query_channel", path, body)
	if err != nil {
		return nil, err
	}
	state, err := c.decoder.DecodeChannelState(raw)
	if err != nil {
		return nil, fmt.Errorf("query channel %s: %w", cid, err)
	}
	return state, nil
}

// SendMessage posts a new message to a channel and returns the accepted
// message as the backend normalized it.
func (c *Client) SendMessage(ctx context.Context, cid wire.ChannelID, msg *wire.MessageRequestBody) (*wire.MessagePayload, error) {
	path := fmt.Sprintf("channels/%s/%s/message", cid.Type, cid.ID)
	return c.postMessage(ctx, "send_message", path, msg)
}

// UpdateMessage replaces an existing message's content.
func (c *Client) UpdateMessage(ctx context.Context, msg *wire.MessageRequestBody) (*wire.MessagePayload, error) {
	return c.postMessage(ctx, "update_message", "messages/"+msg.ID, msg)
}

// MarkRead moves the current user's read cursor for a channel to now.
func (c *Client) MarkRead(ctx context.Context, cid wire.ChannelID) error {
	path := fmt.Sprintf("channels/%s/%s/read", cid.Type, cid.ID)
	_, err := c.post(ctx, "mark_read", path, map[string]interface{}{})
	return err
}

func (c *Client) postMessage(ctx context.Context, endpoint, path string, msg *wire.MessageRequestBody) (*wire.MessagePayload, error) {
	raw, err := c.post(ctx, endpoint, path, map[string]interface{}{"message": msg})
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("%s response: %w", endpoint, err)
	}
	if envelope.Message == nil {
		return nil, &wire.MalformedPayloadError{Field: "message"}
	}
	payload, err := c.decoder.DecodeMessage(envelope.Message)
	if err != nil {
		return nil, fmt.Errorf("%s response: %w", endpoint, err)
	}
	return payload, nil
}

// post runs one rate-limited, breaker-guarded POST and returns the raw
// response body.
func (c *Client) post(ctx context.Context, endpoint, path string, body interface{}) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", endpoint, err)
	}

	raw, err := c.breaker.Execute(func() ([]byte, error) {
		return c.do(ctx, endpoint, path, payload)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.APIRequests.WithLabelValues(endpoint, "rejected").Inc()
			c.logger.Warn().Str("endpoint", endpoint).Msg("request rejected by circuit breaker")
		}
		return nil, err
	}
	return raw, nil
}

func (c *Client) do(ctx context.Context, endpoint, path string, payload []byte) ([]byte, error) {
	url := c.baseURL + "/" + path + "?api_key=" + c.key
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.APIRequests.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("%s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	metrics.APIRequests.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &Error{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(raw, apiErr); err != nil {
			apiErr.Message = string(raw)
		}
		return nil, apiErr
	}
	return raw, nil
}
