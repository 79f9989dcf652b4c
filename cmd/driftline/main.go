// Driftline - Client-Side Chat State Synchronization Engine
// Copyright 2026 Driftline Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/driftline/driftline

// Command driftline runs a headless sync node: it connects to the chat
// backend, mirrors channel state into the local entity store, and exposes
// health and metrics endpoints for diagnostics.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/driftline/driftline/internal/api"
	"github.com/driftline/driftline/internal/config"
	"github.com/driftline/driftline/internal/event"
	"github.com/driftline/driftline/internal/logging"
	"github.com/driftline/driftline/internal/pipeline"
	"github.com/driftline/driftline/internal/store"
	"github.com/driftline/driftline/internal/token"
	"github.com/driftline/driftline/internal/transport"
	"github.com/driftline/driftline/internal/wire"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Timestamp: true,
		Output:    os.Stderr,
	})

	userToken := cfg.Auth.Token
	if userToken == "" {
		provider, err := token.NewProvider([]byte(cfg.Auth.Secret))
		if err != nil {
			logging.Fatal().Err(err).Msg("token provider")
		}
		userToken, err = provider.UserToken(cfg.Auth.UserID, time.Time{})
		if err != nil {
			logging.Fatal().Err(err).Msg("mint user token")
		}
	}

	entityStore, err := store.Open(store.Config{
		Path:       cfg.Store.Path,
		InMemory:   cfg.Store.InMemory,
		SyncWrites: cfg.Store.SyncWrites,
		QueueSize:  cfg.Store.QueueSize,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("open entity store")
	}
	defer entityStore.Close()

	payloads := wire.NewDecoder(nil)
	events := event.NewDecoder(payloads)

	pubsub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, watermill.NopLogger{})
	defer pubsub.Close()

	processor := pipeline.New(entityStore, events, pubsub)

	client := api.New(api.Config{
		BaseURL:       cfg.API.BaseURL,
		Key:           cfg.API.Key,
		Token:         userToken,
		Timeout:       cfg.API.Timeout,
		RatePerSecond: cfg.API.RatePerSecond,
		RateBurst:     cfg.API.RateBurst,
	}, payloads)

	source := transport.NewSource(transport.Config{
		URL:    cfg.Transport.URL,
		Key:    cfg.API.Key,
		UserID: cfg.Auth.UserID,
		Token:  userToken,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slogger := slog.New(logging.NewSlogHandler())
	hook := (&sutureslog.Handler{Logger: slogger}).MustHook()
	root := suture.New("driftline", suture.Spec{
		EventHook:        hook,
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		Timeout:          10 * time.Second,
	})
	root.Add(source)
	root.Add(&pipelineService{processor: processor, envelopes: source.Events()})
	root.Add(&diagService{cfg: cfg.Server})
	if len(cfg.Sync.Channels) > 0 {
		root.Add(&bootstrapService{
			client:       client,
			processor:    processor,
			channels:     cfg.Sync.Channels,
			messageLimit: cfg.Sync.MessageLimit,
		})
	}

	errCh := root.ServeBackground(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor exited")
		}
	}
}

// pipelineService runs the apply pipeline under the supervisor.
type pipelineService struct {
	processor *pipeline.Processor
	envelopes <-chan []byte
}

func (s *pipelineService) Serve(ctx context.Context) error {
	err := s.processor.Run(ctx, s.envelopes)
	if errors.Is(err, store.ErrClosed) {
		// Nothing left to apply to; take the tree down.
		return suture.ErrTerminateSupervisorTree
	}
	return err
}

// bootstrapService mirrors the configured channels once at startup. Bulk
// ingest is idempotent, so a restart after a partial run converges to the
// same state.
type bootstrapService struct {
	client       *api.Client
	processor    *pipeline.Processor
	channels     []string
	messageLimit int
}

func (s *bootstrapService) Serve(ctx context.Context) error {
	for _, raw := range s.channels {
		cid, err := wire.ParseChannelID(raw)
		if err != nil {
			logging.Error().Str("cid", raw).Err(err).Msg("skipping invalid sync channel")
			continue
		}
		state, err := s.client.QueryChannel(ctx, cid, api.QueryChannelOptions{MessageLimit: s.messageLimit})
		if err != nil {
			return err
		}
		if err := s.processor.IngestChannelState(ctx, state); err != nil {
			return err
		}
		logging.Info().Str("cid", cid.String()).Int("messages", len(state.Messages)).Msg("channel mirrored")
	}
	return suture.ErrDoNotRestart
}

// diagService serves health and metrics endpoints.
type diagService struct {
	cfg config.ServerConfig
}

func (s *diagService) Serve(ctx context.Context) error {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: s.cfg.Timeout,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
		defer cancel()
		server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
