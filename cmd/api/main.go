// Package main is the entry point for the conversation engine API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/omnidesk/conversation-engine/internal/agentpool"
	"github.com/omnidesk/conversation-engine/internal/assign"
	"github.com/omnidesk/conversation-engine/internal/bus"
	"github.com/omnidesk/conversation-engine/internal/channel"
	"github.com/omnidesk/conversation-engine/internal/classify"
	"github.com/omnidesk/conversation-engine/internal/config"
	"github.com/omnidesk/conversation-engine/internal/dedupe"
	"github.com/omnidesk/conversation-engine/internal/engine"
	"github.com/omnidesk/conversation-engine/internal/escalate"
	"github.com/omnidesk/conversation-engine/internal/handler"
	"github.com/omnidesk/conversation-engine/internal/llm"
	"github.com/omnidesk/conversation-engine/internal/middleware"
	"github.com/omnidesk/conversation-engine/internal/model"
	natsclient "github.com/omnidesk/conversation-engine/internal/nats"
	"github.com/omnidesk/conversation-engine/internal/pipeline"
	"github.com/omnidesk/conversation-engine/internal/realtime"
	"github.com/omnidesk/conversation-engine/internal/stats"
	"github.com/omnidesk/conversation-engine/internal/store"
	"github.com/omnidesk/conversation-engine/pkg/logger"
	"github.com/omnidesk/conversation-engine/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting conversation engine")

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "conversation-engine", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// NATS is optional; without it the engine runs with in-process events
	// only.
	var nc *natsclient.Client
	var mirror *natsclient.Mirror
	if cfg.NATSURL != "" {
		nc, err = natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Error("failed to connect to NATS", zap.Error(err))
			os.Exit(1)
		}
		defer nc.Close()
		mirror = natsclient.NewMirror(nc)
	}

	// Redis-backed dedupe when configured, in-memory otherwise.
	var deduper dedupe.Deduper
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer rdb.Close()
		deduper = dedupe.NewRedis(rdb, cfg.DedupeTTL)
	} else {
		deduper = dedupe.NewMemory(cfg.DedupeTTL)
	}

	// LLM client powers the AI responder and the model-backed classifier.
	var llmClient llm.Client
	switch {
	case cfg.DefaultLLM == "openai" && cfg.OpenAIAPIKey != "":
		llmClient, err = llm.NewClient(llm.ProviderOpenAI, cfg.OpenAIAPIKey)
	case cfg.AnthropicAPIKey != "":
		llmClient, err = llm.NewClient(llm.ProviderAnthropic, cfg.AnthropicAPIKey)
	case cfg.OpenAIAPIKey != "":
		llmClient, err = llm.NewClient(llm.ProviderOpenAI, cfg.OpenAIAPIKey)
	}
	if err != nil {
		log.Warn("failed to create LLM client, AI features disabled", zap.Error(err))
		llmClient = nil
	}

	// Core components.
	events := bus.New(log)
	st := store.New(log)
	pool := agentpool.New(log)
	registry := channel.NewRegistry(events, log)

	var classifier classify.Classifier = classify.NewLexical(classify.DefaultLexicon())
	if llmClient != nil {
		classifier = classify.NewLLM(llmClient, "")
	}
	classifier = classify.WithTimeout(classifier, cfg.ClassifyTimeout)

	escalator := escalate.New(st, events, escalate.Config{
		NegativeIntensityThreshold: cfg.NegativeIntensityThreshold,
		Cooldown:                   cfg.EscalationCooldown,
		SendFailureThreshold:       cfg.SendFailureThreshold,
	}, log)

	assigner := assign.New(pool, st, events, escalator, assign.Config{
		RetryInterval: cfg.AssignRetryInterval,
		WaitThreshold: cfg.AssignWaitThreshold,
	}, log)

	var responder pipeline.Responder
	if llmClient != nil {
		responder = pipeline.NewLLMResponder(llmClient, "")
	}

	pipe := pipeline.New(st, registry, classifier, escalator, assigner, events, responder, deduper, pipeline.Config{
		SendMaxAttempts:     cfg.SendMaxAttempts,
		SendInitialInterval: cfg.SendInitialInterval,
	}, log)

	aggregator := stats.New(st, log)

	var relay *realtime.Relay
	if cfg.RelayURL != "" {
		relay = realtime.New(cfg.RelayURL, log)
	}

	eng := engine.New(engine.Options{
		Store:               st,
		Pool:                pool,
		Registry:            registry,
		Events:              events,
		Classifier:          classifier,
		Escalator:           escalator,
		Assigner:            assigner,
		Pipeline:            pipe,
		Stats:               aggregator,
		Mirror:              mirror,
		Relay:               relay,
		SubscriberQueueSize: cfg.SubscriberQueueSize,
		Logger:              log,
	})
	eng.Start(ctx)

	// Handlers.
	healthHandler := handler.NewHealthHandler(nc)
	conversationHandler := handler.NewConversationHandler(eng, log)
	messageHandler := handler.NewMessageHandler(eng, log)
	inboundHandler := handler.NewInboundHandler(eng, log)
	agentHandler := handler.NewAgentHandler(eng, cfg.DefaultAgentCapacity, log)
	channelHandler := handler.NewChannelHandler(eng, webhookAdapters, log)
	statsHandler := handler.NewStatsHandler(eng, log)
	streamHandler := handler.NewStreamHandler(eng, cfg.SubscriberQueueSize, log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	// Inbound webhooks authenticate with per-channel secrets upstream, not
	// operator JWTs.
	r.Route("/api/v1/inbound", func(r chi.Router) {
		r.Use(middleware.WebhookRateLimit(cfg.RateLimitRequests*10, cfg.RateLimitWindow))
		r.Post("/{channelID}", inboundHandler.Receive)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", conversationHandler.Create)
			r.Get("/", conversationHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", conversationHandler.Get)
				r.Post("/transition", conversationHandler.Transition)
				r.Post("/escalate", conversationHandler.Escalate)

				r.Get("/messages", messageHandler.List)
				r.Post("/messages", messageHandler.Send)
			})
		})

		r.Route("/agents", func(r chi.Router) {
			r.Get("/", agentHandler.List)
			r.Post("/", agentHandler.Register)
			r.Put("/{id}/status", agentHandler.SetStatus)
		})

		r.Route("/channels", func(r chi.Router) {
			r.Get("/", channelHandler.List)
			r.Post("/", channelHandler.Register)
			r.Get("/{id}", channelHandler.Get)
			r.Post("/{id}/reconnect", channelHandler.Reconnect)
		})

		r.Get("/stats", statsHandler.Get)
		r.Get("/events", streamHandler.Events)
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	eng.Stop(shutdownCtx)

	log.Info("stopped")
}

// webhookAdapters builds the outbound adapter for a registered channel.
func webhookAdapters(ch model.Channel) (channel.Adapter, error) {
	return channel.NewWebhookAdapter(ch.WebhookURL, ch.Token), nil
}
