package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/cwrk-planet/room-sync/config"
	"github.com/cwrk-planet/room-sync/internal/auth"
	"github.com/cwrk-planet/room-sync/internal/metrics"
	"github.com/cwrk-planet/room-sync/internal/notify"
	"github.com/cwrk-planet/room-sync/internal/roomapi"
	"github.com/cwrk-planet/room-sync/internal/service"
	"github.com/cwrk-planet/room-sync/internal/snapshot"
	httpx "github.com/cwrk-planet/room-sync/internal/transport/http"
	"github.com/cwrk-planet/room-sync/internal/transport/ws"
	"github.com/cwrk-planet/room-sync/pkg/logger"
)

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		println("failed to load config:", err.Error())
		os.Exit(1)
	}

	log := logger.Init(logger.Config{
		Env:       logger.Env(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		Level:     logger.ParseLevel(cfg.Logging.Level),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting room-sync",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version, "rooms", len(cfg.Rooms))

	// traces without an exporter: only trace_id/span_id in logs are needed
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	// --- auth ---
	var verifier *auth.Verifier
	if !cfg.Auth.Disabled {
		pub, err := auth.LoadRSAPublicKeyFromPEM(cfg.Auth.PublicKeyPath)
		if err != nil {
			slog.Error("load jwt public key failed", "err", err)
			os.Exit(1)
		}
		verifier = auth.NewVerifier(pub, cfg.Auth.Issuer, cfg.Auth.Audience, cfg.Auth.Skew())
	} else {
		slog.Warn("auth disabled: read API and notification feed are open")
	}

	// --- room api ---
	roomClient, err := roomapi.New(roomapi.Options{
		BaseURL: cfg.Upstream.BaseURL,
		Token:   cfg.Upstream.Token,
		Timeout: cfg.Upstream.RequestTimeout(),
		Logger:  log,
	})
	if err != nil {
		slog.Error("room api client init failed", "err", err)
		os.Exit(1)
	}

	// --- hub, metrics, sync ---
	m := metrics.New()
	hub := ws.NewHub(log)
	decoder := ws.NewDecoder(log)
	reconnectMin, reconnectMax := cfg.Sync.Backoff()

	syncSvc, err := service.NewSyncService(service.Options{
		Fetcher: roomClient,
		Sources: func(roomID string, connected func(bool)) (service.EventSource, error) {
			return ws.NewSource(ws.SourceOptions{
				URL:          cfg.Upstream.EventsURL,
				RoomID:       roomID,
				Token:        cfg.Upstream.Token,
				ReconnectMin: reconnectMin,
				ReconnectMax: reconnectMax,
				Decoder:      decoder,
				Logger:       log,
				OnState: func(_ string, s ws.State) {
					connected(s == ws.StateConnected)
				},
			})
		},
		Store:            snapshot.NewStore(),
		Notifier:         notify.Fanout{notify.NewLogEmitter(log), hub},
		Metrics:          m,
		Logger:           log,
		DeferredCapacity: cfg.Sync.DeferredCapacity,
		DeferredMaxAge:   cfg.Sync.DeferredMaxAgeOr(),
		OnVoteAction: func(roomID, voteID string) {
			slog.Info("vote action invoked", "room", roomID, "vote", voteID)
		},
		OnClose: hub.CloseRoom,
	})
	if err != nil {
		slog.Error("sync service init failed", "err", err)
		os.Exit(1)
	}
	defer syncSvc.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, roomID := range cfg.Rooms {
		if err := syncSvc.Open(ctx, roomID); err != nil {
			slog.Error("open room failed", "room", roomID, "err", err)
		}
	}

	// --- HTTP ---
	var tokens httpx.TokenVerifier
	var wsTokens ws.TokenVerifier
	if verifier != nil {
		tokens, wsTokens = verifier, verifier
	}
	wsServer := ws.NewServer(hub, syncSvc, wsTokens, log)
	router := httpx.NewRouter(httpx.Deps{
		Handler:     httpx.NewHandler(syncSvc),
		Verifier:    tokens,
		WS:          wsServer.HandleWS,
		Metrics:     m.Handler(),
		CORSOrigins: cfg.HTTP.CORSOrigins,
		Logger:      log,
	})

	read, write, idle := cfg.HTTP.Timeouts()
	srv := httpx.NewServer(httpx.ServerConfig{
		Addr:         cfg.HTTP.Addr,
		ReadTimeout:  read,
		WriteTimeout: write,
		IdleTimeout:  idle,
	}, router)

	// --- graceful shutdown ---
	slog.Info("http listen", "addr", cfg.HTTP.Addr)
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server stopped with error", "err", err)
		syncSvc.Shutdown()
		os.Exit(1)
	}

	slog.Info("room-sync stopped")
}
