package main

import (
	"chatify/internal/access"
	"chatify/internal/api"
	"chatify/internal/assistant"
	"chatify/internal/auth"
	"chatify/internal/chat"
	"chatify/internal/commands"
	"chatify/internal/config"
	"chatify/internal/filestore"
	"chatify/internal/http"
	"chatify/internal/ratelimit"
	"chatify/internal/registry"
	"chatify/internal/router"
	"chatify/internal/signaling"
	"chatify/internal/storage"
	"chatify/internal/ws"
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	oshttp "net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

// socketLimiterTTL is how long an idle user's socket bucket is kept.
const socketLimiterTTL = 10 * time.Minute

// store is everything the services need from a storage driver.
type store interface {
	chat.Store
	auth.CredentialStore
	assistant.AccountStore
	filestore.MediaIndex
	Close() error
}

func run(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("chatify", flag.ContinueOnError)
	addUser := flags.String("add-user", "", "Email of the user to create (creates user with random password and prints details)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*addUser != "")
	if err != nil {
		return err
	}

	if *addUser != "" {
		return commands.AddUser(*addUser, cfg)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	db, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	files, err := openFileStore(ctx, cfg)
	if err != nil {
		return err
	}
	uploader := filestore.NewUploader(files, db, cfg.BaseURL)

	authConfig := auth.Config{
		Secret:      base64.StdEncoding.EncodeToString([]byte(cfg.AuthSecret)),
		TokenExpiry: cfg.TokenExpiry,
	}
	authService, err := auth.NewAuthService(ctx, authConfig, db)
	if err != nil {
		return err
	}

	luna, err := assistant.EnsureAccount(ctx, db)
	if err != nil {
		return err
	}

	conns := registry.New()
	events := router.New(conns, router.WithUnroutable(luna.ID), router.WithLogger(logger))
	guard := access.New(db, luna.ID)

	chatConfig := chat.Config{
		Store:   db,
		Guard:   guard,
		Emitter: events,
		Media:   uploader,
		Logger:  logger,
	}
	replies, err := assistant.NewFromConfig(assistant.Config{
		Provider:      cfg.AssistantProvider,
		OpenAIKey:     cfg.OpenAIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
		OpenAIModel:   cfg.OpenAIModel,
		GeminiKey:     cfg.GeminiKey,
		GeminiBaseURL: cfg.GeminiBaseURL,
		GeminiModel:   cfg.GeminiModel,
		OllamaBaseURL: cfg.OllamaBaseURL,
		OllamaModel:   cfg.OllamaModel,
		Temperature:   cfg.AssistantTemperature,
		Timeout:       cfg.AssistantTimeout,
		Retries:       cfg.AssistantRetries,
	}, logger)
	if err != nil {
		logger.Warn("assistant disabled", "error", err)
	} else {
		chatConfig.Replies = replies
	}
	chatService := chat.New(chatConfig)

	sendLimiter, closeLimiter, err := newSendLimiter(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLimiter()

	hub := ws.NewHub(ws.HubConfig{
		Conns:   conns,
		Router:  events,
		Typing:  chatService,
		Calls:   signaling.New(guard, events),
		Limiter: ratelimit.NewLocalLimiter(ctx, cfg.SocketEventsPerSecond, cfg.SocketEventBurst, socketLimiterTTL),
		Logger:  logger,
	})
	sockets := ws.NewServer(authService, hub, cfg.ClientURL, luna.ID)

	apiHandlers := api.New(api.Config{
		Auth:         authService,
		Chat:         chatService,
		SendLimiter:  sendLimiter,
		SecureCookie: strings.HasPrefix(cfg.BaseURL, "https://"),
		Logger:       logger,
	})

	adminServer := http.NewAdminServer(api.NewAdminHandler(authService, cfg.BaseURL), cfg.AdminAddr)
	apiServer := http.NewAPIServer(apiHandlers, sockets, uploader, cfg.ClientURL, cfg.APIAddr)

	g, gCtx := errgroup.WithContext(ctx)

	// Start Admin Server
	g.Go(func() error {
		err := adminServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	// Start API Server
	g.Go(func() error {
		err := apiServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	// Wait for context cancellation (signal)
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("admin server shutdown failed", "error", err)
		}
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("api server shutdown failed", "error", err)
		}
		return nil
	})

	return g.Wait()
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func openStorage(ctx context.Context, cfg *config.Config) (store, error) {
	switch cfg.StorageDriver {
	case "mongo":
		return storage.NewMongoStorage(ctx, cfg.MongoURI, cfg.MongoDB)
	case "bbolt":
		return storage.NewBboltStorage(cfg.DBFile)
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
}

func openFileStore(ctx context.Context, cfg *config.Config) (filestore.FileStore, error) {
	switch cfg.MediaDriver {
	case "minio":
		return filestore.NewMinioFileStore(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	case "local":
		return filestore.NewLocalFileStore(cfg.UploadsPath)
	}
	return nil, fmt.Errorf("unknown media driver %q", cfg.MediaDriver)
}

// newSendLimiter shares the send window through Redis when REDIS_ADDR is set
// and keeps it in memory otherwise.
func newSendLimiter(ctx context.Context, cfg *config.Config) (ratelimit.Limiter, func(), error) {
	if cfg.RedisAddr == "" {
		return ratelimit.NewLocalWindowLimiter(ctx, cfg.SendRateLimit, cfg.SendRateWindow), func() {}, nil
	}
	l, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "chatify:send", cfg.SendRateLimit, cfg.SendRateWindow)
	if err != nil {
		return nil, nil, err
	}
	return l, func() { _ = l.Close() }, nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Application error: %v", err)
	}
}
