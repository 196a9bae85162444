package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/galynx/galynx-server/internal/api"
	"github.com/galynx/galynx-server/internal/attachment"
	"github.com/galynx/galynx-server/internal/audit"
	"github.com/galynx/galynx-server/internal/auth"
	"github.com/galynx/galynx-server/internal/channel"
	"github.com/galynx/galynx-server/internal/config"
	"github.com/galynx/galynx-server/internal/httputil"
	"github.com/galynx/galynx-server/internal/ratelimit"
	"github.com/galynx/galynx-server/internal/reaction"
	"github.com/galynx/galynx-server/internal/realtime"
	"github.com/galynx/galynx-server/internal/store"
	"github.com/galynx/galynx-server/internal/user"
	"github.com/galynx/galynx-server/internal/workspace"
)

func main() {
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("parse LOG_LEVEL: %w", err)
	}
	zerolog.SetGlobalLevel(level)
	if cfg.LogPretty {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			With().Timestamp().Logger()
	}

	log.Info().Str("backend", cfg.PersistenceBackend).Msg("Starting Galynx Server")

	ctx := context.Background()

	st, err := store.Open(ctx, cfg.PersistenceBackend, cfg.MongoURI, log.Logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.Close(closeCtx); err != nil {
			log.Error().Err(err).Msg("Store close error")
		}
	}()
	if st.Backend() == store.BackendMongo {
		log.Info().Msg("MongoDB mirror connected")
	}

	// Seed the bootstrap owner and default channel before accepting traffic.
	authService := auth.NewService(st, cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL, cfg.BootstrapEmail, cfg.BootstrapPassword, log.Logger)
	if err := authService.EnsureBootstrapSeed(ctx); err != nil {
		return fmt.Errorf("bootstrap seed: %w", err)
	}
	channels := channel.NewService(st, authService.BootstrapWorkspaceID(), authService.BootstrapUserID(), log.Logger)
	channels.EnsureDefaultChannel(ctx)

	auditService := audit.NewService(st, log.Logger)
	reactions := reaction.NewService(st, channels)
	users := user.NewService(st)
	workspaces := workspace.NewService(st)
	limits := ratelimit.NewService()

	var presigner attachment.Presigner
	if cfg.S3Configured() {
		presigner, err = attachment.NewS3Presigner(cfg)
		if err != nil {
			return fmt.Errorf("init s3 presigner: %w", err)
		}
		log.Info().Str("bucket", cfg.S3Bucket).Str("region", cfg.S3Region).Msg("S3 presigner enabled")
	} else {
		log.Info().Msg("No S3 bucket configured, synthesizing local storage URLs")
	}
	attachments := attachment.NewService(st, channels, presigner, log.Logger)

	// Realtime hub with optional cross-instance redis bridge.
	hub := realtime.NewHub(log.Logger)
	bridgeCtx, bridgeCancel := context.WithCancel(ctx)
	defer bridgeCancel()
	if cfg.RedisURL != "" {
		bridge, err := realtime.NewBridge(cfg.RedisURL, hub, log.Logger)
		if err != nil {
			return fmt.Errorf("init realtime bridge: %w", err)
		}
		bridge.Start(bridgeCtx)
	}

	app := fiber.New(fiber.Config{
		AppName: "Galynx",
		// ErrorHandler catches errors that escape the handlers' own mapping,
		// mainly Fiber's built-in 404/405.
		ErrorHandler: func(c fiber.Ctx, err error) error {
			if e, ok := errors.AsType[*fiber.Error](err); ok {
				return httputil.Fail(c, e.Code, codeForStatus(e.Code), e.Message)
			}
			log.Error().Err(err).
				Str("method", c.Method()).
				Str("path", c.Path()).
				Msg("Unhandled error")
			return httputil.Error(c, err)
		},
	})

	app.Use(requestid.New())
	app.Use(httputil.RequestLogger(log.Logger, "/api/v1/health", "/api/v1/ready"))
	app.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"X-Request-ID"},
	}))

	registerRoutes(app, deps{
		store:       st,
		auth:        authService,
		channels:    channels,
		reactions:   reactions,
		attachments: attachments,
		audit:       auditService,
		users:       users,
		workspaces:  workspaces,
		limits:      limits,
		hub:         hub,
	})

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("Shutting down server")
		bridgeCancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Info().Str("addr", addr).Msg("Server listening")
	if err := app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true}); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// deps bundles the services the route handlers need.
type deps struct {
	store       *store.Store
	auth        *auth.Service
	channels    *channel.Service
	reactions   *reaction.Service
	attachments *attachment.Service
	audit       *audit.Service
	users       *user.Service
	workspaces  *workspace.Service
	limits      *ratelimit.Service
	hub         *realtime.Hub
}

func registerRoutes(app *fiber.App, d deps) {
	requireAuth := auth.RequireAuth(d.auth)

	health := api.NewHealthHandler(d.store)
	app.Get("/api/v1/health", health.Health)
	app.Get("/api/v1/ready", health.Ready)

	authHandler := api.NewAuthHandler(d.auth, d.audit, d.limits, log.Logger)
	app.Post("/api/v1/auth/login", authHandler.Login)
	app.Post("/api/v1/auth/refresh", authHandler.Refresh)
	app.Post("/api/v1/auth/logout", requireAuth, authHandler.Logout)
	app.Get("/api/v1/me", requireAuth, authHandler.Me)

	userHandler := api.NewUserHandler(d.users, d.audit, log.Logger)
	app.Get("/api/v1/users", requireAuth, userHandler.List)
	app.Post("/api/v1/users", requireAuth, userHandler.Create)

	workspaceHandler := api.NewWorkspaceHandler(d.workspaces, d.store, d.audit, log.Logger)
	app.Get("/api/v1/workspaces", requireAuth, workspaceHandler.List)
	app.Post("/api/v1/workspaces", requireAuth, workspaceHandler.Create)
	app.Get("/api/v1/workspaces/:id/members", requireAuth, workspaceHandler.ListMembers)
	app.Post("/api/v1/workspaces/:id/members", requireAuth, workspaceHandler.OnboardMember)

	channelHandler := api.NewChannelHandler(d.channels, d.audit, d.hub, log.Logger)
	app.Get("/api/v1/channels", requireAuth, channelHandler.List)
	app.Post("/api/v1/channels", requireAuth, channelHandler.Create)
	app.Delete("/api/v1/channels/:id", requireAuth, channelHandler.Delete)
	app.Get("/api/v1/channels/:id/members", requireAuth, channelHandler.ListMembers)
	app.Post("/api/v1/channels/:id/members", requireAuth, channelHandler.AddMember)
	app.Delete("/api/v1/channels/:id/members/:userID", requireAuth, channelHandler.RemoveMember)

	messageHandler := api.NewMessageHandler(d.channels, d.audit, d.hub, log.Logger)
	app.Get("/api/v1/channels/:id/messages", requireAuth, messageHandler.List)
	app.Post("/api/v1/channels/:id/messages", requireAuth, messageHandler.Create)
	app.Patch("/api/v1/messages/:id", requireAuth, messageHandler.Update)
	app.Delete("/api/v1/messages/:id", requireAuth, messageHandler.Delete)

	threadHandler := api.NewThreadHandler(d.channels, d.audit, d.hub, log.Logger)
	app.Get("/api/v1/threads/:rootID", requireAuth, threadHandler.Summary)
	app.Get("/api/v1/threads/:rootID/replies", requireAuth, threadHandler.ListReplies)
	app.Post("/api/v1/threads/:rootID/replies", requireAuth, threadHandler.CreateReply)

	attachmentHandler := api.NewAttachmentHandler(d.attachments, d.audit, log.Logger)
	app.Post("/api/v1/attachments/presign", requireAuth, attachmentHandler.Presign)
	app.Post("/api/v1/attachments/commit", requireAuth, attachmentHandler.Commit)
	app.Get("/api/v1/attachments/:id", requireAuth, attachmentHandler.Get)

	auditHandler := api.NewAuditHandler(d.audit, log.Logger)
	app.Get("/api/v1/audit", requireAuth, auditHandler.List)

	gatewayHandler := api.NewGatewayHandler(d.auth, d.limits, realtime.SessionDeps{
		Store:     d.store,
		Channels:  d.channels,
		Reactions: d.reactions,
		Audit:     d.audit,
		Limits:    d.limits,
		Hub:       d.hub,
	}, log.Logger)
	app.Get("/api/v1/ws", gatewayHandler.Upgrade)
}

// codeForStatus maps Fiber's built-in error statuses to the JSON error codes.
func codeForStatus(status int) string {
	switch {
	case status == fiber.StatusNotFound:
		return "not_found"
	case status == fiber.StatusUnauthorized:
		return "unauthorized"
	case status == fiber.StatusTooManyRequests:
		return "too_many_requests"
	case status >= 400 && status < 500:
		return "bad_request"
	default:
		return "internal_error"
	}
}
