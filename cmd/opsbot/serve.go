package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/opsbot/internal/api"
	"github.com/ashureev/opsbot/internal/bot"
	"github.com/ashureev/opsbot/internal/conversation"
	"github.com/ashureev/opsbot/internal/transport"
	"github.com/ashureev/opsbot/internal/transport/console"
	"github.com/ashureev/opsbot/internal/transport/telegram"
	"github.com/ashureev/opsbot/web"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the chat bot, ops HTTP server and operator console",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(parent context.Context) error {
	cfg, logger := a.cfg, a.logger
	if err := cfg.ValidateBot(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			logger.Error("Failed to close repository", "error", closeErr)
		}
	}()
	logger.Info("Database connected", "driver", repo.Driver())

	executor, err := a.openExecutor(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := executor.Close(); closeErr != nil {
			logger.Warn("Failed to close remote session", "error", closeErr)
		}
	}()

	botAPI, username, err := telegram.Connect(cfg.Telegram.Token)
	if err != nil {
		return err
	}
	tg := telegram.New(botAPI, logger)
	logger.Info("Authorized on Telegram", "bot", username)

	var hub *console.Hub
	var owners []transport.Owner
	if cfg.ConsoleEnabled && cfg.OpsToken != "" {
		hub = console.NewHub(cfg.OpsToken, cfg.AllowedOrigins, logger)
		owners = append(owners, hub)
	}

	conversations := conversation.NewStore(logger)
	machine := conversation.NewMachine(conversations, repo, logger)
	router := bot.NewRouter(executor, machine, repo, transport.NewMux(tg, owners...), bot.Options{
		BotName:        username,
		AllowedUserIDs: cfg.Telegram.AllowedUserIDs,
		MaxLen:         cfg.Frame.MaxLen,
		FrameDelay:     cfg.Frame.Delay,
		Limiter:        bot.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window),
		Logger:         logger,
	})
	tg.Attach(router)
	if hub != nil {
		hub.Attach(router)
	}
	if err := tg.RegisterCommands(bot.Commands()); err != nil {
		logger.Warn("Failed to register command menu", "error", err)
	}

	health := api.NewHealthHandler([]api.Check{
		{Name: "database", Target: repo},
		{Name: "remote", Target: executor},
	}, 0, logger)
	opts := api.RouterOptions{
		Health:         health,
		Records:        api.NewRecordsHandler(repo, logger),
		OpsToken:       cfg.OpsToken,
		AllowedOrigins: cfg.AllowedOrigins,
	}
	if cfg.Telegram.WebhookURL != "" {
		opts.Webhook = tg.WebhookHandler()
	}
	if hub != nil {
		opts.Console = hub
		opts.ConsolePage = web.ConsoleHandler()
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(opts),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return conversation.NewSweeper(conversations, cfg.ConversationTTL, 0, nil, logger).Run(gctx)
	})

	g.Go(func() error {
		logger.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down gracefully...")
		if hub != nil {
			hub.CloseAll()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	if cfg.GRPCHealthAddr != "" {
		g.Go(func() error {
			return api.NewHealthServer(health, 0, logger).ListenAndServe(gctx, cfg.GRPCHealthAddr)
		})
	}

	g.Go(func() error {
		if cfg.Telegram.WebhookURL != "" {
			return tg.ServeWebhook(gctx, cfg.Telegram.WebhookURL, cfg.Telegram.WebhookSecret)
		}
		return tg.Poll(gctx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", "error", err)
		return err
	}
	logger.Info("Server stopped successfully")
	return nil
}
