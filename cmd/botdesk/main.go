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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/comigor/botdesk/internal/chat"
	"github.com/comigor/botdesk/internal/config"
	"github.com/comigor/botdesk/internal/llm"
	"github.com/comigor/botdesk/internal/logger"
	"github.com/comigor/botdesk/internal/metrics"
	"github.com/comigor/botdesk/internal/server"
	"github.com/comigor/botdesk/internal/store"
	"github.com/comigor/botdesk/internal/tokens"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.L.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.Log.Level)

	// botdesk admin-token [subject] prints a bearer token for the admin API.
	if len(os.Args) > 1 && os.Args[1] == "admin-token" {
		sub := "admin"
		if len(os.Args) > 2 {
			sub = os.Args[2]
		}
		token, err := tokens.Issue(cfg.Auth.JWTSecret, sub, tokens.RoleAdmin, cfg.Auth.TokenTTL)
		if err != nil {
			logger.L.Error("failed to issue admin token", "error", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}
	if cfg.Auth.JWTSecret == "" {
		logger.L.Warn("auth.jwt_secret is empty, admin API is disabled")
	}

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		logger.L.Error("failed to open store", "path", cfg.Database.Path, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	if cfg.LLM.APIKey == "" {
		logger.L.Warn("llm.api_key is empty, provider calls will be rejected")
	}
	relay := llm.NewRelay(llm.NewClient(cfg.LLM), cfg.LLM.Model)
	chatService := chat.New(st, relay, cfg.LLM.Stream)

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rdb *redis.Client
	if cfg.RateLimit.Enabled && cfg.RateLimit.UseRedis && cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.L.Warn("redis unreachable, falling back to in-memory rate limiting", "addr", cfg.Redis.Addr, "error", err)
			rdb.Close()
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	engine := server.New(cfg, server.Deps{Chat: chatService, Store: st, Redis: rdb})
	srv := &http.Server{Addr: cfg.Server.Addr(), Handler: engine}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.L.Error("graceful shutdown failed", "error", err)
		}
	}()

	logger.L.Info("starting server", "address", srv.Addr, "model", cfg.LLM.Model, "stream", cfg.LLM.Stream)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.L.Error("server stopped", "error", err)
		os.Exit(1)
	}
	logger.L.Info("server stopped")
}
