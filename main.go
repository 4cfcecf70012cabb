package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/walletpilot/server/internal/agent"
	"github.com/walletpilot/server/internal/agent/graph"
	"github.com/walletpilot/server/internal/agent/graph/tools"
	"github.com/walletpilot/server/internal/agent/model"
	"github.com/walletpilot/server/internal/agent/repo"
	"github.com/walletpilot/server/internal/core"
	"github.com/walletpilot/server/internal/market"
	"github.com/walletpilot/server/internal/news"
	"github.com/walletpilot/server/internal/scheduler"
	"github.com/walletpilot/server/internal/transport"
	"github.com/walletpilot/server/internal/wallet"
	logx "github.com/walletpilot/server/pkg/logger"
	pkgredis "github.com/walletpilot/server/pkg/redis"
)

// AppConfig defines all configurable parameters for the service,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"APP_ENV" default:"development"`

	// Infrastructure
	Redis pkgredis.Config
	HTTP  transport.Config

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Collaborators
	Chain      wallet.Config
	Aggregator market.Config
	News       news.Config

	// Agent configs
	AgentModel   model.AgentModelConfig
	Prompt       model.AgentPromptConfig
	Conversation model.ConversationConfig
}

func main() {
	ctx := context.Background()

	if err := godotenv.Load(".env"); err != nil {
		logx.Info().Msg("No .env file found, using environment variables")
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		logx.Fatal().Err(err).Msg("Failed to process environment config")
	}

	logx.Init(logx.LoggerOpts{Environment: core.ParseEnvironment(cfg.Environment)})

	rdb, err := cfg.Redis.New()
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to initialise Redis client")
	}
	defer rdb.Close()
	logx.Info().Msg("Connected to Redis")

	ttl, err := time.ParseDuration(cfg.Conversation.TTL)
	if err != nil {
		logx.Fatal().Str("ttl", cfg.Conversation.TTL).Err(err).Msg("Invalid CONVERSATION_TTL")
	}

	conversationRepo := repo.NewRedisConversationRepository(rdb, ttl)
	credentials := repo.NewRedisKeyValueStore(rdb, "credentials")

	walletSvc, err := wallet.Dial(ctx, cfg.Chain, credentials)
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to connect to chain RPC")
	}
	logx.Info().
		Int64("chain_id", cfg.Chain.ChainID).
		Bool("fixed_account", walletSvc.FixedAccountConfigured()).
		Msg("Chain backend ready")

	marketClient := market.NewClient(cfg.Aggregator)
	newsClient := news.NewClient(cfg.News)

	// Scheduler is wired after the agent service exists; tools only need
	// the registry handle, which is stable from construction.
	hub := transport.NewHub()
	registry := scheduler.NewRegistry(nil, hub)

	runner, err := graph.BuildAgentGraph(ctx, graph.Config{
		APIKey:           cfg.APIKey,
		BaseURL:          cfg.BaseURL,
		AgentModel:       cfg.AgentModel,
		Prompt:           cfg.Prompt,
		Conversation:     cfg.Conversation,
		ConversationRepo: conversationRepo,
		ToolDeps: &tools.Deps{
			Wallet:    walletSvc,
			Market:    marketClient,
			News:      newsClient,
			Scheduler: registry,
			KV:        credentials,
		},
	})
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to build agent graph")
	}

	agentSvc := agent.NewService(runner, conversationRepo)
	registry.SetRunner(agentSvc)

	handler := transport.NewHandler(agentSvc, hub, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}, cfg.HTTP)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logx.Info().Str("addr", cfg.HTTP.Addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logx.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Error().Err(err).Msg("HTTP server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logx.Error().Err(err).Msg("HTTP shutdown failed")
	}
	if err := registry.Shutdown(shutdownCtx); err != nil {
		logx.Error().Err(err).Msg("Scheduler drain timed out")
	}
	logx.Info().Msg("Shutdown complete")
}
