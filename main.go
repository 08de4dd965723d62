package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	enginex "github.com/hubenschmidt/pina-colada-sub000/agent/agents/engine"
	workersx "github.com/hubenschmidt/pina-colada-sub000/agent/agents/workers"
	fastpathx "github.com/hubenschmidt/pina-colada-sub000/agent/fastpath"
	llmx "github.com/hubenschmidt/pina-colada-sub000/agent/llm"
	statex "github.com/hubenschmidt/pina-colada-sub000/agent/state"
	toolx "github.com/hubenschmidt/pina-colada-sub000/agent/tool"
	directoryx "github.com/hubenschmidt/pina-colada-sub000/directory"
	configx "github.com/hubenschmidt/pina-colada-sub000/pkg/config"
	_ "github.com/hubenschmidt/pina-colada-sub000/pkg/logger/autoload"
	mailerx "github.com/hubenschmidt/pina-colada-sub000/pkg/mailer"
	telemetryx "github.com/hubenschmidt/pina-colada-sub000/pkg/telemetry"
	serverx "github.com/hubenschmidt/pina-colada-sub000/server"
)

type AppConfig struct {
	NodeName      string `envconfig:"NODE_NAME" split_words:"true" default:"orchestrator"`
	HistoryBudget int    `envconfig:"HISTORY_BUDGET" split_words:"true" default:"6000"`
	MaxToolRounds int    `envconfig:"MAX_TOOL_ROUNDS" split_words:"true" default:"8"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appCfg := configx.MustNew[AppConfig]("APP")

	llmCfg := configx.MustNew[llmx.Config]("OPENROUTER")
	registry, err := workersx.NewRegistry(ctx, *llmCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("create model registry")
	}

	storeCfg := configx.MustNew[statex.UpstashRedisConfig]("UPSTASH_REDIS")
	store, err := statex.NewUpstashRedisStore(*storeCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("create state store")
	}

	dirCfg := configx.MustNew[directoryx.Config]("DIRECTORY")
	dir, err := directoryx.New(*dirCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("create directory store")
	}
	defer dir.Close()

	mailCfg := configx.MustNew[mailerx.Config]("MAILER")
	mail := mailerx.MustNew(*mailCfg)

	usageCfg := configx.MustNew[telemetryx.Config]("TELEMETRY")
	usageSink := telemetryx.MustNew(*usageCfg)

	gateway := toolx.NewGateway(dir, dir, dir, mail)
	fast := fastpathx.New(dir)

	engine, err := enginex.New(store, registry, gateway, fast, usageSink, enginex.Config{
		ModelName:     llmCfg.Model,
		NodeName:      appCfg.NodeName,
		HistoryBudget: appCfg.HistoryBudget,
		MaxToolRounds: appCfg.MaxToolRounds,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("create engine")
	}

	srvCfg := configx.MustNew[serverx.Config]("SERVER")
	srv, err := serverx.New(engine, *srvCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("create server")
	}

	if err := srv.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
	log.Info().Msg("shutdown complete")
}
