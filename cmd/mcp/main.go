package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/iceos/orchestrator/cmd/mcp/handlers"
	"github.com/iceos/orchestrator/cmd/mcp/routes"
	"github.com/iceos/orchestrator/cmd/mcp/service"
	"github.com/iceos/orchestrator/internal/agentrunner"
	"github.com/iceos/orchestrator/internal/coderunner"
	"github.com/iceos/orchestrator/internal/config"
	"github.com/iceos/orchestrator/internal/draftstore"
	"github.com/iceos/orchestrator/internal/engine"
	"github.com/iceos/orchestrator/internal/eventbus"
	"github.com/iceos/orchestrator/internal/expr"
	"github.com/iceos/orchestrator/internal/gateway"
	"github.com/iceos/orchestrator/internal/humanresponder"
	"github.com/iceos/orchestrator/internal/llmclient"
	"github.com/iceos/orchestrator/internal/logger"
	"github.com/iceos/orchestrator/internal/ratelimit"
	"github.com/iceos/orchestrator/internal/registry"
	"github.com/iceos/orchestrator/internal/sandbox"
	"github.com/iceos/orchestrator/internal/server"
	"github.com/iceos/orchestrator/internal/storage"
	"github.com/iceos/orchestrator/internal/tools"
	"github.com/iceos/orchestrator/internal/validator"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load("mcp")
	if err != nil {
		fmt.Fprintf(os.Stderr, "mcp: failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Service.LogLevel, cfg.Service.LogFormat)

	db, err := storage.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	store := storage.NewPostgresStore(db.Pool)

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Error("failed to parse redis url", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	reg := registry.New()
	if len(cfg.Packs) > 0 {
		for _, manifest := range cfg.Packs {
			if err := reg.LoadPlugins(manifest); err != nil {
				log.Warn("failed to load component pack", "manifest", manifest, "error", err)
			}
		}
	}
	if err := reg.RegisterInstance("tool", "http", tools.NewHTTPTool(30*time.Second, log)); err != nil {
		log.Error("failed to register built-in http tool", "error", err)
		os.Exit(1)
	}

	streamWriter := eventbus.NewStreamWriter(redisClient, 10000)
	bus := eventbus.New(streamWriter, log)

	evaluator := expr.NewEvaluator()
	llm := llmclient.New(cfg.LLM.BaseURL, cfg.LLM.APIKey, time.Duration(cfg.LLM.TimeoutSeconds)*time.Second, log)
	agents := agentrunner.New(llm, cfg.LLM.DefaultModel, log)
	coderun := coderunner.New()
	humanResponder := humanresponder.New(redisClient)

	allowedImports := sandbox.DefaultAllowedImports

	eng, err := engine.New(reg, bus, engine.Dependencies{
		Agents:          agents,
		LLMClient:       llm,
		DefaultLLMModel: cfg.LLM.DefaultModel,
		CodeRunner:      coderun,
		AllowedImports:  allowedImports,
		HumanResponder:  humanResponder,
		Evaluator:       evaluator,
	}, log, engine.Config{
		MaxTokens:    cfg.Budget.MaxTokens,
		OrgBudgetUSD: cfg.Budget.OrgBudgetUSD,
		DepthCeiling: cfg.Budget.MaxDepth,
	})
	if err != nil {
		log.Error("failed to build engine", "error", err)
		os.Exit(1)
	}

	limiter := ratelimit.New(redisClient, log)
	v := validator.NewValidator(reg)
	drafts := draftstore.New(draftstore.NewRedisBackend(redisClient), limiter, nil, v)

	hub := gateway.NewHub(log)
	go hub.Run()

	wsHandler := handlers.NewWebSocketHandler(drafts, redisClient)
	gw, err := gateway.New(hub, cfg.Service.WSBearer, log, wsHandler.OnPatchNode, wsHandler.OnTelemetry, wsHandler.OnCursor)
	if err != nil {
		log.Error("failed to build websocket gateway", "error", err)
		os.Exit(1)
	}
	wsHandler.SetGateway(gw)
	drafts.SetBroadcaster(gw)

	blueprintService := service.NewBlueprintService(store, v, redisClient)
	runService := service.NewRunService(eng, blueprintService, store, log)

	blueprintHandler := handlers.NewBlueprintHandler(blueprintService)
	runHandler := handlers.NewRunHandler(runService, blueprintService)
	eventsHandler := handlers.NewEventsHandler(streamWriter, runService)
	draftHandler := handlers.NewDraftHandler(drafts)

	e := setupEcho()
	setupMiddleware(e)
	setupHealthCheck(e, db)

	routes.Register(e, routes.Handlers{
		Blueprints: blueprintHandler,
		Runs:       runHandler,
		Events:     eventsHandler,
		Drafts:     draftHandler,
		WS:         wsHandler,
		Bearer:     cfg.Service.WSBearer,
	})

	srv := server.New("mcp", cfg.Service.Port, e, log)
	log.Info("starting mcp control plane", "port", cfg.Service.Port)
	if err := srv.Start(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	return e
}

func setupMiddleware(e *echo.Echo) {
	e.Use(echomiddleware.Logger())
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(echomiddleware.RequestID())
}

func setupHealthCheck(e *echo.Echo, db *storage.DB) {
	e.GET("/health", func(c echo.Context) error {
		if err := db.Health(c.Request().Context()); err != nil {
			return c.JSON(503, map[string]string{"status": "unhealthy", "error": err.Error()})
		}
		return c.JSON(200, map[string]string{"status": "ok", "service": "mcp"})
	})
}

