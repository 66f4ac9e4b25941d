package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"github.com/strataplan/orchestrator/internal/activities"
	"github.com/strataplan/orchestrator/internal/config"
	"github.com/strataplan/orchestrator/internal/health"
	"github.com/strataplan/orchestrator/internal/httpapi"
	"github.com/strataplan/orchestrator/internal/intent"
	"github.com/strataplan/orchestrator/internal/llm"
	"github.com/strataplan/orchestrator/internal/search"
	"github.com/strataplan/orchestrator/internal/streaming"
	"github.com/strataplan/orchestrator/internal/workflows"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// ------------------------------------------------------------------
	// Bring up the health manager and admin endpoints early so probes
	// respond even while the Temporal worker is still starting.
	// ------------------------------------------------------------------
	hm := health.NewManager(15*time.Second, logger)
	adminMux := http.NewServeMux()
	hm.RegisterRoutes(adminMux)
	adminMux.Handle("/metrics", promhttp.Handler())

	streaming.Configure(cfg.Streaming.RingCapacity)
	streams := streaming.Get()
	httpapi.NewStreamingHandler(streams, logger).RegisterRoutes(adminMux)

	adminSrv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Service.HealthPort),
		Handler:      adminMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // streaming endpoints manage their own lifetimes
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("Admin HTTP server listening", zap.Int("port", cfg.Service.HealthPort))
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Admin HTTP server failed", zap.Error(err))
		}
	}()

	// Optional Redis event mirror
	if cfg.Redis.Enabled {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Warn("Invalid Redis URL, mirror disabled", zap.Error(err))
		} else {
			rdb := redis.NewClient(opts)
			streams.SetMirror(streaming.NewRedisMirror(rdb, logger))
			hm.RegisterChecker(health.NewRedisChecker(rdb))
			logger.Info("Redis event mirror enabled")
		}
	}

	// Capability clients
	llmClient := llm.NewHTTPClient(cfg.LLM, logger)
	searchClient := search.NewHTTPClient(cfg.Search, logger)
	hm.RegisterChecker(health.NewHTTPServiceChecker("llm", cfg.LLM.BaseURL+"/health", true))
	hm.RegisterChecker(health.NewHTTPServiceChecker("search", cfg.Search.BaseURL+"/health", false))

	// Temporal client and worker
	tc, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    newZapAdapter(logger),
	})
	if err != nil {
		logger.Fatal("Failed to connect to Temporal", zap.Error(err))
	}
	defer tc.Close()
	hm.RegisterChecker(health.NewTemporalChecker(tc))

	a := activities.New(llmClient, searchClient, streams, cfg.Workflow, logger)
	w := worker.New(tc, cfg.Temporal.TaskQueue, worker.Options{})
	w.RegisterWorkflowWithOptions(workflows.AccountPlanWorkflow, workflow.RegisterOptions{Name: workflows.AccountPlanWorkflowName})
	w.RegisterActivityWithOptions(a.ResearchCompany, activity.RegisterOptions{Name: activities.ResearchCompanyActivity})
	w.RegisterActivityWithOptions(a.CritiqueResearch, activity.RegisterOptions{Name: activities.CritiqueResearchActivity})
	w.RegisterActivityWithOptions(a.SynthesizePlan, activity.RegisterOptions{Name: activities.SynthesizePlanActivity})
	w.RegisterActivityWithOptions(a.PublishEvent, activity.RegisterOptions{Name: activities.PublishEventActivity})
	if err := w.Start(); err != nil {
		logger.Fatal("Failed to start Temporal worker", zap.Error(err))
	}
	defer w.Stop()

	// Public API
	classifier := intent.NewClassifier(llmClient, logger)
	runner := httpapi.NewTemporalRunner(tc, cfg.Temporal.TaskQueue)
	chat := httpapi.NewChatHandler(runner, classifier, streams, cfg.PacingDelay(), cfg.Workflow.MinCritiquePasses, logger)

	apiMux := http.NewServeMux()
	chat.RegisterRoutes(apiMux)
	apiSrv := &http.Server{
		Addr:        ":" + strconv.Itoa(cfg.Service.HTTPPort),
		Handler:     withCORS(apiMux),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	go func() {
		logger.Info("API server listening", zap.Int("port", cfg.Service.HTTPPort))
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("API server failed", zap.Error(err))
			stop()
		}
	}()

	hm.Start(ctx)

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("API server shutdown error", zap.Error(err))
	}
	if err := adminSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Admin server shutdown error", zap.Error(err))
	}
	hm.Stop()
}

// withCORS applies a dev-friendly CORS policy; lock down via proxy in prod.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// newZapAdapter bridges zap into Temporal's keyval logger interface.
func newZapAdapter(logger *zap.Logger) *zapAdapter {
	return &zapAdapter{sugar: logger.Sugar()}
}

type zapAdapter struct {
	sugar *zap.SugaredLogger
}

func (z *zapAdapter) Debug(msg string, keyvals ...interface{}) { z.sugar.Debugw(msg, keyvals...) }
func (z *zapAdapter) Info(msg string, keyvals ...interface{})  { z.sugar.Infow(msg, keyvals...) }
func (z *zapAdapter) Warn(msg string, keyvals ...interface{})  { z.sugar.Warnw(msg, keyvals...) }
func (z *zapAdapter) Error(msg string, keyvals ...interface{}) { z.sugar.Errorw(msg, keyvals...) }
