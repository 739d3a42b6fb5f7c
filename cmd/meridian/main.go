package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meridian-ehr/meridian-ehr/internal/app"
	"github.com/meridian-ehr/meridian-ehr/internal/assignment"
	"github.com/meridian-ehr/meridian-ehr/internal/audit"
	"github.com/meridian-ehr/meridian-ehr/internal/authz"
	"github.com/meridian-ehr/meridian-ehr/internal/guard"
	"github.com/meridian-ehr/meridian-ehr/internal/observability"
	"github.com/meridian-ehr/meridian-ehr/internal/platform/cache"
	"github.com/meridian-ehr/meridian-ehr/internal/platform/db"
	"github.com/meridian-ehr/meridian-ehr/internal/principal"
	"github.com/meridian-ehr/meridian-ehr/internal/ratelimit"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := observability.NewMetrics()

	recorder := audit.NewRecorder(audit.NewStore(pool), logger, metrics, cfg.AuditWriteTimeout)

	var limiter ratelimit.Limiter
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, using in-process rate limiter", slog.Any("error", err))
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		limiter = ratelimit.NewRedisLimiter(redisClient, cfg.RateLimitRequests, cfg.RateLimitWindow)
	}

	verifier := principal.NewVerifier(cfg.AuthSecret, cfg.AuthIssuer)
	resolver := principal.NewResolver(verifier, principal.NewRepository(pool), logger, cfg.InactivityLimit)

	assignmentStore := assignment.NewStore(pool)
	assignmentService := assignment.NewService(assignmentStore, recorder, assignment.Config{
		EmergencyWindow:  cfg.EmergencyAccessWindow,
		MinJustification: cfg.MinJustificationLength,
	})

	auditService := audit.NewService(audit.NewStore(pool))

	router := app.NewRouter(app.RouterParams{
		Logger: logger,
		Config: cfg,
		Guard: guard.Middleware{
			Logger:       logger,
			Recorder:     recorder,
			ScalarFields: []string{"patientId", "staffId", "staffUsername", "reason", "accessLevel", "justification"},
		},
		RateLimit: ratelimit.Middleware{
			Limiter:  limiter,
			Logger:   logger,
			Recorder: recorder,
		},
		Checkpoints: authz.Checkpoints{
			Logger:    logger,
			Resolver:  resolver,
			Recorder:  recorder,
			Gate:      authz.NewGate(assignmentStore, recorder),
			Decisions: metrics,
		},
		AssignmentHandler: assignment.NewHandler(logger, assignmentService),
		AuditHandler:      audit.NewHandler(logger, auditService),
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
