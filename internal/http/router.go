package http

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"scout/internal/budget"
	"scout/internal/config"
	"scout/internal/fetch"
	"scout/internal/llm"
	"scout/internal/metrics"
	"scout/internal/model"
	"scout/internal/orchestrator"
	"scout/internal/search"
	"scout/internal/services"
)

// researchRunner executes one research request. The production runner
// wires the full pipeline per request; tests substitute a fake.
type researchRunner func(ctx context.Context, q model.Query, emit orchestrator.Emitter) (*orchestrator.Outcome, error)

type Server struct {
	app    *fiber.App
	config *config.Config
	logger *slog.Logger
}

func NewServer(cfg *config.Config, logger *slog.Logger) *Server {
	return newServer(cfg, logger, pipelineRunner(cfg, logger))
}

func newServer(cfg *config.Config, logger *slog.Logger, run researchRunner) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	var verifier tokenVerifier
	if cfg.Auth.OIDC.Issuer != "" {
		verifier = newOIDCVerifier(cfg.Auth.OIDC)
	}

	// Inject config, logger, and the research runner for handlers
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("config", cfg)
		c.Locals("logger", logger)
		c.Locals("research", run)
		if verifier != nil {
			c.Locals("verifier", verifier)
		}
		return c.Next()
	})

	app.Use(requestMiddleware(logger))
	app.Use(corsMiddleware)

	// Redis client for rate limiting
	var rdb *redis.Client
	if cfg.RateLimit.Enabled && cfg.Redis.URL != "" {
		if opt, err := redis.ParseURL(cfg.Redis.URL); err == nil {
			rdb = redis.NewClient(opt)
		}
	}

	app.Get("/healthz", func(c *fiber.Ctx) error {
		if c.Query("deep") != "true" {
			return c.JSON(fiber.Map{"status": "ok"})
		}

		ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
		defer cancel()

		redisStatus := "disabled"
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				redisStatus = "error"
			} else {
				redisStatus = "ok"
			}
		}

		status := "ok"
		if redisStatus == "error" {
			status = "error"
		}
		return c.JSON(fiber.Map{"status": status, "redis": redisStatus})
	})

	// Prometheus-style metrics endpoint
	app.Get("/metrics", func(c *fiber.Ctx) error {
		c.Type("text/plain")
		return c.SendString(metrics.Export())
	})

	rateMw := rateLimitMiddleware(cfg, rdb)

	// A single research endpoint; every non-POST method other than the
	// CORS preflight is rejected explicitly.
	app.All("/v1/research", rateMw, func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost {
			return c.Status(fiber.StatusMethodNotAllowed).JSON(ErrorResponse{
				Success:   false,
				ErrorType: ErrTypeMethodNotAllowed,
				Error:     "Method not allowed, use POST",
			})
		}
		return researchHandler(c)
	})

	return &Server{app: app, config: cfg, logger: logger}
}

func (s *Server) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	return s.app.Listen(addr)
}

// pipelineRunner builds the production research pipeline. Everything
// is constructed per request: the Budget Governor and digest list are
// single-request state by design.
func pipelineRunner(cfg *config.Config, logger *slog.Logger) researchRunner {
	return func(ctx context.Context, q model.Query, emit orchestrator.Emitter) (*orchestrator.Outcome, error) {
		var budgetOpts []budget.Option
		if cfg.Budget.MaxContentMB > 0 {
			budgetOpts = append(budgetOpts, budget.WithMaxContentBytes(cfg.Budget.MaxContentMB*1024*1024))
		}
		if cfg.Budget.MaxTokens > 0 {
			budgetOpts = append(budgetOpts, budget.WithMaxTokens(cfg.Budget.MaxTokens))
		}
		if cfg.Budget.MaxPerPageChars > 0 {
			budgetOpts = append(budgetOpts, budget.WithMaxPerPageChars(cfg.Budget.MaxPerPageChars))
		}
		governor := budget.NewGovernor(budgetOpts...)

		var fetchOpts []fetch.Option
		if cfg.Scraper.UserAgent != "" {
			fetchOpts = append(fetchOpts, fetch.WithUserAgent(cfg.Scraper.UserAgent))
		}
		fetchOpts = append(fetchOpts, fetch.WithRobots(cfg.Scraper.RespectRobotsTxt))
		fetcher := fetch.New(fetchOpts...)

		provider := search.NewDuckDuckGoProvider(fetcher, cfg.Search.BaseURL,
			time.Duration(cfg.Search.TimeoutSec)*time.Second)

		chat := llm.NewClient(llm.WithTimeout(time.Duration(cfg.LLM.TimeoutSec) * time.Second))
		planner := llm.NewService(chat, cfg.LLM.CheapModel)

		searchSvc := services.NewSearchService(provider, fetcher, governor, planner, logger)
		return orchestrator.New(planner, searchSvc, logger).Run(ctx, q, emit)
	}
}
