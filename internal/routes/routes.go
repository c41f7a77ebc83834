package routes

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/ledgerbook/ledgerbook/internal/config"
	"github.com/ledgerbook/ledgerbook/internal/ledger"
	"github.com/ledgerbook/ledgerbook/internal/middleware"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	// Health and metrics
	RegisterHealthRoutes(app, d)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Repository and service
	var repo ledger.Repository
	if d.DB != nil {
		repo = ledger.NewPostgresRepository(d.DB)
	} else {
		repo = ledger.NewMemoryRepository()
	}
	service, err := ledger.NewService(repo, d.Cfg.BcryptCost, d.Cfg.StoreTimeout)
	if err != nil {
		return err
	}
	handler := ledger.NewHandler(service)

	app.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.GetRequestID(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	app.Post("/register", handler.Register)
	app.Post("/login", handler.Login)
	app.Post("/deposit", handler.Deposit)
	app.Post("/withdraw", handler.Withdraw)
	app.Post("/balance", handler.Balance)

	// The account listing leaks every balance, so it only exists when an admin
	// token is configured and the caller presents it.
	if d.Cfg.AdminToken != "" {
		app.Get("/view_users", adminGate(d.Cfg.AdminToken), handler.ListAccounts)
	}

	return nil
}

// adminGate allows the request through only with a matching bearer token.
func adminGate(token string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		presented := strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			return fiber.NewError(http.StatusUnauthorized, "admin token required")
		}
		return c.Next()
	}
}
