// Package app assembles the HTTP application and its storage.
package app

import (
	"fmt"
	"time"

	"katalog/internal/authz"
	"katalog/internal/handlers"
	"katalog/internal/middleware"
	"katalog/internal/models"
	"katalog/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Deps are the collaborators the HTTP application is built from.
type Deps struct {
	Products    services.Products
	Auth        *services.AuthService
	Authorizer  authz.Authorizer
	Logger      *zap.Logger
	PageSize    int
	MaxPageSize int

	// RateLimitMax requests per RateLimitWindow per client IP. Zero disables
	// the limiter.
	RateLimitMax    int
	RateLimitWindow time.Duration

	// Health reports the state of optional backends on /health.
	Health map[string]func() string
}

// NewApp builds the fiber application with middleware and all routes.
func NewApp(deps Deps) *fiber.App {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		AppName: "katalog",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if fe, ok := err.(*fiber.Error); ok {
				code = fe.Code
			}
			if code >= fiber.StatusInternalServerError {
				logger.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
			}
			return c.Status(code).JSON(fiber.Map{"message": err.Error()})
		},
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	if deps.RateLimitMax > 0 {
		app.Use(limiter.New(limiter.Config{
			Max:        deps.RateLimitMax,
			Expiration: deps.RateLimitWindow,
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"message": "Too many requests. Try again later.",
				})
			},
		}))
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		body := fiber.Map{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		}
		for name, check := range deps.Health {
			body[name] = check()
		}
		return c.JSON(body)
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	apiV1 := app.Group("/api/v1", middleware.Authenticate(deps.Auth, logger))

	handlers.NewAuthHandler(deps.Auth, logger).RegisterRoutes(apiV1)
	handlers.NewProductHandler(deps.Products, deps.Authorizer, handlers.ProductHandlerConfig{
		PageSize:    deps.PageSize,
		MaxPageSize: deps.MaxPageSize,
	}, logger).RegisterRoutes(apiV1)

	return app
}

// OpenDatabase connects to sqlite or postgres and migrates the schema.
func OpenDatabase(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", driver, err)
	}

	if driver == "sqlite" {
		// sqlite allows one writer at a time.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sqlite handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&models.Product{}, &models.User{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	return db, nil
}
