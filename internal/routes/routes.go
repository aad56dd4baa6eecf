package routes

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/onlyfriends/onlyfriends/internal/auth"
	"github.com/onlyfriends/onlyfriends/internal/config"
	"github.com/onlyfriends/onlyfriends/internal/identity"
	"github.com/onlyfriends/onlyfriends/internal/logging"
	"github.com/onlyfriends/onlyfriends/internal/middleware"
	"github.com/onlyfriends/onlyfriends/internal/notification"
	"github.com/onlyfriends/onlyfriends/internal/password"
	"github.com/onlyfriends/onlyfriends/internal/token"
	"github.com/onlyfriends/onlyfriends/internal/verification"
)

// Deps aggregates shared dependencies required to wire routes. Gateway and
// Notifier are optional overrides; by default they are derived from Cfg.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Logger   *slog.Logger
	Gateway  verification.Gateway
	Notifier notification.Notifier
}

// ErrorHandler renders every error as {"detail": message}.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := http.StatusInternalServerError
		msg := "internal server error"
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			msg = fe.Message
		} else if logger != nil {
			logger.Error("unhandled error", slog.String("path", c.Path()), slog.Any("error", err))
		}
		return c.Status(code).JSON(fiber.Map{"detail": msg})
	}
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though config also checks.
	if !d.Cfg.IsDevelopment() && d.DB == nil {
		return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
	}
	if d.Cache == nil {
		return errors.New("redis is required")
	}
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))
	app.Use(cors.New(cors.Config{
		AllowOrigins: d.Cfg.Origins(),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, Idempotency-Key, X-Request-ID",
		AllowMethods: "GET,POST,PUT,OPTIONS",
	}))

	RegisterHealthRoutes(app, d)

	var users identity.Repository
	if d.DB != nil {
		users = identity.NewPostgresRepository(d.DB)
	} else {
		d.Logger.Warn("DATABASE_URL not set, using in-memory user store")
		users = identity.NewMemoryRepository()
	}

	notifier := d.Notifier
	if notifier == nil {
		notifier = notification.NewLoggerNotifier(d.Logger)
	}
	gateway, err := newGateway(d, notifier)
	if err != nil {
		return err
	}
	codec, err := token.NewCodec(d.Cfg.Token())
	if err != nil {
		return fmt.Errorf("token codec: %w", err)
	}
	cost := d.Cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	authSvc, err := auth.NewService(auth.Deps{
		Users:    users,
		Hasher:   password.NewHasher(cost),
		Tokens:   codec,
		Gateway:  gateway,
		Notifier: notifier,
		Logger:   d.Logger,
	})
	if err != nil {
		return err
	}
	identitySvc := identity.NewService(users, d.Logger)

	authHandler := auth.NewHandler(authSvc)
	identityHandler := identity.NewHandler(identitySvc)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	limit := func(scope string) fiber.Handler {
		return middleware.PhoneRateLimit(d.Cache, scope, d.Cfg.RateLimitPerMinute, d.Logger)
	}
	requireAuth := middleware.BearerAuth(authSvc)
	idempotent := middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)

	RegisterAuthRoutes(api, authHandler, identityHandler, limit, requireAuth, idempotent)
	RegisterUserRoutes(api.Group("/users", requireAuth), identityHandler)

	return nil
}

// newGateway picks Twilio Verify when configured and the Redis-backed
// development provider otherwise.
func newGateway(d Deps, notifier notification.Notifier) (verification.Gateway, error) {
	if d.Gateway != nil {
		return d.Gateway, nil
	}
	if d.Cfg.TwilioConfigured() {
		gw, err := verification.NewTwilioGateway(d.Cfg.Twilio(), d.Logger)
		if err != nil {
			return nil, fmt.Errorf("twilio verify: %w", err)
		}
		return gw, nil
	}
	if !d.Cfg.IsDevelopment() {
		return nil, fmt.Errorf("twilio verify is required when APP_ENV=%s", d.Cfg.AppEnv)
	}
	d.Logger.Warn("twilio verify not configured, codes are delivered to the log")
	gw, err := verification.NewDevGateway(d.Cache, notifier, d.Cfg.DevVerificationTTL, d.Logger)
	if err != nil {
		return nil, err
	}
	return gw, nil
}
