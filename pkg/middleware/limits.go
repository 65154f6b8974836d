package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	apperrors "github.com/BytebleCode/Investment-Platform/pkg/errors"
)

type RateLimitConfig struct {
	Max      int
	Duration time.Duration
}

// RateLimiter caps requests per client IP over a sliding window. A Max of
// zero or less disables it.
func RateLimiter(cfg RateLimitConfig) fiber.Handler {
	if cfg.Max <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	if cfg.Duration <= 0 {
		cfg.Duration = time.Minute
	}

	return limiter.New(limiter.Config{
		Max:               cfg.Max,
		Expiration:        cfg.Duration,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			retry := strconv.Itoa(int(cfg.Duration.Seconds()))
			return apperrors.ErrRateLimited.WithDetails("retry after " + retry + "s")
		},
	})
}

type CORSConfig struct {
	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	AllowCredentials bool
	MaxAge           int
}

// CORS allows every origin unless AllowOrigins is set. Credentials are only
// honoured with an explicit origin list.
func CORS(cfg CORSConfig) fiber.Handler {
	origins := "*"
	if len(cfg.AllowOrigins) > 0 {
		origins = strings.Join(cfg.AllowOrigins, ",")
	}

	methods := "GET,POST,PUT,PATCH,DELETE,OPTIONS"
	if len(cfg.AllowMethods) > 0 {
		methods = strings.Join(cfg.AllowMethods, ",")
	}

	headers := "Origin,Content-Type,Accept,X-Request-ID,traceparent"
	if len(cfg.AllowHeaders) > 0 {
		headers = strings.Join(cfg.AllowHeaders, ",")
	}

	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     methods,
		AllowHeaders:     headers,
		AllowCredentials: cfg.AllowCredentials && origins != "*",
		ExposeHeaders:    "X-Request-ID",
		MaxAge:           cfg.MaxAge,
	})
}
