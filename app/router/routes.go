// Package router provides HTTP routing, middleware configuration, and server setup for the web application
package router

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"os"
	"time"

	"github.com/amirphl/momo-reconciler/app/dto"
	"github.com/amirphl/momo-reconciler/app/handlers"
	"github.com/amirphl/momo-reconciler/app/middleware"
	"github.com/amirphl/momo-reconciler/config"
	"github.com/amirphl/momo-reconciler/docs"
	"github.com/amirphl/momo-reconciler/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/compress"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/helmet"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const healthPath = "/api/v1/health"

// HealthCheck pings one dependency
type HealthCheck func(ctx context.Context) error

// Handlers groups everything the router mounts
type Handlers struct {
	Webhook handlers.SmsWebhookHandlerInterface
	Admin   handlers.SmsAdminHandlerInterface
	Parser  handlers.SmsParserHandlerInterface
	Auth    *middleware.AuthMiddleware
}

// Router interface for HTTP routing
type Router interface {
	SetupRoutes()
	Start(address string) error
	Shutdown(ctx context.Context) error
	GetApp() *fiber.App
}

// FiberRouter implements Router using Fiber v3
type FiberRouter struct {
	app       *fiber.App
	cfg       *config.ProductionConfig
	handlers  Handlers
	checks    map[string]HealthCheck
	accessLog io.Writer
}

// NewFiberRouter creates a new Fiber router. accessLog receives the JSON access log; nil means stdout.
func NewFiberRouter(cfg *config.ProductionConfig, h Handlers, checks map[string]HealthCheck, accessLog io.Writer) Router {
	app := fiber.New(fiber.Config{
		AppName:      "momo-reconciler",
		ServerHeader: "momo-reconciler",
		ErrorHandler: errorHandler,
		BodyLimit:    cfg.Server.BodyLimit,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ProxyHeader:  cfg.Server.ProxyHeader,
		TrustProxy:   len(cfg.Server.TrustedProxies) > 0,
		TrustProxyConfig: fiber.TrustProxyConfig{
			Proxies: cfg.Server.TrustedProxies,
		},
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,
	})

	if accessLog == nil {
		accessLog = os.Stdout
	}

	return &FiberRouter{
		app:       app,
		cfg:       cfg,
		handlers:  h,
		checks:    checks,
		accessLog: accessLog,
	}
}

// SetupRoutes configures all application routes
func (r *FiberRouter) SetupRoutes() {
	log.Println("Setting up routes...")

	r.setupMiddleware()

	if r.cfg.Metrics.Enabled {
		r.app.Get(r.cfg.Metrics.Path, adaptor.HTTPHandler(promhttp.Handler()))
	}

	api := r.app.Group("/api/v1")
	api.Get("/health", r.healthCheck)

	if !r.cfg.Deployment.IsProduction() {
		api.Get("/swagger.json", r.serveSwaggerJSON)
		log.Println("API documentation enabled at /api/v1/swagger.json")
	}

	// The gateway posts from a handful of modems; it gets its own budget
	sms := api.Group("/sms")
	sms.Post("/webhook", r.rateLimiter(r.cfg.Security.WebhookRateLimit, "webhook"), r.handlers.Webhook.Receive)

	view := r.handlers.Auth.RequirePermission(utils.PermissionSMSView)
	attach := r.handlers.Auth.RequirePermission(utils.PermissionSMSAttach)
	parser := r.handlers.Auth.RequirePermission(utils.PermissionSMSParserUpdate)

	admin := api.Group("/admin/sms",
		r.rateLimiter(r.cfg.Security.GlobalRateLimit, "admin"),
		r.handlers.Auth.AdminAuthenticate(),
	)
	admin.Get("/inbound", view, r.handlers.Admin.ListInbound)
	admin.Get("/manual", view, r.handlers.Admin.ListManual)
	admin.Get("/manual/payments", view, r.handlers.Admin.ListManualPayments)
	admin.Get("/manual/:smsId/candidates", view, r.handlers.Admin.Candidates)
	admin.Post("/manual/attach", attach, r.handlers.Admin.ManualAttach)
	admin.Post("/manual/:smsId/retry", attach, r.handlers.Admin.Retry)
	admin.Post("/manual/:smsId/dismiss", attach, r.handlers.Admin.Dismiss)
	admin.Post("/attach", attach, r.handlers.Admin.Attach)
	admin.Get("/queue", view, r.handlers.Admin.QueueOverview)

	admin.Post("/parser/test", parser, r.handlers.Parser.TestParse)
	admin.Get("/parser/prompts", parser, r.handlers.Parser.ListPrompts)
	admin.Get("/parser/prompts/active", parser, r.handlers.Parser.ActivePrompt)
	admin.Post("/parser/prompts", parser, r.handlers.Parser.CreatePrompt)
	admin.Post("/parser/prompts/:id/activate", parser, r.handlers.Parser.ActivatePrompt)

	r.app.Use(r.notFoundHandler)

	log.Println("Routes configured successfully")
}

func (r *FiberRouter) setupMiddleware() {
	// Request ID middleware - must be first
	r.app.Use(requestid.New(requestid.Config{
		Header: "X-Request-ID",
		Generator: func() string {
			return uuid.NewString()
		},
	}))

	// Recover before anything that may panic
	r.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e any) {
			log.Printf(`{"time":"%s","level":"error","request_id":"%s","event":"panic","error":"%v","path":"%s","method":"%s"}`,
				utils.UTCNow().Format(time.RFC3339),
				requestid.FromContext(c),
				e,
				c.Path(),
				c.Method(),
			)
		},
	}))

	if r.cfg.Server.EnableMetrics {
		r.app.Use(middleware.Metrics(r.cfg.Metrics.Path))
	}

	r.app.Use(helmet.New(helmet.Config{
		XSSProtection:             "1; mode=block",
		ContentTypeNosniff:        r.cfg.Security.XContentTypeOptions,
		XFrameOptions:             r.cfg.Security.XFrameOptions,
		HSTSMaxAge:                31536000,
		ContentSecurityPolicy:     r.cfg.Security.CSPPolicy,
		ReferrerPolicy:            r.cfg.Security.ReferrerPolicy,
		CrossOriginEmbedderPolicy: "require-corp",
		CrossOriginOpenerPolicy:   "same-origin",
		CrossOriginResourcePolicy: "same-origin",
		OriginAgentCluster:        "?1",
		XDNSPrefetchControl:       "off",
		XDownloadOptions:          "noopen",
		XPermittedCrossDomain:     "none",
	}))

	r.app.Use(cors.New(cors.Config{
		AllowOrigins:     r.cfg.Security.AllowedOrigins,
		AllowMethods:     r.cfg.Security.AllowedMethods,
		AllowHeaders:     r.cfg.Security.AllowedHeaders,
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: r.cfg.Security.AllowCredentials,
		MaxAge:           r.cfg.Security.CORSMaxAge,
	}))

	if r.cfg.Server.EnableCompression {
		r.app.Use(compress.New(compress.Config{
			Level: compress.Level(r.compressionLevel()),
		}))
	}

	if r.cfg.Logging.EnableAccessLog {
		r.app.Use(logger.New(logger.Config{
			Format:     `{"time":"${time}","request_id":"${respHeader:X-Request-ID}","level":"info","method":"${method}","path":"${path}","ip":"${ip}","user_agent":"${ua}","status":${status},"latency":"${latency}","bytes_in":${bytesReceived},"bytes_out":${bytesSent}}` + "\n",
			TimeFormat: time.RFC3339,
			TimeZone:   "UTC",
			Stream:     r.accessLog,
			Next: func(c fiber.Ctx) bool {
				return c.Path() == healthPath || c.Path() == r.cfg.Metrics.Path
			},
		}))
	}
}

// compressionLevel maps the 0-9 knob onto fiber's three levels
func (r *FiberRouter) compressionLevel() int {
	switch lvl := r.cfg.Server.CompressionLevel; {
	case lvl <= 0:
		return int(compress.LevelDisabled)
	case lvl <= 3:
		return int(compress.LevelBestSpeed)
	case lvl >= 8:
		return int(compress.LevelBestCompression)
	default:
		return int(compress.LevelDefault)
	}
}

func (r *FiberRouter) rateLimiter(max int, scope string) fiber.Handler {
	if max <= 0 {
		return func(c fiber.Ctx) error { return c.Next() }
	}
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: r.cfg.Security.RateLimitWindow,
		KeyGenerator: func(c fiber.Ctx) string {
			return scope + ":" + c.IP()
		},
		LimitReached: func(c fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(dto.APIResponse{
				Success: false,
				Message: "Too many requests. Please try again later.",
				Error: dto.ErrorDetail{
					Code: "RATE_LIMIT_EXCEEDED",
				},
			})
		},
	})
}

// Start begins listening on address
func (r *FiberRouter) Start(address string) error {
	log.Printf("Starting server on %s", address)
	return r.app.Listen(address, fiber.ListenConfig{DisableStartupMessage: true})
}

// Shutdown stops accepting connections and waits for in-flight requests
func (r *FiberRouter) Shutdown(ctx context.Context) error {
	return r.app.ShutdownWithContext(ctx)
}

// GetApp returns the underlying fiber app
func (r *FiberRouter) GetApp() *fiber.App {
	return r.app
}

// healthCheck pings every dependency; any failure reports 503
func (r *FiberRouter) healthCheck(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	status := fiber.StatusOK
	components := make(fiber.Map, len(r.checks))
	for name, check := range r.checks {
		if err := check(ctx); err != nil {
			status = fiber.StatusServiceUnavailable
			components[name] = err.Error()
			continue
		}
		components[name] = "ok"
	}

	message := "Service is healthy"
	if status != fiber.StatusOK {
		message = "Service is degraded"
	}
	return c.Status(status).JSON(dto.APIResponse{
		Success: status == fiber.StatusOK,
		Message: message,
		Data: fiber.Map{
			"timestamp":  utils.ToISO(utils.UTCNow()),
			"version":    r.cfg.Deployment.Version,
			"commit":     r.cfg.Deployment.CommitHash,
			"service":    "momo-reconciler",
			"components": components,
		},
	})
}

func (r *FiberRouter) serveSwaggerJSON(c fiber.Ctx) error {
	c.Set("Content-Type", "application/json")
	return c.SendString(docs.SwaggerInfo.ReadDoc())
}

func (r *FiberRouter) notFoundHandler(c fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{
		Success: false,
		Message: "The requested resource was not found",
		Error: dto.ErrorDetail{
			Code: "NOT_FOUND",
			Details: fiber.Map{
				"path":       c.Path(),
				"method":     c.Method(),
				"request_id": requestid.FromContext(c),
			},
		},
	})
}

func errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "An internal server error occurred"
	errCode := "INTERNAL_ERROR"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		if code < fiber.StatusInternalServerError {
			message = e.Message
			errCode = "REQUEST_ERROR"
		}
	}

	log.Printf("router: error %d on %s %s: %v", code, c.Method(), c.Path(), err)

	return c.Status(code).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code: errCode,
			Details: fiber.Map{
				"timestamp":  utils.UTCNow().Unix(),
				"request_id": requestid.FromContext(c),
			},
		},
	})
}
