package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/qr-lecture/devhub/internal/assets"
	"github.com/qr-lecture/devhub/internal/spa"
)

// ProxyHandler describes the component responsible for forwarding requests
// that match a proxy rule. It allows injecting fake handlers during tests.
type ProxyHandler interface {
	Handle(fiber.Ctx, *ProxyRoute) error
}

// ProxyHandlerFunc adapts a function to the ProxyHandler interface.
type ProxyHandlerFunc func(fiber.Ctx, *ProxyRoute) error

// Handle makes ProxyHandlerFunc satisfy ProxyHandler.
func (f ProxyHandlerFunc) Handle(c fiber.Ctx, route *ProxyRoute) error {
	return f(c, route)
}

// Site is the read-only view of the front-end sources served by the app.
type Site interface {
	Open(urlPath string) (assets.Asset, error)
	RootDocument() assets.Asset
}

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger          *logrus.Logger
	Registry        *ProxyRegistry
	Proxy           ProxyHandler
	Site            Site
	HistoryFallback bool
}

const (
	contextKeyRoute     = "_devhub_route"
	contextKeyRequestID = "_devhub_request_id"
)

// NewApp builds the Fiber application. Requests are resolved in order:
// diagnostics, proxy rules, history fallback, static sources, 404.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("proxy registry is required")
	}
	if opts.Proxy == nil {
		return nil, errors.New("proxy handler is required")
	}
	if opts.Site == nil {
		return nil, errors.New("site is required")
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware(opts))

	app.All("/*", func(c fiber.Ctx) error {
		path := requestPath(c)
		if isDiagnosticsPath(path) {
			return c.Next()
		}
		if route, ok := getRouteFromContext(c); ok {
			return opts.Proxy.Handle(c, route)
		}
		if opts.HistoryFallback && spa.IsNavigation(c.Method(), c.Get(fiber.HeaderAccept), path) {
			return sendAsset(c, opts.Site.RootDocument(), true)
		}
		return serveStatic(c, opts, path)
	})

	return app, nil
}

// requestContextMiddleware 负责生成请求 ID，并按路径前缀查找代理规则。
func requestContextMiddleware(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)

		path := requestPath(c)
		if isDiagnosticsPath(path) {
			return c.Next()
		}
		if route, ok := opts.Registry.Match(path); ok {
			c.Locals(contextKeyRoute, route)
		}
		return c.Next()
	}
}

func serveStatic(c fiber.Ctx, opts AppOptions, path string) error {
	if c.Method() != http.MethodGet && c.Method() != http.MethodHead {
		return c.Status(fiber.StatusMethodNotAllowed).JSON(fiber.Map{"error": "method_not_allowed"})
	}

	asset, err := opts.Site.Open(path)
	switch {
	case err == nil:
		return sendAsset(c, asset, false)
	case errors.Is(err, assets.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
	default:
		opts.Logger.WithError(err).WithFields(logrus.Fields{
			"action":     "static",
			"path":       path,
			"request_id": RequestID(c),
		}).Error("asset_read_failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "asset_read_failed"})
	}
}

func sendAsset(c fiber.Ctx, asset assets.Asset, fallback bool) error {
	c.Set(fiber.HeaderContentType, asset.ContentType)
	c.Set(fiber.HeaderCacheControl, "no-cache")
	if !asset.ModTime.IsZero() {
		c.Set(fiber.HeaderLastModified, asset.ModTime.UTC().Format(http.TimeFormat))
	}
	if fallback {
		c.Set("X-Devhub-Fallback", "true")
	}
	return c.Status(fiber.StatusOK).Send(asset.Body)
}

func requestPath(c fiber.Ctx) string {
	path := string(c.Request().URI().Path())
	if path == "" {
		return "/"
	}
	return path
}

func getRouteFromContext(c fiber.Ctx) (*ProxyRoute, bool) {
	if value := c.Locals(contextKeyRoute); value != nil {
		if route, ok := value.(*ProxyRoute); ok {
			return route, true
		}
	}
	return nil, false
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, "/-/")
}
