package proxy

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/qr-lecture/devhub/internal/logging"
	"github.com/qr-lecture/devhub/internal/server"
)

// Forwarder 包装真正的 ProxyHandler：拦截不该出现在 Fiber 链路上的升级请求，
// 并把 handler panic 转成 500 JSON 响应。
type Forwarder struct {
	handler server.ProxyHandler
	logger  *logrus.Logger
}

// NewForwarder 创建 Forwarder，handler 为空时所有请求返回 500。
func NewForwarder(handler server.ProxyHandler, logger *logrus.Logger) *Forwarder {
	return &Forwarder{
		handler: handler,
		logger:  logger,
	}
}

// Handle 实现 server.ProxyHandler。
func (f *Forwarder) Handle(c fiber.Ctx, route *server.ProxyRoute) error {
	requestID := server.RequestID(c)
	if isUpgradeRequest(c) {
		return f.respondUpgrade(c, route, requestID)
	}
	if f.handler == nil {
		f.logProxyError(route, "proxy_handler_missing", nil, requestID)
		setRequestIDHeader(c, requestID)
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"error": "proxy_handler_missing"})
	}
	return f.invokeHandler(c, route, requestID)
}

// respondUpgrade 处理到达 Fiber 的 WebSocket 升级请求。允许 WebSocket 的规则
// 由前置 net/http handler 接管，能走到这里说明规则未开启 WebSocket。
func (f *Forwarder) respondUpgrade(c fiber.Ctx, route *server.ProxyRoute, requestID string) error {
	code := "websocket_not_proxied"
	status := fiber.StatusBadRequest
	if route != nil && route.Rule.WebSocket {
		code = "websocket_relay_unavailable"
		status = fiber.StatusNotImplemented
	}
	f.logProxyError(route, code, nil, requestID)
	setRequestIDHeader(c, requestID)
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func (f *Forwarder) invokeHandler(c fiber.Ctx, route *server.ProxyRoute, requestID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = f.respondHandlerPanic(c, route, r, requestID)
		}
	}()
	return f.handler.Handle(c, route)
}

func (f *Forwarder) respondHandlerPanic(c fiber.Ctx, route *server.ProxyRoute, recovered interface{}, requestID string) error {
	f.logProxyError(route, "proxy_handler_panic", fmt.Errorf("panic: %v", recovered), requestID)
	setRequestIDHeader(c, requestID)
	return c.Status(fiber.StatusInternalServerError).
		JSON(fiber.Map{"error": "proxy_handler_panic"})
}

func setRequestIDHeader(c fiber.Ctx, requestID string) {
	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
}

func (f *Forwarder) logProxyError(route *server.ProxyRoute, code string, err error, requestID string) {
	if f.logger == nil {
		return
	}
	fields := routeFields(route, requestID)
	fields["error"] = code
	if err != nil {
		f.logger.WithFields(fields).Error(err.Error())
		return
	}
	f.logger.WithFields(fields).Error("proxy request rejected")
}

func routeFields(route *server.ProxyRoute, requestID string) logrus.Fields {
	if route == nil {
		return logging.ProxyFields("", "", false, requestID)
	}
	return logging.ProxyFields(route.Rule.Prefix, route.Rule.Target, route.Rule.WebSocket, requestID)
}

func isUpgradeRequest(c fiber.Ctx) bool {
	if !strings.EqualFold(strings.TrimSpace(c.Get(fiber.HeaderUpgrade)), "websocket") {
		return false
	}
	for _, token := range strings.Split(c.Get(fiber.HeaderConnection), ",") {
		if strings.EqualFold(strings.TrimSpace(token), "upgrade") {
			return true
		}
	}
	return false
}
