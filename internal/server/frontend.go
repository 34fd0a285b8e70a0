package server

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/qr-lecture/devhub/internal/logging"
)

// WebSocketHandler relays an upgraded connection for a WebSocket proxy rule.
// fasthttp 无法在 Fiber handler 内完成 hijack，所以升级请求在 net/http 层处理。
type WebSocketHandler interface {
	ServeWebSocket(w http.ResponseWriter, r *http.Request, route *ProxyRoute)
}

// FrontendOptions 描述监听地址上的前置 handler 所需依赖。
type FrontendOptions struct {
	App       *fiber.App
	Registry  *ProxyRegistry
	WebSocket WebSocketHandler
	Logger    *logrus.Logger
}

// NewFrontend 返回绑定到 Host:Port 的 http.Handler：命中 WebSocket 规则的升级请求交给
// WebSocketHandler，其余请求（包括未开启 WebSocket 的规则上的升级）进入 Fiber 应用。
func NewFrontend(opts FrontendOptions) (http.Handler, error) {
	if opts.App == nil {
		return nil, errors.New("fiber app is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("proxy registry is required")
	}
	if opts.WebSocket == nil {
		return nil, errors.New("websocket handler is required")
	}

	fallback := adaptor.FiberApp(opts.App)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if websocket.IsWebSocketUpgrade(r) {
			if route, ok := opts.Registry.Match(r.URL.Path); ok && route.Rule.WebSocket {
				reqID := r.Header.Get("X-Request-ID")
				if reqID == "" {
					reqID = uuid.NewString()
					r.Header.Set("X-Request-ID", reqID)
				}
				w.Header().Set("X-Request-ID", reqID)
				if opts.Logger != nil {
					opts.Logger.WithFields(logging.ProxyFields(route.Rule.Prefix, route.Rule.Target, true, reqID)).
						Debug("websocket_upgrade")
				}
				opts.WebSocket.ServeWebSocket(w, r, route)
				return
			}
		}
		fallback(w, r)
	}), nil
}
