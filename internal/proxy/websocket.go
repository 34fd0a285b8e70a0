package proxy

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/qr-lecture/devhub/internal/config"
	"github.com/qr-lecture/devhub/internal/logging"
	"github.com/qr-lecture/devhub/internal/server"
)

const (
	// writeWait 是写入 close 帧的最长等待时间。
	writeWait = 10 * time.Second

	defaultHandshakeTimeout = 10 * time.Second
)

// 这些请求头随握手透传到上游，其余握手头由 gorilla 自行生成。
var forwardedHandshakeHeaders = []string{
	"Authorization",
	"Cookie",
	"Origin",
	"User-Agent",
	"Sec-WebSocket-Protocol",
}

// WebSocketProxy 把浏览器的 WebSocket 连接与上游连接配对，双向转发帧直到任一侧关闭。
type WebSocketProxy struct {
	dialer   *websocket.Dialer
	upgrader websocket.Upgrader
	logger   *logrus.Logger
}

// NewWebSocketProxy 根据全局超时配置创建 relay。
func NewWebSocketProxy(cfg *config.ServerConfiguration, logger *logrus.Logger) *WebSocketProxy {
	timeout := defaultHandshakeTimeout
	if cfg != nil {
		if configured := cfg.Global.UpstreamTimeout.DurationValue(); configured > 0 && configured < timeout {
			timeout = configured
		}
	}
	return &WebSocketProxy{
		dialer: &websocket.Dialer{
			HandshakeTimeout: timeout,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// 开发服务器只在本机使用，Origin 交给上游判断。
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// ServeWebSocket 实现 server.WebSocketHandler。
func (p *WebSocketProxy) ServeWebSocket(w http.ResponseWriter, r *http.Request, route *server.ProxyRoute) {
	started := time.Now()
	requestID := r.Header.Get("X-Request-ID")
	target := server.UpstreamURL(route.WebSocketURL, r.URL.EscapedPath(), r.URL.RawQuery)
	fields := logging.ProxyFields(route.Rule.Prefix, route.Rule.Target, true, requestID)
	fields["upstream"] = target.String()

	upstream, resp, err := p.dialer.DialContext(r.Context(), target.String(), handshakeHeader(r, route))
	if err != nil {
		if resp != nil {
			fields["upstream_status"] = resp.StatusCode
			resp.Body.Close()
		}
		p.logError(fields, err, "websocket_dial_failed")
		writeJSONError(w, http.StatusBadGateway, "upstream_failed")
		return
	}
	defer upstream.Close()

	var responseHeader http.Header
	if protocol := upstream.Subprotocol(); protocol != "" {
		responseHeader = http.Header{"Sec-Websocket-Protocol": {protocol}}
	}
	client, err := p.upgrader.Upgrade(w, r, responseHeader)
	if err != nil {
		// Upgrade 已经向客户端写出错误响应。
		p.logError(fields, err, "websocket_upgrade_failed")
		return
	}
	defer client.Close()

	errc := make(chan error, 2)
	go relay(upstream, client, errc)
	go relay(client, upstream, errc)
	err = <-errc

	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if err != nil && !isNormalClose(err) {
		p.logError(fields, err, "websocket_relay_failed")
		return
	}
	if p.logger != nil {
		p.logger.WithFields(fields).Info("websocket_closed")
	}
}

// relay 从 src 读取消息写入 dst；src 关闭时把关闭码转发给 dst。
func relay(dst, src *websocket.Conn, errc chan<- error) {
	for {
		messageType, payload, err := src.ReadMessage()
		if err != nil {
			_ = dst.WriteControl(websocket.CloseMessage, closeMessageFor(err), time.Now().Add(writeWait))
			errc <- err
			return
		}
		if err := dst.WriteMessage(messageType, payload); err != nil {
			errc <- err
			return
		}
	}
}

func closeMessageFor(err error) []byte {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && closeErr.Code != websocket.CloseNoStatusReceived {
		return websocket.FormatCloseMessage(closeErr.Code, closeErr.Text)
	}
	return websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
}

func isNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived)
}

func handshakeHeader(r *http.Request, route *server.ProxyRoute) http.Header {
	header := http.Header{}
	for _, key := range forwardedHandshakeHeaders {
		for _, value := range r.Header.Values(key) {
			header.Add(key, value)
		}
	}
	if !route.Rule.ChangeOrigin && r.Host != "" {
		header.Set("Host", r.Host)
	}
	forwardedFor := clientIP(r)
	if prior := r.Header.Get("X-Forwarded-For"); prior != "" && forwardedFor != "" {
		forwardedFor = prior + ", " + forwardedFor
	}
	if forwardedFor != "" {
		header.Set("X-Forwarded-For", forwardedFor)
	}
	return header
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (p *WebSocketProxy) logError(fields logrus.Fields, err error, message string) {
	if p.logger == nil {
		return
	}
	p.logger.WithFields(fields).WithError(err).Error(message)
}

func writeJSONError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}
