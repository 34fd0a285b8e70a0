package proxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/qr-lecture/devhub/internal/logging"
	"github.com/qr-lecture/devhub/internal/server"
)

// Handler 负责把命中代理规则的普通 HTTP 请求转发到上游，并把响应流式写回。
// 路径与查询串保持原样，不做改写。
type Handler struct {
	client *http.Client
	logger *logrus.Logger
}

// NewHandler constructs a proxy handler with shared HTTP client/logger.
func NewHandler(client *http.Client, logger *logrus.Logger) *Handler {
	return &Handler{
		client: client,
		logger: logger,
	}
}

// Handle 实现 server.ProxyHandler：构造上游请求、执行并回写响应，失败时返回 502。
func (h *Handler) Handle(c fiber.Ctx, route *server.ProxyRoute) error {
	started := time.Now()
	requestID := server.RequestID(c)

	upstreamURL := resolveUpstreamURL(route, c)
	req, err := h.buildUpstreamRequest(c, upstreamURL, route)
	if err != nil {
		h.logResult(route, upstreamURL.String(), requestID, 0, started, err)
		return h.writeError(c, fiber.StatusBadGateway, "upstream_failed")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		h.logResult(route, upstreamURL.String(), requestID, 0, started, err)
		return h.writeError(c, fiber.StatusBadGateway, "upstream_failed")
	}
	defer resp.Body.Close()

	return h.consumeUpstream(c, route, resp, upstreamURL.String(), requestID, started)
}

func (h *Handler) consumeUpstream(
	c fiber.Ctx,
	route *server.ProxyRoute,
	resp *http.Response,
	upstreamURL string,
	requestID string,
	started time.Time,
) error {
	copyResponseHeaders(c, resp.Header)
	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
	c.Status(resp.StatusCode)

	if c.Method() == http.MethodHead {
		h.logResult(route, upstreamURL, requestID, resp.StatusCode, started, nil)
		return nil
	}

	_, err := io.Copy(c.Response().BodyWriter(), resp.Body)
	h.logResult(route, upstreamURL, requestID, resp.StatusCode, started, err)
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, fmt.Sprintf("proxy stream failed: %v", err))
	}
	return nil
}

func (h *Handler) buildUpstreamRequest(c fiber.Ctx, upstream *url.URL, route *server.ProxyRoute) (*http.Request, error) {
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	req, err := http.NewRequestWithContext(ctx, c.Method(), upstream.String(), bytesReader(c.Body()))
	if err != nil {
		return nil, err
	}

	server.CopyHeaders(req.Header, fiberHeadersAsHTTP(c))
	req.Header.Del("Host")
	req.Host = c.Host()
	if route.Rule.ChangeOrigin || req.Host == "" {
		req.Host = upstream.Host
	}

	req.Header.Set("X-Forwarded-Host", c.Host())
	if ip := c.IP(); ip != "" {
		if prior := req.Header.Get("X-Forwarded-For"); prior != "" {
			req.Header.Set("X-Forwarded-For", prior+", "+ip)
		} else {
			req.Header.Set("X-Forwarded-For", ip)
		}
	}
	req.Header.Set("X-Forwarded-Proto", c.Scheme())

	return req, nil
}

func (h *Handler) writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func (h *Handler) logResult(
	route *server.ProxyRoute,
	upstream string,
	requestID string,
	status int,
	started time.Time,
	err error,
) {
	if h.logger == nil {
		return
	}
	fields := logging.ProxyFields(route.Rule.Prefix, route.Rule.Target, false, requestID)
	fields["upstream"] = upstream
	fields["upstream_status"] = status
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Error("proxy_failed")
		return
	}
	h.logger.WithFields(fields).Info("proxy_complete")
}

// resolveUpstreamURL 使用请求行中的原始路径拼接上游地址，
// 不解码 %2F，也不合并 "//" 或消解 ".."；解码后的路径只用于规则匹配。
func resolveUpstreamURL(route *server.ProxyRoute, c fiber.Ctx) *url.URL {
	uri := c.Request().URI()
	return server.UpstreamURL(route.HTTPURL, rawRequestPath(c), string(uri.QueryString()))
}

func rawRequestPath(c fiber.Ctx) string {
	if raw := string(c.Request().URI().PathOriginal()); raw != "" {
		return raw
	}
	return requestPath(c)
}

func requestPath(c fiber.Ctx) string {
	if c == nil {
		return "/"
	}
	uri := c.Request().URI()
	if uri == nil {
		return "/"
	}
	pathVal := string(uri.Path())
	if pathVal == "" {
		return "/"
	}
	return pathVal
}

func bytesReader(b []byte) io.Reader {
	if len(b) == 0 {
		return http.NoBody
	}
	return bytes.NewReader(b)
}

func fiberHeadersAsHTTP(c fiber.Ctx) http.Header {
	header := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		header.Add(string(key), string(value))
	})
	return header
}

// copyResponseHeaders 逐值追加，保留多个 Set-Cookie；长度由 fasthttp 按实际 body 计算。
func copyResponseHeaders(c fiber.Ctx, headers http.Header) {
	connection := headers.Values("Connection")
	for key, values := range headers {
		if server.IsHopByHopHeader(key, connection...) || http.CanonicalHeaderKey(key) == "Content-Length" {
			continue
		}
		if http.CanonicalHeaderKey(key) == "Content-Type" && len(values) > 0 {
			c.Set(fiber.HeaderContentType, values[0])
			continue
		}
		for _, value := range values {
			c.Response().Header.Add(key, value)
		}
	}
}
