package server

import (
	"errors"
	"fmt"
	"net/url"
	"sort"

	"github.com/qr-lecture/devhub/internal/config"
)

// ProxyRoute 将代理规则与预先解析好的上游地址聚合在一起，供路由/代理层直接复用。
type ProxyRoute struct {
	// Rule 是配置中声明的规则副本。
	Rule config.ProxyRule
	// HTTPURL 是普通请求使用的上游（ws/wss 映射为 http/https）。
	HTTPURL *url.URL
	// WebSocketURL 是升级请求使用的上游（http/https 映射为 ws/wss）。
	WebSocketURL *url.URL
}

// ProxyRegistry 提供路径前缀到 ProxyRoute 的查询能力，最长前缀优先。
type ProxyRegistry struct {
	ordered  []*ProxyRoute
	byLength []*ProxyRoute
}

// NewProxyRegistry 根据配置构建代理路由表。调用方应在启动阶段创建一次并复用。
func NewProxyRegistry(cfg *config.ServerConfiguration) (*ProxyRegistry, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	registry := &ProxyRegistry{}
	seen := make(map[string]struct{}, len(cfg.Proxy))
	for _, rule := range cfg.Proxy {
		if _, exists := seen[rule.Prefix]; exists {
			return nil, fmt.Errorf("duplicate proxy prefix %s", rule.Prefix)
		}
		seen[rule.Prefix] = struct{}{}

		route, err := buildProxyRoute(rule)
		if err != nil {
			return nil, err
		}
		registry.ordered = append(registry.ordered, route)
	}

	registry.byLength = append([]*ProxyRoute(nil), registry.ordered...)
	sort.SliceStable(registry.byLength, func(i, j int) bool {
		return len(registry.byLength[i].Rule.Prefix) > len(registry.byLength[j].Rule.Prefix)
	})
	return registry, nil
}

// Match 返回路径命中的最长前缀规则。
func (r *ProxyRegistry) Match(path string) (*ProxyRoute, bool) {
	if r == nil {
		return nil, false
	}
	for _, route := range r.byLength {
		if route.Rule.Matches(path) {
			return route, true
		}
	}
	return nil, false
}

// List 返回按声明顺序排列的 ProxyRoute 副本，用于诊断输出。
func (r *ProxyRegistry) List() []ProxyRoute {
	if r == nil || len(r.ordered) == 0 {
		return nil
	}
	result := make([]ProxyRoute, len(r.ordered))
	for i, route := range r.ordered {
		result[i] = *route
	}
	return result
}

func buildProxyRoute(rule config.ProxyRule) (*ProxyRoute, error) {
	target, err := url.Parse(rule.Target)
	if err != nil {
		return nil, fmt.Errorf("invalid target for %s: %w", rule.Prefix, err)
	}
	if target.Host == "" {
		return nil, fmt.Errorf("target for %s has no host", rule.Prefix)
	}

	httpURL := *target
	wsURL := *target
	switch target.Scheme {
	case "ws":
		httpURL.Scheme = "http"
	case "wss":
		httpURL.Scheme = "https"
	case "http":
		wsURL.Scheme = "ws"
	case "https":
		wsURL.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported target scheme %q for %s", target.Scheme, rule.Prefix)
	}

	return &ProxyRoute{
		Rule:         rule,
		HTTPURL:      &httpURL,
		WebSocketURL: &wsURL,
	}, nil
}

// UpstreamURL 拼接上游地址：rawPath 为请求行中的转义路径，与查询串一起原样保留。
func UpstreamURL(base *url.URL, rawPath, rawQuery string) *url.URL {
	u := *base
	u.Path = rawPath
	u.RawPath = ""
	if decoded, err := url.PathUnescape(rawPath); err == nil && decoded != rawPath {
		u.Path = decoded
		u.RawPath = rawPath
	}
	u.RawQuery = rawQuery
	return &u
}
