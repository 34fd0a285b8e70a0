// Package spa 实现 history API fallback：未命中其他规则的页面导航请求统一返回根文档，
// 由前端路由接管。
package spa

import (
	"net/http"
	"path"
	"strings"
)

// IsNavigation 判断请求是否是浏览器页面导航：GET/HEAD、Accept 接受 HTML，
// 且最后一段路径不带扩展名（带点号的请求视为静态资源）。
func IsNavigation(method, accept, urlPath string) bool {
	if method != http.MethodGet && method != http.MethodHead {
		return false
	}
	if !acceptsHTML(accept) {
		return false
	}
	return !hasDot(urlPath)
}

func acceptsHTML(accept string) bool {
	if accept == "" {
		return false
	}
	for _, part := range strings.Split(accept, ",") {
		mediaType := strings.TrimSpace(part)
		if idx := strings.IndexByte(mediaType, ';'); idx >= 0 {
			mediaType = strings.TrimSpace(mediaType[:idx])
		}
		switch strings.ToLower(mediaType) {
		case "text/html", "*/*":
			return true
		}
	}
	return false
}

func hasDot(urlPath string) bool {
	return strings.Contains(path.Base(urlPath), ".")
}
