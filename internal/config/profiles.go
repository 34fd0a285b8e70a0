package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/qr-lecture/devhub/internal/plugin/svelte"
)

// 三份 vite 配置变体分别对应 proxy/history/define profile，default 将三者合并。
const (
	ProfileDefault = "default"
	ProfileProxy   = "proxy"
	ProfileHistory = "history"
	ProfileDefine  = "define"
)

const (
	DefaultPort    = 5173
	DefaultOutDir  = "dist"
	DefaultRoot    = "."
	APIURLEnv      = "VITE_API_URL"
	APIURLSymbol   = "import.meta.env.VITE_API_URL"
	APIURLFallback = "https://qr-lecture-platform-production.up.railway.app"

	upstreamHTTP = "http://localhost:8080"
	upstreamWS   = "ws://localhost:8080"
)

var profiles = map[string]func() Declaration{
	ProfileDefault: defaultProfile,
	ProfileProxy:   proxyProfile,
	ProfileHistory: historyProfile,
	ProfileDefine:  defineProfile,
}

// Profile 返回内置 profile 的声明副本，调用方可自由修改。
func Profile(name string) (Declaration, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = ProfileDefault
	}
	build, ok := profiles[key]
	if !ok {
		return Declaration{}, fmt.Errorf("未知 profile: %s（可选 %s）", name, strings.Join(ProfileNames(), "|"))
	}
	return build(), nil
}

// ProfileNames 返回排序后的 profile 名称。
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func baseDeclaration() Declaration {
	return Declaration{
		Global: GlobalConfig{
			LogLevel:        "info",
			LogMaxSize:      100,
			LogMaxBackups:   10,
			LogCompress:     true,
			UpstreamTimeout: Duration(30 * time.Second),
		},
		Plugins: []string{svelte.Key},
		Root:    DefaultRoot,
	}
}

func lectureProxyRules() []ProxyRule {
	return []ProxyRule{
		{Prefix: "/create-session", Target: upstreamHTTP},
		{Prefix: "/ask", Target: upstreamHTTP},
		{Prefix: "/ws", Target: upstreamWS, WebSocket: true},
	}
}

func apiURLDefine() []DefineConfig {
	return []DefineConfig{
		{Symbol: APIURLSymbol, Env: APIURLEnv, Default: APIURLFallback},
	}
}

func proxyProfile() Declaration {
	decl := baseDeclaration()
	decl.Proxy = lectureProxyRules()
	return decl
}

func historyProfile() Declaration {
	decl := baseDeclaration()
	decl.Host = HostBinding{All: true}
	decl.Port = DefaultPort
	decl.HistoryFallback = true
	return decl
}

func defineProfile() Declaration {
	decl := baseDeclaration()
	decl.OutDir = DefaultOutDir
	decl.Define = apiURLDefine()
	return decl
}

func defaultProfile() Declaration {
	decl := baseDeclaration()
	decl.Host = HostBinding{All: true}
	decl.Port = DefaultPort
	decl.OutDir = DefaultOutDir
	decl.HistoryFallback = true
	decl.Proxy = lectureProxyRules()
	decl.Define = apiURLDefine()
	return decl
}
