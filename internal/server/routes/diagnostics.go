package routes

import (
	"sort"

	"github.com/gofiber/fiber/v3"

	"github.com/qr-lecture/devhub/internal/config"
	"github.com/qr-lecture/devhub/internal/plugin"
	"github.com/qr-lecture/devhub/internal/server"
)

// RegisterDiagnosticsRoutes 暴露 /-/config 与 /-/plugins 诊断接口，便于排查当前生效的配置。
func RegisterDiagnosticsRoutes(app *fiber.App, cfg *config.ServerConfiguration, registry *server.ProxyRegistry) {
	if app == nil || cfg == nil {
		return
	}

	app.Get("/-/config", func(c fiber.Ctx) error {
		return c.JSON(encodeConfig(cfg, registry))
	})

	app.Get("/-/plugins", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"plugins": encodePlugins(plugin.List(), cfg.Plugins),
		})
	})
}

type configPayload struct {
	Profile         string          `json:"profile"`
	Plugins         []string        `json:"plugins"`
	Host            string          `json:"host"`
	Port            int             `json:"port"`
	Root            string          `json:"root"`
	OutDir          string          `json:"out_dir"`
	HistoryFallback bool            `json:"history_fallback"`
	Proxy           []proxyPayload  `json:"proxy"`
	Defines         []definePayload `json:"defines"`
}

type proxyPayload struct {
	Prefix       string `json:"prefix"`
	Target       string `json:"target"`
	WebSocket    bool   `json:"ws"`
	ChangeOrigin bool   `json:"change_origin"`
	Upstream     string `json:"upstream,omitempty"`
}

type definePayload struct {
	Symbol string `json:"symbol"`
	Value  string `json:"value"`
	Source string `json:"source"`
}

type pluginPayload struct {
	Key         string   `json:"key"`
	Description string   `json:"description"`
	Extensions  []string `json:"extensions"`
	Entry       string   `json:"entry,omitempty"`
	Enabled     bool     `json:"enabled"`
}

func encodeConfig(cfg *config.ServerConfiguration, registry *server.ProxyRegistry) configPayload {
	payload := configPayload{
		Profile:         cfg.Profile,
		Plugins:         append([]string(nil), cfg.Plugins...),
		Host:            cfg.Host.BindAddress(),
		Port:            cfg.Port,
		Root:            cfg.Root,
		OutDir:          cfg.OutDir,
		HistoryFallback: cfg.HistoryFallback,
	}

	upstreams := make(map[string]string)
	for _, route := range registry.List() {
		upstreams[route.Rule.Prefix] = route.HTTPURL.String()
	}
	for _, rule := range cfg.Proxy {
		payload.Proxy = append(payload.Proxy, proxyPayload{
			Prefix:       rule.Prefix,
			Target:       rule.Target,
			WebSocket:    rule.WebSocket,
			ChangeOrigin: rule.ChangeOrigin,
			Upstream:     upstreams[rule.Prefix],
		})
	}
	for _, define := range cfg.Defines {
		payload.Defines = append(payload.Defines, definePayload{
			Symbol: define.Symbol,
			Value:  define.Value,
			Source: string(define.Source),
		})
	}
	return payload
}

func encodePlugins(plugins []plugin.Plugin, enabled []string) []pluginPayload {
	if len(plugins) == 0 {
		return nil
	}
	active := make(map[string]struct{}, len(enabled))
	for _, key := range enabled {
		active[plugin.Normalize(key)] = struct{}{}
	}
	sort.Slice(plugins, func(i, j int) bool {
		return plugins[i].Key < plugins[j].Key
	})
	result := make([]pluginPayload, 0, len(plugins))
	for _, p := range plugins {
		_, ok := active[p.Key]
		result = append(result, pluginPayload{
			Key:         p.Key,
			Description: p.Description,
			Extensions:  append([]string(nil), p.Extensions...),
			Entry:       p.Entry,
			Enabled:     ok,
		})
	}
	return result
}
