package config

import (
	"sort"
	"strings"
	"time"

	"github.com/qr-lecture/devhub/internal/plugin"
	"github.com/qr-lecture/devhub/internal/plugin/svelte"
)

// ResolveConfiguration 将声明与环境变量合并为最终配置。该函数不读取进程环境，
// 相同输入总是得到结构相同的结果。
func ResolveConfiguration(profile string, decl Declaration, env Env) *ServerConfiguration {
	cfg := &ServerConfiguration{
		Profile:         strings.ToLower(strings.TrimSpace(profile)),
		Global:          decl.Global,
		Plugins:         resolvePlugins(decl.Plugins),
		Host:            decl.Host,
		Port:            decl.Port,
		Root:            strings.TrimSpace(decl.Root),
		OutDir:          strings.TrimSpace(decl.OutDir),
		Proxy:           resolveProxy(decl.Proxy),
		HistoryFallback: decl.HistoryFallback,
		Defines:         resolveDefines(decl.Define, env),
	}
	if cfg.Profile == "" {
		cfg.Profile = ProfileDefault
	}
	if cfg.Root == "" {
		cfg.Root = DefaultRoot
	}
	if cfg.OutDir == "" {
		cfg.OutDir = DefaultOutDir
	}
	applyGlobalDefaults(&cfg.Global)
	return cfg
}

// ResolveProfile 使用内置 profile 解析配置，并执行校验。
func ResolveProfile(name string, env Env) (*ServerConfiguration, error) {
	decl, err := Profile(name)
	if err != nil {
		return nil, err
	}
	cfg := ResolveConfiguration(name, decl, env)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyGlobalDefaults(g *GlobalConfig) {
	if strings.TrimSpace(g.LogLevel) == "" {
		g.LogLevel = "info"
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(30 * time.Second)
	}
}

func resolvePlugins(keys []string) []string {
	seen := map[string]struct{}{svelte.Key: {}}
	for _, key := range keys {
		if normalized := plugin.Normalize(key); normalized != "" {
			seen[normalized] = struct{}{}
		}
	}
	result := make([]string, 0, len(seen))
	for key := range seen {
		result = append(result, key)
	}
	sort.Strings(result)
	return result
}

func resolveProxy(rules []ProxyRule) []ProxyRule {
	if len(rules) == 0 {
		return nil
	}
	result := make([]ProxyRule, len(rules))
	for i, rule := range rules {
		rule.Prefix = strings.TrimSpace(rule.Prefix)
		rule.Target = strings.TrimRight(strings.TrimSpace(rule.Target), "/")
		result[i] = rule
	}
	return result
}

func resolveDefines(decls []DefineConfig, env Env) []Define {
	if len(decls) == 0 {
		return nil
	}
	result := make([]Define, 0, len(decls))
	for _, d := range decls {
		resolved := Define{
			Symbol: strings.TrimSpace(d.Symbol),
			Value:  d.Default,
			Source: DefineFromDefault,
		}
		if name := strings.TrimSpace(d.Env); name != "" {
			if value := env.Lookup(name); value != "" {
				resolved.Value = value
				resolved.Source = DefineFromEnv
			}
		}
		result = append(result, resolved)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Symbol < result[j].Symbol
	})
	return result
}
