package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/qr-lecture/devhub/internal/plugin"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *ServerConfiguration) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	if c.Port < 0 || c.Port > 65535 {
		return newFieldError("Port", "必须在 1-65535（0 表示自动分配）")
	}
	if strings.ContainsAny(c.Host.Address, " /") {
		return newFieldError("Host", "地址不允许包含空格或路径")
	}
	if c.Global.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("UpstreamTimeout", "必须大于 0")
	}
	if c.Global.LogMaxSize < 0 || c.Global.LogMaxBackups < 0 {
		return newFieldError("LogMaxSize/LogMaxBackups", "不能为负数")
	}
	if filepath.IsAbs(c.OutDir) || strings.HasPrefix(filepath.Clean(c.OutDir), "..") {
		return newFieldError("OutDir", "必须是 Root 下的相对路径")
	}
	if filepath.Clean(c.OutDir) == "." {
		return newFieldError("OutDir", "不能与 Root 相同")
	}

	sourceDirs := map[string]struct{}{"node_modules": {}}
	for _, key := range c.Plugins {
		p, ok := plugin.Resolve(key)
		if !ok {
			return newFieldError("Plugins", fmt.Sprintf("未注册插件: %s", key))
		}
		if dir := entryDir(p.Entry); dir != "" {
			sourceDirs[dir] = struct{}{}
		}
	}
	outTop := strings.SplitN(filepath.ToSlash(filepath.Clean(c.OutDir)), "/", 2)[0]
	if _, clash := sourceDirs[outTop]; clash {
		return newFieldError("OutDir", "不能位于源码目录内")
	}

	seenPrefixes := map[string]struct{}{}
	for _, rule := range c.Proxy {
		if rule.Prefix == "" {
			return newFieldError(proxyField("", "Prefix"), "不能为空")
		}
		if !strings.HasPrefix(rule.Prefix, "/") {
			return newFieldError(proxyField(rule.Prefix, "Prefix"), "必须以 / 开头")
		}
		if _, exists := seenPrefixes[rule.Prefix]; exists {
			return newFieldError(proxyField(rule.Prefix, "Prefix"), "重复")
		}
		seenPrefixes[rule.Prefix] = struct{}{}

		if err := validateTarget(rule.Target); err != nil {
			return fmt.Errorf("%s: %w", proxyField(rule.Prefix, "Target"), err)
		}
	}

	seenSymbols := map[string]struct{}{}
	for _, d := range c.Defines {
		if d.Symbol == "" {
			return newFieldError(defineField("", "Symbol"), "不能为空")
		}
		if strings.ContainsAny(d.Symbol, " \t\n\"'") {
			return newFieldError(defineField(d.Symbol, "Symbol"), "必须是合法的标识符路径")
		}
		if _, exists := seenSymbols[d.Symbol]; exists {
			return newFieldError(defineField(d.Symbol, "Symbol"), "重复")
		}
		seenSymbols[d.Symbol] = struct{}{}
	}

	return nil
}

func validateTarget(raw string) error {
	if raw == "" {
		return errors.New("缺少上游地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	switch parsed.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("仅支持 http/https/ws/wss，上游: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("上游缺少 Host: %s", raw)
	}
	if parsed.Path != "" && parsed.Path != "/" {
		return fmt.Errorf("上游不允许包含路径: %s", raw)
	}
	return nil
}

// entryDir 返回入口模块所在的顶层目录，例如 /src/main.js 对应 src；位于根目录时返回空串。
func entryDir(entry string) string {
	entry = strings.TrimPrefix(entry, "/")
	if i := strings.IndexByte(entry, '/'); i > 0 {
		return entry[:i]
	}
	return ""
}
