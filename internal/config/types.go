package config

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述与具体 profile 无关的运行时参数（日志、上游超时）。
type GlobalConfig struct {
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFormat       string   `mapstructure:"LogFormat"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
}

// HostBinding 对应配置中的 Host 字段：既可以是布尔值（true 表示监听所有网卡），也可以是具体地址。
type HostBinding struct {
	All     bool   `mapstructure:"All"`
	Address string `mapstructure:"Address"`
}

// BindAddress 返回实际监听的主机地址，未配置时仅监听 localhost。
func (h HostBinding) BindAddress() string {
	if h.All {
		return "0.0.0.0"
	}
	if addr := strings.TrimSpace(h.Address); addr != "" {
		return addr
	}
	return "localhost"
}

// String 便于日志输出。
func (h HostBinding) String() string {
	if h.All {
		return "true"
	}
	if h.Address == "" {
		return "false"
	}
	return h.Address
}

// ProxyRule 描述一个开发期代理规则：前缀匹配的请求原样转发到 Target。
type ProxyRule struct {
	Prefix       string `mapstructure:"Prefix" json:"prefix"`
	Target       string `mapstructure:"Target" json:"target"`
	WebSocket    bool   `mapstructure:"WS" json:"ws"`
	ChangeOrigin bool   `mapstructure:"ChangeOrigin" json:"change_origin"`
}

// Matches 判断请求路径是否以规则前缀开头。
func (r ProxyRule) Matches(path string) bool {
	return r.Prefix != "" && strings.HasPrefix(path, r.Prefix)
}

// DefineConfig 声明一个编译期替换符号：优先读取环境变量 Env，缺失或为空时使用 Default。
type DefineConfig struct {
	Symbol  string `mapstructure:"Symbol"`
	Env     string `mapstructure:"Env"`
	Default string `mapstructure:"Default"`
}

// DefineSource 标记替换值的来源。
type DefineSource string

const (
	DefineFromEnv     DefineSource = "env"
	DefineFromDefault DefineSource = "default"
)

// Define 是解析完成的替换项，Value 为原始字符串。
type Define struct {
	Symbol string       `json:"symbol"`
	Value  string       `json:"value"`
	Source DefineSource `json:"source"`
}

// Literal 返回写入源码的 JSON 字面量，例如 "https://example.test" 带引号。
func (d Define) Literal() string {
	encoded, err := json.Marshal(d.Value)
	if err != nil {
		return strconv.Quote(d.Value)
	}
	return string(encoded)
}

// Declaration 是配置文件（或内置 profile）的声明式内容，尚未结合环境变量。
type Declaration struct {
	Global          GlobalConfig   `mapstructure:",squash"`
	Plugins         []string       `mapstructure:"Plugins"`
	Host            HostBinding    `mapstructure:"Host"`
	Port            int            `mapstructure:"Port"`
	Root            string         `mapstructure:"Root"`
	OutDir          string         `mapstructure:"OutDir"`
	HistoryFallback bool           `mapstructure:"HistoryFallback"`
	Proxy           []ProxyRule    `mapstructure:"Proxy"`
	Define          []DefineConfig `mapstructure:"Define"`
}

// ServerConfiguration 是进程级只读配置，启动时解析一次，之后不再修改。
type ServerConfiguration struct {
	Profile         string
	Global          GlobalConfig
	Plugins         []string
	Host            HostBinding
	Port            int
	Root            string
	OutDir          string
	Proxy           []ProxyRule
	HistoryFallback bool
	Defines         []Define
}

// Addr 返回 host:port 形式的监听地址；Port 为 0 时由系统分配空闲端口。
func (c *ServerConfiguration) Addr() string {
	return net.JoinHostPort(c.Host.BindAddress(), strconv.Itoa(c.Port))
}

// MatchProxy 返回最长前缀命中的代理规则。
func (c *ServerConfiguration) MatchProxy(path string) (ProxyRule, bool) {
	var (
		best  ProxyRule
		found bool
	)
	for _, rule := range c.Proxy {
		if !rule.Matches(path) {
			continue
		}
		if !found || len(rule.Prefix) > len(best.Prefix) {
			best = rule
			found = true
		}
	}
	return best, found
}

// DefineValue 返回指定符号解析后的原始值。
func (c *ServerConfiguration) DefineValue(symbol string) (string, bool) {
	for _, d := range c.Defines {
		if d.Symbol == symbol {
			return d.Value, true
		}
	}
	return "", false
}
