package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load 以内置 profile 为底，叠加可选的 TOML 配置文件，再结合 env 解析并校验。
// path 为空时只使用 profile。
func Load(path, profile string, env Env) (*ServerConfiguration, error) {
	decl, err := Profile(profile)
	if err != nil {
		return nil, err
	}

	if path != "" {
		v := viper.New()
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置失败: %w", err)
		}

		resetDeclaredLists(v, &decl)

		hooks := mapstructure.ComposeDecodeHookFunc(
			durationDecodeHook(),
			hostDecodeHook(),
			mapstructure.StringToSliceHookFunc(","),
		)
		if err := v.Unmarshal(&decl, viper.DecodeHook(hooks)); err != nil {
			return nil, fmt.Errorf("解析配置失败: %w", err)
		}
	}

	cfg := ResolveConfiguration(profile, decl, env)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absRoot, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("无法解析 Root 目录: %w", err)
	}
	cfg.Root = absRoot

	return cfg, nil
}

// resetDeclaredLists 清空文件中显式声明的列表字段，避免 mapstructure 将文件内容与 profile 逐项合并。
func resetDeclaredLists(v *viper.Viper, decl *Declaration) {
	if v.IsSet("Proxy") {
		decl.Proxy = nil
	}
	if v.IsSet("Define") {
		decl.Define = nil
	}
	if v.IsSet("Plugins") {
		decl.Plugins = nil
	}
	if v.IsSet("Host") {
		decl.Host = HostBinding{}
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}

// hostDecodeHook 允许 Host 写成布尔值（true 监听所有网卡）或地址字符串。
func hostDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(HostBinding{})

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case bool:
			return HostBinding{All: v}, nil
		case string:
			trimmed := strings.TrimSpace(v)
			switch strings.ToLower(trimmed) {
			case "true":
				return HostBinding{All: true}, nil
			case "", "false":
				return HostBinding{}, nil
			}
			return HostBinding{Address: trimmed}, nil
		case HostBinding:
			return v, nil
		case map[string]interface{}:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Host 类型: %T", v)
		}
	}
}
