package plugin

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

var globalRegistry = newRegistry()

type registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
}

func newRegistry() *registry {
	return &registry{plugins: make(map[string]Plugin)}
}

// Register 将插件加入全局注册表，重复键会返回错误。
func Register(p Plugin) error {
	return globalRegistry.register(p)
}

// MustRegister 在注册失败时 panic，适合插件 init() 中调用。
func MustRegister(p Plugin) {
	if err := Register(p); err != nil {
		panic(err)
	}
}

// Resolve 返回指定键的插件。
func Resolve(key string) (Plugin, bool) {
	return globalRegistry.resolve(key)
}

// List 返回按键排序的插件列表。
func List() []Plugin {
	return globalRegistry.list()
}

// Keys 返回所有已注册插件的键值，供诊断使用。
func Keys() []string {
	items := List()
	result := make([]string, len(items))
	for i, p := range items {
		result[i] = p.Key
	}
	return result
}

// Normalize 统一插件键的大小写与空白。
func Normalize(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func (r *registry) register(p Plugin) error {
	key := Normalize(p.Key)
	if key == "" {
		return fmt.Errorf("plugin key is required")
	}
	p.Key = key

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[key]; exists {
		return fmt.Errorf("plugin %s already registered", key)
	}
	r.plugins[key] = p
	return nil
}

func (r *registry) resolve(key string) (Plugin, bool) {
	normalized := Normalize(key)
	if normalized == "" {
		return Plugin{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.plugins[normalized]
	return p, ok
}

func (r *registry) list() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.plugins) == 0 {
		return nil
	}

	keys := make([]string, 0, len(r.plugins))
	for key := range r.plugins {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	result := make([]Plugin, 0, len(keys))
	for _, key := range keys {
		result = append(result, r.plugins[key])
	}
	return result
}

// ResolveAll 按给定顺序解析多个插件，任一缺失即返回错误。
func ResolveAll(keys []string) ([]Plugin, error) {
	result := make([]Plugin, 0, len(keys))
	for _, key := range keys {
		p, ok := Resolve(key)
		if !ok {
			return nil, fmt.Errorf("plugin %s is not registered", key)
		}
		result = append(result, p)
	}
	return result, nil
}
