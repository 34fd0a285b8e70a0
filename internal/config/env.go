package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// Env 是显式传入的环境变量快照，配置解析只读取它而非进程环境。
type Env map[string]string

// Lookup 返回变量值，不存在时为空字符串。
func (e Env) Lookup(name string) string {
	if e == nil {
		return ""
	}
	return e[name]
}

// EnvFromList 将 os.Environ() 形式的 KEY=VALUE 列表转换为 Env。
func EnvFromList(environ []string) Env {
	env := make(Env, len(environ))
	for _, entry := range environ {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			continue
		}
		env[key] = value
	}
	return env
}

// EnvFiles 返回按优先级从低到高排列的 .env 文件名。
func EnvFiles(mode string) []string {
	files := []string{".env", ".env.local"}
	if mode = strings.TrimSpace(mode); mode != "" {
		files = append(files, ".env."+mode, ".env."+mode+".local")
	}
	return files
}

// LoadEnv 依次读取 root 下存在的 .env 文件，再叠加 environ；进程环境变量优先级最高。
func LoadEnv(root, mode string, environ []string) (Env, error) {
	env := Env{}
	for _, name := range EnvFiles(mode) {
		path := filepath.Join(root, name)
		values, err := godotenv.Read(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("读取 %s 失败: %w", name, err)
		}
		for key, value := range values {
			env[key] = value
		}
	}
	for key, value := range EnvFromList(environ) {
		env[key] = value
	}
	return env, nil
}
