package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/qr-lecture/devhub/internal/config"
)

func TestParseCLIFlagsPriority(t *testing.T) {
	t.Setenv("DEVHUB_CONFIG", "/tmp/env.toml")
	t.Setenv("DEVHUB_PROFILE", "proxy")

	opts, err := parseCLIFlags([]string{})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "/tmp/env.toml" {
		t.Fatalf("应使用环境变量提供的配置路径，得到 %s", opts.configPath)
	}
	if opts.profile != "proxy" {
		t.Fatalf("应使用环境变量提供的 profile，得到 %s", opts.profile)
	}

	opts, err = parseCLIFlags([]string{"--config", "/tmp/flag.toml", "-profile", "history"})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "/tmp/flag.toml" {
		t.Fatalf("flag 应高于环境变量，得到 %s", opts.configPath)
	}
	if opts.profile != "history" {
		t.Fatalf("flag 应高于环境变量，得到 %s", opts.profile)
	}
}

func TestParseCLIFlagsDefaults(t *testing.T) {
	t.Setenv("DEVHUB_CONFIG", "")
	t.Setenv("DEVHUB_PROFILE", "")

	opts, err := parseCLIFlags(nil)
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "" {
		t.Fatalf("未指定时不应读取配置文件，得到 %s", opts.configPath)
	}
	if opts.profile != config.ProfileDefault {
		t.Fatalf("默认 profile 应为 default，得到 %s", opts.profile)
	}
	if resolveMode(opts) != "development" {
		t.Fatalf("dev server 默认模式应为 development")
	}
	if resolveMode(cliOptions{buildOnly: true}) != "production" {
		t.Fatalf("build 默认模式应为 production")
	}
}

func TestParseCLIFlagsRejectsUnknown(t *testing.T) {
	if _, err := parseCLIFlags([]string{"--unknown"}); err == nil {
		t.Fatalf("未知 flag 应返回错误")
	}
	if _, err := parseCLIFlags([]string{"serve"}); err == nil {
		t.Fatalf("多余的位置参数应返回错误")
	}
}

func TestRunCheckConfigSuccess(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{configPath: configFixture(t, "valid.toml"), profile: config.ProfileDefault, checkOnly: true})
	if code != 0 {
		t.Fatalf("期望退出码 0，得到 %d (stderr=%s)", code, stdErrBuffer().String())
	}
}

func TestRunCheckConfigFailure(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{configPath: configFixture(t, "missing.toml"), profile: config.ProfileDefault, checkOnly: true})
	if code == 0 {
		t.Fatalf("无效配置应返回非零退出码")
	}
	if !strings.Contains(stdErrBuffer().String(), "加载配置失败") {
		t.Fatalf("stderr 应包含失败原因，得到 %s", stdErrBuffer().String())
	}
}

func TestRunCheckConfigUnknownProfile(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{profile: "staging", checkOnly: true})
	if code != 1 {
		t.Fatalf("未知 profile 应返回 1，得到 %d", code)
	}
}

func TestRunVersionOutput(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{showVersion: true})
	if code != 0 {
		t.Fatalf("version 模式应成功退出，得到 %d", code)
	}
	if !strings.Contains(stdOutBuffer().String(), "devhub") {
		t.Fatalf("version 输出应包含 devhub 标识")
	}
}

func TestRunBuildUsesModeEnvFile(t *testing.T) {
	t.Setenv("VITE_API_URL", "")
	os.Unsetenv("VITE_API_URL")

	root := t.TempDir()
	writeSiteFile(t, root, "index.html", `<html><body><div id="app"></div></body></html>`)
	writeSiteFile(t, root, "src/main.js", `export const api = import.meta.env.VITE_API_URL`)
	writeSiteFile(t, root, ".env.production", "VITE_API_URL=https://prod.example.test")

	configPath := writeConfigFile(t, fmt.Sprintf(`
LogLevel = "warn"
Root = %q
`, root))

	useBufferWriters(t)
	code := run(cliOptions{configPath: configPath, profile: config.ProfileDefault, buildOnly: true})
	if code != 0 {
		t.Fatalf("构建应成功，得到 %d (stderr=%s)", code, stdErrBuffer().String())
	}
	if !strings.Contains(stdOutBuffer().String(), "built 2 files") {
		t.Fatalf("应输出构建摘要，得到 %s", stdOutBuffer().String())
	}

	built, err := os.ReadFile(filepath.Join(root, "dist", "src", "main.js"))
	if err != nil {
		t.Fatalf("读取构建产物失败: %v", err)
	}
	if string(built) != `export const api = "https://prod.example.test"` {
		t.Fatalf("define 未按 .env.production 替换: %s", string(built))
	}
}

func TestRunBuildFailsWithoutRootDocument(t *testing.T) {
	root := t.TempDir()
	configPath := writeConfigFile(t, fmt.Sprintf(`
LogLevel = "warn"
Root = %q
`, root))

	useBufferWriters(t)
	code := run(cliOptions{configPath: configPath, profile: config.ProfileDefault, buildOnly: true})
	if code != 1 {
		t.Fatalf("缺少 index.html 时应返回 1，得到 %d", code)
	}
	if !strings.Contains(stdErrBuffer().String(), "读取站点失败") {
		t.Fatalf("stderr 应说明站点读取失败，得到 %s", stdErrBuffer().String())
	}
}

func writeSiteFile(t *testing.T, root, name, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("创建目录失败: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("写入文件失败: %v", err)
	}
}
