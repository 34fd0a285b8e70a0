package svelte

import (
	"path"
	"strings"

	"github.com/qr-lecture/devhub/internal/plugin"
)

const (
	// Key 是配置文件中引用该插件的名称。
	Key = "svelte"
	// Entry 是 Svelte 应用的入口模块，挂载到 #app。
	Entry = "/src/main.js"
)

func init() {
	plugin.MustRegister(plugin.Plugin{
		Key:         Key,
		Description: "Svelte component sources served as ES modules",
		Extensions:  []string{".svelte"},
		Entry:       Entry,
		Hooks: plugin.Hooks{
			ContentType: contentType,
		},
	})
}

func contentType(p string) string {
	if strings.EqualFold(path.Ext(p), ".svelte") {
		return "text/javascript; charset=utf-8"
	}
	return ""
}
