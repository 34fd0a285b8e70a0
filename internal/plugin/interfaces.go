package plugin

// Plugin 描述一个构建插件的静态信息与可选钩子，供配置校验、静态资源服务与构建流程复用。
type Plugin struct {
	Key         string
	Description string
	// Extensions 是插件接管的源文件扩展名（含点号，小写）。
	Extensions []string
	// Entry 是应用入口模块的 URL 路径，bootstrap 会把它挂载到根元素上。
	Entry string
	Hooks Hooks
}

// Hooks 描述插件在资源读取阶段可介入的扩展点，均为可选。
type Hooks struct {
	ContentType func(path string) string
	Transform   func(path string, body []byte) ([]byte, error)
}

// Owns 判断插件是否接管给定扩展名。
func (p Plugin) Owns(ext string) bool {
	for _, candidate := range p.Extensions {
		if candidate == ext {
			return true
		}
	}
	return false
}
