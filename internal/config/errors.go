package config

import "fmt"

// FieldError 提供字段路径与错误原因，便于 CLI 向用户反馈。
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// newFieldError 创建包含字段路径与原因的 error，便于 CLI 定位。
func newFieldError(field, reason string) error {
	return FieldError{Field: field, Reason: reason}
}

// proxyField 拼接代理规则字段路径，输出 Proxy[/ws].Target 形式。
func proxyField(prefix, field string) string {
	if prefix == "" {
		return fmt.Sprintf("Proxy[].%s", field)
	}
	return fmt.Sprintf("Proxy[%s].%s", prefix, field)
}

// defineField 拼接 define 字段路径。
func defineField(symbol, field string) string {
	if symbol == "" {
		return fmt.Sprintf("Define[].%s", field)
	}
	return fmt.Sprintf("Define[%s].%s", symbol, field)
}
