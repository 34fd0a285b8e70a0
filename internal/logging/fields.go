package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// ProxyFields 提供代理规则相关字段，供 HTTP/WebSocket 转发日志复用。
func ProxyFields(prefix, target string, websocket bool, requestID string) logrus.Fields {
	fields := logrus.Fields{
		"action":    "proxy",
		"prefix":    prefix,
		"target":    target,
		"websocket": websocket,
	}
	if requestID != "" {
		fields["request_id"] = requestID
	}
	return fields
}
