package proxy

import "strings"

// requestTarget 把请求行中的 request-target 规范为 origin-form（路径 + 查询串）。
// absolute-form（"http://host/core.db?x=1"）去掉 scheme 与 authority；
// origin-form 原样返回，保持与既有缓存目录一致的键。
func requestTarget(raw string) string {
	if raw == "" {
		return "/"
	}
	if strings.HasPrefix(raw, "/") {
		return raw
	}
	rest := raw
	if idx := strings.Index(rest, "://"); idx >= 0 {
		rest = rest[idx+len("://"):]
	}
	cut := strings.IndexAny(rest, "/?")
	if cut < 0 {
		return "/"
	}
	if rest[cut] == '?' {
		return "/" + rest[cut:]
	}
	return rest[cut:]
}
