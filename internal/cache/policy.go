package cache

import "strings"

// Policy 是纯粹的后缀谓词：请求路径以任一后缀结尾即允许落盘。
type Policy struct {
	suffixes []string
}

// NewPolicy 复制传入的后缀列表，空白项会被忽略。
func NewPolicy(suffixes []string) Policy {
	out := make([]string, 0, len(suffixes))
	for _, suffix := range suffixes {
		if trimmed := strings.TrimSpace(suffix); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return Policy{suffixes: out}
}

// Cacheable 判断 miss 响应是否应写入缓存。
func (p Policy) Cacheable(requestPath string) bool {
	for _, suffix := range p.suffixes {
		if strings.HasSuffix(requestPath, suffix) {
			return true
		}
	}
	return false
}

// Suffixes 返回生效的后缀列表副本，供诊断接口输出。
func (p Policy) Suffixes() []string {
	return append([]string(nil), p.suffixes...)
}
