package config

import (
	"strings"

	"github.com/mkos/mirror-cache/internal/profile"
)

// ResolveProfile 返回当前配置选中的生态 profile（假定 Validate 已经通过）。
func (c *Config) ResolveProfile() profile.Profile {
	if p, ok := profile.Resolve(c.Profile); ok {
		return p
	}
	p, _ := profile.Resolve(profile.DefaultKey())
	return p
}

// EffectiveSuffixes 返回最终生效的可缓存后缀：显式配置优先，否则回退 profile 默认值。
func (c *Config) EffectiveSuffixes() []string {
	if len(c.CacheableSuffixes) > 0 {
		out := make([]string, 0, len(c.CacheableSuffixes))
		for _, suffix := range c.CacheableSuffixes {
			if trimmed := strings.TrimSpace(suffix); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	}
	return c.ResolveProfile().CacheableSuffixes
}
