package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/mkos/mirror-cache/internal/profile"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}
	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return newFieldError("ListenPort", "必须在 1-65535")
	}
	if err := validateUpstream(c.Upstream); err != nil {
		return fmt.Errorf("Upstream: %w", err)
	}
	if strings.TrimSpace(c.StoragePath) == "" {
		return newFieldError("StoragePath", "不能为空")
	}
	if _, ok := profile.Resolve(c.Profile); !ok {
		return newFieldError("Profile", "仅支持 "+strings.Join(profile.Keys(), "|"))
	}
	for i, suffix := range c.CacheableSuffixes {
		if strings.TrimSpace(suffix) == "" {
			return newFieldError(suffixField(i), "不能为空")
		}
	}
	if c.GetTimeout.DurationValue() <= 0 {
		return newFieldError("GetTimeout", "必须大于 0")
	}
	if c.HeadTimeout.DurationValue() <= 0 {
		return newFieldError("HeadTimeout", "必须大于 0")
	}
	if c.MaxRetries < 0 {
		return newFieldError("MaxRetries", "不能为负数")
	}
	if c.InitialBackoff.DurationValue() <= 0 {
		return newFieldError("InitialBackoff", "必须大于 0")
	}
	return nil
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("缺少上游地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，上游: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("上游缺少 Host: %s", raw)
	}
	if parsed.RawQuery != "" || parsed.Fragment != "" {
		return fmt.Errorf("上游不应包含查询串或片段: %s", raw)
	}
	return nil
}
