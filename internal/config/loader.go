package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/mkos/mirror-cache/internal/profile"
)

// EnvPrefix 是环境变量覆盖的前缀，例如 MIRROR_CACHE_LISTENPORT=9000。
const EnvPrefix = "MIRROR_CACHE"

const (
	DefaultListenPort  = 8080
	DefaultUpstream    = "https://mirror.clarkson.edu/artix-linux/repos"
	DefaultStoragePath = "/tmp/pacman-cache"
	DefaultUserAgent   = "mkos-mirror-cache/1.0"
)

// Load 按“默认值 → TOML 文件 → 环境变量 → overrides”的优先级合并配置，并执行校验。
// path 为空时不读取配置文件；overrides 通常来自显式传入的 CLI 标志。
func Load(path string, overrides map[string]any) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置失败: %w", err)
		}
	}

	for key, value := range overrides {
		v.Set(key, value)
	}

	var cfg Config
	hook := mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(hook)); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absStorage, err := filepath.Abs(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.StoragePath = absStorage
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", DefaultListenPort)
	v.SetDefault("Upstream", DefaultUpstream)
	v.SetDefault("StoragePath", DefaultStoragePath)
	v.SetDefault("Profile", profile.DefaultKey())
	v.SetDefault("CacheableSuffixes", []string{})
	v.SetDefault("UserAgent", DefaultUserAgent)
	v.SetDefault("GetTimeout", "30s")
	v.SetDefault("HeadTimeout", "10s")
	v.SetDefault("MaxRetries", 0)
	v.SetDefault("InitialBackoff", "1s")
	v.SetDefault("CoalesceMisses", false)
	v.SetDefault("EnableMetrics", true)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
}

func applyDefaults(c *Config) {
	c.Upstream = strings.TrimRight(strings.TrimSpace(c.Upstream), "/")
	c.Profile = strings.ToLower(strings.TrimSpace(c.Profile))
	if c.Profile == "" {
		c.Profile = profile.DefaultKey()
	}
	if strings.TrimSpace(c.UserAgent) == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.GetTimeout.DurationValue() == 0 {
		c.GetTimeout = Duration(30 * time.Second)
	}
	if c.HeadTimeout.DurationValue() == 0 {
		c.HeadTimeout = Duration(10 * time.Second)
	}
	if c.InitialBackoff.DurationValue() == 0 {
		c.InitialBackoff = Duration(time.Second)
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
