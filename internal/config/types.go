package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}
	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}
	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}
	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// Config 是 TOML/环境变量/CLI 合并后的整体配置，启动时构造一次，运行期只读。
type Config struct {
	ListenPort  int    `mapstructure:"ListenPort"`
	Upstream    string `mapstructure:"Upstream"`
	StoragePath string `mapstructure:"StoragePath"`

	// Profile 选择包生态（pacman/xbps/apk/apt/slackware），决定默认可缓存后缀。
	Profile string `mapstructure:"Profile"`
	// CacheableSuffixes 非空时覆盖 Profile 的默认后缀列表。
	CacheableSuffixes []string `mapstructure:"CacheableSuffixes"`

	UserAgent      string   `mapstructure:"UserAgent"`
	GetTimeout     Duration `mapstructure:"GetTimeout"`
	HeadTimeout    Duration `mapstructure:"HeadTimeout"`
	MaxRetries     int      `mapstructure:"MaxRetries"`
	InitialBackoff Duration `mapstructure:"InitialBackoff"`
	CoalesceMisses bool     `mapstructure:"CoalesceMisses"`
	EnableMetrics  bool     `mapstructure:"EnableMetrics"`

	LogLevel      string `mapstructure:"LogLevel"`
	LogFilePath   string `mapstructure:"LogFilePath"`
	LogMaxSize    int    `mapstructure:"LogMaxSize"`
	LogMaxBackups int    `mapstructure:"LogMaxBackups"`
	LogCompress   bool   `mapstructure:"LogCompress"`
}

// UpstreamURL 拼接上游基址与原始请求路径（含前导斜杠与查询串，原样保留）。
func (c *Config) UpstreamURL(requestURI string) string {
	return c.Upstream + requestURI
}
