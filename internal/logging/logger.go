package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mkos/mirror-cache/internal/config"
	"github.com/mkos/mirror-cache/internal/version"
)

// ServiceName 写入每条日志的 service 字段，便于在汇聚日志中筛选缓存节点。
const ServiceName = "mirror-cache"

// InitLogger 构建 JSON 结构化日志：级别取自 LogLevel，LogFilePath 非空时经 lumberjack 轮转，
// 每条记录自动带上 service / version 字段。目录不可写时降级为 stdout 并记录一条告警。
func InitLogger(cfg *config.Config) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("无法解析日志级别: %w", err)
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	logger.AddHook(newServiceHook(ServiceName, version.Version))

	output, outErr := openOutput(cfg)
	logger.SetOutput(output)

	// 第三方库经 logrus 标准 logger 输出时保持同一格式与去向。
	logrus.SetFormatter(logger.Formatter)
	logrus.SetOutput(output)
	logrus.SetLevel(level)

	if outErr != nil {
		logger.WithFields(logrus.Fields{
			"action": "logger_fallback",
			"path":   cfg.LogFilePath,
		}).Warn(outErr.Error())
	}
	return logger, nil
}

// openOutput 返回日志 Writer；创建目录失败时返回 stdout 与原始错误。
func openOutput(cfg *config.Config) (io.Writer, error) {
	if cfg.LogFilePath == "" {
		return os.Stdout, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LogFilePath), 0o755); err != nil {
		return os.Stdout, fmt.Errorf("创建日志目录失败: %w", err)
	}
	return &lumberjack.Logger{
		Filename:   cfg.LogFilePath,
		MaxSize:    cfg.LogMaxSize,
		MaxBackups: cfg.LogMaxBackups,
		Compress:   cfg.LogCompress,
		LocalTime:  true,
	}, nil
}

// serviceHook 为所有级别补齐固定字段，调用方显式设置的同名字段优先。
type serviceHook struct {
	fields logrus.Fields
}

func newServiceHook(service, ver string) *serviceHook {
	return &serviceHook{fields: logrus.Fields{
		"service": service,
		"version": ver,
	}}
}

func (h *serviceHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *serviceHook) Fire(entry *logrus.Entry) error {
	for key, value := range h.fields {
		if _, ok := entry.Data[key]; !ok {
			entry.Data[key] = value
		}
	}
	return nil
}
