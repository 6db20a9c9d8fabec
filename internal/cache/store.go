package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultContentType 在元数据缺失或为空时作为兜底类型。
const DefaultContentType = "application/octet-stream"

// metaSuffix 是元数据文件相对正文文件名追加的固定后缀。
const metaSuffix = ".meta"

// Store 负责管理磁盘缓存的读写。磁盘布局遵循：
//
//	<StoragePath>/<key>        # 原始正文
//	<StoragePath>/<key>.meta   # 两行文本：Content-Type、来源 URL
//
// 仅当两个文件都存在且可读时才视为命中。
type Store interface {
	// Exists 判断正文与元数据是否都存在；任何一方缺失都视为 miss。
	Exists(ctx context.Context, key Key) bool

	// Stat 返回条目描述而不读取正文，供 HEAD 命中使用。
	Stat(ctx context.Context, key Key) (*Entry, error)

	// Read 返回完整正文及条目描述；条目不完整时返回 *StoreReadError。
	Read(ctx context.Context, key Key) (*Entry, []byte, error)

	// Write 依次写入正文与元数据，各自通过临时文件 + rename 落盘。
	Write(ctx context.Context, key Key, body []byte, meta Metadata) (*Entry, error)
}

// Metadata 是与正文一同持久化的描述信息。
type Metadata struct {
	ContentType string `json:"content_type"`
	SourceURL   string `json:"source_url"`
}

// Entry 表示一个已落盘的缓存条目。
type Entry struct {
	Key       Key       `json:"key"`
	FilePath  string    `json:"file_path"`
	SizeBytes int64     `json:"size_bytes"`
	ModTime   time.Time `json:"mod_time"`
	Metadata  Metadata  `json:"metadata"`
}

// StoreReadError 表示在条目不完整或不可读时调用了 Read/Stat。
type StoreReadError struct {
	Key Key
	Err error
}

func (e *StoreReadError) Error() string {
	return fmt.Sprintf("cache entry %s unreadable: %v", e.Key, e.Err)
}

func (e *StoreReadError) Unwrap() error {
	return e.Err
}

// ErrNotFound 表示缓存不存在或不完整。
var ErrNotFound = errors.New("cache entry not found")
