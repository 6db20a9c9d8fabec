package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// NewStore 以 basePath 为根目录构建磁盘缓存，整个进程复用一份实例。
// 目录不存在时会被创建，之后不会被删除。
func NewStore(basePath string) (Store, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	return &fileStore{basePath: abs}, nil
}

// fileStore 不做进程内加锁：同键并发写由 rename 保证后写者胜出且不产生半截文件。
type fileStore struct {
	basePath string
}

func (s *fileStore) Exists(ctx context.Context, key Key) bool {
	if ctx.Err() != nil {
		return false
	}
	bodyPath, metaPath, err := s.paths(key)
	if err != nil {
		return false
	}
	return readable(bodyPath) && readable(metaPath)
}

func (s *fileStore) Stat(ctx context.Context, key Key) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bodyPath, metaPath, err := s.paths(key)
	if err != nil {
		return nil, &StoreReadError{Key: key, Err: err}
	}

	info, err := os.Stat(bodyPath)
	if err != nil || info.IsDir() {
		return nil, &StoreReadError{Key: key, Err: notFound(err)}
	}

	raw, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, &StoreReadError{Key: key, Err: notFound(err)}
	}

	return &Entry{
		Key:       key,
		FilePath:  bodyPath,
		SizeBytes: info.Size(),
		ModTime:   info.ModTime(),
		Metadata:  decodeMetadata(raw),
	}, nil
}

func (s *fileStore) Read(ctx context.Context, key Key) (*Entry, []byte, error) {
	entry, err := s.Stat(ctx, key)
	if err != nil {
		return nil, nil, err
	}

	body, err := os.ReadFile(entry.FilePath)
	if err != nil {
		return nil, nil, &StoreReadError{Key: key, Err: notFound(err)}
	}
	entry.SizeBytes = int64(len(body))
	return entry, body, nil
}

func (s *fileStore) Write(ctx context.Context, key Key, body []byte, meta Metadata) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bodyPath, metaPath, err := s.paths(key)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	// 先写正文再写元数据：元数据出现即代表正文已完整落盘。
	if err := writeAtomic(bodyPath, body); err != nil {
		return nil, fmt.Errorf("write cache body: %w", err)
	}
	if err := writeAtomic(metaPath, encodeMetadata(meta)); err != nil {
		return nil, fmt.Errorf("write cache metadata: %w", err)
	}

	info, err := os.Stat(bodyPath)
	if err != nil {
		return nil, fmt.Errorf("stat cache body: %w", err)
	}

	return &Entry{
		Key:       key,
		FilePath:  bodyPath,
		SizeBytes: info.Size(),
		ModTime:   info.ModTime(),
		Metadata:  meta,
	}, nil
}

func (s *fileStore) paths(key Key) (string, string, error) {
	name := string(key)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", "", fmt.Errorf("invalid cache key %q", name)
	}
	body := filepath.Join(s.basePath, name)
	return body, body + metaSuffix, nil
}

func writeAtomic(target string, data []byte) error {
	dir := filepath.Dir(target)
	tmp, err := os.CreateTemp(dir, ".cache-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, target); err != nil {
		return err
	}

	success = true
	return nil
}

func readable(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

func notFound(err error) error {
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	return err
}

func encodeMetadata(meta Metadata) []byte {
	return []byte(meta.ContentType + "\n" + meta.SourceURL)
}

// decodeMetadata 宽松解析：缺行或空行时内容类型回退为 DefaultContentType。
func decodeMetadata(raw []byte) Metadata {
	lines := strings.SplitN(string(raw), "\n", 2)
	meta := Metadata{ContentType: strings.TrimSpace(lines[0])}
	if len(lines) > 1 {
		meta.SourceURL = strings.TrimSpace(lines[1])
	}
	if meta.ContentType == "" {
		meta.ContentType = DefaultContentType
	}
	return meta
}
