package cache

import (
	"crypto/md5"
	"encoding/hex"
)

// Key 是请求路径的 128 位摘要（小写十六进制），同时作为磁盘文件名。
type Key string

// KeyFor 由原始请求路径（含查询串）计算缓存键。无盐、无随机数，进程重启后保持一致，
// 与旧版 mirror-cache 生成的目录布局兼容。
func KeyFor(requestPath string) Key {
	sum := md5.Sum([]byte(requestPath))
	return Key(hex.EncodeToString(sum[:]))
}

// String 便于日志字段输出。
func (k Key) String() string {
	return string(k)
}
