package profile

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

const defaultProfileKey = "pacman"

var globalRegistry = newRegistry()

// Profile 记录一个包生态的静态信息，供配置校验和诊断端使用。
type Profile struct {
	Key               string
	Description       string
	PackageManager    string
	CacheableSuffixes []string
}

// DefaultKey 返回默认 profile 的键值（Artix/Arch pacman 镜像）。
func DefaultKey() string {
	return defaultProfileKey
}

type registry struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

func newRegistry() *registry {
	return &registry{profiles: make(map[string]Profile)}
}

// Register 将 profile 加入全局注册表，重复键会返回错误。
func Register(p Profile) error {
	return globalRegistry.register(p)
}

// MustRegister 在注册失败时 panic，适合 init() 中调用。
func MustRegister(p Profile) {
	if err := Register(p); err != nil {
		panic(err)
	}
}

// Resolve 返回指定键的 profile，大小写不敏感。
func Resolve(key string) (Profile, bool) {
	return globalRegistry.resolve(key)
}

// List 返回按键排序的 profile 列表。
func List() []Profile {
	return globalRegistry.list()
}

// Keys 返回所有已注册 profile 的键值。
func Keys() []string {
	items := List()
	result := make([]string, len(items))
	for i, p := range items {
		result[i] = p.Key
	}
	return result
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func (r *registry) register(p Profile) error {
	key := normalizeKey(p.Key)
	if key == "" {
		return fmt.Errorf("profile key is required")
	}
	if len(p.CacheableSuffixes) == 0 {
		return fmt.Errorf("profile %s: cacheable suffixes required", key)
	}
	p.Key = key
	p.CacheableSuffixes = append([]string(nil), p.CacheableSuffixes...)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.profiles[key]; exists {
		return fmt.Errorf("profile %s already registered", key)
	}
	r.profiles[key] = p
	return nil
}

func (r *registry) resolve(key string) (Profile, bool) {
	normalized := normalizeKey(key)
	if normalized == "" {
		return Profile{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[normalized]
	if !ok {
		return Profile{}, false
	}
	p.CacheableSuffixes = append([]string(nil), p.CacheableSuffixes...)
	return p, true
}

func (r *registry) list() []Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.profiles) == 0 {
		return nil
	}

	keys := make([]string, 0, len(r.profiles))
	for key := range r.profiles {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	result := make([]Profile, 0, len(keys))
	for _, key := range keys {
		p := r.profiles[key]
		p.CacheableSuffixes = append([]string(nil), p.CacheableSuffixes...)
		result = append(result, p)
	}
	return result
}
