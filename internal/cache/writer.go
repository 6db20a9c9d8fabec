package cache

import "context"

// PolicyWriter 将可缓存策略与 Store 组合：只有命中后缀的路径才会真正落盘。
type PolicyWriter struct {
	store  Store
	policy Policy
}

// NewPolicyWriter 构造策略感知的写入器；store 为 nil 时所有写入都被跳过。
func NewPolicyWriter(store Store, policy Policy) PolicyWriter {
	return PolicyWriter{store: store, policy: policy}
}

// Put 是 miss 响应落盘的唯一入口，返回的 bool 表示是否发生了写入。
// 未注入 store 或路径不可缓存时直接返回 (nil, false, nil)。
func (w PolicyWriter) Put(ctx context.Context, requestPath string, key Key, body []byte, meta Metadata) (*Entry, bool, error) {
	if w.store == nil || !w.policy.Cacheable(requestPath) {
		return nil, false, nil
	}
	entry, err := w.store.Write(ctx, key, body, meta)
	if err != nil {
		return nil, false, err
	}
	return entry, true, nil
}
