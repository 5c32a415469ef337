package cache

import (
	"strings"
	"sync"

	"github.com/zhangyunhao116/skipmap"
)

func newStringMap[V any]() *skipmap.FuncMap[string, V] {
	return skipmap.NewFunc[string, V](func(a, b string) bool {
		return a < b
	})
}

// Memcache is the in-process Store implementation. Scalar entries and
// lists live in separate concurrent skipmaps; list mutations are guarded
// per list, so operations on different keys never contend.
type Memcache struct {
	kv    *skipmap.FuncMap[string, string]
	lists *skipmap.FuncMap[string, *list]
}

type list struct {
	mu    sync.Mutex
	items []string
}

func NewMemcache() *Memcache {
	return &Memcache{
		kv:    newStringMap[string](),
		lists: newStringMap[*list](),
	}
}

func (m *Memcache) Get(key string) (string, bool, error) {
	v, ok := m.kv.Load(key)
	return v, ok, nil
}

func (m *Memcache) Set(key, value string) error {
	m.kv.Store(key, value)
	return nil
}

func (m *Memcache) Delete(key string) error {
	m.kv.Delete(key)
	m.lists.Delete(key)
	return nil
}

func (m *Memcache) LPush(key, value string) error {
	l, _ := m.lists.LoadOrStoreLazy(key, func() *list { return &list{} })
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append([]string{value}, l.items...)
	return nil
}

func (m *Memcache) LPop(key string) (string, bool, error) {
	l, ok := m.lists.Load(key)
	if !ok {
		return "", false, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.items) == 0 {
		return "", false, nil
	}
	head := l.items[0]
	l.items = l.items[1:]
	return head, true, nil
}

func (m *Memcache) LRange(key string, start, stop int) ([]string, error) {
	l, ok := m.lists.Load(key)
	if !ok {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.items)
	if stop < 0 {
		stop = n + stop
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop {
		return nil, nil
	}

	out := make([]string, stop-start+1)
	copy(out, l.items[start:stop+1])
	return out, nil
}

func (m *Memcache) LLen(key string) (int, error) {
	l, ok := m.lists.Load(key)
	if !ok {
		return 0, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items), nil
}

func (m *Memcache) Keys(pattern string) ([]string, error) {
	var keys []string
	m.kv.Range(func(key string, _ string) bool {
		if matchPattern(pattern, key) {
			keys = append(keys, key)
		}
		return true
	})
	m.lists.Range(func(key string, _ *list) bool {
		if matchPattern(pattern, key) {
			keys = append(keys, key)
		}
		return true
	})
	return keys, nil
}

func matchPattern(pattern, key string) bool {
	if suffix, ok := strings.CutPrefix(pattern, "*"); ok {
		return strings.HasSuffix(key, suffix)
	}
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(key, prefix)
	}
	return pattern == key
}
