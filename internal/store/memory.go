package store

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strconv"
	"sync"
	"time"
)

type memValue struct {
	counter   *int64
	list      []string // tail (newest) first, like a Redis list after LPUSH
	zset      map[string]float64
	expiresAt time.Time // zero means no expiry
}

// Memory is an in-process KV with Redis-like semantics. One mutex guards
// every call, which makes each method atomic the same way a single Redis
// command is.
type Memory struct {
	mu   sync.Mutex
	data map[string]*memValue
	now  func() time.Time

	// Optional error overrides keyed by key; set in tests to simulate
	// per-key failures.
	Failures map[string]error
}

// NewMemory returns an empty store using the wall clock.
func NewMemory() *Memory {
	return NewMemoryWithClock(time.Now)
}

// NewMemoryWithClock returns an empty store reading time from now.
func NewMemoryWithClock(now func() time.Time) *Memory {
	return &Memory{
		data:     make(map[string]*memValue),
		now:      now,
		Failures: make(map[string]error),
	}
}

// get returns the live value at key, evicting it first if expired.
func (m *Memory) get(key string) *memValue {
	v, ok := m.data[key]
	if !ok {
		return nil
	}
	if !v.expiresAt.IsZero() && !m.now().Before(v.expiresAt) {
		delete(m.data, key)
		return nil
	}
	return v
}

func (m *Memory) fail(key string) error {
	if err, ok := m.Failures[key]; ok {
		return err
	}
	return nil
}

func (m *Memory) list(key string, create bool) (*memValue, error) {
	v := m.get(key)
	if v == nil {
		if !create {
			return nil, nil
		}
		v = &memValue{}
		m.data[key] = v
		return v, nil
	}
	if v.counter != nil || v.zset != nil {
		return nil, ErrWrongType
	}
	return v, nil
}

func (m *Memory) PopHead(_ context.Context, key string, n int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(key); err != nil {
		return nil, err
	}
	v, err := m.list(key, false)
	if err != nil || v == nil || n <= 0 {
		return nil, err
	}
	if n > len(v.list) {
		n = len(v.list)
	}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		last := len(v.list) - 1
		out = append(out, v.list[last])
		v.list = v.list[:last]
	}
	if len(v.list) == 0 {
		delete(m.data, key)
	}
	return out, nil
}

func (m *Memory) PushTail(_ context.Context, key string, values ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(key); err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}
	v, err := m.list(key, true)
	if err != nil {
		return err
	}
	for _, val := range values {
		v.list = append([]string{val}, v.list...)
	}
	return nil
}

func (m *Memory) PushHead(_ context.Context, key string, values ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(key); err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}
	v, err := m.list(key, true)
	if err != nil {
		return err
	}
	for i := len(values) - 1; i >= 0; i-- {
		v.list = append(v.list, values[i])
	}
	return nil
}

func (m *Memory) Len(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, err := m.list(key, false)
	if err != nil || v == nil {
		return 0, err
	}
	return int64(len(v.list)), nil
}

func (m *Memory) Trim(_ context.Context, key string, keep int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(key); err != nil {
		return err
	}
	v, err := m.list(key, false)
	if err != nil || v == nil {
		return err
	}
	if keep <= 0 {
		delete(m.data, key)
		return nil
	}
	if int64(len(v.list)) > keep {
		v.list = v.list[:keep]
	}
	return nil
}

func (m *Memory) IncrBelow(_ context.Context, key string, limit int64, ttl time.Duration, index string) (bool, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(key); err != nil {
		return false, 0, err
	}
	v := m.get(key)
	if v == nil {
		var zero int64
		v = &memValue{counter: &zero}
		m.data[key] = v
	} else if v.counter == nil {
		return false, 0, ErrWrongType
	}

	if *v.counter >= limit {
		if v.expiresAt.IsZero() {
			v.expiresAt = m.now().Add(ttl)
		}
		return false, *v.counter, nil
	}

	*v.counter++
	v.expiresAt = m.now().Add(ttl)

	idx := m.get(index)
	if idx == nil {
		idx = &memValue{zset: make(map[string]float64)}
		m.data[index] = idx
	} else if idx.zset == nil {
		return false, 0, ErrWrongType
	}
	idx.zset[key] = float64(v.expiresAt.Unix())
	return true, *v.counter, nil
}

func (m *Memory) TTL(_ context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(key); err != nil {
		return 0, err
	}
	v := m.get(key)
	switch {
	case v == nil:
		return KeyMissing, nil
	case v.expiresAt.IsZero():
		return NoExpiry, nil
	}
	return v.expiresAt.Sub(m.now()), nil
}

func (m *Memory) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(key); err != nil {
		return err
	}
	if v := m.get(key); v != nil {
		v.expiresAt = m.now().Add(ttl)
	}
	return nil
}

func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		if err := m.fail(k); err != nil {
			return err
		}
	}
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *Memory) ScanKeys(_ context.Context, pattern string, fn func(key string) error) error {
	keys, err := m.matching(pattern)
	if err != nil {
		return err
	}
	// fn runs without the lock so it may call back into the store.
	for _, k := range keys {
		if err := fn(k); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) matching(pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.data {
		if m.get(k) == nil {
			continue
		}
		ok, err := path.Match(pattern, k)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		if ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *Memory) ScanIndex(_ context.Context, index string, fn func(member string) error) error {
	m.mu.Lock()
	v := m.get(index)
	var members []string
	if v != nil {
		if v.zset == nil {
			m.mu.Unlock()
			return ErrWrongType
		}
		for member := range v.zset {
			members = append(members, member)
		}
	}
	m.mu.Unlock()

	sort.Strings(members)
	for _, member := range members {
		if err := fn(member); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) RemoveFromIndex(_ context.Context, index string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.get(index)
	if v == nil {
		return nil
	}
	if v.zset == nil {
		return ErrWrongType
	}
	for _, member := range members {
		delete(v.zset, member)
	}
	if len(v.zset) == 0 {
		delete(m.data, index)
	}
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }

// SetCounter writes a raw counter, bypassing the limit check. A zero ttl
// leaves the key without expiry. Intended for seeding tests.
func (m *Memory) SetCounter(key string, n int64, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := &memValue{counter: &n}
	if ttl > 0 {
		v.expiresAt = m.now().Add(ttl)
	}
	m.data[key] = v
}

// List returns a copy of the list at key, head (oldest) first.
func (m *Memory) List(key string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.get(key)
	if v == nil || v.list == nil {
		return nil
	}
	out := make([]string, 0, len(v.list))
	for i := len(v.list) - 1; i >= 0; i-- {
		out = append(out, v.list[i])
	}
	return out
}

// Snapshot renders every live key into a comparable form.
func (m *Memory) Snapshot() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.data))
	for k := range m.data {
		v := m.get(k)
		if v == nil {
			continue
		}
		var s string
		switch {
		case v.counter != nil:
			s = "counter:" + strconv.FormatInt(*v.counter, 10)
		case v.zset != nil:
			members := make([]string, 0, len(v.zset))
			for member, score := range v.zset {
				members = append(members, fmt.Sprintf("%s=%g", member, score))
			}
			sort.Strings(members)
			s = fmt.Sprintf("zset:%v", members)
		default:
			s = fmt.Sprintf("list:%q", v.list)
		}
		if !v.expiresAt.IsZero() {
			s += "@" + v.expiresAt.UTC().Format(time.RFC3339Nano)
		}
		out[k] = s
	}
	return out
}

var _ KV = (*Memory)(nil)
