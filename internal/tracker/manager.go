package tracker

import (
	"context"
	"sync"
	"time"

	"forest-api/internal/logger"
	"forest-api/internal/metrics"
)

// DefaultSessionTTL 会话空闲超时
const DefaultSessionTTL = 30 * time.Minute

// 文档注释：会话注册表（按 session_id 索引）
// 背景：HTTP 层无状态，位置流由客户端携带 session_id 关联到同一状态机。
// 约束：空闲超过 TTL 的会话由 Run 启动的清理协程移除并 Close。
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	factory  func(id string) *Session
	ttl      time.Duration
	now      func() time.Time
}

func NewManager(factory func(id string) *Session, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Manager{
		sessions: make(map[string]*Session),
		factory:  factory,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get：查找已有会话
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// GetOrCreate：不存在则由工厂创建
func (m *Manager) GetOrCreate(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s
	}
	s := m.factory(id)
	m.sessions[id] = s
	metrics.ActiveSessions.Set(float64(len(m.sessions)))
	logger.L().Debug("session_created", "session_id", id)
	return s
}

// Remove：显式结束会话
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		metrics.ActiveSessions.Set(float64(len(m.sessions)))
	}
	m.mu.Unlock()
	if ok {
		s.Close()
	}
	return ok
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep：移除空闲超时的会话，返回移除数量
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.ttl)
	var expired []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if s.LastSeen().Before(cutoff) {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	metrics.ActiveSessions.Set(float64(len(m.sessions)))
	m.mu.Unlock()
	for _, s := range expired {
		s.Close()
	}
	if len(expired) > 0 {
		logger.L().Info("session_sweep", "expired", len(expired))
	}
	return len(expired)
}

// Run：周期清理，直到 ctx 结束
func (m *Manager) Run(ctx context.Context) {
	interval := m.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Sweep()
		}
	}
}
