package orchestrator

import (
	"sync"
	"time"

	"github.com/Nyukimin/toolrouter/pkg/logger"
)

// DefaultMaxSessions はPoolが保持するセッション数の上限
const DefaultMaxSessions = 256

// Factory はIDに対応する新しいセッションを作成
type Factory func(id string) *Orchestrator

type pooled struct {
	session  *Orchestrator
	lastUsed time.Time
}

// Pool はIDごとに1セッションを払い出す
// 上限到達時は最も長く使われていないセッションを破棄
type Pool struct {
	mu       sync.Mutex
	factory  Factory
	max      int
	sessions map[string]*pooled
}

// NewPool は新しいPoolを作成（max が0以下なら DefaultMaxSessions）
func NewPool(factory Factory, max int) *Pool {
	if factory == nil {
		panic("orchestrator: NewPool called with nil factory")
	}
	if max <= 0 {
		max = DefaultMaxSessions
	}
	return &Pool{factory: factory, max: max, sessions: make(map[string]*pooled)}
}

// Get はIDのセッションを返す（初回は作成）
func (p *Pool) Get(id string) *Orchestrator {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.sessions[id]; ok {
		s.lastUsed = time.Now()
		return s.session
	}
	if len(p.sessions) >= p.max {
		p.evictOldest()
	}
	s := &pooled{session: p.factory(id), lastUsed: time.Now()}
	p.sessions[id] = s
	return s.session
}

// Drop はIDのセッションを破棄
func (p *Pool) Drop(id string) {
	p.mu.Lock()
	delete(p.sessions, id)
	p.mu.Unlock()
}

// Len は保持中のセッション数を返す
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

func (p *Pool) evictOldest() {
	var oldestID string
	var oldest time.Time
	for id, s := range p.sessions {
		if oldestID == "" || s.lastUsed.Before(oldest) {
			oldestID, oldest = id, s.lastUsed
		}
	}
	delete(p.sessions, oldestID)
	logger.DebugCF("orchestrator", "session.evicted", map[string]interface{}{"session_id": oldestID})
}
