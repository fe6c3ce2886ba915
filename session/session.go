// session/session.go
package session

import (
	"sort"
	"sync"
	"time"

	"github.com/wfunc/skullscore/network"
)

// Session is one websocket viewer.
type Session struct {
	ID         string
	Conn       network.Connection
	CreatedAt  time.Time
	lastActive time.Time
	watching   map[int64]bool // 观看的对局
	mutex      sync.RWMutex
}

func NewSession(id string, conn network.Connection) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		Conn:       conn,
		CreatedAt:  now,
		lastActive: now,
		watching:   make(map[int64]bool),
	}
}

// Watch marks gameID as watched; false when it already was.
func (s *Session) Watch(gameID int64) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.watching[gameID] {
		return false
	}
	s.watching[gameID] = true
	return true
}

func (s *Session) Unwatch(gameID int64) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.watching, gameID)
}

func (s *Session) IsWatching(gameID int64) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.watching[gameID]
}

// Watching returns the watched game ids in ascending order.
func (s *Session) Watching() []int64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	ids := make([]int64, 0, len(s.watching))
	for id := range s.watching {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Touch records client activity such as a heartbeat.
func (s *Session) Touch() {
	s.mutex.Lock()
	s.lastActive = time.Now()
	s.mutex.Unlock()
}

func (s *Session) LastActive() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.lastActive
}

func (s *Session) Send(msgID uint16, data []byte) error {
	s.Touch()
	return s.Conn.Send(msgID, data)
}

func (s *Session) GetID() string {
	return s.ID
}

func (s *Session) Close() error {
	return s.Conn.Close()
}

// Session管理器
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, sessionID)
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// All returns a snapshot of the connected sessions.
func (m *Manager) All() []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	result := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		result = append(result, session)
	}
	return result
}

// GetByGame returns the sessions watching gameID.
func (m *Manager) GetByGame(gameID int64) []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var result []*Session
	for _, session := range m.sessions {
		if session.IsWatching(gameID) {
			result = append(result, session)
		}
	}
	return result
}
