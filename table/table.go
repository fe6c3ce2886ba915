// table/table.go
package table

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wfunc/skullscore/logger"
	"github.com/wfunc/skullscore/session"
	"github.com/wfunc/skullscore/timer"
)

// ErrTableClosed is returned when a command reaches a closed table.
var ErrTableClosed = errors.New("table closed")

// Command mutates one game. It receives a context that is never canceled so
// that it commits or rolls back as a whole.
type Command func(ctx context.Context) error

type request struct {
	ctx    context.Context
	fn     Command
	result chan error
}

// Table 一局游戏的牌桌: commands for the game run one at a time on the
// table goroutine, and viewers watching the game are attached here.
type Table struct {
	GameID    int64
	CreatedAt time.Time

	requests  chan request
	closeChan chan struct{}
	closeOnce sync.Once
	done      chan struct{}

	watchers    map[string]*session.Session // sessionID -> session
	watcherLock sync.RWMutex

	activity   sync.Mutex
	lastActive time.Time
	pending    int
}

// NewTable 创建牌桌并启动主循环
func NewTable(gameID int64) *Table {
	now := time.Now()
	t := &Table{
		GameID:     gameID,
		CreatedAt:  now,
		requests:   make(chan request),
		closeChan:  make(chan struct{}),
		done:       make(chan struct{}),
		watchers:   make(map[string]*session.Session),
		lastActive: now,
	}
	go t.loop()
	return t
}

// Do runs fn on the table goroutine after the commands queued before it.
// When ctx ends first, Do returns ctx.Err() and fn still runs to completion.
func (t *Table) Do(ctx context.Context, fn Command) error {
	req := request{ctx: ctx, fn: fn, result: make(chan error, 1)}

	t.begin()
	select {
	case t.requests <- req:
	case <-t.closeChan:
		t.end()
		return ErrTableClosed
	case <-ctx.Done():
		t.end()
		return ctx.Err()
	}

	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Table) loop() {
	defer close(t.done)
	for {
		select {
		case req := <-t.requests:
			req.result <- t.run(req)
			t.end()
		case <-t.closeChan:
			return
		}
	}
}

func (t *Table) run(req request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Errorf("table %d: command panicked: %v", t.GameID, r)
			err = errors.New("command panicked")
		}
	}()
	return req.fn(context.WithoutCancel(req.ctx))
}

func (t *Table) begin() {
	t.activity.Lock()
	t.pending++
	t.lastActive = time.Now()
	t.activity.Unlock()
}

func (t *Table) end() {
	t.activity.Lock()
	t.pending--
	t.lastActive = time.Now()
	t.activity.Unlock()
}

// AddWatcher attaches a viewer session.
func (t *Table) AddWatcher(s *session.Session) {
	t.watcherLock.Lock()
	t.watchers[s.ID] = s
	t.watcherLock.Unlock()
	t.touch()
}

// RemoveWatcher detaches a viewer session.
func (t *Table) RemoveWatcher(sessionID string) {
	t.watcherLock.Lock()
	delete(t.watchers, sessionID)
	t.watcherLock.Unlock()
	t.touch()
}

// Watchers returns a snapshot of the attached sessions.
func (t *Table) Watchers() []*session.Session {
	t.watcherLock.RLock()
	defer t.watcherLock.RUnlock()

	sessions := make([]*session.Session, 0, len(t.watchers))
	for _, s := range t.watchers {
		sessions = append(sessions, s)
	}
	return sessions
}

func (t *Table) WatcherCount() int {
	t.watcherLock.RLock()
	defer t.watcherLock.RUnlock()
	return len(t.watchers)
}

func (t *Table) touch() {
	t.activity.Lock()
	t.lastActive = time.Now()
	t.activity.Unlock()
}

// Idle reports whether the table has no viewer, no queued command and no
// activity for at least timeout.
func (t *Table) Idle(now time.Time, timeout time.Duration) bool {
	if t.WatcherCount() > 0 {
		return false
	}
	t.activity.Lock()
	defer t.activity.Unlock()
	return t.pending == 0 && now.Sub(t.lastActive) >= timeout
}

// Close 关闭牌桌, waiting for the running command to finish.
func (t *Table) Close() {
	t.closeOnce.Do(func() { close(t.closeChan) })
	<-t.done
}

// --- 牌桌管理器 ---

// Manager 管理所有牌桌
type Manager struct {
	tables   map[int64]*Table
	mutex    sync.RWMutex
	onChange func(count int)
}

func NewManager() *Manager {
	return &Manager{
		tables: make(map[int64]*Table),
	}
}

// OnChange registers a callback receiving the table count after each change.
func (m *Manager) OnChange(fn func(count int)) {
	m.mutex.Lock()
	m.onChange = fn
	m.mutex.Unlock()
}

// Get 获取牌桌
func (m *Manager) Get(gameID int64) (*Table, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	t, ok := m.tables[gameID]
	return t, ok
}

// GetOrCreate returns the table of gameID, opening it when needed.
func (m *Manager) GetOrCreate(gameID int64) *Table {
	if t, ok := m.Get(gameID); ok {
		return t
	}

	m.mutex.Lock()
	t, ok := m.tables[gameID]
	if !ok {
		t = NewTable(gameID)
		m.tables[gameID] = t
	}
	count, notify := len(m.tables), m.onChange
	m.mutex.Unlock()

	if !ok && notify != nil {
		notify(count)
	}
	return t
}

// Do serialises fn with every other command of gameID.
func (m *Manager) Do(ctx context.Context, gameID int64, fn Command) error {
	for attempt := 0; ; attempt++ {
		err := m.GetOrCreate(gameID).Do(ctx, fn)
		// 牌桌刚被回收时重试一次
		if errors.Is(err, ErrTableClosed) && attempt == 0 {
			continue
		}
		return err
	}
}

// Watch attaches s to the table of gameID. The table lookup and the attach
// happen under the manager lock so Reap cannot close the table in between.
func (m *Manager) Watch(gameID int64, s *session.Session) {
	m.mutex.Lock()
	t, ok := m.tables[gameID]
	if !ok {
		t = NewTable(gameID)
		m.tables[gameID] = t
	}
	s.Watch(gameID)
	t.AddWatcher(s)
	count, notify := len(m.tables), m.onChange
	m.mutex.Unlock()

	if !ok && notify != nil {
		notify(count)
	}
}

// Unwatch detaches s from gameID.
func (m *Manager) Unwatch(gameID int64, s *session.Session) {
	s.Unwatch(gameID)
	if t, ok := m.Get(gameID); ok {
		t.RemoveWatcher(s.ID)
	}
}

// UnwatchAll detaches s from every table, e.g. on disconnect.
func (m *Manager) UnwatchAll(s *session.Session) {
	for _, gameID := range s.Watching() {
		m.Unwatch(gameID, s)
	}
}

// Watchers returns the sessions watching gameID.
func (m *Manager) Watchers(gameID int64) []*session.Session {
	t, ok := m.Get(gameID)
	if !ok {
		return nil
	}
	return t.Watchers()
}

// Remove 移除并关闭牌桌
func (m *Manager) Remove(gameID int64) {
	m.mutex.Lock()
	t, ok := m.tables[gameID]
	if ok {
		delete(m.tables, gameID)
	}
	count, notify := len(m.tables), m.onChange
	m.mutex.Unlock()

	if ok {
		t.Close()
		if notify != nil {
			notify(count)
		}
	}
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.tables)
}

// Reap closes the tables idle for at least timeout and returns how many.
func (m *Manager) Reap(timeout time.Duration) int {
	now := time.Now()

	m.mutex.RLock()
	var idle []int64
	for id, t := range m.tables {
		if t.Idle(now, timeout) {
			idle = append(idle, id)
		}
	}
	m.mutex.RUnlock()

	reaped := 0
	for _, id := range idle {
		if m.removeIdle(id, now, timeout) {
			reaped++
		}
	}
	if reaped > 0 {
		logger.Log.Debugf("reaped %d idle tables", reaped)
	}
	return reaped
}

// removeIdle 在写锁下重新检查空闲后再移除
func (m *Manager) removeIdle(gameID int64, now time.Time, timeout time.Duration) bool {
	m.mutex.Lock()
	t, ok := m.tables[gameID]
	if !ok || !t.Idle(now, timeout) {
		m.mutex.Unlock()
		return false
	}
	delete(m.tables, gameID)
	count, notify := len(m.tables), m.onChange
	m.mutex.Unlock()

	t.Close()
	if notify != nil {
		notify(count)
	}
	return true
}

// StartReaper schedules Reap on s every interval.
func (m *Manager) StartReaper(s *timer.Scheduler, interval, timeout time.Duration) int64 {
	return s.Every(interval, func() { m.Reap(timeout) })
}

// Close 关闭所有牌桌
func (m *Manager) Close() {
	m.mutex.Lock()
	tables := m.tables
	m.tables = make(map[int64]*Table)
	m.mutex.Unlock()

	for _, t := range tables {
		t.Close()
	}
}
