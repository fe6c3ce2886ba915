// broadcast/broadcast.go
package broadcast

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/wfunc/skullscore/logger"
	"github.com/wfunc/skullscore/network"
	"github.com/wfunc/skullscore/services"
	"github.com/wfunc/skullscore/session"
	"github.com/wfunc/skullscore/table"
)

var (
	ErrTableNotFound = errors.New("table not found")
	ErrClosed        = errors.New("broadcaster closed")
)

const queueSize = 256

// 广播接口
type Broadcaster interface {
	BroadcastToGame(gameID int64, msgID uint16, data []byte) error
	BroadcastToAll(msgID uint16, data []byte) error
}

// TableBroadcaster fans committed game events out to the sessions watching
// the game and player events out to every session. It implements services.EventPublisher; events are queued and
// delivered in order on one goroutine.
type TableBroadcaster struct {
	tableManager   *table.Manager
	sessionManager *session.Manager
	queue          chan services.Event
	closeOnce      sync.Once
	closed         chan struct{}
	done           chan struct{}
}

func NewTableBroadcaster(tableManager *table.Manager, sessionManager *session.Manager) *TableBroadcaster {
	b := &TableBroadcaster{
		tableManager:   tableManager,
		sessionManager: sessionManager,
		queue:          make(chan services.Event, queueSize),
		closed:         make(chan struct{}),
		done:           make(chan struct{}),
	}
	go b.loop()
	return b
}

// Publish queues the event; it is dropped with a warning when the queue is full.
func (b *TableBroadcaster) Publish(event services.Event) {
	select {
	case <-b.closed:
		return
	default:
	}
	select {
	case b.queue <- event:
	default:
		logger.Log.Warnf("broadcast queue full, dropping %s for game %d", event.Type, event.GameID)
	}
}

func (b *TableBroadcaster) loop() {
	defer close(b.done)
	for {
		select {
		case event := <-b.queue:
			b.deliver(event)
		case <-b.closed:
			// 发送剩余事件
			for {
				select {
				case event := <-b.queue:
					b.deliver(event)
				default:
					return
				}
			}
		}
	}
}

// MessageFor maps an event to its websocket message id; false for events
// viewers do not receive.
func MessageFor(eventType services.EventType) (uint16, bool) {
	switch eventType {
	case services.EventGameCreated, services.EventTurnStarted:
		return network.MsgTypeScoreboard, true
	case services.EventDeclarationsSaved, services.EventResultsSaved, services.EventBonusUpdated:
		return network.MsgTypeTurnUpdated, true
	case services.EventGameEnded:
		return network.MsgTypeGameEnded, true
	case services.EventGameDeleted:
		return network.MsgTypeGameDeleted, true
	case services.EventPlayerCreated, services.EventPlayerUpdated, services.EventPlayersDeleted:
		return network.MsgTypePlayersChanged, true
	}
	return 0, false
}

func (b *TableBroadcaster) deliver(event services.Event) {
	msgID, ok := MessageFor(event.Type)
	if !ok {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		logger.Log.Errorf("encode %s event: %v", event.Type, err)
		return
	}

	// 玩家事件不属于某一局
	if msgID == network.MsgTypePlayersChanged {
		if err := b.BroadcastToAll(msgID, data); err != nil {
			logger.Log.Warnf("broadcast %s: %v", event.Type, err)
		}
		return
	}
	if event.GameID == 0 {
		return
	}

	if err := b.BroadcastToGame(event.GameID, msgID, data); err != nil && !errors.Is(err, ErrTableNotFound) {
		logger.Log.Warnf("broadcast %s to game %d: %v", event.Type, event.GameID, err)
	}

	if event.Type == services.EventGameDeleted {
		for _, s := range b.sessionManager.GetByGame(event.GameID) {
			s.Unwatch(event.GameID)
		}
		b.tableManager.Remove(event.GameID)
	}
}

func (b *TableBroadcaster) BroadcastToGame(gameID int64, msgID uint16, data []byte) error {
	t, exists := b.tableManager.Get(gameID)
	if !exists {
		return ErrTableNotFound
	}

	for _, s := range t.Watchers() {
		if err := s.Send(msgID, data); err != nil {
			logger.Log.Debugf("send to session %s failed: %v", s.ID, err)
			continue
		}
	}
	return nil
}

func (b *TableBroadcaster) BroadcastToAll(msgID uint16, data []byte) error {
	for _, s := range b.sessionManager.All() {
		if err := s.Send(msgID, data); err != nil {
			logger.Log.Debugf("send to session %s failed: %v", s.ID, err)
			continue
		}
	}
	return nil
}

// Close delivers the queued events and stops the broadcaster.
func (b *TableBroadcaster) Close() error {
	b.closeOnce.Do(func() { close(b.closed) })
	<-b.done
	return nil
}
