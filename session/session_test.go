// session/session_test.go
package session

import (
	"net"
	"testing"
	"time"

	"github.com/wfunc/skullscore/network"
)

// MockConnection is a test double for the network.Connection interface.
type MockConnection struct {
	sent []uint16
}

func (m *MockConnection) Send(msgID uint16, data []byte) error {
	m.sent = append(m.sent, msgID)
	return nil
}
func (m *MockConnection) Close() error                         { return nil }
func (m *MockConnection) RemoteAddr() net.Addr                 { return &net.TCPAddr{} }
func (m *MockConnection) SetHeartbeat(interval time.Duration)  {}
func (m *MockConnection) ReadPacket() (*network.Packet, error) { return nil, nil }

func TestNewManager(t *testing.T) {
	manager := NewManager()
	if manager == nil {
		t.Fatal("NewManager should not return nil")
	}
	if manager.sessions == nil {
		t.Fatal("NewManager should initialize the sessions map")
	}
}

func TestManagerAddGetRemove(t *testing.T) {
	manager := NewManager()
	sessionID := "test_session_1"
	sess := NewSession(sessionID, &MockConnection{})

	manager.Add(sess)
	if manager.Count() != 1 {
		t.Fatalf("Expected session count to be 1, got %d", manager.Count())
	}

	retrievedSess, exists := manager.Get(sessionID)
	if !exists {
		t.Fatal("Get should find the added session")
	}
	if retrievedSess != sess {
		t.Fatal("Get should return the same session instance")
	}

	manager.Remove(sessionID)
	if manager.Count() != 0 {
		t.Fatalf("Expected session count to be 0 after removal, got %d", manager.Count())
	}

	if _, exists = manager.Get(sessionID); exists {
		t.Fatal("Get should not find the removed session")
	}
}

func TestManagerGetByGame(t *testing.T) {
	manager := NewManager()

	sess1 := NewSession("session1", &MockConnection{})
	sess1.Watch(100)
	sess2 := NewSession("session2", &MockConnection{})
	sess2.Watch(200)
	sess3 := NewSession("session3", &MockConnection{})
	sess3.Watch(100)
	sess3.Watch(200)

	manager.Add(sess1)
	manager.Add(sess2)
	manager.Add(sess3)

	if got := len(manager.GetByGame(100)); got != 2 {
		t.Errorf("Expected 2 sessions for game 100, got %d", got)
	}
	if got := len(manager.GetByGame(200)); got != 2 {
		t.Errorf("Expected 2 sessions for game 200, got %d", got)
	}
	if got := len(manager.GetByGame(300)); got != 0 {
		t.Errorf("Expected 0 sessions for game 300, got %d", got)
	}
	if got := len(manager.All()); got != 3 {
		t.Errorf("Expected 3 sessions, got %d", got)
	}
}

func TestSessionWatch(t *testing.T) {
	sess := NewSession("test_session", &MockConnection{})

	if !sess.Watch(7) {
		t.Error("Expected first watch to report true")
	}
	if sess.Watch(7) {
		t.Error("Expected second watch to report false")
	}
	sess.Watch(3)

	ids := sess.Watching()
	if len(ids) != 2 || ids[0] != 3 || ids[1] != 7 {
		t.Errorf("Expected [3 7], got %v", ids)
	}

	sess.Unwatch(7)
	if sess.IsWatching(7) {
		t.Error("Expected game 7 to be unwatched")
	}
}

func TestSessionSendTouches(t *testing.T) {
	conn := &MockConnection{}
	sess := NewSession("test_session", conn)
	before := sess.LastActive()

	time.Sleep(time.Millisecond)
	if err := sess.Send(network.MsgTypeScoreboard, []byte("{}")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if !sess.LastActive().After(before) {
		t.Error("Expected Send to update last activity")
	}
	if len(conn.sent) != 1 || conn.sent[0] != network.MsgTypeScoreboard {
		t.Errorf("Unexpected sent messages: %v", conn.sent)
	}
}
