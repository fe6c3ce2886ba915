package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/wfunc/skullscore/cache"
	"github.com/wfunc/skullscore/config"
	"github.com/wfunc/skullscore/models"
	"github.com/wfunc/skullscore/network"
	"github.com/wfunc/skullscore/persistence"
	"github.com/wfunc/skullscore/services"
)

func newTestServer(t *testing.T) (*GameServer, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := persistence.OpenSQLite(filepath.Join(t.TempDir(), "server.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := &config.Config{}
	cfg.Server.HTTPAddress = "127.0.0.1:0"
	cfg.Server.RPCAddress = "127.0.0.1:0"
	cfg.Rules.Locale = "en"
	cfg.Rules.MinPlayers = 2
	cfg.Rules.MaxPlayers = 6

	gs, err := NewGameServer(cfg, store, cache.NewMemory(time.Minute))
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	ts := httptest.NewServer(gs.Handler())
	t.Cleanup(func() {
		ts.Close()
		gs.Shutdown(context.Background())
	})
	return gs, ts
}

func postJSON(t *testing.T, method, url string, body any, v any) {
	t.Helper()
	data, _ := json.Marshal(body)
	req, _ := http.NewRequest(method, url, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		t.Fatalf("%s %s: unexpected status %d", method, url, resp.StatusCode)
	}
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
	}
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msgID uint16, v any) {
	t.Helper()
	var data []byte
	if v != nil {
		data, _ = json.Marshal(v)
	}
	packet, err := network.Encode(msgID, data)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, packet); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
}

// read returns the next packet, skipping player list notifications.
func read(t *testing.T, conn *websocket.Conn) *network.Packet {
	t.Helper()
	for {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		packet, err := network.Decode(data)
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if packet.MsgID != network.MsgTypePlayersChanged {
			return packet
		}
	}
}

func TestWatchGame(t *testing.T) {
	_, ts := newTestServer(t)

	var anne, bob models.Player
	postJSON(t, http.MethodPost, ts.URL+"/api/players", services.PlayerInput{Name: "Anne"}, &anne)
	postJSON(t, http.MethodPost, ts.URL+"/api/players", services.PlayerInput{Name: "Bob"}, &bob)
	var board services.Scoreboard
	postJSON(t, http.MethodPost, ts.URL+"/api/games", map[string]any{"player_ids": []int64{anne.ID, bob.ID}}, &board)

	conn := dial(t, ts)

	send(t, conn, network.MsgTypeHeartbeat, nil)
	if p := read(t, conn); p.MsgID != network.MsgTypeHeartbeat {
		t.Fatalf("Expected heartbeat reply, got %d", p.MsgID)
	}

	send(t, conn, network.MsgTypeWatch, network.WatchRequest{GameID: 999})
	p := read(t, conn)
	if p.MsgID != network.MsgTypeError {
		t.Fatalf("Expected error packet, got %d", p.MsgID)
	}
	var errMsg network.ErrorMessage
	json.Unmarshal(p.Data, &errMsg)
	if errMsg.GameID != 999 || errMsg.Code != "not_found" {
		t.Errorf("Unexpected error message: %+v", errMsg)
	}

	send(t, conn, network.MsgTypeWatch, network.WatchRequest{GameID: board.Game.ID})
	p = read(t, conn)
	if p.MsgID != network.MsgTypeScoreboard {
		t.Fatalf("Expected scoreboard packet, got %d", p.MsgID)
	}
	var event services.Event
	json.Unmarshal(p.Data, &event)
	if event.Type != services.EventSnapshot || event.Scoreboard == nil || len(event.Scoreboard.Standings) != 2 {
		t.Errorf("Unexpected snapshot: %+v", event)
	}

	gameURL := fmt.Sprintf("%s/api/games/%d", ts.URL, board.Game.ID)
	postJSON(t, http.MethodPut, gameURL+"/turns/current/declarations", map[string]any{
		"declarations": []services.Declaration{
			{PlayerID: anne.ID, Declaration: models.Int(1)},
			{PlayerID: bob.ID, Declaration: models.Int(0)},
		},
	}, nil)

	p = read(t, conn)
	if p.MsgID != network.MsgTypeTurnUpdated {
		t.Fatalf("Expected turn update, got %d", p.MsgID)
	}
	json.Unmarshal(p.Data, &event)
	if event.Type != services.EventDeclarationsSaved || event.GameID != board.Game.ID {
		t.Errorf("Unexpected event: %+v", event)
	}

	postJSON(t, http.MethodDelete, ts.URL+"/api/games", map[string]any{"ids": []int64{board.Game.ID}}, nil)
	p = read(t, conn)
	if p.MsgID != network.MsgTypeGameDeleted {
		t.Fatalf("Expected game deleted, got %d", p.MsgID)
	}
}

func TestWatchRequiresGameID(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dial(t, ts)

	send(t, conn, network.MsgTypeWatch, map[string]string{"game_id": "x"})
	p := read(t, conn)
	if p.MsgID != network.MsgTypeError {
		t.Fatalf("Expected error packet, got %d", p.MsgID)
	}
	var errMsg network.ErrorMessage
	json.Unmarshal(p.Data, &errMsg)
	if errMsg.Code != string(services.CodeRequired) {
		t.Errorf("Expected code required, got %q", errMsg.Code)
	}
}

func TestShutdownClosesViewers(t *testing.T) {
	gs, ts := newTestServer(t)
	conn := dial(t, ts)

	send(t, conn, network.MsgTypeHeartbeat, nil)
	read(t, conn)

	if err := gs.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("Expected connection closed after shutdown")
	}
}

func TestShutdownCancelsBackgroundTimers(t *testing.T) {
	gs, _ := newTestServer(t)
	gs.cfg.Table.IdleTimeout = time.Minute

	gs.startBackground()
	if n := gs.scheduler.Len(); n != 2 {
		t.Fatalf("Expected store ping and reaper scheduled, got %d", n)
	}
	gs.stopTimers()
	if n := gs.scheduler.Len(); n != 0 {
		t.Errorf("Expected no scheduled task after stop, got %d", n)
	}
}
