package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wfunc/skullscore/logger"
	"github.com/wfunc/skullscore/network"
	"github.com/wfunc/skullscore/services"
)

// send encodes and writes one packet.
func send(c *websocket.Conn, msgID uint16, v any) error {
	var data []byte
	if v != nil {
		var err error
		if data, err = json.Marshal(v); err != nil {
			return err
		}
	}
	packet, err := network.Encode(msgID, data)
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.BinaryMessage, packet)
}

func printScoreboard(event services.Event) {
	board := event.Scoreboard
	if board == nil {
		return
	}
	status := fmt.Sprintf("round %d", board.Game.CurrentTurnNumber)
	if board.Game.Ended {
		status = "ended"
	}
	fmt.Printf("game %d (%s, %s)\n", board.Game.ID, event.Type, status)
	for _, st := range board.Standings {
		bid := "-"
		if st.CurrentDeclaration != nil {
			bid = fmt.Sprint(*st.CurrentDeclaration)
		}
		fmt.Printf("  %d. %-20s %5d  bid %s\n", st.Place, st.Player.Name, st.Score, bid)
	}
}

func main() {
	addr := flag.String("addr", "localhost:8080", "server address")
	gameID := flag.Int64("game", 0, "game to watch")
	heartbeat := flag.Duration("heartbeat", 20*time.Second, "heartbeat interval")
	flag.Parse()

	if err := logger.Init("info", true); err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if *gameID <= 0 {
		logger.Log.Fatal("-game is required")
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws"}
	logger.Log.Infof("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		logger.Log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				logger.Log.Infof("Read error: %v", err)
				return
			}
			packet, err := network.Decode(message)
			if err != nil {
				logger.Log.Warnf("Received invalid packet of size %d", len(message))
				continue
			}
			switch packet.MsgID {
			case network.MsgTypeHeartbeat:
			case network.MsgTypeError:
				var msg network.ErrorMessage
				json.Unmarshal(packet.Data, &msg)
				logger.Log.Errorf("game %d: %s (%s)", msg.GameID, msg.Error, msg.Code)
			case network.MsgTypePlayersChanged:
				logger.Log.Debugf("players changed")
			case network.MsgTypeGameDeleted:
				logger.Log.Infof("game %d was deleted", *gameID)
				return
			default:
				var event services.Event
				if err := json.Unmarshal(packet.Data, &event); err != nil {
					logger.Log.Warnf("RECV (ID: %d): %s", packet.MsgID, string(packet.Data))
					continue
				}
				printScoreboard(event)
			}
		}
	}()

	if err := send(c, network.MsgTypeWatch, network.WatchRequest{GameID: *gameID}); err != nil {
		logger.Log.Fatalf("Write error: %v", err)
	}

	ticker := time.NewTicker(*heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := send(c, network.MsgTypeHeartbeat, nil); err != nil {
				logger.Log.Infof("Write error: %v", err)
				return
			}
		case <-interrupt:
			logger.Log.Info("Interrupt received, closing connection.")
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				logger.Log.Infof("Write close error: %v", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		}
	}
}
