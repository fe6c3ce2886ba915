// rpc/rpc_test.go
package rpc

import (
	"context"
	"net/rpc"
	"path/filepath"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/wfunc/skullscore/persistence"
	"github.com/wfunc/skullscore/services"
)

func newGameService(t *testing.T) (*services.GameService, *services.PlayerService) {
	t.Helper()
	store, err := persistence.OpenSQLite(filepath.Join(t.TempDir(), "rpc.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	players := services.NewPlayerService(store, nil, nil, nil)
	games := services.NewGameService(store, nil, nil, nil, services.DefaultRules())
	return games, players
}

func TestScoreboardOverRPC(t *testing.T) {
	games, players := newGameService(t)
	ctx := context.Background()
	anne, _ := players.Create(ctx, services.PlayerInput{Name: "Anne"})
	bob, _ := players.Create(ctx, services.PlayerInput{Name: "Bob"})
	board, err := games.Create(ctx, []int64{anne.ID, bob.ID})
	if err != nil {
		t.Fatalf("Failed to create game: %v", err)
	}

	server, err := NewServer("127.0.0.1:0", games)
	if err != nil {
		t.Fatalf("Failed to start RPC server: %v", err)
	}
	go server.Start()
	defer server.Stop()

	client, err := rpc.Dial("tcp", server.Addr())
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	defer client.Close()

	var reply GetReply
	if err := client.Call("Scoreboard.Get", &GetArgs{GameID: board.Game.ID}, &reply); err != nil {
		t.Fatalf("Scoreboard.Get failed: %v", err)
	}
	if reply.Scoreboard.Game.ID != board.Game.ID || len(reply.Scoreboard.Standings) != 2 {
		t.Errorf("Unexpected scoreboard: %+v", reply.Scoreboard)
	}

	var list ListReply
	if err := client.Call("Scoreboard.List", &ListArgs{}, &list); err != nil {
		t.Fatalf("Scoreboard.List failed: %v", err)
	}
	if len(list.Games) != 1 {
		t.Errorf("Expected 1 game, got %d", len(list.Games))
	}

	if err := client.Call("Scoreboard.Get", &GetArgs{GameID: 999}, &reply); err == nil {
		t.Error("Expected error for unknown game")
	}
}

func TestHealthServer(t *testing.T) {
	server, err := NewHealthServer("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to start health server: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()

	conn, err := grpc.NewClient(server.Addr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	defer conn.Close()
	client := grpc_health_v1.NewHealthClient(conn)

	callCtx, callCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer callCancel()

	resp, err := client.Check(callCtx, &grpc_health_v1.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("Expected SERVING, got %v", resp.GetStatus())
	}

	server.SetServing(false)
	resp, err = client.Check(callCtx, &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Errorf("Expected NOT_SERVING, got %v", resp.GetStatus())
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Expected clean shutdown, got %v", err)
	}
}
