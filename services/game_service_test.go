// services/game_service_test.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wfunc/skullscore/models"
	"github.com/wfunc/skullscore/persistence"
	"github.com/wfunc/skullscore/state"
)

func TestCreateGameValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.createPlayers(t, "A", "B", "C", "D", "E", "F", "G")

	_, err := f.games.Create(ctx, ids[:1])
	assertCode(t, err, CodeNotEnoughPlayers)

	_, err = f.games.Create(ctx, ids)
	assertCode(t, err, CodeTooManyPlayers)

	_, err = f.games.Create(ctx, []int64{ids[0], ids[0]})
	assertCode(t, err, CodeDuplicate)

	_, err = f.games.Create(ctx, []int64{ids[0], 999})
	if !errors.Is(err, persistence.ErrRecordNotFound) {
		t.Errorf("Expected ErrRecordNotFound, got %v", err)
	}

	has, _ := f.games.HasAtLeastOneGame(ctx)
	if has {
		t.Error("Expected no game after failed creations")
	}
}

func TestCreateGameStartsAtRoundOneInSeatingOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.createPlayers(t, "Anne", "Bob", "Cleo")

	board, err := f.games.Create(ctx, []int64{ids[2], ids[0], ids[1]})
	if err != nil {
		t.Fatalf("Failed to create game: %v", err)
	}
	if board.Game.CurrentTurnNumber != 1 || board.Game.Ended {
		t.Errorf("Unexpected game: %+v", board.Game)
	}
	if board.Standings[0].Player.Name != "Cleo" {
		t.Errorf("Expected seating order before any score, got %s first", board.Standings[0].Player.Name)
	}
	if board.Progress.NextAction != state.ActionDeclare {
		t.Errorf("Expected declare, got %s", board.Progress.NextAction)
	}
	if f.events.last().Type != EventGameCreated || f.events.last().Scoreboard == nil {
		t.Errorf("Unexpected event: %+v", f.events.last())
	}

	has, _ := f.games.HasAtLeastOneGame(ctx)
	if !has {
		t.Error("Expected HasAtLeastOneGame")
	}
}

func TestCreateGameSameInstantRetries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.createPlayers(t, "Anne", "Bob")

	first, err := f.games.Create(ctx, ids)
	if err != nil {
		t.Fatalf("Failed to create game: %v", err)
	}
	second, err := f.games.Create(ctx, ids)
	if err != nil {
		t.Fatalf("Expected second game on the same instant, got %v", err)
	}
	if !second.Game.StartDate.After(first.Game.StartDate) {
		t.Errorf("Expected later start date, got %v and %v", first.Game.StartDate, second.Game.StartDate)
	}
}

func TestRematchKeepsSeating(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.createPlayers(t, "Anne", "Bob", "Cleo")

	board, err := f.games.Create(ctx, []int64{ids[1], ids[2], ids[0]})
	if err != nil {
		t.Fatalf("Failed to create game: %v", err)
	}
	rematch, err := f.games.Rematch(ctx, board.Game.ID)
	if err != nil {
		t.Fatalf("Failed to rematch: %v", err)
	}
	if rematch.Game.ID == board.Game.ID {
		t.Error("Expected a new game")
	}
	for i, st := range rematch.Standings {
		if st.Player.ID != board.Standings[i].Player.ID || st.Position != i {
			t.Errorf("Expected seat %d to be kept, got %+v", i, st)
		}
	}

	if _, err := f.games.Rematch(ctx, 999); !errors.Is(err, persistence.ErrRecordNotFound) {
		t.Errorf("Expected ErrRecordNotFound, got %v", err)
	}
}

func TestGameLifecycleThroughService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.createPlayers(t, "Anne", "Bob")
	board, _ := f.games.Create(ctx, ids)
	gameID := board.Game.ID

	for round := 2; round <= models.RoundCount; round++ {
		b, err := f.games.StartNextTurn(ctx, gameID)
		if err != nil {
			t.Fatalf("Failed to start round %d: %v", round, err)
		}
		if b.Game.CurrentTurnNumber != round {
			t.Fatalf("Expected round %d, got %d", round, b.Game.CurrentTurnNumber)
		}
	}

	_, err := f.games.StartNextTurn(ctx, gameID)
	assertCode(t, err, CodeInvalidTransition)

	b, err := f.games.End(ctx, gameID)
	if err != nil {
		t.Fatalf("Failed to end game: %v", err)
	}
	if !b.Game.Ended || b.Game.CurrentTurnNumber != models.RoundCount {
		t.Errorf("Unexpected ended game: %+v", b.Game)
	}
	if b.Progress.NextAction != state.ActionNone {
		t.Errorf("Expected no next action, got %s", b.Progress.NextAction)
	}

	_, err = f.games.End(ctx, gameID)
	assertCode(t, err, CodeGameEnded)
	_, err = f.games.StartNextTurn(ctx, gameID)
	assertCode(t, err, CodeGameEnded)

	types := f.events.types()
	if types[len(types)-1] != EventGameEnded {
		t.Errorf("Expected game_ended last, got %s", types[len(types)-1])
	}
}

func TestListGamesNewestFirstWithLeader(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.createPlayers(t, "Anne", "Bob")

	clock := time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)
	f.games.now = func() time.Time { return clock }
	older, _ := f.games.Create(ctx, ids)
	clock = clock.Add(24 * time.Hour)
	newer, _ := f.games.Create(ctx, ids)

	summaries, err := f.games.List(ctx)
	if err != nil {
		t.Fatalf("Failed to list games: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("Expected 2 games, got %d", len(summaries))
	}
	if summaries[0].Game.ID != newer.Game.ID || summaries[1].Game.ID != older.Game.ID {
		t.Errorf("Expected newest first, got %d then %d", summaries[0].Game.ID, summaries[1].Game.ID)
	}
	if summaries[0].Leader == nil || len(summaries[0].Players) != 2 {
		t.Errorf("Unexpected summary: %+v", summaries[0])
	}
}

func TestDeleteGames(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ids := f.createPlayers(t, "Anne", "Bob")
	board, _ := f.games.Create(ctx, ids)

	if f.cache.Len() == 0 {
		t.Fatal("Expected scoreboard to be cached")
	}

	if err := f.games.DeleteGame(ctx, board.Game.ID); err != nil {
		t.Fatalf("Failed to delete game: %v", err)
	}
	if err := f.games.DeleteGame(ctx, 4242); !errors.Is(err, persistence.ErrRecordNotFound) {
		t.Errorf("Expected ErrRecordNotFound for unknown game, got %v", err)
	}
	if last := f.events.last(); last.Type != EventGameDeleted || last.GameID != board.Game.ID {
		t.Errorf("Expected game_deleted for game %d, got %+v", board.Game.ID, last)
	}
	if f.cache.Len() != 0 {
		t.Errorf("Expected cache entry to be dropped, got %d", f.cache.Len())
	}
	if _, err := f.games.Scoreboard(ctx, board.Game.ID); !errors.Is(err, persistence.ErrRecordNotFound) {
		t.Errorf("Expected ErrRecordNotFound, got %v", err)
	}

	// 删除后玩家可删除
	if n, err := f.players.Delete(ctx, ids); n != 2 || err != nil {
		t.Errorf("Expected players deletable, got %d %v", n, err)
	}
}

// gatedStore 在 armed 时让第一次 ListTurns 阻塞，直到 release 关闭
type gatedStore struct {
	persistence.Store
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) ListTurns(ctx context.Context, gameID int64) ([]models.Turn, error) {
	if g.armed.CompareAndSwap(true, false) {
		close(g.entered)
		<-g.release
	}
	return g.Store.ListTurns(ctx, gameID)
}

func TestSlowReaderDoesNotOverwriteNewerScoreboard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gated := &gatedStore{Store: f.store, entered: make(chan struct{}), release: make(chan struct{})}
	games := NewGameService(gated, f.cache, nil, f.events, DefaultRules())
	games.now = f.games.now

	ids := f.createPlayers(t, "Anne", "Bob")
	board, err := games.Create(ctx, ids)
	if err != nil {
		t.Fatalf("Failed to create game: %v", err)
	}
	gameID := board.Game.ID
	// 缓存过期后读者会直接读库
	if err := f.cache.Delete(ctx, gameID); err != nil {
		t.Fatalf("Failed to drop cache entry: %v", err)
	}

	gated.armed.Store(true)
	read := make(chan *Scoreboard, 1)
	go func() {
		b, err := games.Scoreboard(ctx, gameID)
		if err != nil {
			t.Errorf("Failed to read scoreboard: %v", err)
		}
		read <- b
	}()

	select {
	case <-gated.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("Reader never reached the store")
	}
	if _, err := games.StartNextTurn(ctx, gameID); err != nil {
		t.Fatalf("Failed to start next turn: %v", err)
	}
	close(gated.release)

	stale := <-read
	if stale != nil && stale.Game.CurrentTurnNumber != 1 {
		t.Errorf("Expected reader to see round 1, got %d", stale.Game.CurrentTurnNumber)
	}

	data, ok, err := f.cache.Get(ctx, gameID)
	if err != nil || !ok {
		t.Fatalf("Expected cached scoreboard, got ok=%v err=%v", ok, err)
	}
	var cached Scoreboard
	if err := json.Unmarshal(data, &cached); err != nil {
		t.Fatalf("Failed to decode cached scoreboard: %v", err)
	}
	if cached.Game.CurrentTurnNumber != 2 {
		t.Errorf("Expected cached round 2, got %d", cached.Game.CurrentTurnNumber)
	}
}
