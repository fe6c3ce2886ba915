// services/turn_service_test.go
package services

import (
	"context"
	"testing"

	"github.com/wfunc/skullscore/models"
	"github.com/wfunc/skullscore/state"
)

func startGame(t *testing.T, f *fixture, names ...string) (int64, []int64) {
	t.Helper()
	ids := f.createPlayers(t, names...)
	board, err := f.games.Create(context.Background(), ids)
	if err != nil {
		t.Fatalf("Failed to create game: %v", err)
	}
	return board.Game.ID, ids
}

func TestDeclarationsAndResults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gameID, ids := startGame(t, f, "Anne", "Bob")

	board, err := f.games.SaveDeclarations(ctx, gameID, []Declaration{
		{PlayerID: ids[0], Declaration: models.Int(1)},
		{PlayerID: ids[1], Declaration: models.Int(0)},
	})
	if err != nil {
		t.Fatalf("Failed to save declarations: %v", err)
	}
	if !board.Progress.DeclarationsSet || board.Progress.NextAction != state.ActionRecordResults {
		t.Errorf("Unexpected progress: %+v", board.Progress)
	}

	// Bob 的结果默认等于叫牌
	board, err = f.games.SaveResults(ctx, gameID, []ResultEntry{{PlayerID: ids[0], Result: models.Int(1)}})
	if err != nil {
		t.Fatalf("Failed to save results: %v", err)
	}
	if !board.Progress.ResultsSet || board.Progress.NextAction != state.ActionAdvance {
		t.Errorf("Unexpected progress: %+v", board.Progress)
	}

	if board.Standings[0].Player.ID != ids[0] || board.Standings[0].Score != 20 {
		t.Errorf("Expected Anne leading with 20, got %+v", board.Standings[0])
	}
	if board.Standings[1].Score != 10 {
		t.Errorf("Expected Bob with 10, got %d", board.Standings[1].Score)
	}

	types := f.events.types()
	if types[len(types)-1] != EventResultsSaved || types[len(types)-2] != EventDeclarationsSaved {
		t.Errorf("Unexpected events: %v", types)
	}
}

func TestResultsSumMismatchWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gameID, ids := startGame(t, f, "Anne", "Bob")

	f.games.SaveDeclarations(ctx, gameID, []Declaration{
		{PlayerID: ids[0], Declaration: models.Int(1)},
		{PlayerID: ids[1], Declaration: models.Int(1)},
	})

	_, err := f.games.SaveResults(ctx, gameID, []ResultEntry{
		{PlayerID: ids[0], Result: models.Int(1)},
		{PlayerID: ids[1], Result: models.Int(1)},
	})
	assertCode(t, err, CodeInvalidResultSum)
	if v := err.(*ValidationError); v.Arg != 1 {
		t.Errorf("Expected expected sum 1 as arg, got %d", v.Arg)
	}

	view, err := f.games.CurrentTurn(ctx, gameID)
	if err != nil {
		t.Fatalf("Failed to load turn: %v", err)
	}
	for _, r := range view.Turn.Results {
		if r.Result != nil {
			t.Errorf("Expected no result written, got %d for player %d", *r.Result, r.PlayerID)
		}
	}
}

func TestTurnValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gameID, ids := startGame(t, f, "Anne", "Bob")
	other := f.createPlayers(t, "Zed")

	_, err := f.games.SaveDeclarations(ctx, gameID, []Declaration{{PlayerID: other[0], Declaration: models.Int(0)}})
	assertCode(t, err, CodeNotInGame)

	_, err = f.games.SaveDeclarations(ctx, gameID, []Declaration{
		{PlayerID: ids[0], Declaration: models.Int(0)},
		{PlayerID: ids[0], Declaration: models.Int(1)},
	})
	assertCode(t, err, CodeDuplicate)

	_, err = f.games.SaveDeclarations(ctx, gameID, []Declaration{{PlayerID: ids[0]}})
	assertCode(t, err, CodeRequired)

	_, err = f.games.UpdateBonus(ctx, gameID, []BonusClaim{{PlayerID: ids[0], PirateCount: models.Int(6)}})
	assertCode(t, err, CodeOutOfRange)

	_, err = f.games.Turn(ctx, gameID, 11)
	assertCode(t, err, CodeOutOfRange)

	if _, err := f.games.End(ctx, gameID); err != nil {
		t.Fatalf("Failed to end game: %v", err)
	}
	_, err = f.games.SaveDeclarations(ctx, gameID, []Declaration{{PlayerID: ids[0], Declaration: models.Int(0)}})
	assertCode(t, err, CodeGameEnded)
}

func TestBonusHasSingleHolder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gameID, ids := startGame(t, f, "Anne", "Bob", "Cleo")

	if _, err := f.games.UpdateBonus(ctx, gameID, []BonusClaim{
		{PlayerID: ids[0], HasSkullKing: models.Bool(true), PirateCount: models.Int(2)},
	}); err != nil {
		t.Fatalf("Failed to update bonus: %v", err)
	}
	if _, err := f.games.UpdateBonus(ctx, gameID, []BonusClaim{
		{PlayerID: ids[1], HasMermaid: models.Bool(true)},
	}); err != nil {
		t.Fatalf("Failed to update bonus: %v", err)
	}

	view, _ := f.games.CurrentTurn(ctx, gameID)
	holders := 0
	for _, r := range view.Turn.Results {
		if r.HasBonus() {
			holders++
			if r.PlayerID != ids[1] || !r.Mermaid() {
				t.Errorf("Expected Bob to hold the mermaid, got %+v", r)
			}
		}
		if r.PlayerID == ids[0] && r.Pirates() != 0 {
			t.Errorf("Expected Anne's pirates cleared, got %d", r.Pirates())
		}
	}
	if holders != 1 {
		t.Errorf("Expected exactly one bonus holder, got %d", holders)
	}
}

func TestApplyBonusClaimsLastClaimerWins(t *testing.T) {
	results := []models.TurnResult{{PlayerID: 1}, {PlayerID: 2}}
	out := ApplyBonusClaims(results, []BonusClaim{
		{PlayerID: 1, HasSkullKing: models.Bool(true), PirateCount: models.Int(3)},
		{PlayerID: 2, HasSkullKing: models.Bool(true), PirateCount: models.Int(1)},
	})

	if out[0].SkullKing() || out[0].Pirates() != 0 {
		t.Errorf("Expected first claimer cleared, got %+v", out[0])
	}
	if !out[1].SkullKing() || out[1].Pirates() != 1 {
		t.Errorf("Expected second claimer to hold skull king, got %+v", out[1])
	}
	if results[0].HasSkullKing != nil {
		t.Error("Expected input to stay untouched")
	}

	// 同一玩家切换到美人鱼
	out = ApplyBonusClaims(out, []BonusClaim{{PlayerID: 2, HasMermaid: models.Bool(true)}})
	if out[1].SkullKing() || !out[1].Mermaid() || out[1].Pirates() != 0 {
		t.Errorf("Expected mermaid to replace skull king, got %+v", out[1])
	}
}

func TestCurrentTurnSortedByName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gameID, _ := startGame(t, f, "zoe", "Anne", "bob")

	view, err := f.games.CurrentTurn(ctx, gameID)
	if err != nil {
		t.Fatalf("Failed to load turn: %v", err)
	}
	want := []string{"Anne", "bob", "zoe"}
	for i, r := range view.Turn.Results {
		if r.Player == nil || r.Player.Name != want[i] {
			t.Errorf("Expected %s at %d, got %+v", want[i], i, r.Player)
		}
	}

	history, err := f.games.Turn(ctx, gameID, 4)
	if err != nil {
		t.Fatalf("Failed to load turn 4: %v", err)
	}
	if history.Turn.Number != 4 || history.Progress.Round != 1 {
		t.Errorf("Unexpected history view: turn %d round %d", history.Turn.Number, history.Progress.Round)
	}
}
