// services/services_test.go
package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/wfunc/skullscore/cache"
	"github.com/wfunc/skullscore/persistence"
	"github.com/wfunc/skullscore/scoring"
)

// recorder 记录发布的事件
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Publish(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func (r *recorder) last() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return Event{}
	}
	return r.events[len(r.events)-1]
}

type fixture struct {
	store   *persistence.SQLite
	events  *recorder
	cache   *cache.Memory
	groups  *GroupService
	players *PlayerService
	games   *GameService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := persistence.OpenSQLite(filepath.Join(t.TempDir(), "services.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	f := &fixture{store: store, events: &recorder{}, cache: cache.NewMemory(time.Minute)}
	collator := scoring.NewCollator("en")
	f.groups = NewGroupService(store)
	f.players = NewPlayerService(store, f.groups, collator, f.events)
	f.games = NewGameService(store, f.cache, collator, f.events, DefaultRules())

	clock := time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)
	f.games.now = func() time.Time { return clock }
	return f
}

func (f *fixture) createPlayers(t *testing.T, names ...string) []int64 {
	t.Helper()
	ids := make([]int64, 0, len(names))
	for _, name := range names {
		p, err := f.players.Create(context.Background(), PlayerInput{Name: name})
		if err != nil {
			t.Fatalf("Failed to create player %s: %v", name, err)
		}
		ids = append(ids, p.ID)
	}
	return ids
}

func assertCode(t *testing.T, err error, code Code) {
	t.Helper()
	v, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("Expected *ValidationError with code %s, got %v", code, err)
	}
	if v.Code != code {
		t.Fatalf("Expected code %s, got %s", code, v.Code)
	}
}

func TestPublishersFanOutInOrder(t *testing.T) {
	var got []string
	first := PublisherFunc(func(e Event) { got = append(got, "first:"+string(e.Type)) })
	second := PublisherFunc(func(e Event) { got = append(got, "second:"+string(e.Type)) })

	Publishers(first, nil, second).Publish(Event{Type: EventGameCreated, GameID: 1})

	if len(got) != 2 || got[0] != "first:game_created" || got[1] != "second:game_created" {
		t.Errorf("Expected both publishers in order, got %v", got)
	}
}
