// services/events.go
package services

// EventType 事件类型
type EventType string

const (
	EventGameCreated       EventType = "game_created"
	EventDeclarationsSaved EventType = "declarations_saved"
	EventResultsSaved      EventType = "results_saved"
	EventBonusUpdated      EventType = "bonus_updated"
	EventTurnStarted       EventType = "turn_started"
	EventGameEnded         EventType = "game_ended"
	EventGameDeleted       EventType = "game_deleted"
	EventPlayerCreated     EventType = "player_created"
	EventPlayerUpdated     EventType = "player_updated"
	EventPlayersDeleted    EventType = "players_deleted"

	// EventSnapshot is sent to one viewer when it starts watching a game;
	// it is never published.
	EventSnapshot EventType = "snapshot"
)

// Event is published after a mutation committed. Game events carry the
// scoreboard as it is after the mutation; GameDeleted carries none.
type Event struct {
	Type       EventType   `json:"type"`
	GameID     int64       `json:"game_id,omitempty"`
	PlayerIDs  []int64     `json:"player_ids,omitempty"`
	Scoreboard *Scoreboard `json:"scoreboard,omitempty"`
}

// EventPublisher receives committed events. Publish must not block.
type EventPublisher interface {
	Publish(event Event)
}

// PublisherFunc adapts a function to EventPublisher.
type PublisherFunc func(Event)

func (f PublisherFunc) Publish(event Event) { f(event) }

type nopPublisher struct{}

func (nopPublisher) Publish(Event) {}

type multiPublisher []EventPublisher

func (m multiPublisher) Publish(event Event) {
	for _, p := range m {
		p.Publish(event)
	}
}

// Publishers fans every event out to each non-nil publisher in order.
func Publishers(publishers ...EventPublisher) EventPublisher {
	var out multiPublisher
	for _, p := range publishers {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}
