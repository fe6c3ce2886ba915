// services/player_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/wfunc/skullscore/logger"
	"github.com/wfunc/skullscore/models"
	"github.com/wfunc/skullscore/persistence"
	"github.com/wfunc/skullscore/scoring"
)

// PlayerInput is the editable part of a player.
type PlayerInput struct {
	Name   string   `json:"name"`
	Groups []string `json:"groups"`
}

type PlayerService struct {
	store     persistence.Store
	groups    *GroupService
	collator  *scoring.Collator
	publisher EventPublisher
}

func NewPlayerService(store persistence.Store, groups *GroupService, collator *scoring.Collator, publisher EventPublisher) *PlayerService {
	if groups == nil {
		groups = NewGroupService(store)
	}
	if collator == nil {
		collator = scoring.NewCollator("en")
	}
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &PlayerService{store: store, groups: groups, collator: collator, publisher: publisher}
}

// Create 创建玩家并加入分组
func (s *PlayerService) Create(ctx context.Context, in PlayerInput) (models.Player, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return models.Player{}, invalid(CodeRequired, "name", "player name is required")
	}
	if _, err := s.store.FindPlayerByName(ctx, name); err == nil {
		return models.Player{}, invalid(CodeDuplicate, "name", "player %s already exists", name)
	} else if !errors.Is(err, persistence.ErrRecordNotFound) {
		return models.Player{}, err
	}

	player, err := s.store.CreatePlayer(ctx, name)
	if err != nil {
		if errors.Is(err, persistence.ErrAlreadyExists) {
			return models.Player{}, invalid(CodeDuplicate, "name", "player %s already exists", name)
		}
		return models.Player{}, err
	}

	for _, groupName := range normalizeGroupNames(in.Groups) {
		group, err := s.groups.Ensure(ctx, groupName)
		if err != nil {
			s.rollbackCreate(ctx, player.ID)
			return models.Player{}, err
		}
		if err := s.store.AddPlayerToGroup(ctx, player.ID, group.ID); err != nil {
			s.rollbackCreate(ctx, player.ID)
			return models.Player{}, fmt.Errorf("add player %d to group %s: %w", player.ID, group.Name, err)
		}
	}

	player, err = s.Get(ctx, player.ID)
	if err != nil {
		return models.Player{}, err
	}
	logger.Log.Infof("player %d created: %s", player.ID, player.Name)
	s.publisher.Publish(Event{Type: EventPlayerCreated, PlayerIDs: []int64{player.ID}})
	return player, nil
}

// rollbackCreate 分组失败时删除刚创建的玩家及其留下的空分组
func (s *PlayerService) rollbackCreate(ctx context.Context, playerID int64) {
	if err := s.store.DeletePlayer(ctx, playerID); err != nil {
		logger.Log.Errorf("rollback of player %d: %v", playerID, err)
		return
	}
	if _, err := s.groups.CleanupOrphans(ctx); err != nil {
		logger.Log.Warnf("cleanup groups after rollback of player %d: %v", playerID, err)
	}
}

// Get returns the player with its groups and deletable flag.
func (s *PlayerService) Get(ctx context.Context, id int64) (models.Player, error) {
	player, err := s.store.GetPlayer(ctx, id)
	if err != nil {
		return models.Player{}, fmt.Errorf("player %d: %w", id, err)
	}
	return s.decorate(ctx, player)
}

// List returns every player ordered by name.
func (s *PlayerService) List(ctx context.Context) ([]models.Player, error) {
	players, err := s.store.ListPlayers(ctx)
	if err != nil {
		return nil, err
	}
	for i := range players {
		if players[i], err = s.decorate(ctx, players[i]); err != nil {
			return nil, err
		}
	}
	sort.SliceStable(players, func(i, j int) bool {
		return s.collator.Less(players[i].Name, players[j].Name)
	})
	return players, nil
}

func (s *PlayerService) decorate(ctx context.Context, player models.Player) (models.Player, error) {
	groups, err := s.store.ListPlayerGroups(ctx, player.ID)
	if err != nil {
		return models.Player{}, fmt.Errorf("groups of player %d: %w", player.ID, err)
	}
	games, err := s.store.CountPlayerGames(ctx, player.ID)
	if err != nil {
		return models.Player{}, fmt.Errorf("games of player %d: %w", player.ID, err)
	}
	player.Groups = groups
	player.Deletable = games == 0
	return player, nil
}

// Update renames the player and replaces its groups, then drops groups left
// without members.
func (s *PlayerService) Update(ctx context.Context, id int64, in PlayerInput) (models.Player, error) {
	current, err := s.store.GetPlayer(ctx, id)
	if err != nil {
		return models.Player{}, fmt.Errorf("player %d: %w", id, err)
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return models.Player{}, invalid(CodeRequired, "name", "player name is required")
	}
	if other, err := s.store.FindPlayerByName(ctx, name); err == nil && other.ID != id {
		return models.Player{}, invalid(CodeDuplicate, "name", "player %s already exists", name)
	} else if err != nil && !errors.Is(err, persistence.ErrRecordNotFound) {
		return models.Player{}, err
	}

	if name != current.Name {
		if err := s.store.UpdatePlayerName(ctx, id, name); err != nil {
			if errors.Is(err, persistence.ErrAlreadyExists) {
				return models.Player{}, invalid(CodeDuplicate, "name", "player %s already exists", name)
			}
			return models.Player{}, err
		}
	}

	if err := s.syncGroups(ctx, id, normalizeGroupNames(in.Groups)); err != nil {
		return models.Player{}, err
	}
	if _, err := s.groups.CleanupOrphans(ctx); err != nil {
		logger.Log.Warnf("orphan group cleanup failed: %v", err)
	}

	player, err := s.Get(ctx, id)
	if err != nil {
		return models.Player{}, err
	}
	s.publisher.Publish(Event{Type: EventPlayerUpdated, PlayerIDs: []int64{id}})
	return player, nil
}

func (s *PlayerService) syncGroups(ctx context.Context, playerID int64, names []string) error {
	current, err := s.store.ListPlayerGroups(ctx, playerID)
	if err != nil {
		return err
	}

	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[name] = true
	}
	have := make(map[string]bool, len(current))
	for _, g := range current {
		have[g.Name] = true
		if !wanted[g.Name] {
			if err := s.store.RemovePlayerFromGroup(ctx, playerID, g.ID); err != nil {
				return fmt.Errorf("remove player %d from group %s: %w", playerID, g.Name, err)
			}
		}
	}

	for _, name := range names {
		if have[name] {
			continue
		}
		group, err := s.groups.Ensure(ctx, name)
		if err != nil {
			return err
		}
		if err := s.store.AddPlayerToGroup(ctx, playerID, group.ID); err != nil {
			return fmt.Errorf("add player %d to group %s: %w", playerID, name, err)
		}
	}
	return nil
}

// Delete removes the players that have no game history and returns how many
// were deleted. Failed items are reported in a *BatchError.
func (s *PlayerService) Delete(ctx context.Context, ids []int64) (int, error) {
	batch := &BatchError{Requested: len(ids)}
	var deleted []int64

	for _, id := range ids {
		games, err := s.store.CountPlayerGames(ctx, id)
		if err == nil && games > 0 {
			err = persistence.ErrInUse
		}
		if err == nil {
			err = s.store.DeletePlayer(ctx, id)
		}
		if err != nil {
			batch.Failed++
			batch.Errs = append(batch.Errs, fmt.Errorf("player %d: %w", id, err))
			continue
		}
		deleted = append(deleted, id)
	}

	if len(deleted) > 0 {
		if _, err := s.groups.CleanupOrphans(ctx); err != nil {
			logger.Log.Warnf("orphan group cleanup failed: %v", err)
		}
		s.publisher.Publish(Event{Type: EventPlayersDeleted, PlayerIDs: deleted})
	}
	if batch.Failed > 0 {
		logger.Log.Warnf("player deletion: %d of %d failed", batch.Failed, batch.Requested)
		return len(deleted), batch
	}
	return len(deleted), nil
}
