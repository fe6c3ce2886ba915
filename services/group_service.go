// services/group_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wfunc/skullscore/logger"
	"github.com/wfunc/skullscore/models"
	"github.com/wfunc/skullscore/persistence"
)

type GroupService struct {
	store persistence.Store
}

func NewGroupService(store persistence.Store) *GroupService {
	return &GroupService{store: store}
}

// Ensure returns the group called name, creating it when missing. A unique
// violation means another writer created it first; the existing group is
// returned.
func (s *GroupService) Ensure(ctx context.Context, name string) (models.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Group{}, invalid(CodeRequired, "groups", "group name is required")
	}

	group, err := s.store.CreateGroup(ctx, name)
	if err == nil {
		return group, nil
	}
	if !errors.Is(err, persistence.ErrAlreadyExists) {
		return models.Group{}, err
	}
	return s.store.FindGroupByName(ctx, name)
}

func (s *GroupService) List(ctx context.Context) ([]models.Group, error) {
	return s.store.ListGroups(ctx)
}

// CleanupOrphans 删除没有成员的分组
func (s *GroupService) CleanupOrphans(ctx context.Context) (int, error) {
	groups, err := s.store.ListGroups(ctx)
	if err != nil {
		return 0, fmt.Errorf("list groups: %w", err)
	}

	removed := 0
	for _, g := range groups {
		count, err := s.store.CountGroupMembers(ctx, g.ID)
		if err != nil {
			return removed, fmt.Errorf("count members of group %d: %w", g.ID, err)
		}
		if count > 0 {
			continue
		}
		if err := s.store.DeleteGroup(ctx, g.ID); err != nil && !errors.Is(err, persistence.ErrRecordNotFound) {
			return removed, fmt.Errorf("delete group %d: %w", g.ID, err)
		}
		logger.Log.Debugf("removed orphan group %s", g.Name)
		removed++
	}
	return removed, nil
}

// normalizeGroupNames trims, drops empty names and removes duplicates.
func normalizeGroupNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}
