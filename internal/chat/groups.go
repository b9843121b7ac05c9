package chat

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"chatify/internal/content"
	"chatify/internal/models"

	"github.com/google/uuid"
)

type CreateGroupInput struct {
	Name      string
	MemberIDs []string
	Avatar    string
}

// CreateGroup creates a group owned by the actor. The owner is always a
// member and member ids are deduplicated. Every member must exist.
func (s *Service) CreateGroup(ctx context.Context, actorID string, in CreateGroupInput) (models.Group, error) {
	name, err := content.GroupName(in.Name)
	if err != nil {
		return models.Group{}, fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	members, err := s.checkMembers(ctx, append([]string{actorID}, in.MemberIDs...))
	if err != nil {
		return models.Group{}, err
	}
	avatar, err := s.upload(ctx, actorID, in.Avatar)
	if err != nil {
		return models.Group{}, err
	}

	now := s.now()
	group := models.Group{
		ID:        uuid.NewString(),
		Name:      name,
		OwnerID:   actorID,
		Members:   members,
		Avatar:    avatar,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateGroup(ctx, group); err != nil {
		return models.Group{}, fmt.Errorf("failed to create group: %w", err)
	}
	s.logger.Info("group created", "group_id", group.ID, "user_id", actorID, "members", len(members))
	return group, nil
}

// MyGroups lists the groups the actor is a member of.
func (s *Service) MyGroups(ctx context.Context, actorID string) ([]models.Group, error) {
	groups, err := s.store.ListGroupsForUser(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	if groups == nil {
		groups = []models.Group{}
	}
	return groups, nil
}

// UpdateMembers adds and removes group members. Only the owner may do this
// and the owner cannot be removed.
func (s *Service) UpdateMembers(ctx context.Context, actorID, groupID string, add, remove []string) (models.Group, error) {
	if _, err := s.guard.GroupOwner(ctx, actorID, groupID); err != nil {
		return models.Group{}, err
	}
	remove = dedup(remove)
	if slices.Contains(remove, actorID) {
		return models.Group{}, fmt.Errorf("%w: the owner cannot be removed", models.ErrValidation)
	}
	add, err := s.checkMembers(ctx, add)
	if err != nil {
		return models.Group{}, err
	}

	unlock := s.lock(groupKey(groupID))
	defer unlock()
	return s.store.UpdateGroup(ctx, groupID, func(g *models.Group) error {
		if g.OwnerID != actorID {
			return fmt.Errorf("%w: only the group owner can do this", models.ErrForbidden)
		}
		members := slices.DeleteFunc(slices.Clone(g.Members), func(id string) bool {
			return slices.Contains(remove, id)
		})
		for _, id := range add {
			if !slices.Contains(members, id) {
				members = append(members, id)
			}
		}
		g.Members = members
		g.UpdatedAt = s.now()
		return nil
	})
}

// UpdateGroupAvatar replaces the group picture. Only the owner may do this.
func (s *Service) UpdateGroupAvatar(ctx context.Context, actorID, groupID, blob string) (models.Group, error) {
	if strings.TrimSpace(blob) == "" {
		return models.Group{}, fmt.Errorf("%w: avatar is required", models.ErrValidation)
	}
	if _, err := s.guard.GroupOwner(ctx, actorID, groupID); err != nil {
		return models.Group{}, err
	}
	avatar, err := s.upload(ctx, actorID, blob)
	if err != nil {
		return models.Group{}, err
	}
	return s.store.UpdateGroup(ctx, groupID, func(g *models.Group) error {
		if g.OwnerID != actorID {
			return fmt.Errorf("%w: only the group owner can do this", models.ErrForbidden)
		}
		g.Avatar = avatar
		g.UpdatedAt = s.now()
		return nil
	})
}

// UpdateProfilePic replaces the actor's profile picture.
func (s *Service) UpdateProfilePic(ctx context.Context, actorID, blob string) (models.User, error) {
	if strings.TrimSpace(blob) == "" {
		return models.User{}, fmt.Errorf("%w: profile pic is required", models.ErrValidation)
	}
	url, err := s.upload(ctx, actorID, blob)
	if err != nil {
		return models.User{}, err
	}
	return s.store.UpdateUser(ctx, actorID, func(u *models.User) error {
		u.ProfilePic = url
		u.UpdatedAt = s.now()
		return nil
	})
}

// checkMembers deduplicates ids and verifies that each is an existing user
// other than the assistant.
func (s *Service) checkMembers(ctx context.Context, ids []string) ([]string, error) {
	ids = dedup(ids)
	if len(ids) == 0 {
		return ids, nil
	}
	if slices.Contains(ids, s.guard.AssistantID()) {
		return nil, fmt.Errorf("%w: the assistant cannot join groups", models.ErrValidation)
	}
	users, err := s.store.FindUsers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load members: %w", err)
	}
	if len(users) != len(ids) {
		return nil, fmt.Errorf("member: %w", models.ErrNotFound)
	}
	return ids, nil
}

func dedup(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
