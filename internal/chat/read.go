package chat

import (
	"context"
	"fmt"

	"chatify/internal/models"
)

// DirectHistory returns the conversation between actor and peer in send order.
// Messages the actor deleted for themselves are left out; tombstones are kept.
func (s *Service) DirectHistory(ctx context.Context, actorID, peerID string) ([]models.DirectMessage, error) {
	if _, err := s.store.FindUser(ctx, peerID); err != nil {
		return nil, err
	}
	messages, err := s.store.ListDirectMessages(ctx, actorID, peerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	visible := make([]models.DirectMessage, 0, len(messages))
	for _, m := range messages {
		if !m.HiddenFor(actorID) {
			visible = append(visible, m)
		}
	}
	return visible, nil
}

// GroupHistory returns the messages of a group the actor is a member of.
func (s *Service) GroupHistory(ctx context.Context, actorID, groupID string) ([]models.GroupMessage, error) {
	if _, err := s.guard.GroupMember(ctx, actorID, groupID); err != nil {
		return nil, err
	}
	messages, err := s.store.ListGroupMessages(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to load group messages: %w", err)
	}
	visible := make([]models.GroupMessage, 0, len(messages))
	for _, m := range messages {
		if !m.HiddenFor(actorID) {
			visible = append(visible, m)
		}
	}
	return visible, nil
}

// Contacts lists every user except the actor.
func (s *Service) Contacts(ctx context.Context, actorID string) ([]models.User, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	contacts := make([]models.User, 0, len(users))
	for _, u := range users {
		if u.ID != actorID {
			contacts = append(contacts, u)
		}
	}
	return contacts, nil
}

// ChatPartners lists the users the actor has exchanged direct messages with.
func (s *Service) ChatPartners(ctx context.Context, actorID string) ([]models.User, error) {
	ids, err := s.store.ChatPartners(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat partners: %w", err)
	}
	users, err := s.store.FindUsers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat partners: %w", err)
	}
	if users == nil {
		users = []models.User{}
	}
	return users, nil
}

// FindUsers returns summaries of the users that exist among ids.
func (s *Service) FindUsers(ctx context.Context, ids []string) ([]models.UserSummary, error) {
	users, err := s.store.FindUsers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	out := make([]models.UserSummary, 0, len(users))
	for _, u := range users {
		out = append(out, u.Summary())
	}
	return out, nil
}
