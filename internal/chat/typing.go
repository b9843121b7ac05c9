package chat

import (
	"context"
	"slices"

	"chatify/internal/models"
)

// Typing relays a typing indicator to the other party of a direct conversation.
func (s *Service) Typing(actorID, receiverID string, stopped bool) error {
	if err := s.guard.Peer(actorID, receiverID); err != nil {
		return err
	}
	s.emitter.EmitToUser(receiverID, models.Typing{SenderID: actorID, Stopped: stopped})
	return nil
}

// GroupTyping relays a typing indicator to the listed members of a group.
// Ids that are not members are ignored; an empty list means every member.
func (s *Service) GroupTyping(ctx context.Context, actorID, groupID string, memberIDs []string, stopped bool) error {
	group, err := s.guard.GroupMember(ctx, actorID, groupID)
	if err != nil {
		return err
	}
	targets := group.Members
	if len(memberIDs) > 0 {
		targets = slices.DeleteFunc(slices.Clone(memberIDs), func(id string) bool {
			return !group.HasMember(id)
		})
	}
	s.emitter.EmitToUsers(targets, models.GroupTyping{GroupID: groupID, SenderID: actorID, Stopped: stopped}, actorID)
	return nil
}
