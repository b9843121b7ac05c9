package chat

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"chatify/internal/models"
)

func emoji(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: emoji is required", models.ErrValidation)
	}
	return s, nil
}

// ReactDirect toggles the actor's emoji on a direct message and sends the
// full reactions snapshot to both participants.
// Reacting to a message deleted for everyone is allowed.
func (s *Service) ReactDirect(ctx context.Context, actorID, messageID, e string) (models.DirectMessage, error) {
	e, err := emoji(e)
	if err != nil {
		return models.DirectMessage{}, err
	}
	current, err := s.store.FindDirectMessage(ctx, messageID)
	if err != nil {
		return models.DirectMessage{}, err
	}
	if err := s.guard.DirectParticipant(actorID, current); err != nil {
		return models.DirectMessage{}, err
	}

	unlock := s.lock(directKey(current.SenderID, current.ReceiverID))
	defer unlock()
	msg, err := s.store.UpdateDirectMessage(ctx, messageID, func(m *models.DirectMessage) error {
		m.Reactions.Toggle(actorID, e)
		m.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return models.DirectMessage{}, fmt.Errorf("failed to update reactions: %w", err)
	}
	s.emitter.EmitToUsers([]string{msg.SenderID, msg.ReceiverID}, models.MessageReacted{
		ID:        msg.ID,
		Reactions: msg.Reactions.Clone(),
	})
	return msg, nil
}

// DeleteDirect hides the message for the actor or erases it for everyone.
func (s *Service) DeleteDirect(ctx context.Context, actorID, messageID string, mode DeleteMode) (models.DirectMessage, error) {
	current, err := s.store.FindDirectMessage(ctx, messageID)
	if err != nil {
		return models.DirectMessage{}, err
	}
	if err := s.guard.DirectParticipant(actorID, current); err != nil {
		return models.DirectMessage{}, err
	}

	switch mode {
	case DeleteForMe:
		msg, err := s.store.UpdateDirectMessage(ctx, messageID, func(m *models.DirectMessage) error {
			if !slices.Contains(m.DeletedFor, actorID) {
				m.DeletedFor = append(m.DeletedFor, actorID)
				m.UpdatedAt = s.now()
			}
			return nil
		})
		if err != nil {
			return models.DirectMessage{}, fmt.Errorf("failed to hide message: %w", err)
		}
		return msg, nil

	case DeleteForEveryone:
		if err := s.guard.DirectSender(actorID, current); err != nil {
			return models.DirectMessage{}, err
		}
		unlock := s.lock(directKey(current.SenderID, current.ReceiverID))
		defer unlock()
		var changed bool
		msg, err := s.store.UpdateDirectMessage(ctx, messageID, func(m *models.DirectMessage) error {
			changed = false
			if m.IsDeleted {
				return nil
			}
			m.IsDeleted = true
			m.Text, m.Image, m.HTML = "", "", ""
			m.UpdatedAt = s.now()
			changed = true
			return nil
		})
		if err != nil {
			return models.DirectMessage{}, fmt.Errorf("failed to delete message: %w", err)
		}
		if changed {
			s.emitter.EmitToUser(msg.Peer(actorID), models.MessageDeleted{ID: msg.ID})
		}
		return msg, nil
	}
	return models.DirectMessage{}, fmt.Errorf("%w: unknown delete mode %q", models.ErrValidation, mode)
}

// ReactGroup toggles the actor's emoji on a group message and sends the full
// reactions snapshot to every member, the actor included.
func (s *Service) ReactGroup(ctx context.Context, actorID, messageID, e string) (models.GroupMessage, error) {
	e, err := emoji(e)
	if err != nil {
		return models.GroupMessage{}, err
	}
	current, err := s.store.FindGroupMessage(ctx, messageID)
	if err != nil {
		return models.GroupMessage{}, err
	}
	group, unlock, err := s.lockGroup(ctx, actorID, current.GroupID)
	if err != nil {
		return models.GroupMessage{}, err
	}
	defer unlock()
	msg, err := s.store.UpdateGroupMessage(ctx, messageID, func(m *models.GroupMessage) error {
		m.Reactions.Toggle(actorID, e)
		m.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return models.GroupMessage{}, fmt.Errorf("failed to update reactions: %w", err)
	}
	s.emitter.EmitToUsers(group.Members, models.GroupMessageReacted{
		ID:        msg.ID,
		Reactions: msg.Reactions.Clone(),
	})
	return msg, nil
}

// DeleteGroupMessage hides a group message for the actor or erases it for everyone.
// messageID must belong to groupID.
func (s *Service) DeleteGroupMessage(ctx context.Context, actorID, groupID, messageID string, mode DeleteMode) (models.GroupMessage, error) {
	current, err := s.store.FindGroupMessage(ctx, messageID)
	if err != nil {
		return models.GroupMessage{}, err
	}
	if groupID != "" && current.GroupID != groupID {
		return models.GroupMessage{}, fmt.Errorf("message %s in group %s: %w", messageID, groupID, models.ErrNotFound)
	}
	if _, err := s.guard.GroupMember(ctx, actorID, current.GroupID); err != nil {
		return models.GroupMessage{}, err
	}

	switch mode {
	case DeleteForMe:
		msg, err := s.store.UpdateGroupMessage(ctx, messageID, func(m *models.GroupMessage) error {
			if !slices.Contains(m.DeletedFor, actorID) {
				m.DeletedFor = append(m.DeletedFor, actorID)
				m.UpdatedAt = s.now()
			}
			return nil
		})
		if err != nil {
			return models.GroupMessage{}, fmt.Errorf("failed to hide message: %w", err)
		}
		return msg, nil

	case DeleteForEveryone:
		if err := s.guard.GroupSender(actorID, current); err != nil {
			return models.GroupMessage{}, err
		}
		group, unlock, err := s.lockGroup(ctx, actorID, current.GroupID)
		if err != nil {
			return models.GroupMessage{}, err
		}
		defer unlock()
		var changed bool
		msg, err := s.store.UpdateGroupMessage(ctx, messageID, func(m *models.GroupMessage) error {
			changed = false
			if m.IsDeleted {
				return nil
			}
			m.IsDeleted = true
			m.Text, m.Image = "", ""
			m.UpdatedAt = s.now()
			changed = true
			return nil
		})
		if err != nil {
			return models.GroupMessage{}, fmt.Errorf("failed to delete message: %w", err)
		}
		if changed {
			s.emitter.EmitToUsers(group.Members, models.GroupMessageDeleted{ID: msg.ID, GroupID: msg.GroupID}, actorID)
		}
		return msg, nil
	}
	return models.GroupMessage{}, fmt.Errorf("%w: unknown delete mode %q", models.ErrValidation, mode)
}
