package access

import (
	"context"
	"errors"
	"fmt"

	"chatify/internal/models"
)

type Store interface {
	FindUser(ctx context.Context, id string) (models.User, error)
	FindGroup(ctx context.Context, id string) (models.Group, error)
}

// Guard answers whether an actor may act on a conversation. It never mutates anything.
type Guard struct {
	store       Store
	assistantID string
}

func New(store Store, assistantID string) *Guard {
	return &Guard{store: store, assistantID: assistantID}
}

// AssistantID is the reserved account that answers through the reply generator.
func (g *Guard) AssistantID() string {
	return g.assistantID
}

// DirectSend resolves the target of a direct send. Sending to yourself is a
// validation error and the target user must exist.
func (g *Guard) DirectSend(ctx context.Context, actorID, targetID string) (models.ConversationTarget, error) {
	if targetID == "" {
		return models.ConversationTarget{}, fmt.Errorf("%w: receiver is required", models.ErrValidation)
	}
	if targetID == actorID {
		return models.ConversationTarget{}, fmt.Errorf("%w: cannot send messages to yourself", models.ErrValidation)
	}
	if _, err := g.store.FindUser(ctx, targetID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ConversationTarget{}, fmt.Errorf("receiver %s: %w", targetID, models.ErrNotFound)
		}
		return models.ConversationTarget{}, err
	}
	if g.assistantID != "" && targetID == g.assistantID {
		return models.Assistant(targetID), nil
	}
	return models.Direct(targetID), nil
}

// DirectParticipant authorizes any action on m other than delete for everyone.
func (g *Guard) DirectParticipant(actorID string, m models.DirectMessage) error {
	if !m.HasParticipant(actorID) {
		return fmt.Errorf("%w: not a participant of this conversation", models.ErrForbidden)
	}
	return nil
}

// DirectSender authorizes deleting m for everyone.
func (g *Guard) DirectSender(actorID string, m models.DirectMessage) error {
	if m.SenderID != actorID {
		return fmt.Errorf("%w: only the sender can delete for everyone", models.ErrForbidden)
	}
	return nil
}

// GroupMember loads the group and checks that actor belongs to it.
func (g *Guard) GroupMember(ctx context.Context, actorID, groupID string) (models.Group, error) {
	group, err := g.store.FindGroup(ctx, groupID)
	if err != nil {
		return models.Group{}, err
	}
	if !group.HasMember(actorID) {
		return models.Group{}, fmt.Errorf("%w: not a member of this group", models.ErrForbidden)
	}
	return group, nil
}

// GroupOwner loads the group and checks that actor owns it.
func (g *Guard) GroupOwner(ctx context.Context, actorID, groupID string) (models.Group, error) {
	group, err := g.store.FindGroup(ctx, groupID)
	if err != nil {
		return models.Group{}, err
	}
	if group.OwnerID != actorID {
		return models.Group{}, fmt.Errorf("%w: only the group owner can do this", models.ErrForbidden)
	}
	return group, nil
}

// GroupSender authorizes deleting m for everyone.
func (g *Guard) GroupSender(actorID string, m models.GroupMessage) error {
	if m.SenderID != actorID {
		return fmt.Errorf("%w: only the sender can delete for everyone", models.ErrForbidden)
	}
	return nil
}

// Peer checks the target of a relayed event such as typing or call signaling.
// No storage is consulted; offline or unknown ids simply receive nothing.
func (g *Guard) Peer(actorID, targetID string) error {
	switch {
	case targetID == "":
		return fmt.Errorf("%w: receiverId is required", models.ErrValidation)
	case targetID == actorID:
		return fmt.Errorf("%w: cannot signal yourself", models.ErrValidation)
	case g.assistantID != "" && targetID == g.assistantID:
		return fmt.Errorf("%w: the assistant cannot take part in calls", models.ErrForbidden)
	}
	return nil
}
