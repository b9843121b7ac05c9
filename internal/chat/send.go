package chat

import (
	"context"
	"errors"
	"fmt"

	"chatify/internal/assistant"
	"chatify/internal/content"
	"chatify/internal/models"

	"github.com/google/uuid"
)

// Sent is the outcome of a send. Direct is set for direct and assistant
// targets, Reply only when the assistant answered, Group for group targets.
type Sent struct {
	Direct   *models.DirectMessage
	Reply    *models.DirectMessage
	Group    *models.GroupMessage
	Provider string
}

// ResolveDirect turns a peer user id into the target of a direct send.
func (s *Service) ResolveDirect(ctx context.Context, actorID, peerID string) (models.ConversationTarget, error) {
	return s.guard.DirectSend(ctx, actorID, peerID)
}

// Send posts a message from actorID to target.
func (s *Service) Send(ctx context.Context, actorID string, target models.ConversationTarget, in models.SendInput) (Sent, error) {
	switch target.Kind {
	case models.TargetDirect:
		m, err := s.sendDirect(ctx, actorID, target.ID, in)
		if err != nil {
			return Sent{}, err
		}
		return Sent{Direct: &m}, nil
	case models.TargetAssistant:
		return s.sendAssistant(ctx, actorID, in)
	case models.TargetGroup:
		m, err := s.sendGroup(ctx, actorID, target.ID, in)
		if err != nil {
			return Sent{}, err
		}
		return Sent{Group: &m}, nil
	}
	return Sent{}, fmt.Errorf("%w: unknown conversation target", models.ErrValidation)
}

func (s *Service) sendDirect(ctx context.Context, actorID, receiverID string, in models.SendInput) (models.DirectMessage, error) {
	text, err := prepare(in)
	if err != nil {
		return models.DirectMessage{}, err
	}
	target, err := s.guard.DirectSend(ctx, actorID, receiverID)
	if err != nil {
		return models.DirectMessage{}, err
	}
	if target.Kind != models.TargetDirect {
		return models.DirectMessage{}, fmt.Errorf("%w: use the assistant target for %s", models.ErrValidation, receiverID)
	}
	image, err := s.upload(ctx, actorID, in.Image)
	if err != nil {
		return models.DirectMessage{}, err
	}

	msg := s.newDirectMessage(actorID, receiverID, text, image)

	unlock := s.lock(directKey(actorID, receiverID))
	defer unlock()
	if err := s.store.CreateDirectMessage(ctx, msg); err != nil {
		return models.DirectMessage{}, fmt.Errorf("failed to store message: %w", err)
	}
	s.emitter.EmitToUser(receiverID, models.NewMessage{Message: msg})
	return msg, nil
}

// sendAssistant stores the user's message, asks the reply generator and
// stores the answer. A generator failure keeps the user's message.
func (s *Service) sendAssistant(ctx context.Context, actorID string, in models.SendInput) (Sent, error) {
	assistantID := s.guard.AssistantID()
	text, err := prepare(in)
	if err != nil {
		return Sent{}, err
	}
	if text == "" {
		return Sent{}, fmt.Errorf("%w: message is required", models.ErrValidation)
	}
	image, err := s.upload(ctx, actorID, in.Image)
	if err != nil {
		return Sent{}, err
	}

	history, err := s.assistantHistory(ctx, actorID, assistantID)
	if err != nil {
		return Sent{}, err
	}

	msg := s.newDirectMessage(actorID, assistantID, text, image)
	if err := s.persistDirect(ctx, msg, assistantID); err != nil {
		return Sent{}, err
	}
	sent := Sent{Direct: &msg}

	if s.replies == nil {
		return sent, &assistant.ProviderError{Provider: "none", Kind: assistant.KindNotConfigured, Message: "assistant is not configured"}
	}
	if p, ok := s.replies.(interface{ Name() string }); ok {
		sent.Provider = p.Name()
	}

	replyText, err := s.replies.GenerateReply(ctx, history, text)
	if err != nil {
		s.logger.Warn("assistant reply failed", "user_id", actorID, "message_id", msg.ID, "error", err)
		if !errors.Is(err, models.ErrProvider) {
			err = &assistant.ProviderError{Provider: sent.Provider, Kind: assistant.KindUpstream, Message: "reply generator failed", Err: err}
		}
		return sent, err
	}

	reply := s.newDirectMessage(assistantID, actorID, replyText, "")
	if html, err := content.RenderMarkdown(replyText); err != nil {
		s.logger.Warn("failed to render assistant reply", "message_id", reply.ID, "error", err)
	} else {
		reply.HTML = html
	}
	if err := s.persistDirect(ctx, reply, actorID); err != nil {
		return sent, err
	}
	sent.Reply = &reply
	return sent, nil
}

func (s *Service) persistDirect(ctx context.Context, msg models.DirectMessage, recipientID string) error {
	unlock := s.lock(directKey(msg.SenderID, msg.ReceiverID))
	defer unlock()
	if err := s.store.CreateDirectMessage(ctx, msg); err != nil {
		return fmt.Errorf("failed to store message: %w", err)
	}
	s.emitter.EmitToUser(recipientID, models.NewMessage{Message: msg})
	return nil
}

// assistantHistory returns the visible conversation with the assistant as model turns.
func (s *Service) assistantHistory(ctx context.Context, actorID, assistantID string) ([]assistant.Turn, error) {
	messages, err := s.store.ListDirectMessages(ctx, actorID, assistantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	turns := make([]assistant.Turn, 0, len(messages))
	for _, m := range messages {
		if m.IsDeleted || m.HiddenFor(actorID) || m.Text == "" {
			continue
		}
		role := assistant.RoleUser
		if m.SenderID == assistantID {
			role = assistant.RoleAssistant
		}
		turns = append(turns, assistant.Turn{Role: role, Content: m.Text})
	}
	return assistant.Window(turns), nil
}

func (s *Service) sendGroup(ctx context.Context, actorID, groupID string, in models.SendInput) (models.GroupMessage, error) {
	text, err := prepare(in)
	if err != nil {
		return models.GroupMessage{}, err
	}
	group, err := s.guard.GroupMember(ctx, actorID, groupID)
	if err != nil {
		return models.GroupMessage{}, err
	}
	sender, err := s.store.FindUser(ctx, actorID)
	if err != nil {
		return models.GroupMessage{}, fmt.Errorf("failed to load sender: %w", err)
	}
	image, err := s.upload(ctx, actorID, in.Image)
	if err != nil {
		return models.GroupMessage{}, err
	}

	now := s.now()
	msg := models.GroupMessage{
		ID:               uuid.NewString(),
		GroupID:          group.ID,
		SenderID:         actorID,
		SenderName:       sender.FullName,
		SenderProfilePic: sender.ProfilePic,
		Text:             text,
		Image:            image,
		DeletedFor:       []string{},
		Reactions:        models.Reactions{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	group, unlock, err := s.lockGroup(ctx, actorID, group.ID)
	if err != nil {
		return models.GroupMessage{}, err
	}
	defer unlock()
	if err := s.store.CreateGroupMessage(ctx, msg); err != nil {
		return models.GroupMessage{}, fmt.Errorf("failed to store group message: %w", err)
	}
	s.emitter.EmitToUsers(group.Members, models.GroupMessageCreated{Message: msg}, actorID)
	return msg, nil
}

func (s *Service) newDirectMessage(senderID, receiverID, text, image string) models.DirectMessage {
	now := s.now()
	return models.DirectMessage{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
		Image:      image,
		DeletedFor: []string{},
		Reactions:  models.Reactions{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
