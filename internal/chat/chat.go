package chat

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"
	"time"

	"chatify/internal/access"
	"chatify/internal/assistant"
	"chatify/internal/content"
	"chatify/internal/models"
)

// Store is the document storage the message lifecycle runs on. Update methods
// must apply fn atomically per document.
type Store interface {
	access.Store

	ListUsers(ctx context.Context) ([]models.User, error)
	FindUsers(ctx context.Context, ids []string) ([]models.User, error)
	UpdateUser(ctx context.Context, id string, fn func(*models.User) error) (models.User, error)

	CreateDirectMessage(ctx context.Context, m models.DirectMessage) error
	FindDirectMessage(ctx context.Context, id string) (models.DirectMessage, error)
	ListDirectMessages(ctx context.Context, userA, userB string) ([]models.DirectMessage, error)
	UpdateDirectMessage(ctx context.Context, id string, fn func(*models.DirectMessage) error) (models.DirectMessage, error)
	ChatPartners(ctx context.Context, userID string) ([]string, error)

	CreateGroup(ctx context.Context, g models.Group) error
	ListGroupsForUser(ctx context.Context, userID string) ([]models.Group, error)
	UpdateGroup(ctx context.Context, id string, fn func(*models.Group) error) (models.Group, error)

	CreateGroupMessage(ctx context.Context, m models.GroupMessage) error
	FindGroupMessage(ctx context.Context, id string) (models.GroupMessage, error)
	ListGroupMessages(ctx context.Context, groupID string) ([]models.GroupMessage, error)
	UpdateGroupMessage(ctx context.Context, id string, fn func(*models.GroupMessage) error) (models.GroupMessage, error)
}

// Emitter delivers events to connected users.
type Emitter interface {
	EmitToUser(userID string, e models.Event) bool
	EmitToUsers(userIDs []string, e models.Event, excluding ...string) int
}

// Uploader stores an inline image and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, userID, blob string) (string, error)
}

// DeleteMode selects between hiding a message for the caller and erasing it for everyone.
type DeleteMode string

const (
	DeleteForMe       DeleteMode = "me"
	DeleteForEveryone DeleteMode = "everyone"
)

func ParseDeleteMode(s string) (DeleteMode, error) {
	switch DeleteMode(strings.ToLower(strings.TrimSpace(s))) {
	case DeleteForMe:
		return DeleteForMe, nil
	case DeleteForEveryone:
		return DeleteForEveryone, nil
	}
	return "", fmt.Errorf("%w: delete mode must be \"me\" or \"everyone\"", models.ErrValidation)
}

type Config struct {
	Store   Store
	Guard   *access.Guard
	Emitter Emitter
	Media   Uploader
	Replies assistant.ReplyGenerator
	Logger  *slog.Logger
}

// Service runs the message lifecycle: every mutation is persisted first and
// the resulting event is emitted after the write committed.
type Service struct {
	store   Store
	guard   *access.Guard
	emitter Emitter
	media   Uploader
	replies assistant.ReplyGenerator
	logger  *slog.Logger
	now     func() time.Time

	// Writes and emissions of one conversation are serialized so a
	// connection sees events in commit order.
	stripes [64]sync.Mutex
}

func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   cfg.Store,
		guard:   cfg.Guard,
		emitter: cfg.Emitter,
		media:   cfg.Media,
		replies: cfg.Replies,
		logger:  logger.With("component", "chat"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// AssistantID returns the reserved assistant account id.
func (s *Service) AssistantID() string {
	return s.guard.AssistantID()
}

func (s *Service) lock(conversation string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(conversation))
	mu := &s.stripes[h.Sum32()%uint32(len(s.stripes))]
	mu.Lock()
	return mu.Unlock
}

func directKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return "dm:" + a + ":" + b
}

func groupKey(groupID string) string {
	return "group:" + groupID
}

// lockGroup takes the group's stripe and reloads the group under it. Fan-out
// must use the returned members: membership may have changed since any
// earlier check.
func (s *Service) lockGroup(ctx context.Context, actorID, groupID string) (models.Group, func(), error) {
	unlock := s.lock(groupKey(groupID))
	group, err := s.guard.GroupMember(ctx, actorID, groupID)
	if err != nil {
		unlock()
		return models.Group{}, nil, err
	}
	return group, unlock, nil
}

func blank(in models.SendInput) bool {
	return strings.TrimSpace(in.Text) == "" && strings.TrimSpace(in.Image) == ""
}

// prepare validates the message body. The image is uploaded separately,
// after authorization.
func prepare(in models.SendInput) (string, error) {
	if blank(in) {
		return "", fmt.Errorf("%w: text or image is required", models.ErrValidation)
	}
	text, err := content.MessageText(in.Text)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	if text == "" && strings.TrimSpace(in.Image) == "" {
		return "", fmt.Errorf("%w: text or image is required", models.ErrValidation)
	}
	return text, nil
}

func (s *Service) upload(ctx context.Context, userID, blob string) (string, error) {
	if strings.TrimSpace(blob) == "" {
		return "", nil
	}
	if s.media == nil {
		return "", fmt.Errorf("%w: image uploads are disabled", models.ErrValidation)
	}
	return s.media.Upload(ctx, userID, blob)
}
