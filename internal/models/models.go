package models

import (
	"encoding/json"
	"errors"
	"slices"
	"time"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrValidation   = errors.New("invalid request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")
	ErrProvider     = errors.New("reply provider failed")
)

// User represents a user in the system.
type User struct {
	ID         string    `json:"_id"`
	Email      string    `json:"email"`
	FullName   string    `json:"fullName"`
	ProfilePic string    `json:"profilePic"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// UserSummary is the reduced user shape used by bulk lookups.
type UserSummary struct {
	ID         string `json:"_id"`
	FullName   string `json:"fullName"`
	ProfilePic string `json:"profilePic"`
}

func (u User) Summary() UserSummary {
	return UserSummary{ID: u.ID, FullName: u.FullName, ProfilePic: u.ProfilePic}
}

// DirectMessage is a message between exactly two users.
type DirectMessage struct {
	ID         string    `json:"_id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Text       string    `json:"text,omitempty"`
	Image      string    `json:"image,omitempty"`
	HTML       string    `json:"html,omitempty"` // rendered markdown, assistant replies only
	IsDeleted  bool      `json:"isDeleted"`
	DeletedFor []string  `json:"deletedFor"`
	Reactions  Reactions `json:"reactions"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// HasParticipant reports whether userID is the sender or the receiver.
func (m DirectMessage) HasParticipant(userID string) bool {
	return m.SenderID == userID || m.ReceiverID == userID
}

// Peer returns the other party of the conversation as seen by userID.
func (m DirectMessage) Peer(userID string) string {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}

func (m DirectMessage) HiddenFor(userID string) bool {
	return slices.Contains(m.DeletedFor, userID)
}

// MarshalJSON writes a message deleted for everyone with explicit null text and image.
func (m DirectMessage) MarshalJSON() ([]byte, error) {
	type plain DirectMessage
	if !m.IsDeleted {
		return json.Marshal(plain(m))
	}
	return json.Marshal(struct {
		plain
		Text  *string `json:"text"`
		Image *string `json:"image"`
	}{plain: plain(m)})
}

// Group is a multi-user conversation. The owner is always a member.
type Group struct {
	ID        string    `json:"_id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"ownerId"`
	Members   []string  `json:"members"`
	Avatar    string    `json:"avatar"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (g Group) HasMember(userID string) bool {
	return slices.Contains(g.Members, userID)
}

// GroupMessage is a message posted to a group. Sender name and picture
// are copied at creation time.
type GroupMessage struct {
	ID               string    `json:"_id"`
	GroupID          string    `json:"groupId"`
	SenderID         string    `json:"senderId"`
	SenderName       string    `json:"senderName"`
	SenderProfilePic string    `json:"senderProfilePic"`
	Text             string    `json:"text,omitempty"`
	Image            string    `json:"image,omitempty"`
	IsDeleted        bool      `json:"isDeleted"`
	DeletedFor       []string  `json:"deletedFor"`
	Reactions        Reactions `json:"reactions"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func (m GroupMessage) HiddenFor(userID string) bool {
	return slices.Contains(m.DeletedFor, userID)
}

func (m GroupMessage) MarshalJSON() ([]byte, error) {
	type plain GroupMessage
	if !m.IsDeleted {
		return json.Marshal(plain(m))
	}
	return json.Marshal(struct {
		plain
		Text  *string `json:"text"`
		Image *string `json:"image"`
	}{plain: plain(m)})
}

// Reactions maps an emoji to the users who reacted with it, in reaction order.
// A user appears at most once per emoji and empty entries are never kept.
type Reactions map[string][]string

// Toggle adds userID under emoji, or removes it if already present.
// It returns true when the reaction was added.
func (r *Reactions) Toggle(userID, emoji string) bool {
	if *r == nil {
		*r = Reactions{}
	}
	m := *r
	users := m[emoji]
	if i := slices.Index(users, userID); i >= 0 {
		users = slices.Delete(slices.Clone(users), i, i+1)
		if len(users) == 0 {
			delete(m, emoji)
		} else {
			m[emoji] = users
		}
		return false
	}
	m[emoji] = append(slices.Clone(users), userID)
	return true
}

func (r Reactions) Has(userID, emoji string) bool {
	return slices.Contains(r[emoji], userID)
}

func (r Reactions) Clone() Reactions {
	out := make(Reactions, len(r))
	for emoji, users := range r {
		out[emoji] = slices.Clone(users)
	}
	return out
}

// MarshalJSON always encodes an object, never null.
func (r Reactions) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string][]string(r))
}

// TargetKind distinguishes the conversations a message can be sent to.
type TargetKind int

const (
	TargetDirect TargetKind = iota
	TargetAssistant
	TargetGroup
)

func (k TargetKind) String() string {
	switch k {
	case TargetDirect:
		return "direct"
	case TargetAssistant:
		return "assistant"
	case TargetGroup:
		return "group"
	}
	return "unknown"
}

// ConversationTarget is resolved once at the entry point of a send.
// ID is the peer user id for direct targets, the group id for group targets,
// and the reserved account id for the assistant.
type ConversationTarget struct {
	Kind TargetKind
	ID   string
}

func Direct(userID string) ConversationTarget {
	return ConversationTarget{Kind: TargetDirect, ID: userID}
}

func Assistant(accountID string) ConversationTarget {
	return ConversationTarget{Kind: TargetAssistant, ID: accountID}
}

func GroupTarget(groupID string) ConversationTarget {
	return ConversationTarget{Kind: TargetGroup, ID: groupID}
}

// SendInput carries the content of a new message. At least one field must be set.
// Image is a base64 blob or data URL; it is uploaded before the message is stored.
type SendInput struct {
	Text  string
	Image string
}

// APIResponse is the generic JSON body for simple results and errors.
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// MediaObject describes an uploaded image. ID is the object name: the
// content hash plus an extension.
type MediaObject struct {
	ID        string    `json:"id"`
	MimeType  string    `json:"mimeType"`
	Size      int64     `json:"size"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}
