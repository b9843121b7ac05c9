package storage

import (
	"encoding"
	"encoding/binary"
	"time"

	"chatify/internal/auth"
	"chatify/internal/models"

	"github.com/vmihailenco/msgpack/v5"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

type DBUser struct {
	ID           string `msgpack:"id"`
	Email        string `msgpack:"email"`
	FullName     string `msgpack:"fullName"`
	ProfilePic   string `msgpack:"profilePic"`
	PasswordHash string `msgpack:"passwordHash"`
	CreatedAt    int64  `msgpack:"createdAt"`
	UpdatedAt    int64  `msgpack:"updatedAt"`
}

func (u *DBUser) Key() []byte {
	return []byte(u.ID)
}

func (u *DBUser) MarshalBinary() (data []byte, err error) {
	type alias DBUser
	return msgpack.Marshal((*alias)(u))
}

func (u *DBUser) UnmarshalBinary(data []byte) error {
	type alias DBUser
	return msgpack.Unmarshal(data, (*alias)(u))
}

func (u *DBUser) credentials() auth.Credentials {
	return auth.Credentials{
		User: models.User{
			ID:         u.ID,
			Email:      u.Email,
			FullName:   u.FullName,
			ProfilePic: u.ProfilePic,
			CreatedAt:  fromMillis(u.CreatedAt),
			UpdatedAt:  fromMillis(u.UpdatedAt),
		},
		PasswordHash: u.PasswordHash,
	}
}

func dbUserFrom(c auth.Credentials) *DBUser {
	return &DBUser{
		ID:           c.ID,
		Email:        c.Email,
		FullName:     c.FullName,
		ProfilePic:   c.ProfilePic,
		PasswordHash: c.PasswordHash,
		CreatedAt:    toMillis(c.CreatedAt),
		UpdatedAt:    toMillis(c.UpdatedAt),
	}
}

type DBDirectMessage struct {
	ID         string              `msgpack:"id"`
	SenderID   string              `msgpack:"senderId"`
	ReceiverID string              `msgpack:"receiverId"`
	Text       string              `msgpack:"text"`
	Image      string              `msgpack:"image"`
	HTML       string              `msgpack:"html"`
	IsDeleted  bool                `msgpack:"isDeleted"`
	DeletedFor []string            `msgpack:"deletedFor"`
	Reactions  map[string][]string `msgpack:"reactions"`
	CreatedAt  int64               `msgpack:"createdAt"`
	UpdatedAt  int64               `msgpack:"updatedAt"`
}

func (m *DBDirectMessage) Key() []byte {
	return []byte(m.ID)
}

func (m *DBDirectMessage) MarshalBinary() (data []byte, err error) {
	type alias DBDirectMessage
	return msgpack.Marshal((*alias)(m))
}

func (m *DBDirectMessage) UnmarshalBinary(data []byte) error {
	type alias DBDirectMessage
	return msgpack.Unmarshal(data, (*alias)(m))
}

func (m *DBDirectMessage) model() models.DirectMessage {
	return models.DirectMessage{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Text:       m.Text,
		Image:      m.Image,
		HTML:       m.HTML,
		IsDeleted:  m.IsDeleted,
		DeletedFor: m.DeletedFor,
		Reactions:  models.Reactions(m.Reactions),
		CreatedAt:  fromMillis(m.CreatedAt),
		UpdatedAt:  fromMillis(m.UpdatedAt),
	}
}

func dbDirectMessageFrom(m models.DirectMessage) *DBDirectMessage {
	return &DBDirectMessage{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Text:       m.Text,
		Image:      m.Image,
		HTML:       m.HTML,
		IsDeleted:  m.IsDeleted,
		DeletedFor: m.DeletedFor,
		Reactions:  map[string][]string(m.Reactions),
		CreatedAt:  toMillis(m.CreatedAt),
		UpdatedAt:  toMillis(m.UpdatedAt),
	}
}

type DBGroup struct {
	ID        string   `msgpack:"id"`
	Name      string   `msgpack:"name"`
	OwnerID   string   `msgpack:"ownerId"`
	Members   []string `msgpack:"members"`
	Avatar    string   `msgpack:"avatar"`
	CreatedAt int64    `msgpack:"createdAt"`
	UpdatedAt int64    `msgpack:"updatedAt"`
}

func (g *DBGroup) Key() []byte {
	return []byte(g.ID)
}

func (g *DBGroup) MarshalBinary() (data []byte, err error) {
	type alias DBGroup
	return msgpack.Marshal((*alias)(g))
}

func (g *DBGroup) UnmarshalBinary(data []byte) error {
	type alias DBGroup
	return msgpack.Unmarshal(data, (*alias)(g))
}

func (g *DBGroup) model() models.Group {
	return models.Group{
		ID:        g.ID,
		Name:      g.Name,
		OwnerID:   g.OwnerID,
		Members:   g.Members,
		Avatar:    g.Avatar,
		CreatedAt: fromMillis(g.CreatedAt),
		UpdatedAt: fromMillis(g.UpdatedAt),
	}
}

func dbGroupFrom(g models.Group) *DBGroup {
	return &DBGroup{
		ID:        g.ID,
		Name:      g.Name,
		OwnerID:   g.OwnerID,
		Members:   g.Members,
		Avatar:    g.Avatar,
		CreatedAt: toMillis(g.CreatedAt),
		UpdatedAt: toMillis(g.UpdatedAt),
	}
}

type DBGroupMessage struct {
	ID               string              `msgpack:"id"`
	GroupID          string              `msgpack:"groupId"`
	SenderID         string              `msgpack:"senderId"`
	SenderName       string              `msgpack:"senderName"`
	SenderProfilePic string              `msgpack:"senderProfilePic"`
	Text             string              `msgpack:"text"`
	Image            string              `msgpack:"image"`
	IsDeleted        bool                `msgpack:"isDeleted"`
	DeletedFor       []string            `msgpack:"deletedFor"`
	Reactions        map[string][]string `msgpack:"reactions"`
	CreatedAt        int64               `msgpack:"createdAt"`
	UpdatedAt        int64               `msgpack:"updatedAt"`
}

func (m *DBGroupMessage) Key() []byte {
	return []byte(m.ID)
}

func (m *DBGroupMessage) MarshalBinary() (data []byte, err error) {
	type alias DBGroupMessage
	return msgpack.Marshal((*alias)(m))
}

func (m *DBGroupMessage) UnmarshalBinary(data []byte) error {
	type alias DBGroupMessage
	return msgpack.Unmarshal(data, (*alias)(m))
}

func (m *DBGroupMessage) model() models.GroupMessage {
	return models.GroupMessage{
		ID:               m.ID,
		GroupID:          m.GroupID,
		SenderID:         m.SenderID,
		SenderName:       m.SenderName,
		SenderProfilePic: m.SenderProfilePic,
		Text:             m.Text,
		Image:            m.Image,
		IsDeleted:        m.IsDeleted,
		DeletedFor:       m.DeletedFor,
		Reactions:        models.Reactions(m.Reactions),
		CreatedAt:        fromMillis(m.CreatedAt),
		UpdatedAt:        fromMillis(m.UpdatedAt),
	}
}

func dbGroupMessageFrom(m models.GroupMessage) *DBGroupMessage {
	return &DBGroupMessage{
		ID:               m.ID,
		GroupID:          m.GroupID,
		SenderID:         m.SenderID,
		SenderName:       m.SenderName,
		SenderProfilePic: m.SenderProfilePic,
		Text:             m.Text,
		Image:            m.Image,
		IsDeleted:        m.IsDeleted,
		DeletedFor:       m.DeletedFor,
		Reactions:        map[string][]string(m.Reactions),
		CreatedAt:        toMillis(m.CreatedAt),
		UpdatedAt:        toMillis(m.UpdatedAt),
	}
}

// seqKey encodes a timeline position so that bbolt cursor order is insertion order.
func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
