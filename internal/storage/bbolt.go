package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"chatify/internal/auth"
	"chatify/internal/models"

	"go.etcd.io/bbolt"
)

var (
	bucketUsers          = []byte("users")
	bucketUsersByEmail   = []byte("users_by_email")
	bucketMessages       = []byte("messages")
	bucketConversations  = []byte("conversations")
	bucketGroups         = []byte("groups")
	bucketGroupMessages  = []byte("group_messages")
	bucketGroupTimelines = []byte("group_timelines")
	bucketFiles          = []byte("files")
)

// BboltStorage is a document store on top of a single bbolt file.
// Every update runs its read-modify-write inside one bbolt write
// transaction, so concurrent updates of the same document never lose writes.
type BboltStorage struct {
	db *bbolt.DB
}

func NewBboltStorage(path string) (*BboltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{
			bucketUsers,
			bucketUsersByEmail,
			bucketMessages,
			bucketConversations,
			bucketGroups,
			bucketGroupMessages,
			bucketGroupTimelines,
			bucketFiles,
		} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStorage{db: db}, nil
}

func (s *BboltStorage) Close() error {
	return s.db.Close()
}

// Users

// CreateUser stores new credentials. Emails are unique, case-insensitively.
func (s *BboltStorage) CreateUser(ctx context.Context, credentials auth.Credentials) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		byEmail := tx.Bucket(bucketUsersByEmail)
		emailKey := []byte(normalizeEmail(credentials.Email))
		if byEmail.Get(emailKey) != nil {
			return auth.ErrUserExists
		}

		dbUser := dbUserFrom(credentials)
		data, err := dbUser.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to marshal user: %w", err)
		}
		if err := tx.Bucket(bucketUsers).Put(dbUser.Key(), data); err != nil {
			return fmt.Errorf("failed to put user: %w", err)
		}
		return byEmail.Put(emailKey, dbUser.Key())
	})
}

func (s *BboltStorage) FindUser(ctx context.Context, id string) (models.User, error) {
	if err := ctx.Err(); err != nil {
		return models.User{}, err
	}
	var user models.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		dbUser, err := getUser(tx, id)
		if err != nil {
			return err
		}
		user = dbUser.credentials().User
		return nil
	})
	return user, err
}

// FindCredentialsByEmail returns the user with the given email including the password hash.
func (s *BboltStorage) FindCredentialsByEmail(ctx context.Context, email string) (auth.Credentials, error) {
	if err := ctx.Err(); err != nil {
		return auth.Credentials{}, err
	}
	var creds auth.Credentials
	err := s.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(bucketUsersByEmail).Get([]byte(normalizeEmail(email)))
		if id == nil {
			return fmt.Errorf("user with email %s: %w", email, models.ErrNotFound)
		}
		dbUser, err := getUser(tx, string(id))
		if err != nil {
			return err
		}
		creds = dbUser.credentials()
		return nil
	})
	return creds, err
}

func (s *BboltStorage) FindUserByEmail(ctx context.Context, email string) (models.User, error) {
	creds, err := s.FindCredentialsByEmail(ctx, email)
	if err != nil {
		return models.User{}, err
	}
	return creds.User, nil
}

// ListUsers returns all users ordered by full name.
func (s *BboltStorage) ListUsers(ctx context.Context) ([]models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var users []models.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketUsers).ForEach(func(k, v []byte) error {
			var dbUser DBUser
			if err := dbUser.UnmarshalBinary(v); err != nil {
				return fmt.Errorf("failed to unmarshal user %s: %w", k, err)
			}
			users = append(users, dbUser.credentials().User)
			return nil
		})
	})
	sort.SliceStable(users, func(i, j int) bool {
		return users[i].FullName < users[j].FullName
	})
	return users, err
}

// FindUsers returns the users that exist among ids, in the order given.
func (s *BboltStorage) FindUsers(ctx context.Context, ids []string) ([]models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	users := make([]models.User, 0, len(ids))
	err := s.db.View(func(tx *bbolt.Tx) error {
		for _, id := range ids {
			dbUser, err := getUser(tx, id)
			if err != nil {
				continue
			}
			users = append(users, dbUser.credentials().User)
		}
		return nil
	})
	return users, err
}

// UpdateUser applies fn to the stored profile of id. Email and password are not changed.
func (s *BboltStorage) UpdateUser(ctx context.Context, id string, fn func(*models.User) error) (models.User, error) {
	if err := ctx.Err(); err != nil {
		return models.User{}, err
	}
	var user models.User
	err := s.db.Update(func(tx *bbolt.Tx) error {
		dbUser, err := getUser(tx, id)
		if err != nil {
			return err
		}
		creds := dbUser.credentials()
		user = creds.User
		if err := fn(&user); err != nil {
			return err
		}
		dbUser.FullName = user.FullName
		dbUser.ProfilePic = user.ProfilePic
		dbUser.UpdatedAt = toMillis(user.UpdatedAt)
		return put(tx.Bucket(bucketUsers), dbUser)
	})
	return user, err
}

// Direct messages

// CreateDirectMessage stores m and appends it to the conversation timeline of its two participants.
func (s *BboltStorage) CreateDirectMessage(ctx context.Context, m models.DirectMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := put(tx.Bucket(bucketMessages), dbDirectMessageFrom(m)); err != nil {
			return fmt.Errorf("failed to put message: %w", err)
		}
		timeline, err := tx.Bucket(bucketConversations).CreateBucketIfNotExists([]byte(conversationID(m.SenderID, m.ReceiverID)))
		if err != nil {
			return fmt.Errorf("failed to create conversation bucket: %w", err)
		}
		seq, err := timeline.NextSequence()
		if err != nil {
			return err
		}
		return timeline.Put(seqKey(seq), []byte(m.ID))
	})
}

func (s *BboltStorage) FindDirectMessage(ctx context.Context, id string) (models.DirectMessage, error) {
	if err := ctx.Err(); err != nil {
		return models.DirectMessage{}, err
	}
	var msg models.DirectMessage
	err := s.db.View(func(tx *bbolt.Tx) error {
		dbMsg, err := getDirectMessage(tx, id)
		if err != nil {
			return err
		}
		msg = dbMsg.model()
		return nil
	})
	return msg, err
}

// ListDirectMessages returns the conversation between userA and userB in send order.
func (s *BboltStorage) ListDirectMessages(ctx context.Context, userA, userB string) ([]models.DirectMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var messages []models.DirectMessage
	err := s.db.View(func(tx *bbolt.Tx) error {
		timeline := tx.Bucket(bucketConversations).Bucket([]byte(conversationID(userA, userB)))
		if timeline == nil {
			return nil // No messages yet
		}
		return timeline.ForEach(func(_, id []byte) error {
			dbMsg, err := getDirectMessage(tx, string(id))
			if err != nil {
				return err
			}
			messages = append(messages, dbMsg.model())
			return nil
		})
	})
	return messages, err
}

// UpdateDirectMessage atomically applies fn to the message with the given id.
// If fn returns an error nothing is written.
func (s *BboltStorage) UpdateDirectMessage(ctx context.Context, id string, fn func(*models.DirectMessage) error) (models.DirectMessage, error) {
	if err := ctx.Err(); err != nil {
		return models.DirectMessage{}, err
	}
	var msg models.DirectMessage
	err := s.db.Update(func(tx *bbolt.Tx) error {
		dbMsg, err := getDirectMessage(tx, id)
		if err != nil {
			return err
		}
		msg = dbMsg.model()
		if err := fn(&msg); err != nil {
			return err
		}
		msg.ID = id
		return put(tx.Bucket(bucketMessages), dbDirectMessageFrom(msg))
	})
	return msg, err
}

// ChatPartners returns the ids of users that share a conversation with userID.
func (s *BboltStorage) ChatPartners(ctx context.Context, userID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var partners []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketConversations).ForEachBucket(func(name []byte) error {
			if peer, ok := conversationPeer(string(name), userID); ok {
				partners = append(partners, peer)
			}
			return nil
		})
	})
	return partners, err
}

// Groups

func (s *BboltStorage) CreateGroup(ctx context.Context, g models.Group) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return put(tx.Bucket(bucketGroups), dbGroupFrom(g))
	})
}

func (s *BboltStorage) FindGroup(ctx context.Context, id string) (models.Group, error) {
	if err := ctx.Err(); err != nil {
		return models.Group{}, err
	}
	var group models.Group
	err := s.db.View(func(tx *bbolt.Tx) error {
		dbGroup, err := getGroup(tx, id)
		if err != nil {
			return err
		}
		group = dbGroup.model()
		return nil
	})
	return group, err
}

// ListGroupsForUser returns the groups userID is a member of, oldest first.
func (s *BboltStorage) ListGroupsForUser(ctx context.Context, userID string) ([]models.Group, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var groups []models.Group
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketGroups).ForEach(func(k, v []byte) error {
			var dbGroup DBGroup
			if err := dbGroup.UnmarshalBinary(v); err != nil {
				return fmt.Errorf("failed to unmarshal group %s: %w", k, err)
			}
			if g := dbGroup.model(); g.HasMember(userID) {
				groups = append(groups, g)
			}
			return nil
		})
	})
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].CreatedAt.Before(groups[j].CreatedAt)
	})
	return groups, err
}

// UpdateGroup atomically applies fn to the group with the given id.
func (s *BboltStorage) UpdateGroup(ctx context.Context, id string, fn func(*models.Group) error) (models.Group, error) {
	if err := ctx.Err(); err != nil {
		return models.Group{}, err
	}
	var group models.Group
	err := s.db.Update(func(tx *bbolt.Tx) error {
		dbGroup, err := getGroup(tx, id)
		if err != nil {
			return err
		}
		group = dbGroup.model()
		if err := fn(&group); err != nil {
			return err
		}
		group.ID = id
		return put(tx.Bucket(bucketGroups), dbGroupFrom(group))
	})
	return group, err
}

// Group messages

func (s *BboltStorage) CreateGroupMessage(ctx context.Context, m models.GroupMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := put(tx.Bucket(bucketGroupMessages), dbGroupMessageFrom(m)); err != nil {
			return fmt.Errorf("failed to put group message: %w", err)
		}
		timeline, err := tx.Bucket(bucketGroupTimelines).CreateBucketIfNotExists([]byte(m.GroupID))
		if err != nil {
			return fmt.Errorf("failed to create group timeline: %w", err)
		}
		seq, err := timeline.NextSequence()
		if err != nil {
			return err
		}
		return timeline.Put(seqKey(seq), []byte(m.ID))
	})
}

func (s *BboltStorage) FindGroupMessage(ctx context.Context, id string) (models.GroupMessage, error) {
	if err := ctx.Err(); err != nil {
		return models.GroupMessage{}, err
	}
	var msg models.GroupMessage
	err := s.db.View(func(tx *bbolt.Tx) error {
		dbMsg, err := getGroupMessage(tx, id)
		if err != nil {
			return err
		}
		msg = dbMsg.model()
		return nil
	})
	return msg, err
}

func (s *BboltStorage) ListGroupMessages(ctx context.Context, groupID string) ([]models.GroupMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var messages []models.GroupMessage
	err := s.db.View(func(tx *bbolt.Tx) error {
		timeline := tx.Bucket(bucketGroupTimelines).Bucket([]byte(groupID))
		if timeline == nil {
			return nil
		}
		return timeline.ForEach(func(_, id []byte) error {
			dbMsg, err := getGroupMessage(tx, string(id))
			if err != nil {
				return err
			}
			messages = append(messages, dbMsg.model())
			return nil
		})
	})
	return messages, err
}

func (s *BboltStorage) UpdateGroupMessage(ctx context.Context, id string, fn func(*models.GroupMessage) error) (models.GroupMessage, error) {
	if err := ctx.Err(); err != nil {
		return models.GroupMessage{}, err
	}
	var msg models.GroupMessage
	err := s.db.Update(func(tx *bbolt.Tx) error {
		dbMsg, err := getGroupMessage(tx, id)
		if err != nil {
			return err
		}
		msg = dbMsg.model()
		if err := fn(&msg); err != nil {
			return err
		}
		msg.ID = id
		return put(tx.Bucket(bucketGroupMessages), dbGroupMessageFrom(msg))
	})
	return msg, err
}

// Helpers

func put(b *bbolt.Bucket, v Storeable) error {
	data, err := v.MarshalBinary()
	if err != nil {
		return err
	}
	return b.Put(v.Key(), data)
}

func getUser(tx *bbolt.Tx, id string) (*DBUser, error) {
	data := tx.Bucket(bucketUsers).Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	var dbUser DBUser
	if err := dbUser.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return &dbUser, nil
}

func getDirectMessage(tx *bbolt.Tx, id string) (*DBDirectMessage, error) {
	data := tx.Bucket(bucketMessages).Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("message %s: %w", id, models.ErrNotFound)
	}
	var dbMsg DBDirectMessage
	if err := dbMsg.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	return &dbMsg, nil
}

func getGroup(tx *bbolt.Tx, id string) (*DBGroup, error) {
	data := tx.Bucket(bucketGroups).Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("group %s: %w", id, models.ErrNotFound)
	}
	var dbGroup DBGroup
	if err := dbGroup.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal group: %w", err)
	}
	return &dbGroup, nil
}

func getGroupMessage(tx *bbolt.Tx, id string) (*DBGroupMessage, error) {
	data := tx.Bucket(bucketGroupMessages).Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("group message %s: %w", id, models.ErrNotFound)
	}
	var dbMsg DBGroupMessage
	if err := dbMsg.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal group message: %w", err)
	}
	return &dbMsg, nil
}

// conversationID is the deterministic key of the direct conversation between two users.
func conversationID(u1, u2 string) string {
	ids := []string{u1, u2}
	sort.Strings(ids)
	return fmt.Sprintf("dm_%s_%s", ids[0], ids[1])
}

// conversationPeer returns the other participant of a conversation key if userID takes part in it.
func conversationPeer(key, userID string) (string, bool) {
	if !strings.HasPrefix(key, "dm_") {
		return "", false
	}
	parts := strings.Split(key[3:], "_")
	if len(parts) != 2 {
		return "", false
	}
	switch userID {
	case parts[0]:
		return parts[1], true
	case parts[1]:
		return parts[0], true
	}
	return "", false
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
