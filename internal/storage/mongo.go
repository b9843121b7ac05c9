package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chatify/internal/auth"
	"chatify/internal/models"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// maxUpdateAttempts bounds the optimistic read-modify-write loop of updates.
const maxUpdateAttempts = 8

// MongoStorage keeps the same documents as BboltStorage in MongoDB. Every
// document carries a version; updates replace a document only if its
// version is unchanged and retry otherwise.
type MongoStorage struct {
	client        *mongo.Client
	users         *mongo.Collection
	messages      *mongo.Collection
	groups        *mongo.Collection
	groupMessages *mongo.Collection
	media         *mongo.Collection
	counters      *mongo.Collection
}

func NewMongoStorage(ctx context.Context, uri, database string) (*MongoStorage, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	db := client.Database(database)
	s := &MongoStorage{
		client:        client,
		users:         db.Collection("users"),
		messages:      db.Collection("messages"),
		groups:        db.Collection("groups"),
		groupMessages: db.Collection("group_messages"),
		media:         db.Collection("media"),
		counters:      db.Collection("counters"),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *MongoStorage) ensureIndexes(ctx context.Context) error {
	indexes := []struct {
		coll  *mongo.Collection
		model mongo.IndexModel
	}{
		{s.users, mongo.IndexModel{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)}},
		{s.messages, mongo.IndexModel{Keys: bson.D{{Key: "conversationId", Value: 1}, {Key: "seq", Value: 1}}}},
		{s.messages, mongo.IndexModel{Keys: bson.D{{Key: "senderId", Value: 1}}}},
		{s.messages, mongo.IndexModel{Keys: bson.D{{Key: "receiverId", Value: 1}}}},
		{s.groups, mongo.IndexModel{Keys: bson.D{{Key: "members", Value: 1}}}},
		{s.groupMessages, mongo.IndexModel{Keys: bson.D{{Key: "groupId", Value: 1}, {Key: "seq", Value: 1}}}},
	}
	for _, idx := range indexes {
		if _, err := idx.coll.Indexes().CreateOne(ctx, idx.model); err != nil {
			return fmt.Errorf("failed to create index on %s: %w", idx.coll.Name(), err)
		}
	}
	return nil
}

func (s *MongoStorage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Documents

type versioned interface {
	getVersion() int64
	setVersion(v int64)
}

type mongoUser struct {
	ID           string    `bson:"_id"`
	Email        string    `bson:"email"`
	FullName     string    `bson:"fullName"`
	ProfilePic   string    `bson:"profilePic"`
	PasswordHash string    `bson:"passwordHash"`
	CreatedAt    time.Time `bson:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt"`
	Version      int64     `bson:"version"`
}

func (d *mongoUser) getVersion() int64  { return d.Version }
func (d *mongoUser) setVersion(v int64) { d.Version = v }

func (d *mongoUser) credentials() auth.Credentials {
	return auth.Credentials{
		User: models.User{
			ID:         d.ID,
			Email:      d.Email,
			FullName:   d.FullName,
			ProfilePic: d.ProfilePic,
			CreatedAt:  d.CreatedAt,
			UpdatedAt:  d.UpdatedAt,
		},
		PasswordHash: d.PasswordHash,
	}
}

type mongoDirectMessage struct {
	ID             string              `bson:"_id"`
	ConversationID string              `bson:"conversationId"`
	Seq            int64               `bson:"seq"`
	SenderID       string              `bson:"senderId"`
	ReceiverID     string              `bson:"receiverId"`
	Text           string              `bson:"text"`
	Image          string              `bson:"image"`
	HTML           string              `bson:"html"`
	IsDeleted      bool                `bson:"isDeleted"`
	DeletedFor     []string            `bson:"deletedFor"`
	Reactions      map[string][]string `bson:"reactions"`
	CreatedAt      time.Time           `bson:"createdAt"`
	UpdatedAt      time.Time           `bson:"updatedAt"`
	Version        int64               `bson:"version"`
}

func (d *mongoDirectMessage) getVersion() int64  { return d.Version }
func (d *mongoDirectMessage) setVersion(v int64) { d.Version = v }

func (d *mongoDirectMessage) model() models.DirectMessage {
	return models.DirectMessage{
		ID:         d.ID,
		SenderID:   d.SenderID,
		ReceiverID: d.ReceiverID,
		Text:       d.Text,
		Image:      d.Image,
		HTML:       d.HTML,
		IsDeleted:  d.IsDeleted,
		DeletedFor: d.DeletedFor,
		Reactions:  models.Reactions(d.Reactions),
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

func (d *mongoDirectMessage) apply(m models.DirectMessage) {
	d.Text = m.Text
	d.Image = m.Image
	d.HTML = m.HTML
	d.IsDeleted = m.IsDeleted
	d.DeletedFor = m.DeletedFor
	d.Reactions = m.Reactions
	d.UpdatedAt = m.UpdatedAt
}

type mongoGroup struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	OwnerID   string    `bson:"ownerId"`
	Members   []string  `bson:"members"`
	Avatar    string    `bson:"avatar"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
	Version   int64     `bson:"version"`
}

func (d *mongoGroup) getVersion() int64  { return d.Version }
func (d *mongoGroup) setVersion(v int64) { d.Version = v }

func (d *mongoGroup) model() models.Group {
	return models.Group{
		ID:        d.ID,
		Name:      d.Name,
		OwnerID:   d.OwnerID,
		Members:   d.Members,
		Avatar:    d.Avatar,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

type mongoGroupMessage struct {
	ID               string              `bson:"_id"`
	GroupID          string              `bson:"groupId"`
	Seq              int64               `bson:"seq"`
	SenderID         string              `bson:"senderId"`
	SenderName       string              `bson:"senderName"`
	SenderProfilePic string              `bson:"senderProfilePic"`
	Text             string              `bson:"text"`
	Image            string              `bson:"image"`
	IsDeleted        bool                `bson:"isDeleted"`
	DeletedFor       []string            `bson:"deletedFor"`
	Reactions        map[string][]string `bson:"reactions"`
	CreatedAt        time.Time           `bson:"createdAt"`
	UpdatedAt        time.Time           `bson:"updatedAt"`
	Version          int64               `bson:"version"`
}

func (d *mongoGroupMessage) getVersion() int64  { return d.Version }
func (d *mongoGroupMessage) setVersion(v int64) { d.Version = v }

func (d *mongoGroupMessage) model() models.GroupMessage {
	return models.GroupMessage{
		ID:               d.ID,
		GroupID:          d.GroupID,
		SenderID:         d.SenderID,
		SenderName:       d.SenderName,
		SenderProfilePic: d.SenderProfilePic,
		Text:             d.Text,
		Image:            d.Image,
		IsDeleted:        d.IsDeleted,
		DeletedFor:       d.DeletedFor,
		Reactions:        models.Reactions(d.Reactions),
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

type mongoMediaObject struct {
	ID        string    `bson:"_id"`
	MimeType  string    `bson:"mimeType"`
	Size      int64     `bson:"size"`
	UserID    string    `bson:"userId"`
	CreatedAt time.Time `bson:"createdAt"`
}

// Users

func (s *MongoStorage) CreateUser(ctx context.Context, credentials auth.Credentials) error {
	_, err := s.users.InsertOne(ctx, &mongoUser{
		ID:           credentials.ID,
		Email:        normalizeEmail(credentials.Email),
		FullName:     credentials.FullName,
		ProfilePic:   credentials.ProfilePic,
		PasswordHash: credentials.PasswordHash,
		CreatedAt:    credentials.CreatedAt,
		UpdatedAt:    credentials.UpdatedAt,
	})
	if mongo.IsDuplicateKeyError(err) {
		return auth.ErrUserExists
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (s *MongoStorage) FindUser(ctx context.Context, id string) (models.User, error) {
	var doc mongoUser
	if err := s.users.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return models.User{}, notFound(err, "user", id)
	}
	return doc.credentials().User, nil
}

func (s *MongoStorage) FindCredentialsByEmail(ctx context.Context, email string) (auth.Credentials, error) {
	var doc mongoUser
	if err := s.users.FindOne(ctx, bson.M{"email": normalizeEmail(email)}).Decode(&doc); err != nil {
		return auth.Credentials{}, notFound(err, "user with email", email)
	}
	return doc.credentials(), nil
}

func (s *MongoStorage) FindUserByEmail(ctx context.Context, email string) (models.User, error) {
	creds, err := s.FindCredentialsByEmail(ctx, email)
	if err != nil {
		return models.User{}, err
	}
	return creds.User, nil
}

// ListUsers returns all users ordered by full name.
func (s *MongoStorage) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.findUsers(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "fullName", Value: 1}}))
}

// FindUsers returns the users that exist among ids, in the order given.
func (s *MongoStorage) FindUsers(ctx context.Context, ids []string) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	found, err := s.findUsers(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.User, len(found))
	for _, u := range found {
		byID[u.ID] = u
	}
	users := make([]models.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			users = append(users, u)
		}
	}
	return users, nil
}

func (s *MongoStorage) findUsers(ctx context.Context, filter bson.M, opts ...options.Lister[options.FindOptions]) ([]models.User, error) {
	cur, err := s.users.Find(ctx, filter, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to find users: %w", err)
	}
	var docs []mongoUser
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}
	users := make([]models.User, 0, len(docs))
	for i := range docs {
		users = append(users, docs[i].credentials().User)
	}
	return users, nil
}

func (s *MongoStorage) UpdateUser(ctx context.Context, id string, fn func(*models.User) error) (models.User, error) {
	var user models.User
	err := replaceVersioned(ctx, s.users, id, func(d *mongoUser) error {
		user = d.credentials().User
		if err := fn(&user); err != nil {
			return err
		}
		d.FullName = user.FullName
		d.ProfilePic = user.ProfilePic
		d.UpdatedAt = user.UpdatedAt
		return nil
	})
	return user, err
}

// Direct messages

func (s *MongoStorage) CreateDirectMessage(ctx context.Context, m models.DirectMessage) error {
	conversation := conversationID(m.SenderID, m.ReceiverID)
	seq, err := s.nextSeq(ctx, conversation)
	if err != nil {
		return err
	}
	doc := &mongoDirectMessage{
		ID:             m.ID,
		ConversationID: conversation,
		Seq:            seq,
		SenderID:       m.SenderID,
		ReceiverID:     m.ReceiverID,
		CreatedAt:      m.CreatedAt,
	}
	doc.apply(m)
	if _, err := s.messages.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (s *MongoStorage) FindDirectMessage(ctx context.Context, id string) (models.DirectMessage, error) {
	var doc mongoDirectMessage
	if err := s.messages.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return models.DirectMessage{}, notFound(err, "message", id)
	}
	return doc.model(), nil
}

// ListDirectMessages returns the conversation between userA and userB in send order.
func (s *MongoStorage) ListDirectMessages(ctx context.Context, userA, userB string) ([]models.DirectMessage, error) {
	cur, err := s.messages.Find(ctx,
		bson.M{"conversationId": conversationID(userA, userB)},
		options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find messages: %w", err)
	}
	var docs []mongoDirectMessage
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	messages := make([]models.DirectMessage, 0, len(docs))
	for i := range docs {
		messages = append(messages, docs[i].model())
	}
	return messages, nil
}

func (s *MongoStorage) UpdateDirectMessage(ctx context.Context, id string, fn func(*models.DirectMessage) error) (models.DirectMessage, error) {
	var msg models.DirectMessage
	err := replaceVersioned(ctx, s.messages, id, func(d *mongoDirectMessage) error {
		msg = d.model()
		if err := fn(&msg); err != nil {
			return err
		}
		msg.ID = id
		d.apply(msg)
		return nil
	})
	return msg, err
}

// ChatPartners returns the ids of users that share a conversation with userID.
func (s *MongoStorage) ChatPartners(ctx context.Context, userID string) ([]string, error) {
	cur, err := s.messages.Find(ctx,
		bson.M{"$or": bson.A{bson.M{"senderId": userID}, bson.M{"receiverId": userID}}},
		options.Find().SetProjection(bson.M{"senderId": 1, "receiverId": 1}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find conversations: %w", err)
	}
	var docs []mongoDirectMessage
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode conversations: %w", err)
	}
	seen := make(map[string]struct{})
	var partners []string
	for _, d := range docs {
		peer := d.model().Peer(userID)
		if _, ok := seen[peer]; ok {
			continue
		}
		seen[peer] = struct{}{}
		partners = append(partners, peer)
	}
	return partners, nil
}

// Groups

func (s *MongoStorage) CreateGroup(ctx context.Context, g models.Group) error {
	_, err := s.groups.InsertOne(ctx, &mongoGroup{
		ID:        g.ID,
		Name:      g.Name,
		OwnerID:   g.OwnerID,
		Members:   g.Members,
		Avatar:    g.Avatar,
		CreatedAt: g.CreatedAt,
		UpdatedAt: g.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to insert group: %w", err)
	}
	return nil
}

func (s *MongoStorage) FindGroup(ctx context.Context, id string) (models.Group, error) {
	var doc mongoGroup
	if err := s.groups.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return models.Group{}, notFound(err, "group", id)
	}
	return doc.model(), nil
}

// ListGroupsForUser returns the groups userID is a member of, oldest first.
func (s *MongoStorage) ListGroupsForUser(ctx context.Context, userID string) ([]models.Group, error) {
	cur, err := s.groups.Find(ctx,
		bson.M{"members": userID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find groups: %w", err)
	}
	var docs []mongoGroup
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode groups: %w", err)
	}
	groups := make([]models.Group, 0, len(docs))
	for i := range docs {
		groups = append(groups, docs[i].model())
	}
	return groups, nil
}

func (s *MongoStorage) UpdateGroup(ctx context.Context, id string, fn func(*models.Group) error) (models.Group, error) {
	var group models.Group
	err := replaceVersioned(ctx, s.groups, id, func(d *mongoGroup) error {
		group = d.model()
		if err := fn(&group); err != nil {
			return err
		}
		group.ID = id
		d.Name = group.Name
		d.OwnerID = group.OwnerID
		d.Members = group.Members
		d.Avatar = group.Avatar
		d.UpdatedAt = group.UpdatedAt
		return nil
	})
	return group, err
}

// Group messages

func (s *MongoStorage) CreateGroupMessage(ctx context.Context, m models.GroupMessage) error {
	seq, err := s.nextSeq(ctx, "group_"+m.GroupID)
	if err != nil {
		return err
	}
	_, err = s.groupMessages.InsertOne(ctx, &mongoGroupMessage{
		ID:               m.ID,
		GroupID:          m.GroupID,
		Seq:              seq,
		SenderID:         m.SenderID,
		SenderName:       m.SenderName,
		SenderProfilePic: m.SenderProfilePic,
		Text:             m.Text,
		Image:            m.Image,
		IsDeleted:        m.IsDeleted,
		DeletedFor:       m.DeletedFor,
		Reactions:        m.Reactions,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to insert group message: %w", err)
	}
	return nil
}

func (s *MongoStorage) FindGroupMessage(ctx context.Context, id string) (models.GroupMessage, error) {
	var doc mongoGroupMessage
	if err := s.groupMessages.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return models.GroupMessage{}, notFound(err, "group message", id)
	}
	return doc.model(), nil
}

func (s *MongoStorage) ListGroupMessages(ctx context.Context, groupID string) ([]models.GroupMessage, error) {
	cur, err := s.groupMessages.Find(ctx,
		bson.M{"groupId": groupID},
		options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find group messages: %w", err)
	}
	var docs []mongoGroupMessage
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode group messages: %w", err)
	}
	messages := make([]models.GroupMessage, 0, len(docs))
	for i := range docs {
		messages = append(messages, docs[i].model())
	}
	return messages, nil
}

func (s *MongoStorage) UpdateGroupMessage(ctx context.Context, id string, fn func(*models.GroupMessage) error) (models.GroupMessage, error) {
	var msg models.GroupMessage
	err := replaceVersioned(ctx, s.groupMessages, id, func(d *mongoGroupMessage) error {
		msg = d.model()
		if err := fn(&msg); err != nil {
			return err
		}
		msg.ID = id
		d.Text = msg.Text
		d.Image = msg.Image
		d.IsDeleted = msg.IsDeleted
		d.DeletedFor = msg.DeletedFor
		d.Reactions = msg.Reactions
		d.UpdatedAt = msg.UpdatedAt
		return nil
	})
	return msg, err
}

// Media

func (s *MongoStorage) SaveMediaObject(ctx context.Context, obj models.MediaObject) error {
	_, err := s.media.InsertOne(ctx, &mongoMediaObject{
		ID:        obj.ID,
		MimeType:  obj.MimeType,
		Size:      obj.Size,
		UserID:    obj.UserID,
		CreatedAt: obj.CreatedAt,
	})
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("failed to insert media object: %w", err)
	}
	return nil
}

func (s *MongoStorage) FindMediaObject(ctx context.Context, id string) (models.MediaObject, error) {
	var doc mongoMediaObject
	if err := s.media.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return models.MediaObject{}, notFound(err, "media object", id)
	}
	return models.MediaObject{
		ID:        doc.ID,
		MimeType:  doc.MimeType,
		Size:      doc.Size,
		UserID:    doc.UserID,
		CreatedAt: doc.CreatedAt,
	}, nil
}

// Helpers

// nextSeq returns the next position in the timeline named key.
func (s *MongoStorage) nextSeq(ctx context.Context, key string) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": key},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("failed to advance sequence %s: %w", key, err)
	}
	return counter.Seq, nil
}

// replaceVersioned loads the document id, lets fn modify it and writes it
// back only if nobody else changed it in the meantime.
func replaceVersioned[D any, P interface {
	*D
	versioned
}](ctx context.Context, coll *mongo.Collection, id string, fn func(P) error) error {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		var doc D
		if err := coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
			return notFound(err, coll.Name(), id)
		}
		p := P(&doc)
		version := p.getVersion()
		if err := fn(p); err != nil {
			return err
		}
		p.setVersion(version + 1)

		res, err := coll.ReplaceOne(ctx, bson.M{"_id": id, "version": version}, p)
		if err != nil {
			return fmt.Errorf("failed to replace %s %s: %w", coll.Name(), id, err)
		}
		if res.MatchedCount == 1 {
			return nil
		}
	}
	return fmt.Errorf("%s %s changed concurrently: %w", coll.Name(), id, models.ErrConflict)
}

func notFound(err error, what, id string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s %s: %w", what, id, models.ErrNotFound)
	}
	return fmt.Errorf("failed to find %s %s: %w", what, id, err)
}
