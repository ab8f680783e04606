package mongodb

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/Marwebofficial/studio-sub000/core"
	"github.com/Marwebofficial/studio-sub000/core/chat"
)

// fakeCollection keeps BSON documents by _id and records the updates it is given.
type fakeCollection struct {
	docs    map[string][]byte
	updates []bson.D
	sorts   []any
	indexes []any
}

func newFakeCollection() *fakeCollection {
	return &fakeCollection{docs: map[string][]byte{}}
}

func idOf(filter any) string {
	for _, e := range filter.(bson.D) {
		if e.Key == "_id" {
			return e.Value.(string)
		}
	}
	return ""
}

func (c *fakeCollection) InsertOne(_ context.Context, doc any) error {
	data, err := bson.Marshal(doc)
	if err != nil {
		return err
	}
	var head struct {
		ID string `bson:"_id"`
	}
	if err := bson.Unmarshal(data, &head); err != nil {
		return err
	}
	c.docs[head.ID] = data
	return nil
}

func (c *fakeCollection) FindOne(_ context.Context, filter any, dst any) error {
	data, ok := c.docs[idOf(filter)]
	if !ok {
		return mongo.ErrNoDocuments
	}
	return bson.Unmarshal(data, dst)
}

func (c *fakeCollection) Find(_ context.Context, filter, sort, _ any, dst any) error {
	c.sorts = append(c.sorts, sort)
	userID := filter.(bson.D)[0].Value
	out := dst.(*[]chat.Conversation)
	for _, data := range c.docs {
		var conv chat.Conversation
		if err := bson.Unmarshal(data, &conv); err != nil {
			return err
		}
		if conv.UserID == userID {
			*out = append(*out, conv)
		}
	}
	return nil
}

func (c *fakeCollection) UpdateOne(_ context.Context, filter, update any) (int64, error) {
	c.updates = append(c.updates, update.(bson.D))
	if _, ok := c.docs[idOf(filter)]; !ok {
		return 0, nil
	}
	return 1, nil
}

func (c *fakeCollection) DeleteOne(_ context.Context, filter any) (int64, error) {
	id := idOf(filter)
	if _, ok := c.docs[id]; !ok {
		return 0, nil
	}
	delete(c.docs, id)
	return 1, nil
}

func (c *fakeCollection) CreateIndex(_ context.Context, keys any) error {
	c.indexes = append(c.indexes, keys)
	return nil
}

func TestConversationRepository(t *testing.T) {
	coll := newFakeCollection()
	repo, err := newConversationRepository(context.Background(), coll)
	require.NoError(t, err)
	require.Len(t, coll.indexes, 1)
	ctx := context.Background()

	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	conv, err := repo.CreateConversation(ctx, chat.Conversation{UserID: "u1", Title: "Mars", CreatedAt: now, UpdatedAt: now})
	require.NoError(t, err)
	assert.NotEmpty(t, conv.ID)

	got, err := repo.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "Mars", got.Title)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, now, got.CreatedAt)
	assert.Empty(t, got.Messages)

	_, err = repo.GetConversation(ctx, "missing")
	assert.Equal(t, chat.ErrNotFound, err)

	convs, err := repo.QueryConversations(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Nil(t, convs[0].Messages)
	assert.Equal(t, bson.D{{Key: "updated_at", Value: -1}}, coll.sorts[0])

	msg := chat.Message{ID: "m1", Role: chat.RoleUser, Content: "hi", CreatedAt: now}
	require.NoError(t, repo.AppendMessages(ctx, conv.ID, now.Add(time.Minute), msg))
	push := coll.updates[0][0]
	assert.Equal(t, "$push", push.Key)
	each := push.Value.(bson.D)[0].Value.(bson.D)[0]
	assert.Equal(t, "$each", each.Key)
	assert.Equal(t, []chat.Message{msg}, each.Value)

	require.NoError(t, repo.RenameConversation(ctx, conv.ID, "Rovers", now))
	set := coll.updates[1][0].Value.(bson.D)
	assert.Equal(t, bson.E{Key: "title", Value: "Rovers"}, set[0])

	assert.Equal(t, chat.ErrNotFound, repo.AppendMessages(ctx, "missing", now, msg))
	assert.Equal(t, chat.ErrNotFound, repo.RenameConversation(ctx, "missing", "x", now))

	require.NoError(t, repo.DeleteConversation(ctx, conv.ID))
	assert.Equal(t, chat.ErrNotFound, repo.DeleteConversation(ctx, conv.ID))
}

func TestConversationRepository_Mongo(t *testing.T) {
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set")
	}
	ctx := context.Background()
	client, err := Connect(ctx, core.MongoConfig{URI: uri})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	db := client.Database("studio_test")
	require.NoError(t, db.Collection(conversationsCollection).Drop(ctx))
	repo, err := NewConversationRepository(ctx, db)
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Millisecond)
	conv, err := repo.CreateConversation(ctx, chat.Conversation{UserID: "u1", CreatedAt: now, UpdatedAt: now})
	require.NoError(t, err)

	answer := chat.Message{ID: "m2", Role: chat.RoleAssistant, Content: "Yes", Sources: []string{"https://a.example"}, Partial: true, CreatedAt: now}
	require.NoError(t, repo.AppendMessages(ctx, conv.ID, now.Add(time.Second),
		chat.Message{ID: "m1", Role: chat.RoleUser, Content: "Is Mars red?", CreatedAt: now}, answer))

	got, err := repo.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, answer, got.Messages[1])
	assert.Equal(t, now.Add(time.Second), got.UpdatedAt)

	convs, err := repo.QueryConversations(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Nil(t, convs[0].Messages)
}
