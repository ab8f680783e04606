package mongodb

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/Marwebofficial/studio-sub000/core/chat"
)

type conversationRepository struct {
	coll collection
}

var _ chat.Repository = (*conversationRepository)(nil)

// NewConversationRepository returns a chat.Repository on the conversations collection of db and ensures its index.
func NewConversationRepository(ctx context.Context, db *mongo.Database) (chat.Repository, error) {
	return newConversationRepository(ctx, mongoCollection{coll: db.Collection(conversationsCollection)})
}

func newConversationRepository(ctx context.Context, coll collection) (*conversationRepository, error) {
	if err := coll.CreateIndex(ctx, bson.D{{Key: "user_id", Value: 1}, {Key: "updated_at", Value: -1}}); err != nil {
		return nil, errors.Wrap(err, "creating conversations index")
	}
	return &conversationRepository{coll: coll}, nil
}

func byID(id string) bson.D { return bson.D{{Key: "_id", Value: id}} }

func (repo *conversationRepository) CreateConversation(ctx context.Context, conv chat.Conversation) (chat.Conversation, error) {
	conv.ID = uuid.New().String()
	if conv.Messages == nil {
		conv.Messages = []chat.Message{}
	}
	if err := repo.coll.InsertOne(ctx, conv); err != nil {
		return chat.Conversation{}, errors.Wrap(err, "inserting conversation")
	}
	return conv, nil
}

func (repo *conversationRepository) GetConversation(ctx context.Context, id string) (chat.Conversation, error) {
	var conv chat.Conversation
	if err := repo.coll.FindOne(ctx, byID(id), &conv); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return chat.Conversation{}, chat.ErrNotFound
		}
		return chat.Conversation{}, errors.Wrap(err, "getting conversation")
	}
	return utc(conv), nil
}

func (repo *conversationRepository) QueryConversations(ctx context.Context, userID string) ([]chat.Conversation, error) {
	var convs []chat.Conversation
	err := repo.coll.Find(ctx,
		bson.D{{Key: "user_id", Value: userID}},
		bson.D{{Key: "updated_at", Value: -1}},
		bson.D{{Key: "messages", Value: 0}},
		&convs,
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying conversations")
	}
	for i := range convs {
		convs[i] = utc(convs[i]).Summary()
	}
	return convs, nil
}

func (repo *conversationRepository) update(ctx context.Context, id string, update bson.D, msg string) error {
	matched, err := repo.coll.UpdateOne(ctx, byID(id), update)
	if err != nil {
		return errors.Wrap(err, msg)
	}
	if matched == 0 {
		return chat.ErrNotFound
	}
	return nil
}

func (repo *conversationRepository) AppendMessages(ctx context.Context, id string, updatedAt time.Time, msgs ...chat.Message) error {
	return repo.update(ctx, id, bson.D{
		{Key: "$push", Value: bson.D{{Key: "messages", Value: bson.D{{Key: "$each", Value: msgs}}}}},
		{Key: "$set", Value: bson.D{{Key: "updated_at", Value: updatedAt.UTC()}}},
	}, "appending messages")
}

func (repo *conversationRepository) RenameConversation(ctx context.Context, id, title string, updatedAt time.Time) error {
	return repo.update(ctx, id, bson.D{
		{Key: "$set", Value: bson.D{{Key: "title", Value: title}, {Key: "updated_at", Value: updatedAt.UTC()}}},
	}, "renaming conversation")
}

func (repo *conversationRepository) DeleteConversation(ctx context.Context, id string) error {
	deleted, err := repo.coll.DeleteOne(ctx, byID(id))
	if err != nil {
		return errors.Wrap(err, "deleting conversation")
	}
	if deleted == 0 {
		return chat.ErrNotFound
	}
	return nil
}

// utc converts the times BSON decodes in local time.
func utc(conv chat.Conversation) chat.Conversation {
	conv.CreatedAt = conv.CreatedAt.UTC()
	conv.UpdatedAt = conv.UpdatedAt.UTC()
	for i := range conv.Messages {
		conv.Messages[i].CreatedAt = conv.Messages[i].CreatedAt.UTC()
	}
	return conv
}
