package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Marwebofficial/studio-sub000/core/chat"
)

type conversationRepository struct {
	db *conversationTable
}

var _ chat.Repository = (*conversationRepository)(nil)

func NewConversationRepository(db *DB) chat.Repository {
	return &conversationRepository{db: db.conversation}
}

func copyConversation(c *chat.Conversation) chat.Conversation {
	conv := *c
	conv.Messages = append([]chat.Message(nil), c.Messages...)
	return conv
}

func (repo *conversationRepository) CreateConversation(_ context.Context, conv chat.Conversation) (chat.Conversation, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	conv.ID = uuid.New().String()
	stored := copyConversation(&conv)
	repo.db.table[conv.ID] = &stored
	return conv, nil
}

func (repo *conversationRepository) GetConversation(_ context.Context, id string) (chat.Conversation, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if conv, ok := repo.db.table[id]; ok {
		return copyConversation(conv), nil
	}
	return chat.Conversation{}, chat.ErrNotFound
}

func (repo *conversationRepository) QueryConversations(_ context.Context, userID string) ([]chat.Conversation, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var convs []chat.Conversation
	for _, conv := range repo.db.table {
		if conv.UserID == userID {
			convs = append(convs, conv.Summary())
		}
	}
	sort.SliceStable(convs, func(i, j int) bool { return convs[i].UpdatedAt.After(convs[j].UpdatedAt) })
	return convs, nil
}

func (repo *conversationRepository) AppendMessages(_ context.Context, id string, updatedAt time.Time, msgs ...chat.Message) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	conv, ok := repo.db.table[id]
	if !ok {
		return chat.ErrNotFound
	}
	conv.Messages = append(conv.Messages, msgs...)
	conv.UpdatedAt = updatedAt
	return nil
}

func (repo *conversationRepository) RenameConversation(_ context.Context, id, title string, updatedAt time.Time) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	conv, ok := repo.db.table[id]
	if !ok {
		return chat.ErrNotFound
	}
	conv.Title = title
	conv.UpdatedAt = updatedAt
	return nil
}

func (repo *conversationRepository) DeleteConversation(_ context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[id]; !ok {
		return chat.ErrNotFound
	}
	delete(repo.db.table, id)
	return nil
}
