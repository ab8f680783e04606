package chat

import (
	"time"

	"github.com/go-playground/validator/v10"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

const maxTitleLen = 60

type Message struct {
	ID      string   `json:"id" bson:"id"`
	Role    Role     `json:"role" bson:"role"`
	Content string   `json:"content" bson:"content"`
	Sources []string `json:"sources,omitempty" bson:"sources,omitempty"`
	// Partial marks an answer whose generation was cut short.
	Partial   bool      `json:"partial,omitempty" bson:"partial,omitempty"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"` // UTC
}

type Conversation struct {
	ID        string    `json:"id" bson:"_id"`
	UserID    string    `json:"user_id" bson:"user_id"`
	Title     string    `json:"title" bson:"title"`
	Messages  []Message `json:"messages,omitempty" bson:"messages"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"` // UTC
}

// Summary returns c without its messages.
func (c Conversation) Summary() Conversation {
	c.Messages = nil
	return c
}

type NewConversation struct {
	Title string `json:"title" validate:"omitempty,max=60"`
}

func (nc NewConversation) Validate(validate *validator.Validate) error { return validate.Struct(nc) }

type RenameConversation struct {
	Title string `json:"title" validate:"required,notblank,max=60"`
}

func (rc RenameConversation) Validate(validate *validator.Validate) error { return validate.Struct(rc) }

type Question struct {
	Question string `json:"question" validate:"required,notblank,max=4000"`
}

func (q Question) Validate(validate *validator.Validate) error { return validate.Struct(q) }
