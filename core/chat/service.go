package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/Marwebofficial/studio-sub000/core"
	"github.com/Marwebofficial/studio-sub000/core/tutor"
	"github.com/Marwebofficial/studio-sub000/core/usage"
	"github.com/Marwebofficial/studio-sub000/core/user"
)

var ErrNotFound = errors.New("conversation not found")

type (
	Repository interface {
		CreateConversation(ctx context.Context, conv Conversation) (Conversation, error)
		GetConversation(ctx context.Context, id string) (Conversation, error)
		// QueryConversations returns the conversations of userID without their messages, most recently updated first.
		QueryConversations(ctx context.Context, userID string) ([]Conversation, error)
		AppendMessages(ctx context.Context, id string, updatedAt time.Time, msgs ...Message) error
		RenameConversation(ctx context.Context, id, title string, updatedAt time.Time) error
		DeleteConversation(ctx context.Context, id string) error
	}

	// Answerer relays the answer to a question into out.
	Answerer interface {
		AnswerFromWebSearch(ctx context.Context, question string, out tutor.Stream) (tutor.Answer, error)
	}

	Service interface {
		Start(ctx context.Context, usr user.User, nc NewConversation) (Conversation, error)
		List(ctx context.Context, usr user.User) ([]Conversation, error)
		Get(ctx context.Context, usr user.User, id string) (Conversation, error)
		Rename(ctx context.Context, usr user.User, id string, rc RenameConversation) (Conversation, error)
		Delete(ctx context.Context, usr user.User, id string) error
		// Ask relays the answer to question into out and keeps both in the conversation.
		// out is closed once whatever happens.
		Ask(ctx context.Context, usr user.User, id, question string, out tutor.Stream) (Message, error)
	}

	service struct {
		repo     Repository
		answerer Answerer
		usage    usage.Recorder
		logger   core.Logger
	}
)

var _ Service = (*service)(nil)

// NowFunc is mocked in tests.
var NowFunc = time.Now

func NewService(repo Repository, answerer Answerer, recorder usage.Recorder, logger core.Logger) Service {
	return &service{
		repo:     repo,
		answerer: answerer,
		usage:    recorder,
		logger:   logger,
	}
}

func (svc *service) Start(ctx context.Context, usr user.User, nc NewConversation) (Conversation, error) {
	now := NowFunc().UTC()
	conv, err := svc.repo.CreateConversation(ctx, Conversation{
		UserID:    usr.ID,
		Title:     core.CleanString(nc.Title),
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return Conversation{}, errors.Wrap(err, "creating conversation")
	}
	return conv, nil
}

func (svc *service) List(ctx context.Context, usr user.User) ([]Conversation, error) {
	convs, err := svc.repo.QueryConversations(ctx, usr.ID)
	if err != nil {
		return nil, errors.Wrap(err, "querying conversations")
	}
	return convs, nil
}

// Get returns the conversation id if it belongs to usr, ErrNotFound otherwise.
func (svc *service) Get(ctx context.Context, usr user.User, id string) (Conversation, error) {
	conv, err := svc.repo.GetConversation(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Conversation{}, ErrNotFound
		}
		return Conversation{}, errors.Wrap(err, "getting conversation")
	}
	if conv.UserID != usr.ID {
		return Conversation{}, ErrNotFound
	}
	return conv, nil
}

func (svc *service) Rename(ctx context.Context, usr user.User, id string, rc RenameConversation) (Conversation, error) {
	conv, err := svc.Get(ctx, usr, id)
	if err != nil {
		return Conversation{}, err
	}
	conv.Title = core.CleanString(rc.Title)
	conv.UpdatedAt = NowFunc().UTC()
	if err = svc.repo.RenameConversation(ctx, id, conv.Title, conv.UpdatedAt); err != nil {
		return Conversation{}, errors.Wrap(err, "renaming conversation")
	}
	return conv, nil
}

func (svc *service) Delete(ctx context.Context, usr user.User, id string) error {
	if _, err := svc.Get(ctx, usr, id); err != nil {
		return err
	}
	if err := svc.repo.DeleteConversation(ctx, id); err != nil {
		return errors.Wrap(err, "deleting conversation")
	}
	return nil
}

func (svc *service) Ask(ctx context.Context, usr user.User, id, question string, out tutor.Stream) (Message, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Message{}, svc.reject(out, core.NewValidationError(
			tutor.ErrEmptyQuestion, core.FieldError{Field: "question", Error: tutor.ErrEmptyQuestion.Error()}))
	}

	conv, err := svc.Get(ctx, usr, id)
	if err != nil {
		return Message{}, svc.reject(out, err)
	}

	asked := NowFunc().UTC()
	if err = svc.repo.AppendMessages(ctx, conv.ID, asked, Message{
		ID:        uuid.New().String(),
		Role:      RoleUser,
		Content:   question,
		CreatedAt: asked,
	}); err != nil {
		return Message{}, svc.reject(out, errors.Wrap(err, "saving question"))
	}
	if conv.Title == "" {
		if err = svc.repo.RenameConversation(ctx, conv.ID, core.Truncate(question, maxTitleLen), asked); err != nil {
			svc.logger.Warn(fmt.Sprintf("titling conversation %s: %v", conv.ID, err))
		}
	}

	ans, relayErr := svc.answerer.AnswerFromWebSearch(ctx, question, out)
	if relayErr != nil && ans.Text == "" {
		return Message{}, relayErr
	}

	// the answer is kept even when the client went away
	ctx = context.WithoutCancel(ctx)

	answered := NowFunc().UTC()
	msg := Message{
		ID:        uuid.New().String(),
		Role:      RoleAssistant,
		Content:   ans.Text,
		Sources:   ans.Sources,
		Partial:   relayErr != nil,
		CreatedAt: answered,
	}
	if err = svc.repo.AppendMessages(ctx, conv.ID, answered, msg); err != nil {
		svc.logger.Error(fmt.Sprintf("saving answer to conversation %s", conv.ID), err, usr)
	}
	svc.usage.Record(ctx, usr.ID, usage.KindAnswer, usage.Tokens{Input: ans.Usage.InputTokens, Output: ans.Usage.OutputTokens})
	return msg, relayErr
}

// reject fails an Ask before anything was relayed.
func (svc *service) reject(out tutor.Stream, err error) error {
	out.Abort(err)
	if cErr := out.Close(); cErr != nil {
		svc.logger.Warn(fmt.Sprintf("closing answer stream: %v", cErr))
	}
	return err
}
