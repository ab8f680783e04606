package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/Marwebofficial/studio-sub000/core/usage"
)

type usageRow struct {
	ID        string      `db:"id"`
	UserID    null.String `db:"user_id"` // NULL once the user is deleted
	Kind      string      `db:"kind"`
	InTokens  int         `db:"input_tokens"`
	OutTokens int         `db:"output_tokens"`
	CreatedAt time.Time   `db:"created_at"`
}

type usageRepository struct {
	db *sqlx.DB
}

var _ usage.Repository = (*usageRepository)(nil)

func NewUsageRepository(db *sqlx.DB) usage.Repository {
	return &usageRepository{db: db}
}

func (repo *usageRepository) CreateEvent(ctx context.Context, evt usage.Event) (usage.Event, error) {
	evt.ID = uuid.New().String()
	evt.CreatedAt = evt.CreatedAt.UTC()
	row := usageRow{
		ID:        evt.ID,
		UserID:    null.NewString(evt.UserID, evt.UserID != ""),
		Kind:      string(evt.Kind),
		InTokens:  evt.Tokens.Input,
		OutTokens: evt.Tokens.Output,
		CreatedAt: evt.CreatedAt,
	}
	q := `INSERT INTO usage_event (id, user_id, kind, input_tokens, output_tokens, created_at)
		VALUES (:id, :user_id, :kind, :input_tokens, :output_tokens, :created_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		return usage.Event{}, errors.Wrap(err, "inserting usage event")
	}
	return evt, nil
}

func (repo *usageRepository) QueryEvents(ctx context.Context, rng usage.Range) ([]usage.Event, error) {
	q := `SELECT id, user_id, kind, input_tokens, output_tokens, created_at FROM usage_event
		WHERE created_at >= $1 AND created_at < $2 ORDER BY created_at`

	var rows []usageRow
	if err := repo.db.SelectContext(ctx, &rows, q, rng.From.UTC(), rng.To.UTC()); err != nil {
		return nil, errors.Wrap(err, "querying usage events")
	}
	events := make([]usage.Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, usage.Event{
			ID:        row.ID,
			UserID:    row.UserID.String,
			Kind:      usage.Kind(row.Kind),
			Tokens:    usage.Tokens{Input: row.InTokens, Output: row.OutTokens},
			CreatedAt: row.CreatedAt.UTC(),
		})
	}
	return events, nil
}
