package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/Marwebofficial/studio-sub000/core/usage"
)

type usageRepository struct {
	db *usageTable
}

var _ usage.Repository = (*usageRepository)(nil)

func NewUsageRepository(db *DB) usage.Repository {
	return &usageRepository{db: db.usage}
}

func (repo *usageRepository) CreateEvent(_ context.Context, evt usage.Event) (usage.Event, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	evt.ID = uuid.New().String()
	evt.CreatedAt = evt.CreatedAt.UTC()
	repo.db.rows = append(repo.db.rows, evt)
	return evt, nil
}

func (repo *usageRepository) QueryEvents(_ context.Context, rng usage.Range) ([]usage.Event, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var events []usage.Event
	for _, evt := range repo.db.rows {
		if !evt.CreatedAt.Before(rng.From) && evt.CreatedAt.Before(rng.To) {
			events = append(events, evt)
		}
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].CreatedAt.Before(events[j].CreatedAt) })
	return events, nil
}
