package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/Marwebofficial/studio-sub000/core"
)

const (
	dayLayout       = "2006-01-02"
	defaultRangeLen = 30 * 24 * time.Hour
	maxRangeLen     = 366 * 24 * time.Hour
)

var errInvalidRange = errors.New("invalid range")

type (
	Repository interface {
		CreateEvent(ctx context.Context, evt Event) (Event, error)
		// QueryEvents returns the events created in rng, oldest first.
		QueryEvents(ctx context.Context, rng Range) ([]Event, error)
	}

	// Recorder records usage events. Failures are logged, never returned.
	Recorder interface {
		Record(ctx context.Context, userID string, kind Kind, tokens Tokens)
	}

	Service interface {
		Recorder
		Dashboard(ctx context.Context, rng Range) (Dashboard, error)
	}

	service struct {
		repo   Repository
		logger core.Logger
	}
)

var _ Service = (*service)(nil)

// NowFunc is mocked in tests.
var NowFunc = time.Now

func NewService(repo Repository, logger core.Logger) Service {
	return &service{repo: repo, logger: logger}
}

func (svc *service) Record(ctx context.Context, userID string, kind Kind, tokens Tokens) {
	evt := Event{UserID: userID, Kind: kind, Tokens: tokens, CreatedAt: NowFunc().UTC()}
	if _, err := svc.repo.CreateEvent(ctx, evt); err != nil {
		svc.logger.Error(fmt.Sprintf("recording %s usage of user %s", kind, userID), err)
	}
}

// Dashboard aggregates the events in rng. A zero To means now, a zero From means 30 days before To.
func (svc *service) Dashboard(ctx context.Context, rng Range) (Dashboard, error) {
	rng, err := cleanRange(rng)
	if err != nil {
		return Dashboard{}, err
	}

	events, err := svc.repo.QueryEvents(ctx, rng)
	if err != nil {
		return Dashboard{}, errors.Wrap(err, "querying usage events")
	}

	dash := Dashboard{From: rng.From, To: rng.To, Totals: make(map[Kind]int, len(Kinds))}
	for _, kind := range Kinds {
		dash.Totals[kind] = 0
	}

	users := make(map[string]struct{})
	days := make(map[string]*DailyCount)
	for _, evt := range events {
		dash.Totals[evt.Kind]++
		dash.Total++
		dash.Tokens = dash.Tokens.Add(evt.Tokens)
		if evt.UserID != "" {
			users[evt.UserID] = struct{}{}
		}

		key := evt.CreatedAt.UTC().Format(dayLayout)
		day, ok := days[key]
		if !ok {
			day = &DailyCount{Day: key, Counts: make(map[Kind]int)}
			days[key] = day
		}
		day.Counts[evt.Kind]++
		day.Total++
		day.Tokens = day.Tokens.Add(evt.Tokens)
	}
	dash.ActiveUsers = len(users)

	// one entry per day of the range, days without events included
	for d := truncateDay(rng.From); d.Before(rng.To); d = d.AddDate(0, 0, 1) {
		key := d.Format(dayLayout)
		if day, ok := days[key]; ok {
			dash.Daily = append(dash.Daily, *day)
			continue
		}
		dash.Daily = append(dash.Daily, DailyCount{Day: key, Counts: map[Kind]int{}})
	}
	return dash, nil
}

func cleanRange(rng Range) (Range, error) {
	if rng.To.IsZero() {
		rng.To = NowFunc()
	}
	if rng.From.IsZero() {
		rng.From = rng.To.Add(-defaultRangeLen)
	}
	rng.From, rng.To = rng.From.UTC(), rng.To.UTC()

	if !rng.From.Before(rng.To) {
		return Range{}, core.NewValidationError(errInvalidRange, core.FieldError{Field: "from", Error: "must be before to"})
	}
	if rng.To.Sub(rng.From) > maxRangeLen {
		return Range{}, core.NewValidationError(errInvalidRange, core.FieldError{Field: "from", Error: "range cannot exceed 366 days"})
	}
	return rng, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
