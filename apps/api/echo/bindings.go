package echoapi

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Marwebofficial/studio-sub000/core"
	"github.com/Marwebofficial/studio-sub000/core/usage"
)

const orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := strings.TrimSpace(ctx.QueryParam(orderingParam))
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

var timeLayouts = []string{time.RFC3339, "2006-01-02"}

// bindRange reads the from & to query params, as RFC 3339 timestamps or plain dates.
func bindRange(ctx echo.Context) (usage.Range, error) {
	var rng usage.Range
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"from", &rng.From}, {"to", &rng.To}} {
		val := strings.TrimSpace(ctx.QueryParam(p.name))
		if val == "" {
			continue
		}
		t, err := parseTime(val)
		if err != nil {
			return usage.Range{}, core.NewValidationError(nil, core.FieldError{Field: p.name, Error: "invalid date"})
		}
		*p.dst = t
	}
	return rng, nil
}

func parseTime(val string) (t time.Time, err error) {
	for _, layout := range timeLayouts {
		if t, err = time.Parse(layout, val); err == nil {
			return t, nil
		}
	}
	return t, err
}
