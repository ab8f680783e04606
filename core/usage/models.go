package usage

import "time"

type Kind string

const (
	KindAnswer Kind = "answer"
	KindQuiz   Kind = "quiz"
	KindImage  Kind = "image"
	KindSpeech Kind = "speech"
)

// Kinds lists every kind of usage event, in dashboard order.
var Kinds = []Kind{KindAnswer, KindQuiz, KindImage, KindSpeech}

// Tokens counts the engine tokens consumed by a use. Media generation consumes none.
type Tokens struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

func (t Tokens) Add(o Tokens) Tokens {
	return Tokens{Input: t.Input + o.Input, Output: t.Output + o.Output}
}

// Event records one use of a generation feature.
type Event struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Kind      Kind      `json:"kind"`
	Tokens    Tokens    `json:"tokens"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

// Range selects events created in [From, To).
type Range struct {
	From time.Time `query:"from"`
	To   time.Time `query:"to"`
}

type DailyCount struct {
	Day    string       `json:"day"` // YYYY-MM-DD
	Counts map[Kind]int `json:"counts"`
	Total  int          `json:"total"`
	Tokens Tokens       `json:"tokens"`
}

type Dashboard struct {
	From        time.Time    `json:"from"`
	To          time.Time    `json:"to"`
	Totals      map[Kind]int `json:"totals"`
	Total       int          `json:"total"`
	Tokens      Tokens       `json:"tokens"`
	ActiveUsers int          `json:"active_users"`
	Daily       []DailyCount `json:"daily"`
}
