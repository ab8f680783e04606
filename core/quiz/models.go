package quiz

import "github.com/go-playground/validator/v10"

const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"

	defaultQuestions  = 5
	defaultDifficulty = DifficultyMedium
)

type Request struct {
	Topic      string `json:"topic" validate:"required,notblank,max=200"`
	Questions  int    `json:"questions" validate:"omitempty,min=1,max=10"`
	Difficulty string `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
}

func (r Request) Validate(validate *validator.Validate) error { return validate.Struct(r) }

type Question struct {
	Question    string   `json:"question" jsonschema:"required,minLength=1"`
	Options     []string `json:"options" jsonschema:"required,minItems=2,maxItems=6"`
	Answer      int      `json:"answer" jsonschema:"required,minimum=0,description=Index of the correct option."`
	Explanation string   `json:"explanation,omitempty"`
}

type Quiz struct {
	Topic      string     `json:"topic" jsonschema:"required"`
	Difficulty string     `json:"difficulty" jsonschema:"required,enum=easy,enum=medium,enum=hard"`
	Questions  []Question `json:"questions" jsonschema:"required,minItems=1"`
}
