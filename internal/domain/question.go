package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// QuestionType classifies a question.
type QuestionType string

const (
	QuestionSingleChoice   QuestionType = "single_choice"
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
	QuestionFillBlank      QuestionType = "fill_blank"
	QuestionShortAnswer    QuestionType = "short_answer"
	QuestionEssay          QuestionType = "essay"
)

// QuestionTypes lists every type in presentation order.
var QuestionTypes = []QuestionType{
	QuestionSingleChoice,
	QuestionMultipleChoice,
	QuestionTrueFalse,
	QuestionFillBlank,
	QuestionShortAnswer,
	QuestionEssay,
}

// ParseQuestionType maps loose spellings ("single", "tf", "essay") onto a QuestionType.
func ParseQuestionType(s string) (QuestionType, bool) {
	switch s {
	case "single_choice", "single", "choice", "sc":
		return QuestionSingleChoice, true
	case "multiple_choice", "multiple", "multi", "mc":
		return QuestionMultipleChoice, true
	case "true_false", "truefalse", "tf", "judge":
		return QuestionTrueFalse, true
	case "fill_blank", "fill", "blank":
		return QuestionFillBlank, true
	case "short_answer", "short":
		return QuestionShortAnswer, true
	case "essay", "long":
		return QuestionEssay, true
	default:
		return "", false
	}
}

// Question is one entry of a question bank.
type Question struct {
	ID      string       `json:"id"`
	Type    QuestionType `json:"type"`
	Stem    string       `json:"stem"`
	Options []string     `json:"options,omitempty"`
	Answer  string       `json:"answer,omitempty"`
	Points  float64      `json:"points"`
}

// QuestionList is stored as a JSON text column.
type QuestionList []Question

// Value implements the driver.Valuer interface for database serialization.
func (l QuestionList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (l *QuestionList) Scan(value interface{}) error {
	if value == nil {
		*l = QuestionList{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan QuestionList")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, l)
}

// QuestionSet is a named collection of questions that becomes one exam paper.
type QuestionSet struct {
	ID         string       `gorm:"type:text;primaryKey" json:"id"`
	Title      string       `gorm:"type:text;not null" json:"title"`
	Subject    string       `gorm:"type:text;index" json:"subject,omitempty"`
	SourcePath string       `gorm:"type:text" json:"source_path,omitempty"`
	Questions  QuestionList `gorm:"type:text" json:"questions"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// TableName returns the database table name for QuestionSet.
func (QuestionSet) TableName() string {
	return "question_sets"
}

// TotalPoints sums the points of every question.
func (s *QuestionSet) TotalPoints() float64 {
	var total float64
	for _, q := range s.Questions {
		total += q.Points
	}
	return total
}

// CountByType counts questions per type.
func (s *QuestionSet) CountByType() map[QuestionType]int {
	counts := make(map[QuestionType]int)
	for _, q := range s.Questions {
		counts[q.Type]++
	}
	return counts
}

// Template is a document template body executed by the template renderer.
type Template struct {
	ID        string       `gorm:"type:text;primaryKey" json:"id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Format    OutputFormat `gorm:"type:text" json:"format"`
	Body      string       `gorm:"type:text;not null" json:"body"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// TableName returns the database table name for Template.
func (Template) TableName() string {
	return "templates"
}
