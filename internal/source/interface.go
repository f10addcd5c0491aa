// Package source parses question-bank files into question sets.
package source

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/timmy/examforge/internal/domain"
)

// Parser defines the interface for question-bank file parsers.
type Parser interface {
	// Name returns the parser identifier.
	// Parameters: none.
	// Returns:
	//   - string: stable parser name.
	Name() string

	// Extensions returns the lower-case file extensions (with dot) the parser handles.
	// Parameters: none.
	// Returns:
	//   - []string: supported extensions.
	Extensions() []string

	// Parse reads a question-bank file.
	// Parameters:
	//   - path: file to read.
	// Returns:
	//   - *domain.QuestionSet: parsed set with its ID derived from the file name.
	//   - error: *ParseError when the file is malformed.
	Parse(path string) (*domain.QuestionSet, error)
}

// ParseError reports a malformed question-bank file.
type ParseError struct {
	Path string
	Line int
	Msg  string
	Err  error
}

func (e *ParseError) Error() string {
	loc := e.Path
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d", e.Path, e.Line)
	}
	if e.Err != nil {
		return fmt.Sprintf("parse %s: %s: %v", loc, e.Msg, e.Err)
	}
	return fmt.Sprintf("parse %s: %s", loc, e.Msg)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

var parsers = []Parser{
	&MarkdownParser{},
	&CSVParser{},
}

// ForPath returns the parser registered for the extension of path.
func ForPath(path string) (Parser, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	for _, p := range parsers {
		for _, e := range p.Extensions() {
			if e == ext {
				return p, true
			}
		}
	}
	return nil, false
}

// ParseFile parses path with the parser matching its extension.
func ParseFile(path string) (*domain.QuestionSet, error) {
	p, ok := ForPath(path)
	if !ok {
		return nil, &ParseError{Path: path, Msg: fmt.Sprintf("unsupported file type %q", filepath.Ext(path))}
	}
	return p.Parse(path)
}

var unsafeIDChars = regexp.MustCompile(`[^a-z0-9_-]+`)

// SetIDFromPath derives a question set ID from a file name.
func SetIDFromPath(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	id := unsafeIDChars.ReplaceAllString(strings.ToLower(base), "-")
	id = strings.Trim(id, "-")
	if id == "" {
		id = "set"
	}
	return id
}

// inferType guesses a question type when the file does not name one.
func inferType(q *domain.Question) domain.QuestionType {
	switch {
	case len(q.Options) > 0 && len(normalizeLetters(q.Answer)) > 1:
		return domain.QuestionMultipleChoice
	case len(q.Options) > 0:
		return domain.QuestionSingleChoice
	case isTrueFalse(q.Answer):
		return domain.QuestionTrueFalse
	case strings.Contains(q.Stem, "___"):
		return domain.QuestionFillBlank
	default:
		return domain.QuestionShortAnswer
	}
}

func isTrueFalse(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "true", "false", "t", "f", "yes", "no":
		return true
	}
	return false
}

// normalizeLetters strips separators from choice answers such as "A, C".
func normalizeLetters(answer string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(answer) {
		if r >= 'A' && r <= 'Z' {
			b.WriteRune(r)
		} else if r != ',' && r != ' ' && r != ';' {
			return strings.TrimSpace(answer)
		}
	}
	return b.String()
}

// parseTypeName accepts "Single Choice", "single_choice", "tf" and the like.
func parseTypeName(s string) (domain.QuestionType, bool) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	if qt, ok := domain.ParseQuestionType(norm); ok {
		return qt, true
	}
	switch norm {
	case "true_or_false":
		return domain.QuestionTrueFalse, true
	case "fill_in_the_blank", "fill_in_the_blanks":
		return domain.QuestionFillBlank, true
	}
	return "", false
}
