package source

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/timmy/examforge/internal/domain"
)

// MarkdownParser reads question banks written as Markdown:
//
//	# Algebra Midterm
//	Subject: Math
//
//	## Single Choice
//	1. What is 2+2? (2 pts)
//	   A. 3
//	   B. 4
//	   Answer: B
//
// A "## <type>" heading sets the type of the questions below it. Without one,
// the type is inferred from options and answer.
type MarkdownParser struct{}

var (
	mdQuestionLine = regexp.MustCompile(`^\s*(\d+)[.)]\s+(.+)$`)
	mdOptionLine   = regexp.MustCompile(`^\s*(?:[-*]\s+)?([A-Za-z])[.)]\s+(.+)$`)
	mdPointsSuffix = regexp.MustCompile(`\s*[(\[]\s*(\d+(?:\.\d+)?)\s*(?:pts?|points?)\s*[)\]]\s*$`)
	mdFieldLine    = regexp.MustCompile(`(?i)^\s*(?:[-*]\s+)?(?:\*\*)?(answer|points|type)(?:\*\*)?\s*:\s*(?:\*\*)?\s*(.*)$`)
)

// Name returns the parser identifier.
func (p *MarkdownParser) Name() string { return "markdown" }

// Extensions returns the handled extensions.
func (p *MarkdownParser) Extensions() []string { return []string{".md", ".markdown"} }

// Parse reads a Markdown question bank.
func (p *MarkdownParser) Parse(path string) (*domain.QuestionSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ParseError{Path: path, Msg: "cannot open file", Err: err}
	}
	defer f.Close()

	set := &domain.QuestionSet{
		ID:         SetIDFromPath(path),
		SourcePath: path,
	}

	var (
		section     domain.QuestionType
		current     *domain.Question
		explicit    bool
		lineNo      int
		questionSeq int
	)

	flush := func() {
		if current == nil {
			return
		}
		// "(2 pts)" may close a stem that spans several lines.
		if pm := mdPointsSuffix.FindStringSubmatch(current.Stem); pm != nil {
			if current.Points == 0 {
				current.Points, _ = strconv.ParseFloat(pm[1], 64)
			}
			current.Stem = strings.TrimSpace(current.Stem[:len(current.Stem)-len(pm[0])])
		}
		if current.Points == 0 {
			current.Points = 1
		}
		if !explicit {
			if section != "" {
				current.Type = section
			} else {
				current.Type = inferType(current)
			}
		}
		if len(current.Options) > 0 {
			if letters := normalizeLetters(current.Answer); letters != "" {
				current.Answer = letters
			}
		}
		set.Questions = append(set.Questions, *current)
		current = nil
		explicit = false
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), " \t\r")
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "":
			continue

		case strings.HasPrefix(trimmed, "# "):
			if set.Title == "" {
				set.Title = strings.TrimSpace(trimmed[2:])
			}
			continue

		case strings.HasPrefix(trimmed, "## "):
			flush()
			heading := strings.TrimSpace(trimmed[3:])
			qt, ok := parseTypeName(heading)
			if !ok {
				return nil, &ParseError{Path: path, Line: lineNo, Msg: fmt.Sprintf("unknown question type heading %q", heading)}
			}
			section = qt
			continue
		}

		if current == nil && len(set.Questions) == 0 {
			if v, ok := cutPrefixFold(trimmed, "subject:"); ok {
				set.Subject = strings.TrimSpace(v)
				continue
			}
		}

		if m := mdQuestionLine.FindStringSubmatch(line); m != nil && !isIndented(line) {
			flush()
			questionSeq++
			stem := m[2]
			current = &domain.Question{ID: fmt.Sprintf("q%d", questionSeq), Stem: strings.TrimSpace(stem)}
			continue
		}

		if current == nil {
			return nil, &ParseError{Path: path, Line: lineNo, Msg: "content outside of a question"}
		}

		if m := mdFieldLine.FindStringSubmatch(line); m != nil {
			value := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(m[2]), "**"))
			switch strings.ToLower(m[1]) {
			case "answer":
				current.Answer = value
			case "points":
				pts, err := strconv.ParseFloat(value, 64)
				if err != nil || pts < 0 {
					return nil, &ParseError{Path: path, Line: lineNo, Msg: fmt.Sprintf("invalid points %q", value), Err: err}
				}
				current.Points = pts
			case "type":
				qt, ok := parseTypeName(value)
				if !ok {
					return nil, &ParseError{Path: path, Line: lineNo, Msg: fmt.Sprintf("unknown question type %q", value)}
				}
				current.Type = qt
				explicit = true
			}
			continue
		}

		if m := mdOptionLine.FindStringSubmatch(line); m != nil {
			want := rune('A' + len(current.Options))
			if rune(strings.ToUpper(m[1])[0]) != want {
				return nil, &ParseError{Path: path, Line: lineNo, Msg: fmt.Sprintf("expected option %c, got %s", want, m[1])}
			}
			current.Options = append(current.Options, strings.TrimSpace(m[2]))
			continue
		}

		// Continuation of the stem.
		current.Stem += " " + trimmed
	}
	if err := scanner.Err(); err != nil {
		return nil, &ParseError{Path: path, Msg: "read failed", Err: err}
	}
	flush()

	if set.Title == "" {
		set.Title = set.ID
	}
	if len(set.Questions) == 0 {
		return nil, &ParseError{Path: path, Msg: "no questions found"}
	}
	return set, nil
}

func isIndented(line string) bool {
	return strings.HasPrefix(line, "  ") || strings.HasPrefix(line, "\t")
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):], true
	}
	return "", false
}
