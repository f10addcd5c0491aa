package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/timmy/examforge/internal/domain"
)

// CSVParser reads spreadsheet exports with a header row. Recognised columns
// (case-insensitive): id, type, stem (or question), options, answer, points.
// Options are separated by "|". Only stem is required.
type CSVParser struct{}

// Name returns the parser identifier.
func (p *CSVParser) Name() string { return "csv" }

// Extensions returns the handled extensions.
func (p *CSVParser) Extensions() []string { return []string{".csv"} }

var csvColumnAliases = map[string]string{
	"id":       "id",
	"type":     "type",
	"stem":     "stem",
	"question": "stem",
	"options":  "options",
	"choices":  "options",
	"answer":   "answer",
	"points":   "points",
	"score":    "points",
	"subject":  "subject",
	"title":    "title",
}

// Parse reads a CSV question bank.
func (p *CSVParser) Parse(path string) (*domain.QuestionSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ParseError{Path: path, Msg: "cannot open file", Err: err}
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ParseError{Path: path, Msg: "empty file"}
		}
		return nil, &ParseError{Path: path, Line: 1, Msg: "invalid header", Err: err}
	}

	cols := make(map[string]int)
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if canonical, ok := csvColumnAliases[name]; ok {
			cols[canonical] = i
		}
	}
	if _, ok := cols["stem"]; !ok {
		return nil, &ParseError{Path: path, Line: 1, Msg: "missing stem column"}
	}

	set := &domain.QuestionSet{
		ID:         SetIDFromPath(path),
		Title:      SetIDFromPath(path),
		SourcePath: path,
	}

	field := func(record []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	line := 1
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, &ParseError{Path: path, Line: line, Msg: "invalid row", Err: err}
		}

		stem := field(record, "stem")
		if stem == "" {
			continue
		}
		if t := field(record, "title"); t != "" && len(set.Questions) == 0 {
			set.Title = t
		}
		if s := field(record, "subject"); s != "" && set.Subject == "" {
			set.Subject = s
		}

		q := domain.Question{
			ID:     field(record, "id"),
			Stem:   stem,
			Answer: field(record, "answer"),
			Points: 1,
		}
		if q.ID == "" {
			q.ID = fmt.Sprintf("q%d", len(set.Questions)+1)
		}
		if opts := field(record, "options"); opts != "" {
			for _, o := range strings.Split(opts, "|") {
				if o = strings.TrimSpace(o); o != "" {
					q.Options = append(q.Options, o)
				}
			}
		}
		if pts := field(record, "points"); pts != "" {
			v, err := strconv.ParseFloat(pts, 64)
			if err != nil || v < 0 {
				return nil, &ParseError{Path: path, Line: line, Msg: fmt.Sprintf("invalid points %q", pts), Err: err}
			}
			q.Points = v
		}
		if t := field(record, "type"); t != "" {
			qt, ok := parseTypeName(t)
			if !ok {
				return nil, &ParseError{Path: path, Line: line, Msg: fmt.Sprintf("unknown question type %q", t)}
			}
			q.Type = qt
		} else {
			q.Type = inferType(&q)
		}
		if len(q.Options) > 0 {
			if letters := normalizeLetters(q.Answer); letters != "" {
				q.Answer = letters
			}
		}
		set.Questions = append(set.Questions, q)
	}

	if len(set.Questions) == 0 {
		return nil, &ParseError{Path: path, Msg: "no questions found"}
	}
	return set, nil
}
