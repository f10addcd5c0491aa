package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"text/template"

	"github.com/timmy/examforge/internal/domain"
	"github.com/timmy/examforge/internal/logger"
)

// DefaultTemplateID selects the built-in template for the requested format.
const DefaultTemplateID = "default"

// TemplateStore loads templates by id.
type TemplateStore interface {
	GetByID(ctx context.Context, id string) (*domain.Template, error)
}

// QuestionSetStore loads question sets by id.
type QuestionSetStore interface {
	GetByID(ctx context.Context, id string) (*domain.QuestionSet, error)
}

// TemplateRenderer executes text/template bodies against a question set.
type TemplateRenderer struct {
	templates TemplateStore
	sets      QuestionSetStore
	log       *logger.Logger

	mu       sync.RWMutex
	compiled map[string]*template.Template // keyed by template id, updated time and format
}

// NewTemplateRenderer creates a TemplateRenderer. templates may be nil, in
// which case only the built-in templates are available.
func NewTemplateRenderer(templates TemplateStore, sets QuestionSetStore, log *logger.Logger) *TemplateRenderer {
	if log == nil {
		log = logger.GetDefault()
	}
	return &TemplateRenderer{
		templates: templates,
		sets:      sets,
		log:       log.WithField(logger.FieldComponent, "template_renderer"),
		compiled:  make(map[string]*template.Template),
	}
}

// Render implements Renderer. PDF is not produced here; see RemoteRenderer.
func (r *TemplateRenderer) Render(ctx context.Context, req *Request) (*Result, error) {
	if req.Format == domain.FormatPDF {
		return nil, newRenderError(req, errors.New("pdf output requires a remote renderer"))
	}
	src := req.Source
	if src == "" {
		var err error
		if src, err = r.BuildSource(ctx, req); err != nil {
			return nil, err
		}
	}
	return &Result{Data: []byte(src), OutputPath: req.OutputPath}, nil
}

// BuildSource executes the template and returns the document text.
func (r *TemplateRenderer) BuildSource(ctx context.Context, req *Request) (string, error) {
	if r.sets == nil {
		return "", newRenderError(req, errors.New("no question set store configured"))
	}
	set, err := r.sets.GetByID(ctx, req.QuestionSetID)
	if err != nil {
		return "", newRenderError(req, fmt.Errorf("load question set: %w", err))
	}
	if len(set.Questions) == 0 {
		return "", newRenderError(req, errors.New("question set has no questions"))
	}

	tmpl, err := r.template(ctx, req)
	if err != nil {
		return "", newRenderError(req, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, buildDocument(set, req)); err != nil {
		return "", newRenderError(req, fmt.Errorf("execute template: %w", err))
	}
	return buf.String(), nil
}

func (r *TemplateRenderer) template(ctx context.Context, req *Request) (*template.Template, error) {
	format := req.Format
	if format == domain.FormatPDF {
		format = domain.FormatLaTeX
	}

	if req.TemplateID == "" || req.TemplateID == DefaultTemplateID {
		return r.compile("builtin:"+string(format), builtinTemplate(format), format)
	}

	if r.templates == nil {
		return nil, fmt.Errorf("template %q: %w", req.TemplateID, domain.ErrNotFound)
	}
	t, err := r.templates.GetByID(ctx, req.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("load template: %w", err)
	}
	return r.compile(fmt.Sprintf("%s@%d:%s", t.ID, t.UpdatedAt.UnixNano(), format), t.Body, format)
}

// CheckTemplate parses body with the functions available for format.
func CheckTemplate(body string, format domain.OutputFormat) error {
	if _, err := template.New("check").Funcs(templateFuncs(format)).Parse(body); err != nil {
		return fmt.Errorf("parse template: %w", err)
	}
	return nil
}

func (r *TemplateRenderer) compile(key, body string, format domain.OutputFormat) (*template.Template, error) {
	r.mu.RLock()
	tmpl, ok := r.compiled[key]
	r.mu.RUnlock()
	if ok {
		return tmpl, nil
	}

	tmpl, err := template.New(key).Funcs(templateFuncs(format)).Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}

	r.mu.Lock()
	r.compiled[key] = tmpl
	r.mu.Unlock()

	r.log.WithField("template", key).Debug("Template compiled")
	return tmpl, nil
}

// Document is the data passed to templates.
type Document struct {
	Title       string
	Subject     string
	AnswerKey   bool
	Sections    []Section
	TotalPoints float64
}

// Section groups questions of one type.
type Section struct {
	Type      domain.QuestionType
	Title     string
	Questions []QuestionView
}

// QuestionView is a numbered question as shown in the document.
type QuestionView struct {
	Number  int
	Stem    string
	Options []string
	Answer  string
	Points  float64
}

var sectionTitles = map[domain.QuestionType]string{
	domain.QuestionSingleChoice:   "Single Choice",
	domain.QuestionMultipleChoice: "Multiple Choice",
	domain.QuestionTrueFalse:      "True or False",
	domain.QuestionFillBlank:      "Fill in the Blank",
	domain.QuestionShortAnswer:    "Short Answer",
	domain.QuestionEssay:          "Essay",
}

func buildDocument(set *domain.QuestionSet, req *Request) *Document {
	rng := rand.New(rand.NewPCG(uint64(req.Options.Seed), uint64(req.Options.Seed)^0x9e3779b97f4a7c15))

	title := req.Options.Title
	if title == "" {
		title = set.Title
	}
	doc := &Document{
		Title:       title,
		Subject:     set.Subject,
		AnswerKey:   req.Options.AnswerKey,
		TotalPoints: set.TotalPoints(),
	}

	grouped := make(map[domain.QuestionType][]domain.Question)
	var unknown []domain.Question
	for _, q := range set.Questions {
		if _, ok := sectionTitles[q.Type]; ok {
			grouped[q.Type] = append(grouped[q.Type], q)
		} else {
			unknown = append(unknown, q)
		}
	}

	number := 0
	appendSection := func(qt domain.QuestionType, title string, qs []domain.Question) {
		if len(qs) == 0 {
			return
		}
		qs = append([]domain.Question(nil), qs...)
		if req.Options.ShuffleQuestions {
			rng.Shuffle(len(qs), func(i, j int) { qs[i], qs[j] = qs[j], qs[i] })
		}
		sec := Section{Type: qt, Title: title}
		for _, q := range qs {
			number++
			view := QuestionView{
				Number:  number,
				Stem:    q.Stem,
				Options: append([]string(nil), q.Options...),
				Answer:  q.Answer,
				Points:  q.Points,
			}
			if req.Options.ShuffleOptions && len(view.Options) > 1 {
				perm := rng.Perm(len(view.Options))
				shuffled := make([]string, len(perm))
				for newPos, oldPos := range perm {
					shuffled[newPos] = q.Options[oldPos]
				}
				view.Options = shuffled
				view.Answer = remapAnswer(q.Answer, perm)
			}
			sec.Questions = append(sec.Questions, view)
		}
		doc.Sections = append(doc.Sections, sec)
	}

	for _, qt := range domain.QuestionTypes {
		appendSection(qt, sectionTitles[qt], grouped[qt])
	}
	appendSection("", "Other", unknown)

	return doc
}

// remapAnswer rewrites letter answers ("B", "AC") after an option permutation,
// where perm[newPos] = oldPos. Non-letter answers are returned unchanged.
func remapAnswer(answer string, perm []int) string {
	trimmed := strings.ToUpper(strings.TrimSpace(answer))
	if trimmed == "" {
		return answer
	}
	oldToNew := make(map[int]int, len(perm))
	for newPos, oldPos := range perm {
		oldToNew[oldPos] = newPos
	}
	var letters []byte
	for i := 0; i < len(trimmed); i++ {
		ch := trimmed[i]
		if ch == ',' || ch == ' ' {
			continue
		}
		idx := int(ch - 'A')
		if ch < 'A' || ch > 'Z' || idx >= len(perm) {
			return answer
		}
		letters = append(letters, byte('A'+oldToNew[idx]))
	}
	sort.Slice(letters, func(i, j int) bool { return letters[i] < letters[j] })
	return string(letters)
}

func templateFuncs(format domain.OutputFormat) template.FuncMap {
	esc := func(s string) string { return s }
	if format == domain.FormatLaTeX {
		esc = escapeLaTeX
	}
	return template.FuncMap{
		"letter": func(i int) string { return string(rune('A' + i)) },
		"esc":    esc,
		"points": func(p float64) string {
			if p == float64(int64(p)) {
				return fmt.Sprintf("%d", int64(p))
			}
			return fmt.Sprintf("%.1f", p)
		},
		"upper": strings.ToUpper,
	}
}

var latexReplacer = strings.NewReplacer(
	`\`, `\textbackslash{}`,
	`&`, `\&`,
	`%`, `\%`,
	`$`, `\$`,
	`#`, `\#`,
	`_`, `\_`,
	`{`, `\{`,
	`}`, `\}`,
	`~`, `\textasciitilde{}`,
	`^`, `\textasciicircum{}`,
)

func escapeLaTeX(s string) string {
	return latexReplacer.Replace(s)
}

func builtinTemplate(format domain.OutputFormat) string {
	switch format {
	case domain.FormatLaTeX:
		return latexTemplate
	case domain.FormatText:
		return textTemplate
	default:
		return markdownTemplate
	}
}

const markdownTemplate = `# {{.Title}}{{if .AnswerKey}} (Answer Key){{end}}
{{if .Subject}}
Subject: {{.Subject}}
{{end}}
Total points: {{points .TotalPoints}}
{{range .Sections}}
## {{.Title}}
{{range .Questions}}
{{.Number}}. {{.Stem}} ({{points .Points}} pts)
{{range $i, $o := .Options}}   {{letter $i}}. {{$o}}
{{end}}{{if $.AnswerKey}}{{if .Answer}}   **Answer:** {{.Answer}}
{{end}}{{end}}{{end}}{{end}}`

const textTemplate = `{{upper .Title}}{{if .AnswerKey}} - ANSWER KEY{{end}}
{{if .Subject}}Subject: {{.Subject}}
{{end}}Total points: {{points .TotalPoints}}
{{range .Sections}}
{{.Title}}
{{range .Questions}}
{{.Number}}. {{.Stem}} [{{points .Points}}]
{{range $i, $o := .Options}}  {{letter $i}}) {{$o}}
{{end}}{{if $.AnswerKey}}{{if .Answer}}  Answer: {{.Answer}}
{{end}}{{end}}{{end}}{{end}}`

const latexTemplate = `\documentclass{article}
\usepackage[utf8]{inputenc}
\title{ {{- esc .Title}}{{if .AnswerKey}} (Answer Key){{end -}} }
\date{}
\begin{document}
\maketitle
{{if .Subject}}\noindent Subject: {{esc .Subject}}\\
{{end}}\noindent Total points: {{points .TotalPoints}}
{{range .Sections}}
\section*{ {{- esc .Title -}} }
\begin{enumerate}
{{range .Questions}}\item[{{.Number}}.] {{esc .Stem}} ({{points .Points}} pts)
{{if .Options}}\begin{enumerate}
{{range $i, $o := .Options}}\item[{{letter $i}}.] {{esc $o}}
{{end}}\end{enumerate}
{{end}}{{if $.AnswerKey}}{{if .Answer}}\textbf{Answer:} {{esc .Answer}}
{{end}}{{end}}{{end}}\end{enumerate}
{{end}}\end{document}
`
