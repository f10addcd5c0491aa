package service

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/timmy/examforge/internal/domain"
)

const (
	// DefaultFilePattern is used when no file name rule is given.
	DefaultFilePattern = "{prefix}_{index}"

	// DefaultFilePrefix is used when neither the request nor config name one.
	DefaultFilePrefix = "exam"

	minIndexWidth   = 3
	answerKeySuffix = "_answer_key"
)

// NameVars are the values substituted into a file name pattern.
type NameVars struct {
	Prefix   string
	Index    int
	Width    int
	Set      string
	Template string
	Batch    string
	Now      time.Time
}

// FileName expands pattern with vars and returns a sanitized base name
// without extension. {index} is appended when the pattern lacks it so names
// stay unique within a batch.
func FileName(pattern string, vars NameVars) string {
	if strings.TrimSpace(pattern) == "" {
		pattern = DefaultFilePattern
	}
	if !strings.Contains(pattern, "{index}") {
		pattern += "_{index}"
	}

	width := vars.Width
	if width < minIndexWidth {
		width = minIndexWidth
	}
	batch := vars.Batch
	if len(batch) > 8 {
		batch = batch[:8]
	}
	tmpl := vars.Template
	if tmpl == "" {
		tmpl = "default"
	}

	r := strings.NewReplacer(
		"{prefix}", vars.Prefix,
		"{index}", fmt.Sprintf("%0*d", width, vars.Index),
		"{set}", vars.Set,
		"{template}", tmpl,
		"{batch}", batch,
		"{date}", vars.Now.Format("20060102"),
		"{time}", vars.Now.Format("150405"),
	)
	return sanitizeName(r.Replace(pattern))
}

// sanitizeName keeps letters, digits, '-', '_' and '.', replacing anything
// else with '_'. Leading dots are stripped so results are never hidden files.
func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if out == "" {
		return "document"
	}
	return out
}

// layoutDir returns the directory a document goes to under outputDir.
func layoutDir(outputDir string, layout domain.OutputLayout, setID, batchID string, now time.Time) string {
	switch layout {
	case domain.LayoutByQuestionSet:
		return filepath.Join(outputDir, sanitizeName(setID))
	case domain.LayoutByDate:
		return filepath.Join(outputDir, now.Format("2006-01-02"))
	case domain.LayoutByBatch:
		return filepath.Join(outputDir, batchID)
	default:
		return outputDir
	}
}

// buildItems expands a validated request into its work items. Question sets
// are assigned round-robin in request order.
func buildItems(batchID string, req *domain.BatchRequest, now time.Time) []WorkItem {
	var adv domain.AdvancedOptions
	if req.Advanced != nil {
		adv = *req.Advanced
	}

	width := len(strconv.Itoa(req.Count))
	ext := req.Format.Extension()
	items := make([]WorkItem, 0, req.Count)

	for i := 1; i <= req.Count; i++ {
		setID := req.QuestionSetIDs[(i-1)%len(req.QuestionSetIDs)]
		base := FileName(adv.FileNameRule.Pattern, NameVars{
			Prefix:   req.FilePrefix,
			Index:    i,
			Width:    width,
			Set:      setID,
			Template: req.TemplateID,
			Batch:    batchID,
			Now:      now,
		})
		dir := layoutDir(req.OutputDir, adv.Organization.Layout, setID, batchID, now)

		item := WorkItem{
			BatchID:       batchID,
			Index:         i,
			DocumentID:    uuid.NewString(),
			QuestionSetID: setID,
			TemplateID:    req.TemplateID,
			Format:        req.Format,
			FileName:      base + ext,
			OutputDir:     req.OutputDir,
			OutputPath:    filepath.Join(dir, base+ext),
			Variation:     adv.Variation,
			Seed:          adv.Variation.Seed + int64(i),
			Publish:       adv.Organization.Publish,
			PublishPrefix: adv.Organization.PublishPrefix,
		}
		if adv.Variation.IncludeAnswerKey {
			item.AnswerKeyPath = filepath.Join(dir, base+answerKeySuffix+ext)
		}
		items = append(items, item)
	}
	return items
}
