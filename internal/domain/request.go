package domain

// OutputFormat is the document format requested for a batch.
type OutputFormat string

const (
	FormatMarkdown OutputFormat = "md"
	FormatLaTeX    OutputFormat = "tex"
	FormatText     OutputFormat = "txt"
	FormatPDF      OutputFormat = "pdf"
)

// Extension returns the file extension (with dot) for the format.
func (f OutputFormat) Extension() string {
	if f == "" {
		return "." + string(FormatMarkdown)
	}
	return "." + string(f)
}

// ContentType returns the MIME type used when publishing documents.
func (f OutputFormat) ContentType() string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	case FormatLaTeX:
		return "application/x-tex"
	case FormatText:
		return "text/plain; charset=utf-8"
	default:
		return "text/markdown; charset=utf-8"
	}
}

// BatchRequest is the immutable input of a batch generation job.
type BatchRequest struct {
	QuestionSetIDs  []string         `json:"question_set_ids" validate:"min=1,dive,required"`
	TemplateID      string           `json:"template_id"`
	Count           int              `json:"count" validate:"gt=0"`
	OutputDir       string           `json:"output_dir" validate:"required"`
	FilePrefix      string           `json:"file_prefix"`
	Format          OutputFormat     `json:"format" validate:"omitempty,oneof=md tex txt pdf"`
	Parallelism     int              `json:"parallelism" validate:"gte=0"`
	ContinueOnError bool             `json:"continue_on_error"`
	Advanced        *AdvancedOptions `json:"advanced,omitempty"`
}

// AdvancedOptions are honoured only by jobs created through the advanced path.
type AdvancedOptions struct {
	FileNameRule FileNameRule        `json:"file_name_rule"`
	Organization OrganizationRule    `json:"organization"`
	Variation    VariationOptions    `json:"variation"`
	Notification NotificationOptions `json:"notification"`
}

// FileNameRule is a file name pattern. Supported placeholders:
// {prefix} {index} {set} {template} {batch} {date} {time}.
type FileNameRule struct {
	Pattern string `json:"pattern" validate:"omitempty,file_pattern"`
}

// OutputLayout controls the directory structure under the output directory.
type OutputLayout string

const (
	LayoutFlat          OutputLayout = "flat"
	LayoutByQuestionSet OutputLayout = "by_question_set"
	LayoutByDate        OutputLayout = "by_date"
	LayoutByBatch       OutputLayout = "by_batch"
)

// OrganizationRule describes where generated files go.
type OrganizationRule struct {
	Layout        OutputLayout `json:"layout" validate:"omitempty,oneof=flat by_question_set by_date by_batch"`
	Publish       bool         `json:"publish"`
	PublishPrefix string       `json:"publish_prefix"`
}

// VariationOptions make each document in a batch differ.
type VariationOptions struct {
	ShuffleQuestions bool  `json:"shuffle_questions"`
	ShuffleOptions   bool  `json:"shuffle_options"`
	Seed             int64 `json:"seed"`
	IncludeAnswerKey bool  `json:"include_answer_key"`
}

// Enabled reports whether documents vary between items.
func (v VariationOptions) Enabled() bool {
	return v.ShuffleQuestions || v.ShuffleOptions
}

// NotificationOptions say who hears about a finished batch.
type NotificationOptions struct {
	Emails        []string `json:"emails" validate:"omitempty,dive,email"`
	WebhookURL    string   `json:"webhook_url" validate:"omitempty,url"`
	PublishEvent  bool     `json:"publish_event"`
	OnlyOnFailure bool     `json:"only_on_failure"`
}

// Empty reports whether no channel was requested.
func (n NotificationOptions) Empty() bool {
	return len(n.Emails) == 0 && n.WebhookURL == "" && !n.PublishEvent
}
