// Package notify tells interested parties that a batch finished.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/timmy/examforge/internal/domain"
	"github.com/timmy/examforge/internal/logger"
)

// Event is the payload sent when a batch reaches a terminal status.
type Event struct {
	BatchID    string             `json:"batch_id"`
	Status     domain.BatchStatus `json:"status"`
	Total      int                `json:"total"`
	Completed  int                `json:"completed"`
	Failed     int                `json:"failed"`
	Skipped    int                `json:"skipped"`
	OutputDir  string             `json:"output_dir"`
	StartedAt  *time.Time         `json:"started_at,omitempty"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
	Errors     []string           `json:"errors,omitempty"`
	FileURLs   []string           `json:"file_urls,omitempty"`
}

// Succeeded reports whether the batch completed without item failures.
func (e *Event) Succeeded() bool {
	return e.Status == domain.BatchStatusCompleted && e.Failed == 0
}

// Notifier is one notification channel. Notify is a no-op when opts do not
// request the channel.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, ev *Event, opts domain.NotificationOptions) error
}

// Dispatcher fans an event out to every configured channel.
type Dispatcher struct {
	notifiers []Notifier
	log       *logger.Logger
}

// NewDispatcher creates a Dispatcher. nil notifiers are ignored.
func NewDispatcher(log *logger.Logger, notifiers ...Notifier) *Dispatcher {
	if log == nil {
		log = logger.GetDefault()
	}
	d := &Dispatcher{log: log.WithField(logger.FieldComponent, "notify")}
	for _, n := range notifiers {
		if n != nil {
			d.notifiers = append(d.notifiers, n)
		}
	}
	return d
}

// Dispatch sends ev through every channel requested by opts. A failing channel
// does not stop the others; their errors are joined.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *Event, opts domain.NotificationOptions) error {
	if opts.Empty() {
		return nil
	}
	if opts.OnlyOnFailure && ev.Succeeded() {
		return nil
	}

	var errs []error
	for _, n := range d.notifiers {
		start := time.Now()
		err := n.Notify(ctx, ev, opts)
		entry := d.log.WithFields(logger.Fields{
			logger.FieldBatchID:    ev.BatchID,
			"channel":              n.Name(),
			logger.FieldDurationMs: time.Since(start).Milliseconds(),
		})
		if err != nil {
			entry.WithError(err).Warn("Notification failed")
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
			continue
		}
		entry.Debug("Notification sent")
	}
	return errors.Join(errs...)
}

func subject(ev *Event) string {
	return fmt.Sprintf("[examforge] batch %s %s (%d/%d generated)", ev.BatchID, ev.Status, ev.Completed, ev.Total)
}
