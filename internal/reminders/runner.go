package reminders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/tariel-x/wellpush/internal/dispatch"
	"github.com/tariel-x/wellpush/internal/models"
	"github.com/tariel-x/wellpush/internal/push"
)

const (
	reminderTitle = "Time for your daily check-in"
	reminderBody  = "Take a minute to note how you're feeling today."
	reminderTag   = "daily-checkin"
	reminderURL   = "/checkin"
)

type CandidateFinder interface {
	UsersNeedingReminder(ctx context.Context, now time.Time) ([]Candidate, error)
}

type Sender interface {
	SendToUser(ctx context.Context, userID string, kind models.NotificationType, payload push.Payload) (*dispatch.Report, error)
}

type UserError struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Error  string `json:"error"`
}

// Summary is the outcome of one batch run.
type Summary struct {
	RunID   string      `json:"run_id"`
	Sent    int         `json:"sent"`
	Skipped int         `json:"skipped"`
	Failed  int         `json:"failed"`
	Errors  []UserError `json:"errors,omitempty"`
}

type BatchRunner struct {
	finder CandidateFinder
	sender Sender
	lock   Locker
	logger *slog.Logger
}

func NewBatchRunner(finder CandidateFinder, sender Sender, lock Locker, logger *slog.Logger) *BatchRunner {
	if lock == nil {
		lock = &MemoryLock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchRunner{finder: finder, sender: sender, lock: lock, logger: logger}
}

// Payload is the reminder every eligible user receives.
func Payload() push.Payload {
	return push.Payload{
		Title: reminderTitle,
		Body:  reminderBody,
		Tag:   reminderTag,
		Data: map[string]any{
			"type": string(models.NotificationDailyCheckin),
			"url":  reminderURL,
		},
	}
}

// Run sends today's reminders. Failures for one user are recorded in the
// summary and never stop the rest of the batch; only lock contention and
// candidate lookup errors are returned. A lock backend that cannot be reached
// does not block the run.
func (r *BatchRunner) Run(ctx context.Context, now time.Time) (*Summary, error) {
	release, err := r.lock.Acquire(ctx)
	switch {
	case errors.Is(err, ErrRunInProgress):
		return nil, err
	case err != nil:
		// The log-row guard still keeps users from a second reminder.
		r.logger.Warn("run lock unavailable, running without it", "error", err)
		release = func(context.Context) error { return nil }
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			r.logger.Warn("failed to release reminder run lock", "error", err)
		}
	}()

	runID, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate run id: %w", err)
	}
	logger := r.logger.With("run_id", runID)
	summary := &Summary{RunID: runID}

	candidates, err := r.finder.UsersNeedingReminder(ctx, now)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		logger.Info("no users need a reminder")
		return summary, nil
	}
	logger.Info("sending daily check-in reminders", "candidates", len(candidates))

	payload := Payload()
	for _, c := range candidates {
		report, err := r.sendOne(ctx, c, payload)
		switch {
		case err != nil:
			summary.Failed++
			summary.Errors = append(summary.Errors, UserError{UserID: c.UserID, Email: c.Email, Error: err.Error()})
			logger.Error("reminder failed", "user_id", c.UserID, "error", err)
		case report.Success:
			summary.Sent++
		case report.Message == dispatch.MessageNoActiveDevices:
			summary.Skipped++
		default:
			summary.Failed++
			summary.Errors = append(summary.Errors, UserError{UserID: c.UserID, Email: c.Email, Error: reportError(report)})
		}
	}

	logger.Info("reminder run finished",
		"sent", summary.Sent,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
	)
	return summary, nil
}

// sendOne turns a panic while handling one user into an error.
func (r *BatchRunner) sendOne(ctx context.Context, c Candidate, payload push.Payload) (report *dispatch.Report, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			report = nil
			err = fmt.Errorf("panic while sending reminder: %v", rec)
		}
	}()
	report, err = r.sender.SendToUser(ctx, c.UserID, models.NotificationDailyCheckin, payload)
	if err == nil && report == nil {
		err = errors.New("dispatcher returned no report")
	}
	return report, err
}

func reportError(report *dispatch.Report) string {
	if len(report.Errors) > 0 {
		return strings.Join(report.Errors, "; ")
	}
	if report.Message != "" {
		return report.Message
	}
	return "no device accepted the notification"
}
