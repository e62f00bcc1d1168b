package reminders

import (
	"context"
	"fmt"
	"time"
	_ "time/tzdata"

	"gorm.io/gorm"

	"github.com/tariel-x/wellpush/internal/models"
)

// Candidate is a user due a daily check-in reminder.
type Candidate struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// Engine decides who gets today's reminder.
type Engine struct {
	db  *gorm.DB
	loc *time.Location
}

func NewEngine(db *gorm.DB, loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{db: db, loc: loc}
}

func (e *Engine) Location() *time.Location { return e.loc }

// UsersNeedingReminder returns active users who opted in, have at least one
// active device, and have neither checked in nor been sent a daily_checkin
// notification during today's window. Users without a preference row are
// not selected.
func (e *Engine) UsersNeedingReminder(ctx context.Context, now time.Time) ([]Candidate, error) {
	start, end := Window(now, e.loc)

	var candidates []Candidate
	err := e.db.WithContext(ctx).
		Table("users AS u").
		Select("u.id AS user_id, u.email AS email").
		Joins("JOIN notification_preferences AS p ON p.user_id = u.id").
		Where("u.is_active = ?", true).
		Where("p.daily_checkin_reminder = ?", true).
		Where("EXISTS (SELECT 1 FROM device_tokens AS d WHERE d.user_id = u.id AND d.is_active = ?)", true).
		Where("NOT EXISTS (SELECT 1 FROM check_ins AS c WHERE c.user_id = u.id AND c.created_at >= ? AND c.created_at < ?)",
			start, end).
		Where("NOT EXISTS (SELECT 1 FROM notification_logs AS l WHERE l.user_id = u.id AND l.notification_type = ? AND l.created_at >= ? AND l.created_at < ?)",
			models.NotificationDailyCheckin, start, end).
		Order("u.created_at, u.id").
		Scan(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("failed to select reminder candidates: %w", err)
	}
	return candidates, nil
}
