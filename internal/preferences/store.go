package preferences

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"
	_ "time/tzdata"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tariel-x/wellpush/internal/models"
)

var ErrInvalidPreference = errors.New("invalid preference")

var reminderTimePattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// Update carries a partial change; nil fields are left alone.
type Update struct {
	DailyCheckinReminder *bool   `json:"daily_checkin_reminder"`
	ReminderTime         *string `json:"reminder_time"`
	Timezone             *string `json:"timezone"`
}

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// GetOrCreate returns the user's preferences, creating the default row on
// first access. Concurrent first reads converge on a single row.
func (s *Store) GetOrCreate(ctx context.Context, userID string) (*models.NotificationPreference, error) {
	defaults := &models.NotificationPreference{
		UserID:               userID,
		DailyCheckinReminder: true,
		ReminderTime:         models.DefaultReminderTime,
		Timezone:             models.DefaultTimezone,
	}
	err := s.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(defaults).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create preferences: %w", err)
	}
	return s.get(ctx, userID)
}

func (s *Store) get(ctx context.Context, userID string) (*models.NotificationPreference, error) {
	var pref models.NotificationPreference
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&pref).Error; err != nil {
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}
	return &pref, nil
}

func (s *Store) Update(ctx context.Context, userID string, upd Update) (*models.NotificationPreference, error) {
	if err := upd.validate(); err != nil {
		return nil, err
	}
	pref, err := s.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	changes := map[string]any{}
	if upd.DailyCheckinReminder != nil {
		changes["daily_checkin_reminder"] = *upd.DailyCheckinReminder
	}
	if upd.ReminderTime != nil {
		changes["reminder_time"] = *upd.ReminderTime
	}
	if upd.Timezone != nil {
		changes["timezone"] = *upd.Timezone
	}
	if len(changes) == 0 {
		return pref, nil
	}

	if err := s.db.WithContext(ctx).Model(pref).Updates(changes).Error; err != nil {
		return nil, fmt.Errorf("failed to update preferences: %w", err)
	}
	return s.get(ctx, userID)
}

func (u Update) validate() error {
	if u.ReminderTime != nil && !reminderTimePattern.MatchString(*u.ReminderTime) {
		return fmt.Errorf("%w: reminder_time must be HH:MM", ErrInvalidPreference)
	}
	if u.Timezone != nil {
		if *u.Timezone == "" || *u.Timezone == "Local" {
			return fmt.Errorf("%w: timezone must be an IANA zone name", ErrInvalidPreference)
		}
		if _, err := time.LoadLocation(*u.Timezone); err != nil {
			return fmt.Errorf("%w: unknown timezone %q", ErrInvalidPreference, *u.Timezone)
		}
	}
	return nil
}
