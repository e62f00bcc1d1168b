package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DefaultReminderTime = "09:00"
	DefaultTimezone     = "America/New_York"
)

// NotificationPreference holds per-user notification settings. There is
// exactly one row per user.
type NotificationPreference struct {
	ID                   string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID               string    `gorm:"type:varchar(36);uniqueIndex;not null" json:"user_id"`
	DailyCheckinReminder bool      `gorm:"not null;default:true" json:"daily_checkin_reminder"`
	ReminderTime         string    `gorm:"type:varchar(5);not null;default:'09:00'" json:"reminder_time"`
	Timezone             string    `gorm:"type:varchar(64);not null;default:'America/New_York'" json:"timezone"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`

	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

func (NotificationPreference) TableName() string { return "notification_preferences" }

func (p *NotificationPreference) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}
