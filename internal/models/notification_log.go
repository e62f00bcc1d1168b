package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// NotificationType is the logical kind of a notification.
type NotificationType string

const (
	NotificationDailyCheckin   NotificationType = "daily_checkin"
	NotificationModuleReminder NotificationType = "module_reminder"
	NotificationCoachingTip    NotificationType = "coaching_tip"
	NotificationSystem         NotificationType = "system"
	NotificationTest           NotificationType = "test"
)

// NotificationStatus moves pending -> sent or pending -> failed, never back.
type NotificationStatus string

const (
	StatusPending NotificationStatus = "pending"
	StatusSent    NotificationStatus = "sent"
	StatusFailed  NotificationStatus = "failed"
)

// NotificationLog records one delivery attempt to one device. A daily_checkin
// row created today also marks the user as already reminded.
type NotificationLog struct {
	ID               string             `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID           string             `gorm:"type:varchar(36);not null;index:idx_notification_logs_user_type_created,priority:1" json:"user_id"`
	DeviceID         *string            `gorm:"type:varchar(36);index" json:"device_id,omitempty"`
	NotificationType NotificationType   `gorm:"type:varchar(32);not null;index:idx_notification_logs_user_type_created,priority:2" json:"notification_type"`
	Title            string             `gorm:"type:varchar(255);not null" json:"title"`
	Body             string             `gorm:"type:text" json:"body"`
	Data             datatypes.JSON     `json:"data,omitempty"`
	Status           NotificationStatus `gorm:"type:varchar(16);not null;default:'pending'" json:"status"`
	ErrorMessage     *string            `gorm:"type:text" json:"error_message,omitempty"`
	SentAt           *time.Time         `json:"sent_at,omitempty"`
	CreatedAt        time.Time          `gorm:"index:idx_notification_logs_user_type_created,priority:3" json:"created_at"`

	User   User         `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Device *DeviceToken `gorm:"foreignKey:DeviceID;constraint:OnDelete:SET NULL" json:"-"`
}

func (NotificationLog) TableName() string { return "notification_logs" }

func (l *NotificationLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	return nil
}
