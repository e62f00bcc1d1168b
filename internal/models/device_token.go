package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Platform identifies the push channel a device subscribed through.
// Values are stored as-is and are part of the public API.
type Platform string

const (
	PlatformWeb     Platform = "web"
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
)

func (p Platform) Valid() bool {
	switch p {
	case PlatformWeb, PlatformIOS, PlatformAndroid:
		return true
	}
	return false
}

// DeviceToken is a registered push subscription. Endpoint is unique across
// all users: registering a known endpoint again reuses the row.
type DeviceToken struct {
	ID         string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID     string     `gorm:"type:varchar(36);not null;index:idx_device_tokens_user_active,priority:1" json:"user_id"`
	Platform   Platform   `gorm:"type:varchar(16);not null" json:"platform"`
	Endpoint   string     `gorm:"type:varchar(2048);uniqueIndex;not null" json:"endpoint"`
	P256DHKey  string     `gorm:"column:p256dh_key;type:text" json:"-"`
	AuthKey    string     `gorm:"type:text" json:"-"`
	DeviceName *string    `gorm:"type:varchar(255)" json:"device_name,omitempty"`
	IsActive   bool       `gorm:"not null;default:true;index:idx_device_tokens_user_active,priority:2" json:"is_active"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`

	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

func (DeviceToken) TableName() string { return "device_tokens" }

func (d *DeviceToken) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	return nil
}
