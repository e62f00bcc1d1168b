package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the slice of the user aggregate this service reads. Accounts are
// owned by the main application; only the columns the reminder query needs
// are mapped here.
type User struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Email     string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	IsActive  bool      `gorm:"not null;index" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string { return "users" }

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return nil
}

// CheckIn is a daily check-in record. Only its owner and creation instant
// matter for reminder eligibility.
type CheckIn struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID    string    `gorm:"type:varchar(36);not null;index:idx_check_ins_user_created,priority:1" json:"user_id"`
	CreatedAt time.Time `gorm:"index:idx_check_ins_user_created,priority:2" json:"created_at"`

	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

func (CheckIn) TableName() string { return "check_ins" }

func (c *CheckIn) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}
