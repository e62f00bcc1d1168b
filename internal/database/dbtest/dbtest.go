// Package dbtest opens throwaway in-memory databases for package tests.
package dbtest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tariel-x/wellpush/internal/database"
	"github.com/tariel-x/wellpush/internal/models"
)

// Open returns a migrated sqlite database private to the test.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := database.Initialize(database.DriverSQLite, database.MemoryDSN(uuid.NewString()), nil)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func CreateUser(t testing.TB, db *gorm.DB, email string, active bool) *models.User {
	t.Helper()
	user := &models.User{Email: email, IsActive: active}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return user
}

func CreatePreference(t testing.TB, db *gorm.DB, userID string, reminders bool) *models.NotificationPreference {
	t.Helper()
	pref := &models.NotificationPreference{
		UserID:               userID,
		DailyCheckinReminder: true,
		ReminderTime:         models.DefaultReminderTime,
		Timezone:             models.DefaultTimezone,
	}
	if err := db.Omit(clause.Associations).Create(pref).Error; err != nil {
		t.Fatalf("create preference: %v", err)
	}
	if !reminders {
		// Create skips a false bool that has a column default.
		if err := db.Model(pref).Update("daily_checkin_reminder", false).Error; err != nil {
			t.Fatalf("disable reminders: %v", err)
		}
		pref.DailyCheckinReminder = false
	}
	return pref
}

func CreateDevice(t testing.TB, db *gorm.DB, userID, endpoint string, active bool) *models.DeviceToken {
	t.Helper()
	device := &models.DeviceToken{
		UserID:    userID,
		Platform:  models.PlatformWeb,
		Endpoint:  endpoint,
		P256DHKey: "p256dh",
		AuthKey:   "auth",
		IsActive:  true,
	}
	if err := db.Omit(clause.Associations).Create(device).Error; err != nil {
		t.Fatalf("create device: %v", err)
	}
	if !active {
		if err := db.Model(device).Update("is_active", false).Error; err != nil {
			t.Fatalf("deactivate device: %v", err)
		}
		device.IsActive = false
	}
	return device
}

func CreateCheckIn(t testing.TB, db *gorm.DB, userID string, at time.Time) *models.CheckIn {
	t.Helper()
	checkIn := &models.CheckIn{UserID: userID, CreatedAt: at.UTC()}
	if err := db.Omit(clause.Associations).Create(checkIn).Error; err != nil {
		t.Fatalf("create check-in: %v", err)
	}
	return checkIn
}

func CreateLog(t testing.TB, db *gorm.DB, userID string, kind models.NotificationType, at time.Time) *models.NotificationLog {
	t.Helper()
	entry := &models.NotificationLog{
		UserID:           userID,
		NotificationType: kind,
		Title:            "seeded",
		Status:           models.StatusSent,
		CreatedAt:        at.UTC(),
	}
	if err := db.Omit(clause.Associations).Create(entry).Error; err != nil {
		t.Fatalf("create log: %v", err)
	}
	return entry
}
