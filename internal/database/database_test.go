package database_test

import (
	"testing"
	"time"

	"github.com/tariel-x/wellpush/internal/database"
	"github.com/tariel-x/wellpush/internal/database/dbtest"
	"github.com/tariel-x/wellpush/internal/models"
)

func TestMemoryDSN(t *testing.T) {
	if got := database.MemoryDSN("abc"); got != "file:abc?mode=memory&cache=shared" {
		t.Fatalf("unexpected memory DSN %q", got)
	}
}

func TestUnsupportedDriver(t *testing.T) {
	if _, err := database.Initialize("oracle", "x", nil); err == nil {
		t.Fatalf("expected unsupported driver to fail")
	}
}

func TestDeletingDeviceKeepsLogRows(t *testing.T) {
	db := dbtest.Open(t)
	user := dbtest.CreateUser(t, db, "a@example.com", true)
	device := dbtest.CreateDevice(t, db, user.ID, "https://push.example.com/1", true)

	entry := &models.NotificationLog{
		UserID:           user.ID,
		DeviceID:         &device.ID,
		NotificationType: models.NotificationTest,
		Title:            "hi",
	}
	if err := db.Omit("User", "Device").Create(entry).Error; err != nil {
		t.Fatalf("create log: %v", err)
	}

	if err := db.Delete(&models.DeviceToken{}, "id = ?", device.ID).Error; err != nil {
		t.Fatalf("delete device: %v", err)
	}

	var reloaded models.NotificationLog
	if err := db.First(&reloaded, "id = ?", entry.ID).Error; err != nil {
		t.Fatalf("log row should survive device deletion: %v", err)
	}
	if reloaded.DeviceID != nil {
		t.Fatalf("expected device_id to be cleared, got %v", *reloaded.DeviceID)
	}
	if reloaded.Status != models.StatusPending {
		t.Fatalf("expected pending default status, got %s", reloaded.Status)
	}
}

func TestDeletingUserCascades(t *testing.T) {
	db := dbtest.Open(t)
	user := dbtest.CreateUser(t, db, "b@example.com", true)
	dbtest.CreateDevice(t, db, user.ID, "https://push.example.com/2", true)
	dbtest.CreatePreference(t, db, user.ID, true)
	dbtest.CreateCheckIn(t, db, user.ID, time.Now())
	dbtest.CreateLog(t, db, user.ID, models.NotificationDailyCheckin, time.Now())

	if err := db.Delete(&models.User{}, "id = ?", user.ID).Error; err != nil {
		t.Fatalf("delete user: %v", err)
	}

	for _, model := range []any{&models.DeviceToken{}, &models.NotificationPreference{}, &models.CheckIn{}, &models.NotificationLog{}} {
		var count int64
		if err := db.Model(model).Where("user_id = ?", user.ID).Count(&count).Error; err != nil {
			t.Fatalf("count %T: %v", model, err)
		}
		if count != 0 {
			t.Fatalf("expected %T rows to be deleted with the user, got %d", model, count)
		}
	}
}
