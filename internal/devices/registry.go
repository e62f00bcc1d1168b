package devices

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tariel-x/wellpush/internal/models"
)

var (
	ErrInvalidPlatform = errors.New("platform must be one of web, ios, android")
	ErrMissingKeys     = errors.New("web devices require p256dh and auth keys")
	ErrInvalidEndpoint = errors.New("endpoint must be an absolute URL")
	ErrNotFound        = errors.New("device not found")
)

type RegisterInput struct {
	UserID     string
	Platform   models.Platform
	Endpoint   string
	P256DHKey  string
	AuthKey    string
	DeviceName *string
}

// Registry stores device tokens. Endpoints are globally unique: registering
// a known endpoint moves it to the caller and reactivates it.
type Registry struct {
	db *gorm.DB
}

func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{db: db}
}

func (in RegisterInput) validate() error {
	if !in.Platform.Valid() {
		return ErrInvalidPlatform
	}
	u, err := url.Parse(strings.TrimSpace(in.Endpoint))
	if err != nil || !u.IsAbs() || u.Host == "" {
		return ErrInvalidEndpoint
	}
	if in.Platform == models.PlatformWeb && (in.P256DHKey == "" || in.AuthKey == "") {
		return ErrMissingKeys
	}
	return nil
}

func (r *Registry) Register(ctx context.Context, in RegisterInput) (*models.DeviceToken, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	endpoint := strings.TrimSpace(in.Endpoint)

	device := &models.DeviceToken{
		UserID:     in.UserID,
		Platform:   in.Platform,
		Endpoint:   endpoint,
		P256DHKey:  in.P256DHKey,
		AuthKey:    in.AuthKey,
		DeviceName: in.DeviceName,
		IsActive:   true,
	}

	updates := []string{"user_id", "platform", "p256dh_key", "auth_key", "is_active", "updated_at"}
	if in.DeviceName != nil {
		updates = append(updates, "device_name")
	}

	err := r.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns(updates),
		}).
		Create(device).Error
	if err != nil {
		return nil, fmt.Errorf("failed to register device: %w", err)
	}

	var stored models.DeviceToken
	if err := r.db.WithContext(ctx).Where("endpoint = ?", endpoint).First(&stored).Error; err != nil {
		return nil, fmt.Errorf("failed to load registered device: %w", err)
	}
	return &stored, nil
}

// ListDevices returns the user's devices, newest first.
func (r *Registry) ListDevices(ctx context.Context, userID string, activeOnly bool) ([]models.DeviceToken, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var devices []models.DeviceToken
	if err := q.Order("created_at DESC").Find(&devices).Error; err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return devices, nil
}

// Get returns a device only if it belongs to userID.
func (r *Registry) Get(ctx context.Context, deviceID, userID string) (*models.DeviceToken, error) {
	var device models.DeviceToken
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", deviceID, userID).First(&device).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load device: %w", err)
	}
	return &device, nil
}

// Deactivate is idempotent; unknown IDs are not an error.
func (r *Registry) Deactivate(ctx context.Context, deviceID string) error {
	err := r.db.WithContext(ctx).Model(&models.DeviceToken{}).
		Where("id = ?", deviceID).
		Update("is_active", false).Error
	if err != nil {
		return fmt.Errorf("failed to deactivate device %s: %w", deviceID, err)
	}
	return nil
}

func (r *Registry) TouchLastUsed(ctx context.Context, deviceID string, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&models.DeviceToken{}).
		Where("id = ?", deviceID).
		Update("last_used_at", at.UTC()).Error
	if err != nil {
		return fmt.Errorf("failed to update last_used_at for %s: %w", deviceID, err)
	}
	return nil
}

// Unregister deletes the device if the user owns it and reports whether a
// row was removed.
func (r *Registry) Unregister(ctx context.Context, deviceID, userID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", deviceID, userID).
		Delete(&models.DeviceToken{})
	if result.Error != nil {
		return false, fmt.Errorf("failed to delete device: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}
