// Package notifylog records every delivery attempt. Rows start pending and
// move to sent or failed exactly once.
package notifylog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tariel-x/wellpush/internal/models"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

type Entry struct {
	UserID   string
	DeviceID *string
	Type     models.NotificationType
	Title    string
	Body     string
	Data     map[string]any
}

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, e Entry) (*models.NotificationLog, error) {
	var data datatypes.JSON
	if len(e.Data) > 0 {
		raw, err := json.Marshal(e.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to encode notification data: %w", err)
		}
		data = raw
	}

	row := &models.NotificationLog{
		UserID:           e.UserID,
		DeviceID:         e.DeviceID,
		NotificationType: e.Type,
		Title:            e.Title,
		Body:             e.Body,
		Data:             data,
		Status:           models.StatusPending,
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(row).Error; err != nil {
		return nil, fmt.Errorf("failed to create notification log: %w", err)
	}
	return row, nil
}

func (s *Store) MarkSent(ctx context.Context, id string, at time.Time) error {
	return s.finish(ctx, id, map[string]any{
		"status":  models.StatusSent,
		"sent_at": at.UTC(),
	})
}

func (s *Store) MarkFailed(ctx context.Context, id string, reason string) error {
	return s.finish(ctx, id, map[string]any{
		"status":        models.StatusFailed,
		"error_message": reason,
	})
}

// finish only touches rows that are still pending, so a terminal status is
// never overwritten.
func (s *Store) finish(ctx context.Context, id string, changes map[string]any) error {
	err := s.db.WithContext(ctx).Model(&models.NotificationLog{}).
		Where("id = ? AND status = ?", id, models.StatusPending).
		Updates(changes).Error
	if err != nil {
		return fmt.Errorf("failed to update notification log %s: %w", id, err)
	}
	return nil
}

// ListRecent returns the user's newest log rows. limit is clamped to
// [1, MaxListLimit]; zero means DefaultListLimit.
func (s *Store) ListRecent(ctx context.Context, userID string, limit int) ([]models.NotificationLog, error) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	var rows []models.NotificationLog
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list notification logs: %w", err)
	}
	return rows, nil
}
