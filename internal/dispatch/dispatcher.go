// Package dispatch fans a notification out to a user's devices and records
// every attempt in the notification log.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tariel-x/wellpush/internal/models"
	"github.com/tariel-x/wellpush/internal/notifylog"
	"github.com/tariel-x/wellpush/internal/push"
)

const MessageNoActiveDevices = "No active devices"

type DeviceStore interface {
	ListDevices(ctx context.Context, userID string, activeOnly bool) ([]models.DeviceToken, error)
	Deactivate(ctx context.Context, deviceID string) error
	TouchLastUsed(ctx context.Context, deviceID string, at time.Time) error
}

type LogStore interface {
	Create(ctx context.Context, e notifylog.Entry) (*models.NotificationLog, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, reason string) error
}

type Providers interface {
	For(platform models.Platform) (push.Provider, bool)
}

// Report aggregates one SendToUser call.
type Report struct {
	Success         bool     `json:"success"`
	DevicesNotified int      `json:"devices_notified"`
	Failures        int      `json:"failures"`
	Errors          []string `json:"errors,omitempty"`
	Message         string   `json:"message,omitempty"`
}

func (r *Report) add(device models.DeviceToken, result push.Result) {
	if result.OK() {
		r.DevicesNotified++
		return
	}
	r.Failures++
	r.Errors = append(r.Errors, fmt.Sprintf("device %s: %s", device.ID, result.Reason))
}

type Dispatcher struct {
	devices   DeviceStore
	logs      LogStore
	providers Providers
	fanout    int
	now       func() time.Time
	logger    *slog.Logger
}

type Option func(*Dispatcher)

// WithFanout bounds concurrent provider calls per user.
func WithFanout(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.fanout = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

func New(devices DeviceStore, logs LogStore, providers Providers, logger *slog.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		devices:   devices,
		logs:      logs,
		providers: providers,
		fanout:    4,
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SendToUser delivers payload to every active device of the user. Provider
// failures end up in the report; only storage errors while loading devices
// are returned as errors.
func (d *Dispatcher) SendToUser(ctx context.Context, userID string, kind models.NotificationType, payload push.Payload) (*Report, error) {
	devices, err := d.devices.ListDevices(ctx, userID, true)
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return &Report{Success: false, Message: MessageNoActiveDevices}, nil
	}
	return d.fanOut(ctx, devices, kind, payload), nil
}

// SendToDevices is SendToUser for an explicit device set.
func (d *Dispatcher) SendToDevices(ctx context.Context, devices []models.DeviceToken, kind models.NotificationType, payload push.Payload) *Report {
	if len(devices) == 0 {
		return &Report{Success: false, Message: MessageNoActiveDevices}
	}
	return d.fanOut(ctx, devices, kind, payload)
}

func (d *Dispatcher) fanOut(ctx context.Context, devices []models.DeviceToken, kind models.NotificationType, payload push.Payload) *Report {
	var (
		mu     sync.Mutex
		report Report
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.fanout)
	for _, device := range devices {
		device := device
		g.Go(func() error {
			result := d.Deliver(gctx, device, kind, payload)
			mu.Lock()
			report.add(device, result)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	report.Success = report.DevicesNotified > 0
	return &report
}

// Deliver logs a pending row for the device and sends to it.
func (d *Dispatcher) Deliver(ctx context.Context, device models.DeviceToken, kind models.NotificationType, payload push.Payload) push.Result {
	deviceID := device.ID
	entry, err := d.logs.Create(ctx, notifylog.Entry{
		UserID:   device.UserID,
		DeviceID: &deviceID,
		Type:     kind,
		Title:    push.FormatPayload(payload).Title,
		Body:     payload.Body,
		Data:     payload.Data,
	})
	if err != nil {
		d.logger.Error("failed to create notification log", "user_id", device.UserID, "device_id", device.ID, "error", err)
		return push.Failed(fmt.Sprintf("failed to record notification: %v", err), true, 0)
	}
	return d.sendToDevice(ctx, device, entry.ID, payload)
}

func (d *Dispatcher) sendToDevice(ctx context.Context, device models.DeviceToken, logID string, payload push.Payload) push.Result {
	logger := d.logger.With("user_id", device.UserID, "device_id", device.ID, "platform", string(device.Platform))

	var result push.Result
	provider, ok := d.providers.For(device.Platform)
	if !ok {
		result = push.Failed("platform not supported", false, 0)
	} else {
		result = provider.Send(ctx, push.SubscriptionFor(&device), payload)
	}

	// The row is finalized even when the caller went away during the send.
	ctx = context.WithoutCancel(ctx)

	switch result.Kind {
	case push.ResultSuccess:
		now := d.now()
		if err := d.logs.MarkSent(ctx, logID, now); err != nil {
			logger.Error("failed to mark notification sent", "log_id", logID, "error", err)
		}
		if err := d.devices.TouchLastUsed(ctx, device.ID, now); err != nil {
			logger.Warn("failed to update device last_used_at", "error", err)
		}
		logger.Debug("notification sent", "log_id", logID)

	case push.ResultExpired:
		if err := d.logs.MarkFailed(ctx, logID, result.Reason); err != nil {
			logger.Error("failed to mark notification failed", "log_id", logID, "error", err)
		}
		if err := d.devices.Deactivate(ctx, device.ID); err != nil {
			logger.Error("failed to deactivate expired device", "error", err)
		}
		logger.Info("subscription expired, device deactivated", "reason", result.Reason)

	default:
		if err := d.logs.MarkFailed(ctx, logID, result.Reason); err != nil {
			logger.Error("failed to mark notification failed", "log_id", logID, "error", err)
		}
		if result.HTTPStatus == http.StatusUnauthorized {
			logger.Error("push delivery unauthorized, check VAPID configuration", "reason", result.Reason)
		} else {
			logger.Warn("push delivery failed",
				"reason", result.Reason,
				"status", result.HTTPStatus,
				"retryable", result.Retryable,
			)
		}
	}
	return result
}
