package push

import (
	"context"

	"github.com/tariel-x/wellpush/internal/models"
)

// Subscription is the address and key material of one device.
type Subscription struct {
	Endpoint string
	P256DH   string
	Auth     string
}

func SubscriptionFor(device *models.DeviceToken) Subscription {
	return Subscription{
		Endpoint: device.Endpoint,
		P256DH:   device.P256DHKey,
		Auth:     device.AuthKey,
	}
}

// Provider delivers payloads over one platform's push protocol.
type Provider interface {
	Send(ctx context.Context, sub Subscription, payload Payload) Result
	ValidateSubscription(sub Subscription) bool
	FormatPayload(payload Payload) WirePayload
}

// Registry maps platforms to providers. Native iOS/Android providers plug in
// here without changes to the dispatcher.
type Registry struct {
	providers map[models.Platform]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[models.Platform]Provider)}
}

// Register is meant for startup wiring; the registry is read-only afterwards.
func (r *Registry) Register(platform models.Platform, p Provider) {
	r.providers[platform] = p
}

func (r *Registry) For(platform models.Platform) (Provider, bool) {
	p, ok := r.providers[platform]
	return p, ok
}
