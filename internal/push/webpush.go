package push

import (
	"context"
	"crypto/ecdh"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/sony/gobreaker"
)

var errSystemFailure = errors.New("push service rejected the request")

type WebPushConfig struct {
	PublicKey  string
	PrivateKey string
	Subject    string

	Timeout time.Duration
	TTL     int
	Urgency webpush.Urgency

	// BreakerFailures consecutive system-level failures open the breaker
	// for BreakerCooldown. Zero disables the breaker.
	BreakerFailures uint32
	BreakerCooldown time.Duration

	HTTPClient *http.Client
}

// WebPushProvider sends encrypted Web Push messages signed with VAPID.
type WebPushProvider struct {
	cfg    WebPushConfig
	client *http.Client
	logger *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

var _ Provider = (*WebPushProvider)(nil)

func NewWebPushProvider(cfg WebPushConfig, logger *slog.Logger) *WebPushProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 86400
	}
	if cfg.Urgency == "" {
		cfg.Urgency = webpush.UrgencyNormal
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebPushProvider{
		cfg:      cfg,
		client:   client,
		logger:   logger.With("provider", "webpush"),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (p *WebPushProvider) FormatPayload(payload Payload) WirePayload {
	return FormatPayload(payload)
}

// ValidateSubscription checks the endpoint URL and that the keys decode to a
// P-256 public point and a 16 byte auth secret.
func (p *WebPushProvider) ValidateSubscription(sub Subscription) bool {
	if !validEndpoint(sub.Endpoint) {
		return false
	}
	key, err := decodeKey(sub.P256DH)
	if err != nil {
		return false
	}
	if _, err := ecdh.P256().NewPublicKey(key); err != nil {
		return false
	}
	auth, err := decodeKey(sub.Auth)
	if err != nil || len(auth) != 16 {
		return false
	}
	return true
}

func (p *WebPushProvider) Send(ctx context.Context, sub Subscription, payload Payload) Result {
	if !p.ValidateSubscription(sub) {
		return Failed("invalid subscription", false, 0)
	}

	message, err := json.Marshal(p.FormatPayload(payload))
	if err != nil {
		return Failed(fmt.Sprintf("failed to encode payload: %v", err), false, 0)
	}

	breaker := p.breakerFor(sub.Endpoint)
	if breaker == nil {
		return p.send(ctx, sub, message)
	}

	var result Result
	_, err = breaker.Execute(func() (interface{}, error) {
		result = p.send(ctx, sub, message)
		if isSystemFailure(result) {
			return nil, errSystemFailure
		}
		return nil, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return Failed("push service unavailable", true, 0)
	}
	return result
}

func (p *WebPushProvider) send(ctx context.Context, sub Subscription, message []byte) Result {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	resp, err := webpush.SendNotificationWithContext(ctx, message, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		HTTPClient:      p.client,
		Subscriber:      strings.TrimPrefix(p.cfg.Subject, "mailto:"),
		VAPIDPublicKey:  p.cfg.PublicKey,
		VAPIDPrivateKey: p.cfg.PrivateKey,
		TTL:             p.cfg.TTL,
		Urgency:         p.cfg.Urgency,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return Failed("request timed out", true, 0)
		}
		return Failed(err.Error(), true, 0)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	result := classifyStatus(resp.StatusCode, strings.TrimSpace(string(body)))
	if result.Kind == ResultFailed && result.HTTPStatus == http.StatusUnauthorized {
		p.logger.Error("push service rejected VAPID credentials",
			"host", endpointHost(sub.Endpoint),
			"status", resp.StatusCode,
		)
	}
	return result
}

// classifyStatus maps a push service response onto a Result.
func classifyStatus(status int, body string) Result {
	reason := http.StatusText(status)
	if body != "" {
		reason = fmt.Sprintf("%s: %s", reason, body)
	}
	switch {
	case status >= 200 && status < 300:
		return Success()
	case status == http.StatusGone, status == http.StatusNotFound:
		return Expired(reason)
	case status == http.StatusTooManyRequests:
		return Failed(reason, true, status)
	case status == http.StatusUnauthorized, status == http.StatusRequestEntityTooLarge:
		return Failed(reason, false, status)
	default:
		return Failed(reason, false, status)
	}
}

// isSystemFailure reports outcomes that say something about our credentials
// or the push service itself rather than about one subscription.
func isSystemFailure(r Result) bool {
	if r.Kind != ResultFailed {
		return false
	}
	if r.HTTPStatus == http.StatusUnauthorized {
		return true
	}
	return r.HTTPStatus == 0 && r.Retryable
}

func (p *WebPushProvider) breakerFor(endpoint string) *gobreaker.CircuitBreaker {
	if p.cfg.BreakerFailures == 0 {
		return nil
	}
	host := endpointHost(endpoint)

	p.mu.Lock()
	defer p.mu.Unlock()
	if cb, ok := p.breakers[host]; ok {
		return cb
	}
	threshold := p.cfg.BreakerFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    host,
		Timeout: p.cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.logger.Warn("push circuit breaker state changed", "host", name, "from", from.String(), "to", to.String())
		},
	})
	p.breakers[host] = cb
	return cb
}

func validEndpoint(endpoint string) bool {
	u, err := url.Parse(endpoint)
	if err != nil {
		return false
	}
	return (u.Scheme == "https" || u.Scheme == "http") && u.Host != ""
}

func endpointHost(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return ""
	}
	return u.Host
}

// decodeKey accepts the base64url form browsers emit as well as padded
// standard base64.
func decodeKey(s string) ([]byte, error) {
	s = strings.TrimRight(strings.TrimSpace(s), "=")
	if s == "" {
		return nil, errors.New("empty key")
	}
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}
