package push

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSubscription(t *testing.T, endpoint string) Subscription {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	auth := make([]byte, 16)
	if _, err := rand.Read(auth); err != nil {
		t.Fatalf("generate auth: %v", err)
	}
	return Subscription{
		Endpoint: endpoint,
		P256DH:   base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
		Auth:     base64.RawURLEncoding.EncodeToString(auth),
	}
}

func newTestProvider(t *testing.T, mutate func(*WebPushConfig)) *WebPushProvider {
	t.Helper()
	priv, pub, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("generate VAPID keys: %v", err)
	}
	cfg := WebPushConfig{
		PublicKey:  pub,
		PrivateKey: priv,
		Subject:    "mailto:ops@example.com",
		Timeout:    2 * time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewWebPushProvider(cfg, testLogger())
}

func statusServer(t *testing.T, status int, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status    int
		kind      ResultKind
		retryable bool
	}{
		{200, ResultSuccess, false},
		{201, ResultSuccess, false},
		{204, ResultSuccess, false},
		{404, ResultExpired, false},
		{410, ResultExpired, false},
		{401, ResultFailed, false},
		{413, ResultFailed, false},
		{429, ResultFailed, true},
		{400, ResultFailed, false},
		{500, ResultFailed, false},
		{503, ResultFailed, false},
	}
	for _, tt := range tests {
		got := classifyStatus(tt.status, "")
		if got.Kind != tt.kind || got.Retryable != tt.retryable {
			t.Errorf("classifyStatus(%d) = %s, want kind=%s retryable=%t", tt.status, got, tt.kind, tt.retryable)
		}
		if got.Kind == ResultFailed && got.HTTPStatus != tt.status {
			t.Errorf("classifyStatus(%d) lost the status: %d", tt.status, got.HTTPStatus)
		}
	}
}

func TestSendDeliversEncryptedMessage(t *testing.T) {
	var gotAuth, gotEncoding, gotTTL string
	var gotLen int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotEncoding = r.Header.Get("Content-Encoding")
		gotTTL = r.Header.Get("TTL")
		body, _ := io.ReadAll(r.Body)
		gotLen = len(body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	p := newTestProvider(t, func(c *WebPushConfig) { c.TTL = 3600 })
	result := p.Send(context.Background(), newTestSubscription(t, srv.URL+"/push/abc"), Payload{Title: "Hello"})

	if !result.OK() {
		t.Fatalf("expected success, got %s", result)
	}
	if !strings.HasPrefix(gotAuth, "vapid ") {
		t.Fatalf("expected VAPID authorization header, got %q", gotAuth)
	}
	if gotEncoding != "aes128gcm" {
		t.Fatalf("unexpected content encoding %q", gotEncoding)
	}
	if gotTTL != "3600" {
		t.Fatalf("unexpected TTL header %q", gotTTL)
	}
	if gotLen == 0 {
		t.Fatalf("expected an encrypted body")
	}
}

func TestSendMapsExpiredSubscription(t *testing.T) {
	for _, status := range []int{http.StatusGone, http.StatusNotFound} {
		srv := statusServer(t, status, nil)
		p := newTestProvider(t, nil)
		result := p.Send(context.Background(), newTestSubscription(t, srv.URL), Payload{})
		if result.Kind != ResultExpired {
			t.Fatalf("status %d: expected expired, got %s", status, result)
		}
	}
}

func TestSendTimeoutIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	p := newTestProvider(t, func(c *WebPushConfig) { c.Timeout = 50 * time.Millisecond })
	result := p.Send(context.Background(), newTestSubscription(t, srv.URL), Payload{})

	if result.Kind != ResultFailed || !result.Retryable || result.HTTPStatus != 0 {
		t.Fatalf("expected retryable failure without status, got %s", result)
	}
}

func TestSendRejectsInvalidSubscription(t *testing.T) {
	var hits int32
	srv := statusServer(t, http.StatusCreated, &hits)
	p := newTestProvider(t, nil)

	sub := newTestSubscription(t, srv.URL)
	sub.P256DH = base64.RawURLEncoding.EncodeToString([]byte("not a point"))

	result := p.Send(context.Background(), sub, Payload{})
	if result.Kind != ResultFailed || result.Retryable {
		t.Fatalf("expected permanent failure, got %s", result)
	}
	if hits != 0 {
		t.Fatalf("expected no request for an invalid subscription, got %d", hits)
	}
}

func TestBreakerOpensOnUnauthorized(t *testing.T) {
	var hits int32
	srv := statusServer(t, http.StatusUnauthorized, &hits)
	p := newTestProvider(t, func(c *WebPushConfig) {
		c.BreakerFailures = 2
		c.BreakerCooldown = time.Minute
	})
	sub := newTestSubscription(t, srv.URL)

	for i := 0; i < 2; i++ {
		result := p.Send(context.Background(), sub, Payload{})
		if result.HTTPStatus != http.StatusUnauthorized || result.Retryable {
			t.Fatalf("attempt %d: expected non-retryable 401, got %s", i, result)
		}
	}

	result := p.Send(context.Background(), sub, Payload{})
	if result.Reason != "push service unavailable" || !result.Retryable {
		t.Fatalf("expected fast failure from open breaker, got %s", result)
	}
	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Fatalf("expected 2 requests to reach the push service, got %d", got)
	}
}

func TestBreakerIgnoresSubscriptionOutcomes(t *testing.T) {
	var hits int32
	srv := statusServer(t, http.StatusGone, &hits)
	p := newTestProvider(t, func(c *WebPushConfig) { c.BreakerFailures = 2 })
	sub := newTestSubscription(t, srv.URL)

	for i := 0; i < 5; i++ {
		if result := p.Send(context.Background(), sub, Payload{}); result.Kind != ResultExpired {
			t.Fatalf("attempt %d: expected expired, got %s", i, result)
		}
	}
	if got := atomic.LoadInt32(&hits); got != 5 {
		t.Fatalf("expected every request to reach the push service, got %d", got)
	}
}

func TestValidateSubscription(t *testing.T) {
	p := newTestProvider(t, nil)
	valid := newTestSubscription(t, "https://push.example.com/send/1")

	if !p.ValidateSubscription(valid) {
		t.Fatalf("expected generated subscription to be valid")
	}

	padded := valid
	padded.P256DH = base64.URLEncoding.EncodeToString(mustDecode(t, valid.P256DH))
	if !p.ValidateSubscription(padded) {
		t.Fatalf("expected padded key to be accepted")
	}

	cases := map[string]func(*Subscription){
		"relative endpoint": func(s *Subscription) { s.Endpoint = "/send/1" },
		"ftp endpoint":      func(s *Subscription) { s.Endpoint = "ftp://push.example.com/1" },
		"empty p256dh":      func(s *Subscription) { s.P256DH = "" },
		"short auth":        func(s *Subscription) { s.Auth = base64.RawURLEncoding.EncodeToString([]byte("short")) },
		"garbage auth":      func(s *Subscription) { s.Auth = "%%%" },
	}
	for name, mutate := range cases {
		sub := valid
		mutate(&sub)
		if p.ValidateSubscription(sub) {
			t.Errorf("%s: expected subscription to be rejected", name)
		}
	}
}

func mustDecode(t *testing.T, s string) []byte {
	t.Helper()
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return b
}
