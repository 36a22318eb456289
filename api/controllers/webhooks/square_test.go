package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	squarewebhook "github.com/angelmondragon/shopcore-backend/internal/webhooks/square"
)

func TestSquareWebhookProcessesOnce(t *testing.T) {
	payload := paymentPayload(t, "evt-1", "COMPLETED")
	service := &fakeWebhookService{}
	handler := SquareWebhook(service, staticSecret("secret"), newGuard(t), nil)

	for i := 0; i < 2; i++ {
		rec := post(handler, payload, sign(payload, "secret"))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	assert.Equal(t, 1, service.calls)
	require.NotNil(t, service.last)
	assert.Equal(t, "N-1", service.last.Data.Object.Payment.ReferenceID)
}

func TestSquareWebhookRejectsBadSignature(t *testing.T) {
	payload := paymentPayload(t, "evt-2", "COMPLETED")
	service := &fakeWebhookService{}
	handler := SquareWebhook(service, staticSecret("secret"), newGuard(t), nil)

	rec := post(handler, payload, sign(payload, "other"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = post(handler, payload, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, service.calls)
}

func TestSquareWebhookForgetsFailedEvents(t *testing.T) {
	payload := paymentPayload(t, "evt-3", "COMPLETED")
	service := &fakeWebhookService{err: errors.New("database down")}
	handler := SquareWebhook(service, staticSecret("secret"), newGuard(t), nil)

	rec := post(handler, payload, sign(payload, "secret"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	service.err = nil
	rec = post(handler, payload, sign(payload, "secret"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, service.calls)
}

func post(handler http.Handler, payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/square", bytes.NewReader(payload))
	if signature != "" {
		req.Header.Set("Square-Signature", signature)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func paymentPayload(t *testing.T, eventID, status string) []byte {
	t.Helper()
	payload, err := json.Marshal(squarewebhook.Event{
		EventID: eventID,
		Type:    "payment.updated",
		Data: squarewebhook.EventData{
			Type: "payment",
			ID:   "pay-1",
			Object: squarewebhook.EventObject{Payment: &squarewebhook.Payment{
				ID:          "pay-1",
				Status:      status,
				ReferenceID: "N-1",
			}},
		},
	})
	require.NoError(t, err)
	return payload
}

func sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

type staticSecret string

func (s staticSecret) SigningSecret() string { return string(s) }

type fakeWebhookService struct {
	calls int
	last  *squarewebhook.Event
	err   error
}

func (f *fakeWebhookService) HandleEvent(_ context.Context, event *squarewebhook.Event) error {
	f.calls++
	f.last = event
	return f.err
}

func newGuard(t *testing.T) *squarewebhook.Guard {
	t.Helper()
	guard, err := squarewebhook.NewGuard(&memoryStore{data: map[string]string{}}, time.Minute, "square-webhook")
	require.NoError(t, err)
	return guard
}

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (s *memoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = fmt.Sprint(value)
	return true, nil
}

func (s *memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = fmt.Sprint(value)
	return nil
}

func (s *memoryStore) IdempotencyKey(scope, id string) string {
	return "shopcore:idempotency:" + scope + ":" + id
}

func (s *memoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}
