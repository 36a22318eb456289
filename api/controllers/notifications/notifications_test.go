package notifications

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/shopcore-backend/api/middleware"
	internalnotifications "github.com/angelmondragon/shopcore-backend/internal/notifications"
	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopcore-backend/pkg/errors"
	"github.com/angelmondragon/shopcore-backend/pkg/pagination"
)

type stubInbox struct {
	params internalnotifications.ListParams
	rows   []models.Notification
	read   []uuid.UUID
}

func (s *stubInbox) List(_ context.Context, _ uuid.UUID, params internalnotifications.ListParams) ([]models.Notification, string, error) {
	s.params = params
	return s.rows, "next-page", nil
}

func (s *stubInbox) MarkRead(_ context.Context, _ uuid.UUID, id uuid.UUID) error {
	for _, row := range s.rows {
		if row.ID == id {
			s.read = append(s.read, id)
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
}

func (s *stubInbox) MarkAllRead(context.Context, uuid.UUID) (int64, error) {
	return int64(len(s.rows)), nil
}

func inboxRequest(method, target string, params map[string]string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	rc := chi.NewRouteContext()
	for k, v := range params {
		rc.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rc)
	ctx = middleware.WithActor(ctx, uuid.NewString(), enums.RoleCustomer)
	return req.WithContext(ctx)
}

func TestListPassesFilterAndCursor(t *testing.T) {
	stub := &stubInbox{rows: []models.Notification{{
		ID:        uuid.New(),
		Type:      enums.NotificationTypeRefund,
		Title:     "Refund issued",
		Message:   "₹10.00 has been refunded to your wallet.",
		CreatedAt: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC),
	}}}

	cursor := pagination.EncodeCursor(pagination.Cursor{CreatedAt: time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC), ID: uuid.New()})
	resp := httptest.NewRecorder()
	List(stub, nil).ServeHTTP(resp, inboxRequest(http.MethodGet, "/?unread=true&limit=5&cursor="+cursor, nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, stub.params.UnreadOnly)
	assert.Equal(t, 5, stub.params.Limit)
	assert.Equal(t, cursor, stub.params.Cursor)

	var body struct {
		Data Page `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Data.Items, 1)
	assert.Equal(t, "refund", body.Data.Items[0].Type)
	assert.Equal(t, "next-page", body.Data.NextCursor)
}

func TestListRejectsBadUnreadFlag(t *testing.T) {
	resp := httptest.NewRecorder()
	List(&stubInbox{}, nil).ServeHTTP(resp, inboxRequest(http.MethodGet, "/?unread=maybe", nil))
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = httptest.NewRecorder()
	List(&stubInbox{}, nil).ServeHTTP(resp, inboxRequest(http.MethodGet, "/?cursor=not-a-cursor", nil))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestMarkRead(t *testing.T) {
	id := uuid.New()
	stub := &stubInbox{rows: []models.Notification{{ID: id}}}

	resp := httptest.NewRecorder()
	MarkRead(stub, nil).ServeHTTP(resp, inboxRequest(http.MethodPost, "/", map[string]string{"id": id.String()}))
	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.Equal(t, []uuid.UUID{id}, stub.read)

	resp = httptest.NewRecorder()
	MarkRead(stub, nil).ServeHTTP(resp, inboxRequest(http.MethodPost, "/", map[string]string{"id": uuid.NewString()}))
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = httptest.NewRecorder()
	MarkRead(stub, nil).ServeHTTP(resp, inboxRequest(http.MethodPost, "/", map[string]string{"id": "nope"}))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}
