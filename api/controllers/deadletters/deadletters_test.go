package deadletters

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/enums"
	"github.com/angelmondragon/shopcore-backend/pkg/outbox"
	"github.com/angelmondragon/shopcore-backend/pkg/pagination"
)

type stubStore struct {
	rows []models.OutboxDLQ
}

func (s *stubStore) List(context.Context, pagination.Params) ([]models.OutboxDLQ, string, error) {
	return s.rows, "", nil
}

func (s *stubStore) Replay(_ context.Context, id uuid.UUID) (*models.OutboxDLQ, error) {
	for _, row := range s.rows {
		if row.EventID != id {
			continue
		}
		if !row.ErrorReason.Replayable() {
			return nil, outbox.ErrNotReplayable
		}
		return &row, nil
	}
	return nil, outbox.ErrDeadLetterNotFound
}

func replayRequest(id string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rc := chi.NewRouteContext()
	rc.URLParams.Add("eventId", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func TestReplayStatusCodes(t *testing.T) {
	retry := models.OutboxDLQ{EventID: uuid.New(), EventType: enums.EventOrderPaid, ErrorReason: enums.OutboxDLQReasonMaxAttempts}
	broken := models.OutboxDLQ{EventID: uuid.New(), EventType: enums.EventOrderPaid, ErrorReason: enums.OutboxDLQReasonNonRetryable}
	svc := &stubStore{rows: []models.OutboxDLQ{retry, broken}}

	cases := map[string]struct {
		id   string
		want int
	}{
		"replayable": {retry.EventID.String(), http.StatusAccepted},
		"malformed":  {broken.EventID.String(), http.StatusConflict},
		"missing":    {uuid.NewString(), http.StatusNotFound},
		"bad id":     {"nope", http.StatusBadRequest},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			resp := httptest.NewRecorder()
			Replay(svc, nil).ServeHTTP(resp, replayRequest(tc.id))
			assert.Equal(t, tc.want, resp.Code)
		})
	}
}

func TestListMarksReplayable(t *testing.T) {
	msg := "deadline exceeded"
	svc := &stubStore{rows: []models.OutboxDLQ{{
		EventID:      uuid.New(),
		EventType:    enums.EventRefundIssued,
		ErrorReason:  enums.OutboxDLQReasonUnroutable,
		ErrorMessage: &msg,
		Payload:      json.RawMessage(`{}`),
	}}}
	resp := httptest.NewRecorder()
	List(svc, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Data Page `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Data.Items, 1)
	assert.True(t, body.Data.Items[0].Replayable)
	assert.Equal(t, "deadline exceeded", body.Data.Items[0].Error)
}
