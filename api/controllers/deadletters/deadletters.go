package deadletters

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/shopcore-backend/api/responses"
	"github.com/angelmondragon/shopcore-backend/api/validators"
	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/shopcore-backend/pkg/errors"
	"github.com/angelmondragon/shopcore-backend/pkg/logger"
	"github.com/angelmondragon/shopcore-backend/pkg/outbox"
	"github.com/angelmondragon/shopcore-backend/pkg/pagination"
)

type store interface {
	List(ctx context.Context, params pagination.Params) ([]models.OutboxDLQ, string, error)
	Replay(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error)
}

type DeadLetter struct {
	EventID       uuid.UUID       `json:"event_id"`
	EventType     string          `json:"event_type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   uuid.UUID       `json:"aggregate_id"`
	Reason        string          `json:"reason"`
	Replayable    bool            `json:"replayable"`
	Error         string          `json:"error,omitempty"`
	Attempts      int             `json:"attempts"`
	FailedAt      time.Time       `json:"failed_at"`
	Payload       json.RawMessage `json:"payload"`
}

type Page struct {
	Items      []DeadLetter `json:"items"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

func toDTO(d models.OutboxDLQ) DeadLetter {
	out := DeadLetter{
		EventID:       d.EventID,
		EventType:     string(d.EventType),
		AggregateType: string(d.AggregateType),
		AggregateID:   d.AggregateID,
		Reason:        string(d.ErrorReason),
		Replayable:    d.ErrorReason.Replayable(),
		Attempts:      d.AttemptCount,
		FailedAt:      d.FailedAt,
		Payload:       d.Payload,
	}
	if d.ErrorMessage != nil {
		out.Error = *d.ErrorMessage
	}
	return out
}

func List(svc store, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, next, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list dead letters"))
			return
		}
		page := Page{Items: make([]DeadLetter, 0, len(rows)), NextCursor: next}
		for _, row := range rows {
			page.Items = append(page.Items, toDTO(row))
		}
		responses.WriteSuccess(w, page)
	}
}

// Replay requeues one dead letter onto the outbox.
func Replay(svc store, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID, err := validators.ParseUUIDParam(r, "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entry, err := svc.Replay(r.Context(), eventID)
		switch {
		case errors.Is(err, outbox.ErrDeadLetterNotFound):
			err = pkgerrors.New(pkgerrors.CodeNotFound, "dead letter not found")
		case errors.Is(err, outbox.ErrNotReplayable):
			err = pkgerrors.New(pkgerrors.CodeConflict, "dead letter is malformed and cannot be replayed")
		case err != nil:
			err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "replay dead letter")
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if logg != nil {
			logg.Info(logg.WithFields(r.Context(), map[string]any{
				"event_id":   entry.EventID.String(),
				"event_type": entry.EventType,
			}), "dead letter requeued")
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, toDTO(*entry))
	}
}
