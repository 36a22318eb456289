package actionrequests

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/shopcore-backend/api/middleware"
	"github.com/angelmondragon/shopcore-backend/api/responses"
	"github.com/angelmondragon/shopcore-backend/api/validators"
	internalrequests "github.com/angelmondragon/shopcore-backend/internal/actionrequests"
	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/enums"
	"github.com/angelmondragon/shopcore-backend/pkg/logger"
	"github.com/angelmondragon/shopcore-backend/pkg/pagination"
)

type customerService interface {
	RequestCancel(ctx context.Context, input internalrequests.RequestCancelInput) (*internalrequests.Outcome, error)
	RequestReturn(ctx context.Context, input internalrequests.RequestReturnInput) (*internalrequests.Outcome, error)
	CancelOrder(ctx context.Context, input internalrequests.CancelOrderInput) (*internalrequests.CancelOrderResult, error)
	CheckReturn(ctx context.Context, itemID, userID uuid.UUID) (*internalrequests.Eligibility, error)
}

type staffService interface {
	Approve(ctx context.Context, input internalrequests.DecideInput) (*internalrequests.Decision, error)
	Reject(ctx context.Context, input internalrequests.DecideInput) (*internalrequests.Decision, error)
	ListPending(ctx context.Context, params pagination.Params) ([]models.ActionRequest, string, error)
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"required"`
	Note   string `json:"note" validate:"max=500"`
}

type returnRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type decisionRequest struct {
	Note string `json:"note" validate:"max=500"`
}

// PendingPage is one page of the staff approval queue.
type PendingPage struct {
	Requests   []models.ActionRequest `json:"requests"`
	NextCursor string                 `json:"next_cursor,omitempty"`
}

// CancelItem cancels an item outright before shipping, or files a request
// for staff approval once it has shipped.
func CancelItem(svc customerService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, orderID, itemID, err := itemTarget(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req cancelRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		outcome, err := svc.RequestCancel(r.Context(), internalrequests.RequestCancelInput{
			OrderID: orderID,
			ItemID:  itemID,
			UserID:  userID,
			Reason:  enums.CancellationReason(strings.ToUpper(strings.TrimSpace(req.Reason))),
			Note:    validators.SanitizeString(req.Note, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, outcomeStatus(outcome), outcome)
	}
}

// ReturnItem files a return request for a delivered item.
func ReturnItem(svc customerService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, orderID, itemID, err := itemTarget(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req returnRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		outcome, err := svc.RequestReturn(r.Context(), internalrequests.RequestReturnInput{
			OrderID: orderID,
			ItemID:  itemID,
			UserID:  userID,
			Reason:  validators.SanitizeString(req.Reason, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, outcome)
	}
}

// ReturnEligibility reports whether an item can still be returned.
func ReturnEligibility(svc customerService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _, itemID, err := itemTarget(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		check, err := svc.CheckReturn(r.Context(), itemID, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, check)
	}
}

// CancelOrder cancels every open item of an order that has not shipped.
func CancelOrder(svc customerService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := middleware.RequireActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req cancelRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CancelOrder(r.Context(), internalrequests.CancelOrderInput{
			OrderID: orderID,
			UserID:  userID,
			Reason:  enums.CancellationReason(strings.ToUpper(strings.TrimSpace(req.Reason))),
			Note:    validators.SanitizeString(req.Note, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// Approve carries out a pending request.
func Approve(svc staffService, logg *logger.Logger) http.HandlerFunc {
	return decide(svc.Approve, logg)
}

// Reject closes a pending request without touching the item.
func Reject(svc staffService, logg *logger.Logger) http.HandlerFunc {
	return decide(svc.Reject, logg)
}

// ListPending pages the approval queue oldest first.
func ListPending(svc staffService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, next, err := svc.ListPending(r.Context(), page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, PendingPage{Requests: rows, NextCursor: next})
	}
}

func decide(fn func(context.Context, internalrequests.DecideInput) (*internalrequests.Decision, error), logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		staffID, err := middleware.RequireActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		requestID, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req decisionRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		decision, err := fn(r.Context(), internalrequests.DecideInput{
			RequestID: requestID,
			StaffID:   staffID,
			Note:      validators.SanitizeString(req.Note, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, decision)
	}
}

func itemTarget(r *http.Request) (uuid.UUID, uuid.UUID, uuid.UUID, error) {
	userID, err := middleware.RequireActorID(r.Context())
	if err != nil {
		return uuid.Nil, uuid.Nil, uuid.Nil, err
	}
	orderID, err := validators.ParseUUIDParam(r, "orderId")
	if err != nil {
		return uuid.Nil, uuid.Nil, uuid.Nil, err
	}
	itemID, err := validators.ParseUUIDParam(r, "itemId")
	if err != nil {
		return uuid.Nil, uuid.Nil, uuid.Nil, err
	}
	return userID, orderID, itemID, nil
}

// Immediate cancellations are done; queued ones are accepted for later.
func outcomeStatus(outcome *internalrequests.Outcome) int {
	if outcome != nil && !outcome.Immediate {
		return http.StatusAccepted
	}
	return http.StatusOK
}
