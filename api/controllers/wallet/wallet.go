package wallet

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/shopcore-backend/api/middleware"
	"github.com/angelmondragon/shopcore-backend/api/responses"
	"github.com/angelmondragon/shopcore-backend/api/validators"
	internalwallet "github.com/angelmondragon/shopcore-backend/internal/wallet"
	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/logger"
	"github.com/angelmondragon/shopcore-backend/pkg/pagination"
)

type ledger interface {
	Credit(ctx context.Context, input internalwallet.CreditInput) (*models.WalletTransaction, error)
	Debit(ctx context.Context, input internalwallet.DebitInput) (*models.WalletTransaction, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, params pagination.Params) (*internalwallet.Summary, error)
}

type movementRequest struct {
	AmountCents int64  `json:"amount_cents" validate:"gt=0"`
	Description string `json:"description" validate:"required,max=255"`
	Reference   string `json:"reference" validate:"max=128"`
}

// MovementResult wraps a ledger row. Duplicate is set when the request's
// idempotency key had already been applied.
type MovementResult struct {
	Transaction *models.WalletTransaction `json:"transaction,omitempty"`
	Duplicate   bool                      `json:"duplicate"`
}

// Get returns the caller's balance and a page of history.
func Get(svc ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := middleware.RequireActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		summary, err := svc.ListTransactions(r.Context(), userID, page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

// Debit spends from the caller's own wallet.
func Debit(svc ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := middleware.RequireActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req movementRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		txn, err := svc.Debit(r.Context(), internalwallet.DebitInput{
			UserID:         userID,
			AmountCents:    req.AmountCents,
			Description:    validators.SanitizeString(req.Description, 255),
			Reference:      strings.TrimSpace(req.Reference),
			IdempotencyKey: ledgerKey(r, "debit", userID),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, MovementResult{Transaction: txn, Duplicate: txn == nil})
	}
}

// AdminCredit lets staff credit any user's wallet.
func AdminCredit(svc ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		staffID, err := middleware.RequireActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		userID, err := validators.ParseUUIDParam(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req movementRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		txn, err := svc.Credit(r.Context(), internalwallet.CreditInput{
			UserID:         userID,
			AmountCents:    req.AmountCents,
			Description:    validators.SanitizeString(req.Description, 255),
			Reference:      strings.TrimSpace(req.Reference),
			IdempotencyKey: ledgerKey(r, "credit", userID),
			Meta:           map[string]any{"credited_by": staffID.String()},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, MovementResult{Transaction: txn, Duplicate: txn == nil})
	}
}

// ledgerKey ties the HTTP Idempotency-Key to the wallet's own uniqueness
// check so replays past the response cache still apply once.
func ledgerKey(r *http.Request, kind string, userID uuid.UUID) string {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key == "" {
		return ""
	}
	return "wallet:" + kind + ":" + userID.String() + ":" + key
}
