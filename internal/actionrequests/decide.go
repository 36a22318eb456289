package actionrequests

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcore-backend/internal/orders"
	"github.com/angelmondragon/shopcore-backend/internal/refunds"
	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopcore-backend/pkg/errors"
	"github.com/angelmondragon/shopcore-backend/pkg/outbox"
	"github.com/angelmondragon/shopcore-backend/pkg/pagination"
)

// Approve closes the item behind a pending request and marks it APPROVED.
// Approving an approved request changes nothing and refunds nothing.
func (s *Service) Approve(ctx context.Context, input DecideInput) (*Decision, error) {
	if err := validateDecision(input); err != nil {
		return nil, err
	}

	var decision *Decision
	err := s.tx.WithRetryTx(ctx, func(tx *gorm.DB) error {
		decision = nil
		repo := s.repo.WithTx(tx)
		req, err := repo.Lock(ctx, input.RequestID)
		if err != nil {
			return notFoundOr(err, "action request not found", "lock action request")
		}
		switch req.State {
		case enums.ActionRequestApproved:
			decision = &Decision{Request: req, AlreadyDecided: true}
			return nil
		case enums.ActionRequestRejected:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "request was already rejected")
		}

		in := orders.CloseItemInput{
			OrderID: req.OrderID,
			ItemID:  req.OrderItemID,
			Actor:   staff(input.StaffID),
		}
		switch req.Kind {
		case enums.ActionRequestCancel:
			in.Status = enums.OrderItemStatusCancelled
			in.RefundKind = refunds.KindCancel
			in.Note = req.Note
			if reason, err := enums.ParseCancellationReason(req.Reason); err == nil {
				in.CancellationReason = &reason
			}
		case enums.ActionRequestReturn:
			in.Status = enums.OrderItemStatusReturned
			in.RefundKind = refunds.KindReturn
			in.ReturnReason = req.Reason
		default:
			return pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("unknown request kind %q", req.Kind))
		}
		res, err := s.orders.CloseItem(ctx, tx, in)
		if err != nil {
			return err
		}

		if err := s.decide(ctx, tx, repo, req, enums.ActionRequestApproved, input); err != nil {
			return err
		}
		decision = &Decision{Request: req, Order: res.Order, Item: res.Item, Refund: res.Refund}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !decision.AlreadyDecided {
		s.logDecision(ctx, decision.Request, "action request approved")
	}
	return decision, nil
}

// Reject marks a pending request REJECTED without touching the item.
func (s *Service) Reject(ctx context.Context, input DecideInput) (*Decision, error) {
	if err := validateDecision(input); err != nil {
		return nil, err
	}

	var decision *Decision
	err := s.tx.WithRetryTx(ctx, func(tx *gorm.DB) error {
		decision = nil
		repo := s.repo.WithTx(tx)
		req, err := repo.Lock(ctx, input.RequestID)
		if err != nil {
			return notFoundOr(err, "action request not found", "lock action request")
		}
		switch req.State {
		case enums.ActionRequestRejected:
			decision = &Decision{Request: req, AlreadyDecided: true}
			return nil
		case enums.ActionRequestApproved:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "request was already approved")
		}
		if err := s.decide(ctx, tx, repo, req, enums.ActionRequestRejected, input); err != nil {
			return err
		}
		decision = &Decision{Request: req}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !decision.AlreadyDecided {
		s.logDecision(ctx, decision.Request, "action request rejected")
	}
	return decision, nil
}

// Get returns one request for staff views.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.ActionRequest, error) {
	req, err := s.repo.Find(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "action request not found", "load action request")
	}
	return req, nil
}

// ListPending pages the staff queue oldest first.
func (s *Service) ListPending(ctx context.Context, params pagination.Params) ([]models.ActionRequest, string, error) {
	rows, next, err := s.repo.ListPending(ctx, params)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
			return nil, "", err
		}
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending requests")
	}
	return rows, next, nil
}

func (s *Service) decide(ctx context.Context, tx *gorm.DB, repo Repository, req *models.ActionRequest, state enums.ActionRequestState, input DecideInput) error {
	now := s.now().UTC()
	note := strings.TrimSpace(input.Note)
	if err := repo.Update(ctx, req.ID, map[string]any{
		"state":         state,
		"decided_by":    input.StaffID,
		"decided_at":    now,
		"decision_note": note,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update action request")
	}
	staffID := input.StaffID
	req.State = state
	req.DecidedBy = &staffID
	req.DecidedAt = &now
	req.DecisionNote = note
	return s.emit(ctx, tx, enums.EventActionRequestDecided, req, staff(input.StaffID))
}

func (s *Service) logDecision(ctx context.Context, req *models.ActionRequest, msg string) {
	s.logg.Info(s.logg.WithFields(s.logg.WithOrderID(ctx, req.OrderID.String()), map[string]any{
		"request_id": req.ID.String(),
		"kind":       req.Kind,
		"item_id":    req.OrderItemID.String(),
	}), msg)
}

func validateDecision(input DecideInput) error {
	if input.RequestID == uuid.Nil || input.StaffID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "request id and staff id are required")
	}
	return nil
}

func staff(userID uuid.UUID) *outbox.ActorRef {
	return &outbox.ActorRef{UserID: userID, Role: enums.RoleStaff.String()}
}
