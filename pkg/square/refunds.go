package square

import (
	"context"
	"strings"
	"unicode/utf8"

	sq "github.com/square/square-go-sdk"

	pkgerrors "github.com/angelmondragon/shopcore-backend/pkg/errors"
)

// Square rejects refund reasons longer than this many characters.
const maxReasonLen = 192

// RefundParams describes a refund against a settled Square payment.
type RefundParams struct {
	PaymentID      string
	AmountCents    int64
	Currency       string
	Reason         string
	IdempotencyKey string
}

// RefundResult is the gateway's view of a created refund.
type RefundResult struct {
	RefundID string
	Status   string
}

func (p RefundParams) request(fallbackCurrency string) *sq.RefundPaymentRequest {
	currency := strings.ToUpper(strings.TrimSpace(p.Currency))
	if currency == "" {
		currency = strings.ToUpper(strings.TrimSpace(fallbackCurrency))
	}
	if currency == "" {
		currency = "INR"
	}
	amount := p.AmountCents
	code := sq.Currency(currency)
	paymentID := strings.TrimSpace(p.PaymentID)

	req := &sq.RefundPaymentRequest{
		IdempotencyKey: idempotencyKey("refund", p.IdempotencyKey),
		AmountMoney:    &sq.Money{Amount: &amount, Currency: &code},
		PaymentID:      &paymentID,
	}
	if reason := truncateRunes(strings.TrimSpace(p.Reason), maxReasonLen); reason != "" {
		req.Reason = &reason
	}
	return req
}

// RefundPayment refunds part or all of a completed payment. Pass an
// idempotency key derived from the business event so retries collapse.
func (c *Client) RefundPayment(ctx context.Context, params RefundParams) (*RefundResult, error) {
	if c == nil || c.refunds == nil {
		return nil, errAccessTokenRequired
	}
	if strings.TrimSpace(params.PaymentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}
	if params.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}

	req := params.request(c.currency)
	fields := map[string]any{
		"payment_id":      params.PaymentID,
		"amount_cents":    params.AmountCents,
		"idempotency_key": req.IdempotencyKey,
	}
	resp, err := c.refunds.RefundPayment(ctx, req)
	if err != nil {
		c.logCall(ctx, "refund_payment", fields, err)
		return nil, mapError(err, "refund payment")
	}
	refund := resp.GetRefund()
	if refund == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "square refund response missing refund")
	}

	result := &RefundResult{RefundID: text(refund.GetID()), Status: text(refund.GetStatus())}
	fields["refund_id"] = result.RefundID
	fields["status"] = result.Status
	c.logCall(ctx, "refund_payment", fields, nil)
	return result, nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// text flattens SDK getters, which return string or *string depending on
// whether the field is optional.
func text(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case *string:
		if t != nil {
			return *t
		}
	}
	return ""
}
