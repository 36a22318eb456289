package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataStatusPerCode(t *testing.T) {
	statuses := map[Code]int{
		CodeValidation:          http.StatusBadRequest,
		CodeUnauthorized:        http.StatusUnauthorized,
		CodeForbidden:           http.StatusForbidden,
		CodeNotFound:            http.StatusNotFound,
		CodeConflict:            http.StatusConflict,
		CodeStateConflict:       http.StatusUnprocessableEntity,
		CodeIdempotency:         http.StatusConflict,
		CodeRateLimit:           http.StatusTooManyRequests,
		CodeInternal:            http.StatusInternalServerError,
		CodeDependency:          http.StatusServiceUnavailable,
		CodeInsufficientStock:   http.StatusConflict,
		CodeInsufficientBalance: http.StatusConflict,
		CodeInvalidTransition:   http.StatusUnprocessableEntity,
		CodeDuplicateRequest:    http.StatusConflict,
		CodeCouponIneligible:    http.StatusUnprocessableEntity,
	}
	require.Len(t, metadataByCode, len(statuses))
	for code, status := range statuses {
		assert.Equal(t, status, MetadataFor(code).HTTPStatus, code)
	}
}

func TestDomainRejectionsCarryDetails(t *testing.T) {
	for _, code := range []Code{CodeInsufficientStock, CodeInsufficientBalance, CodeInvalidTransition, CodeCouponIneligible, CodeValidation} {
		assert.True(t, MetadataFor(code).DetailsAllowed, code)
	}
	assert.False(t, MetadataFor(CodeInternal).DetailsAllowed)
}

func TestUnknownCodeIsInternal(t *testing.T) {
	assert.Equal(t, MetadataFor(CodeInternal), MetadataFor("SOMETHING_UNKNOWN"))
	assert.Equal(t, CodeInternal, CodeOf(stdErrors.New("plain")))
}

func TestOnlyServerFaultsHideTheirMessage(t *testing.T) {
	for code, meta := range metadataByCode {
		hidden := code == CodeInternal || code == CodeDependency
		assert.Equal(t, !hidden, meta.ExposeMessage, code)
		assert.Equal(t, meta.HTTPStatus >= 500, meta.Retryable, code)
	}
}

func TestErrorStringIncludesCause(t *testing.T) {
	assert.Equal(t, "NOT_FOUND: order not found", New(CodeNotFound, "order not found").Error())

	cause := stdErrors.New("connection reset")
	wrapped := Wrap(CodeDependency, cause, "load wallet")
	assert.Equal(t, "DEPENDENCY_ERROR: load wallet: connection reset", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)

	assert.Equal(t, "Only 2 left", Newf(CodeInsufficientStock, "Only %d left", 2).Message())
	assert.Nil(t, Wrap(CodeConflict, nil, "x").Unwrap())
}

func TestWithDetails(t *testing.T) {
	err := New(CodeValidation, "missing foo")
	assert.Nil(t, err.Details())
	assert.Same(t, err, err.WithDetails(map[string]string{"foo": "is required"}))
	assert.Equal(t, map[string]string{"foo": "is required"}, err.Details())

	var nilErr *Error
	assert.Nil(t, nilErr.WithDetails("x"))
	assert.Equal(t, CodeInternal, nilErr.Code())
}

func TestCodeLookupFollowsChain(t *testing.T) {
	inner := New(CodeInsufficientStock, "only 2 left")
	outer := fmt.Errorf("reserve line: %w", inner)

	assert.True(t, HasCode(outer, CodeInsufficientStock))
	assert.False(t, HasCode(outer, CodeNotFound))
	assert.False(t, HasCode(nil, CodeInternal))
	assert.Same(t, inner, As(outer))
	assert.Nil(t, As(nil))

	// The outermost typed error decides.
	rewrapped := Wrap(CodeDependency, outer, "checkout")
	assert.Equal(t, CodeDependency, CodeOf(rewrapped))
}
