package square

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	sq "github.com/square/square-go-sdk"
	sqcore "github.com/square/square-go-sdk/core"

	pkgerrors "github.com/angelmondragon/shopcore-backend/pkg/errors"
)

// mapError converts SDK failures into domain errors. Specific Square error
// codes win over the HTTP status.
func mapError(err error, op string) error {
	if err == nil {
		return nil
	}
	var apiErr *sqcore.APIError
	if !errors.As(err, &apiErr) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "square "+op+" failed")
	}

	code := codeForStatus(apiErr.StatusCode)
	if override, ok := codeForSquareErrors(squareErrors(apiErr)); ok {
		code = override
	}
	return pkgerrors.Wrap(code, err, "square "+op+" failed")
}

func codeForSquareErrors(errs []*sq.Error) (pkgerrors.Code, bool) {
	for _, e := range errs {
		if e == nil {
			continue
		}
		if e.Code == sq.ErrorCodeIdempotencyKeyReused {
			return pkgerrors.CodeIdempotency, true
		}
		if e.Category == sq.ErrorCategoryAuthenticationError {
			return pkgerrors.CodeUnauthorized, true
		}
	}
	return "", false
}

// squareErrors decodes the error list Square puts in the response body.
func squareErrors(apiErr *sqcore.APIError) []*sq.Error {
	inner := apiErr.Unwrap()
	if inner == nil {
		return nil
	}
	var body struct {
		Errors []*sq.Error `json:"errors"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(inner.Error())), &body); err != nil {
		return nil
	}
	return body.Errors
}

func codeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusUnauthorized:
		return pkgerrors.CodeUnauthorized
	case http.StatusForbidden:
		return pkgerrors.CodeForbidden
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusConflict:
		return pkgerrors.CodeConflict
	case http.StatusTooManyRequests:
		return pkgerrors.CodeRateLimit
	case http.StatusUnprocessableEntity:
		return pkgerrors.CodeStateConflict
	}
	if status >= 400 && status < 500 {
		return pkgerrors.CodeValidation
	}
	return pkgerrors.CodeDependency
}
