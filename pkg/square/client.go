package square

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"
	sqclient "github.com/square/square-go-sdk/client"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/angelmondragon/shopcore-backend/pkg/config"
	"github.com/angelmondragon/shopcore-backend/pkg/logger"
)

var (
	errAccessTokenRequired   = errors.New("square access token is required")
	errWebhookSecretRequired = errors.New("square webhook secret is required")
	errLoggerRequired        = errors.New("square logger is required")
)

var baseURLs = map[string]string{
	"sandbox":    "https://connect.squareupsandbox.com",
	"production": "https://connect.squareup.com",
}

// refundsAPI is the slice of the SDK this package calls.
type refundsAPI interface {
	RefundPayment(ctx context.Context, req *sq.RefundPaymentRequest, opts ...sqoption.RequestOption) (*sq.RefundPaymentResponse, error)
}

// Client issues gateway refunds and exposes the webhook signing secret.
type Client struct {
	refunds       refundsAPI
	webhookSecret string
	currency      string
	logg          *logger.Logger
}

func NewClient(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	env := cfg.Environment()
	baseURL, ok := baseURLs[env]
	if !ok {
		return nil, fmt.Errorf("square environment must be sandbox or production, got %q", env)
	}
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return nil, errAccessTokenRequired
	}
	secret := strings.TrimSpace(cfg.WebhookSecret)
	if secret == "" {
		return nil, errWebhookSecretRequired
	}

	sdk := sqclient.NewClient(
		sqoption.WithBaseURL(baseURL),
		sqoption.WithToken(token),
	)
	logg.Info(logg.WithField(ctx, "square_env", env), "square client initialized")
	return &Client{
		refunds:       sdk.Refunds,
		webhookSecret: secret,
		currency:      cfg.Currency,
		logg:          logg,
	}, nil
}

// SigningSecret returns the webhook HMAC key.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.webhookSecret
}

// Square caps idempotency keys at 45 characters. Longer business keys are
// folded into a name-based UUID so retries of the same refund still collapse.
const maxIdempotencyKeyLen = 45

func idempotencyKey(prefix, provided string) string {
	provided = strings.TrimSpace(provided)
	switch {
	case provided == "":
		return prefix + "-" + uuid.NewString()
	case len(provided) > maxIdempotencyKeyLen:
		return uuid.NewSHA1(uuid.NameSpaceOID, []byte(provided)).String()
	default:
		return provided
	}
}

var sensitiveKeys = []string{"card", "nonce", "token", "cvv", "cvc", "secret", "email", "phone"}

func redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return "[REDACTED]"
		}
	}
	return value
}

func (c *Client) logCall(ctx context.Context, op string, fields map[string]any, err error) {
	if c.logg == nil {
		return
	}
	safe := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		safe[k] = redact(k, v)
	}
	safe["operation"] = op
	ctx = c.logg.WithFields(ctx, safe)
	if err != nil {
		c.logg.Error(ctx, "square call failed", err)
		return
	}
	c.logg.Info(ctx, "square call succeeded")
}
