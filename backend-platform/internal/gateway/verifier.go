package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// VerifierConfig configures the order-based verifier
type VerifierConfig struct {
	BaseURL string
	Timeout time.Duration
}

// OrderVerifier proves a key pair by creating a minimal throwaway order.
// The order is never paid and expires on the gateway side.
type OrderVerifier struct {
	http *resty.Client
	now  func() time.Time
}

// NewOrderVerifier creates a verifier
func NewOrderVerifier(cfg VerifierConfig) *OrderVerifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &OrderVerifier{
		http: resty.New().
			SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
			SetTimeout(cfg.Timeout).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json"),
		now: time.Now,
	}
}

type orderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type orderResponse struct {
	ID string `json:"id"`
}

// Verify creates a one-rupee order with the pair as basic auth
func (v *OrderVerifier) Verify(ctx context.Context, keyID, keySecret string) error {
	var out orderResponse
	resp, err := v.http.R().
		SetContext(ctx).
		SetBasicAuth(keyID, keySecret).
		ForceContentType("application/json").
		SetBody(orderRequest{
			Amount:   100,
			Currency: "INR",
			Receipt:  fmt.Sprintf("verify_%d", v.now().UnixMilli()),
		}).
		SetResult(&out).
		Post("/v1/orders")
	if err != nil {
		return fmt.Errorf("verification request: %w", err)
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrCredentialsRejected
	case resp.IsError():
		return fmt.Errorf("%w: gateway returned status %d", ErrCredentialsRejected, code)
	case out.ID == "":
		return fmt.Errorf("%w: gateway returned no order id", ErrCredentialsRejected)
	}
	return nil
}

func (v *OrderVerifier) Name() string { return "razorpay" }
