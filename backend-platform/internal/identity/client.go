// Package identity talks to the external identity service: access token
// lookups for authentication and admin user management for provisioning.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/prohmpiriya/gym-platform/pkg/logger"
	"go.uber.org/zap"
)

var ErrMissingBaseURL = errors.New("identity: missing base url")

// User is an identity-service account
type User struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_confirmed"`
}

// HTTPError is a non-2xx answer from the identity service
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("identity: http %d: %s", e.StatusCode, msg)
}

// Config configures the client
type Config struct {
	BaseURL string
	// ServiceKey authorizes admin calls. It is sent as a bearer token and
	// as the apikey header.
	ServiceKey string
	Timeout    time.Duration
	RetryCount int
}

// Client is the identity-service client
type Client struct {
	http *resty.Client
	key  string
	log  *logger.Logger
}

type errorBody struct {
	Message string `json:"msg"`
	Error   string `json:"error"`
}

// New creates a client. Lookups are retried on transport errors and 5xx;
// mutations are never retried.
func New(cfg Config, log *logger.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, ErrMissingBaseURL
	}
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("identity: invalid base url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	}
	if log == nil {
		log = logger.Nop()
	}

	hc := resty.New().
		SetBaseURL(base).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if r == nil || r.Request == nil || r.Request.Method != http.MethodGet {
				return false
			}
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		}).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")

	return &Client{http: hc, key: cfg.ServiceKey, log: log.Named("identity")}, nil
}

func (c *Client) admin(ctx context.Context) *resty.Request {
	return c.http.R().
		SetContext(ctx).
		SetAuthToken(c.key).
		SetHeader("apikey", c.key).
		ForceContentType("application/json").
		SetError(&errorBody{})
}

// LookupToken resolves an access token to its subject
func (c *Client) LookupToken(ctx context.Context, token string) (string, error) {
	var out User
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("apikey", c.key).
		ForceContentType("application/json").
		SetResult(&out).
		SetError(&errorBody{}).
		Get("/auth/v1/user")
	if err := check(resp, err); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", errors.New("identity: token lookup returned no subject")
	}
	return out.ID, nil
}

// FindUserByEmail returns nil, nil when no account uses email
func (c *Client) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	var out struct {
		Users []User `json:"users"`
	}
	resp, err := c.admin(ctx).
		SetQueryParam("email", strings.ToLower(strings.TrimSpace(email))).
		SetResult(&out).
		Get("/auth/v1/admin/users")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	for i := range out.Users {
		if strings.EqualFold(out.Users[i].Email, email) {
			return &out.Users[i], nil
		}
	}
	return nil, nil
}

// CreateUser creates an account whose email is already verified
func (c *Client) CreateUser(ctx context.Context, email, password string) (*User, error) {
	var out User
	resp, err := c.admin(ctx).
		SetBody(map[string]any{
			"email":         strings.ToLower(strings.TrimSpace(email)),
			"password":      password,
			"email_confirm": true,
		}).
		SetResult(&out).
		Post("/auth/v1/admin/users")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, errors.New("identity: create user returned no id")
	}
	c.log.InfoContext(ctx, "identity user created", zap.String("user_id", out.ID))
	return &out, nil
}

// DeleteUser removes an account. A missing account is not an error.
func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	resp, err := c.admin(ctx).
		SetPathParam("id", userID).
		Delete("/auth/v1/admin/users/{id}")
	if resp != nil && resp.StatusCode() == http.StatusNotFound {
		return nil
	}
	if err := check(resp, err); err != nil {
		return err
	}
	c.log.InfoContext(ctx, "identity user deleted", zap.String("user_id", userID))
	return nil
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("identity: %w", err)
	}
	if !resp.IsError() {
		return nil
	}
	msg := strings.TrimSpace(resp.String())
	if body, ok := resp.Error().(*errorBody); ok && body != nil {
		if body.Message != "" {
			msg = body.Message
		} else if body.Error != "" {
			msg = body.Error
		}
	}
	return &HTTPError{StatusCode: resp.StatusCode(), Message: msg}
}
