// Package dataclient talks to the data-access service over HTTP.
package dataclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/m3rciful/timebot/core/httpclient"
	"github.com/m3rciful/timebot/core/logger"
	"github.com/m3rciful/timebot/internal/models"
)

// ErrNotFound matches 404 responses via errors.Is.
var ErrNotFound = errors.New("dataclient: not found")

const maxErrorBody = 4 << 10

// APIError is a non-2xx response of the data-access service.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("data api: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("data api: %d %s", e.Status, e.Message)
}

// Is makes errors.Is(err, ErrNotFound) hold for 404 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// Retryable reports whether repeating the request may succeed. Business-rule
// rejections (4xx) are final; 5xx and throttling are transient.
func (e *APIError) Retryable() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

// ErrorCode exposes the machine-readable code for log summaries.
func (e *APIError) ErrorCode() string {
	if e.Code != "" {
		return e.Code
	}
	return "http_" + strconv.Itoa(e.Status)
}

// Options configure a Client.
type Options struct {
	BaseURL       string
	Timeout       time.Duration
	RetryAttempts int
	// HTTPClient overrides the retrying client built from the fields above.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client is a typed wrapper over the data-access REST API.
type Client struct {
	base string
	http *http.Client
	log  *slog.Logger
}

// New builds a Client. Every endpoint it calls is idempotent, so transient
// statuses are retried as well as network errors.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("dataclient: base url is required")
	}
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("dataclient: base url: %w", err)
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = httpclient.New(httpclient.Options{
			Timeout:       opts.Timeout,
			RetryAttempts: opts.RetryAttempts,
			Backoff:       500 * time.Millisecond,
			RetryStatus:   true,
		})
	}
	log := opts.Logger
	if log == nil {
		log = logger.Client
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{base: opts.BaseURL, http: hc, log: log}, nil
}

// GetUserByTelegramID resolves a Telegram account to a registered user.
func (c *Client) GetUserByTelegramID(ctx context.Context, telegramID int64) (models.User, error) {
	var u models.User
	err := c.do(ctx, http.MethodGet, "/api/v1/users/by-telegram/"+strconv.FormatInt(telegramID, 10), nil, &u)
	return u, err
}

// CreateUser registers a user. Registering an existing Telegram id returns
// the stored user.
func (c *Client) CreateUser(ctx context.Context, nu models.NewUser) (models.User, error) {
	var u models.User
	err := c.do(ctx, http.MethodPost, "/api/v1/users", nu, &u)
	return u, err
}

// ListCategories returns the categories of a user.
func (c *Client) ListCategories(ctx context.Context, userID int64) ([]models.Category, error) {
	var cats []models.Category
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/users/%d/categories", userID), nil, &cats)
	return cats, err
}

// CreateActivity records a completed activity.
func (c *Client) CreateActivity(ctx context.Context, na models.NewActivity) (models.Activity, error) {
	var a models.Activity
	err := c.do(ctx, http.MethodPost, "/api/v1/activities", na, &a)
	return a, err
}

// ListActivities returns up to limit recent activities, newest first.
func (c *Client) ListActivities(ctx context.Context, userID int64, limit int) ([]models.Activity, error) {
	path := fmt.Sprintf("/api/v1/users/%d/activities", userID)
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var acts []models.Activity
	err := c.do(ctx, http.MethodGet, path, nil, &acts)
	return acts, err
}

// Health checks that the service and its database are reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("dataclient: encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("dataclient: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if rid := logger.RIDFrom(ctx); rid != "" {
		req.Header.Set("X-Request-ID", rid)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	took := time.Since(start)
	if err != nil {
		c.log.LogAttrs(ctx, slog.LevelWarn, "data api call failed",
			slog.String("event", "http.call"),
			slog.String("method", method),
			slog.String("path", path),
			slog.Duration("duration", logger.RoundMS(took)),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("dataclient: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.log.LogAttrs(ctx, slog.LevelDebug, "data api call",
		slog.String("event", "http.call"),
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("http_code", resp.StatusCode),
		slog.Duration("duration", logger.RoundMS(took)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("dataclient: decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var eb models.ErrorBody
	if json.Unmarshal(data, &eb) == nil {
		apiErr.Message = eb.Error
		apiErr.Code = eb.Code
	}
	return apiErr
}
