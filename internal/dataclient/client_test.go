package dataclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/timebot/core/httpclient"
	"github.com/m3rciful/timebot/internal/models"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Options{
		BaseURL:    srv.URL,
		HTTPClient: httpclient.New(httpclient.Options{Backoff: time.Millisecond, RetryStatus: true}),
	})
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestGetUserByTelegramID(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/users/by-telegram/555":
			writeJSON(w, http.StatusOK, models.User{ID: 7, TelegramID: 555, Timezone: "Europe/Moscow"})
		default:
			writeJSON(w, http.StatusNotFound, models.ErrorBody{Error: "user not found", Code: "not_found"})
		}
	}))

	u, err := c.GetUserByTelegramID(context.Background(), 555)
	require.NoError(t, err)
	assert.Equal(t, int64(7), u.ID)
	assert.Equal(t, "Europe/Moscow", u.Timezone)

	_, err = c.GetUserByTelegramID(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotFound)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "user not found", apiErr.Message)
	assert.Equal(t, "not_found", apiErr.ErrorCode())
	assert.False(t, apiErr.Retryable())
}

func TestCreateActivitySendsPayload(t *testing.T) {
	start := time.Date(2025, 1, 15, 11, 30, 0, 0, time.UTC)
	end := time.Date(2025, 1, 15, 20, 0, 0, 0, time.UTC)
	cat := int64(1)

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/activities", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var got models.NewActivity
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, int64(3), got.UserID)
		assert.Equal(t, &cat, got.CategoryID)
		assert.Equal(t, []string{"проект"}, got.Tags)
		assert.True(t, start.Equal(got.StartTime))
		assert.Equal(t, "tg-1-1-1", got.ClientRef)

		writeJSON(w, http.StatusCreated, models.Activity{ID: 11, DurationMinutes: 510})
	}))

	act, err := c.CreateActivity(context.Background(), models.NewActivity{
		UserID:      3,
		CategoryID:  &cat,
		Description: "Работал над отчётом",
		Tags:        []string{"проект"},
		StartTime:   start,
		EndTime:     end,
		ClientRef:   "tg-1-1-1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(11), act.ID)
	assert.Equal(t, 510, act.DurationMinutes)
}

func TestRejectionIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusBadRequest, models.ErrorBody{Error: "end_time must be after start_time", Code: "end_before_start"})
	}))

	_, err := c.CreateActivity(context.Background(), models.NewActivity{UserID: 1})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.False(t, apiErr.Retryable())
	assert.Equal(t, int32(1), calls.Load())
}

func TestTransientStatusIsRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, []models.Category{{ID: 1, Name: "Работа"}})
	}))

	cats, err := c.ListCategories(context.Background(), 3)
	require.NoError(t, err)
	assert.Len(t, cats, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestServerErrorIsRetryable(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := c.ListActivities(context.Background(), 3, 5)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.Retryable())
	assert.Equal(t, "http_500", apiErr.ErrorCode())
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestListActivitiesPassesLimit(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/users/3/activities", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		writeJSON(w, http.StatusOK, []models.Activity{{ID: 2}, {ID: 1}})
	}))

	acts, err := c.ListActivities(context.Background(), 3, 5)
	require.NoError(t, err)
	assert.Len(t, acts, 2)
}

func TestNetworkErrorIsWrapped(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c, err := New(Options{
		BaseURL:    srv.URL,
		HTTPClient: httpclient.New(httpclient.Options{RetryAttempts: -1}),
	})
	require.NoError(t, err)

	_, err = c.ListCategories(context.Background(), 1)
	require.Error(t, err)
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}
