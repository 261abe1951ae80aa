package core_test

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coachkit/creditledger/core"
)

func render(t *testing.T, resp core.Response) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	require.NoError(t, resp.Render(rec, httptest.NewRequest(http.MethodGet, "/", nil)))
	return rec
}

func TestJSONResponses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		resp   core.Response
		status int
		body   string
	}{
		{
			name:   "ok",
			resp:   core.OK(map[string]int{"balance": 250}),
			status: http.StatusOK,
			body:   `{"data":{"balance":250}}`,
		},
		{
			name:   "created",
			resp:   core.Created(map[string]string{"id": "acc_1"}),
			status: http.StatusCreated,
			body:   `{"data":{"id":"acc_1"}}`,
		},
		{
			name:   "status with meta",
			resp:   core.Status(http.StatusAccepted, nil, map[string]any{"request_id": "r1"}),
			status: http.StatusAccepted,
			body:   `{"meta":{"request_id":"r1"}}`,
		},
		{
			name:   "raw",
			resp:   core.Raw(http.StatusOK, map[string]bool{"received": true}),
			status: http.StatusOK,
			body:   `{"received":true}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := render(t, tt.resp)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
			assert.JSONEq(t, tt.body, rec.Body.String())
		})
	}
}

func TestJSONError(t *testing.T) {
	t.Parallel()

	t.Run("http error with details", func(t *testing.T) {
		t.Parallel()
		err := core.ErrPaymentRequired.
			WithMessage("insufficient credits").
			WithDetails(map[string]any{"balance": 50, "required": 100})

		rec := render(t, core.JSONError(fmt.Errorf("deduct: %w", err)))
		assert.Equal(t, http.StatusPaymentRequired, rec.Code)
		assert.JSONEq(t, `{"error":{"code":"payment_required","message":"insufficient credits","details":{"balance":50,"required":100}}}`, rec.Body.String())
	})

	t.Run("plain error is hidden", func(t *testing.T) {
		t.Parallel()
		rec := render(t, core.JSONError(errors.New("pg: connection refused")))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.JSONEq(t, `{"error":{"code":"internal_server_error","message":"Internal Server Error"}}`, rec.Body.String())
	})
}

func TestWrap(t *testing.T) {
	t.Parallel()

	t.Run("renders response", func(t *testing.T) {
		t.Parallel()
		h := core.Wrap(func(*http.Request) core.Response { return core.OK("hi") }, nil)
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"data":"hi"}`, rec.Body.String())
	})

	t.Run("nil response", func(t *testing.T) {
		t.Parallel()
		h := core.Wrap(func(*http.Request) core.Response { return nil }, nil)
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
