package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"roomres/internal/bookings/oracle"
	"roomres/internal/bookings/repository"
	"roomres/internal/bookings/service"
	"roomres/internal/bookings/validator"
	"roomres/pkg/auth"
	"roomres/pkg/client"
	"roomres/pkg/config"
	apperrors "roomres/pkg/errors"
	"roomres/pkg/logger"
	"roomres/pkg/middleware"
	"roomres/pkg/model"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "handler-test-secret-0123456789"

type testServer struct {
	anon  *client.BookingClient
	alice *client.BookingClient
	bob   *client.BookingClient
	admin *client.BookingClient
}

func token(t *testing.T, username string, role model.Role) string {
	t.Helper()
	tok, err := auth.IssueToken(testSecret, username, role, time.Hour)
	require.NoError(t, err)
	return tok
}

func newTestServer(t *testing.T, store repository.BookingRepository) *testServer {
	t.Helper()
	log := logger.New(logger.Config{Level: logger.ERROR, Output: io.Discard})
	cfg := &config.Config{Log: log}

	oracles := oracle.NewStatic().
		WithUser("alice", model.RoleRegular, true).
		WithUser("bob", model.RoleRegular, true).
		WithUser("root", model.RoleAdmin, true).
		WithRoom(1, true).
		WithRoom(2, false)

	svc := service.NewBookingService(store, oracles, oracles, nil, cfg)
	router := httprouter.New()
	NewBookingHandler(svc, validator.NewBookingValidator(log), log).RegisterRoutes(router)
	NewHealthHandler(store, log).RegisterRoutes(router)

	var h http.Handler = router
	h = middleware.Authenticate(auth.NewJWTAuthenticator(testSecret, oracles), log)(h)
	h = middleware.RequestLogging(log)(h)

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	base := client.NewBookingClient(srv.URL)
	return &testServer{
		anon:  base,
		alice: base.As(token(t, "alice", model.RoleRegular)),
		bob:   base.As(token(t, "bob", model.RoleRegular)),
		admin: base.As(token(t, "root", model.RoleAdmin)),
	}
}

func createBody(username string, roomID int64, date, start, end string) map[string]any {
	return map[string]any{
		"username":   username,
		"room_id":    roomID,
		"date":       date,
		"start_time": start,
		"end_time":   end,
	}
}

func errorCode(t *testing.T, resp *client.Response) string {
	t.Helper()
	var body apperrors.ErrorResponse
	require.NoError(t, resp.DecodeJSON(&body), resp.ToString())
	return body.Code
}

func TestBookingLifecycle(t *testing.T) {
	s := newTestServer(t, repository.NewMemoryBookingRepository())
	ctx := context.Background()

	resp, err := s.alice.Create(ctx, createBody("alice", 1, "2025-12-31", "10:00", "11:00"))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode, resp.ToString())
	created, err := s.alice.DecodeBooking(resp)
	require.NoError(t, err)
	assert.Equal(t, "alice", created.Username)
	assert.Equal(t, "10:00:00", created.StartTime.String())

	resp, err = s.bob.Create(ctx, createBody("bob", 1, "2025-12-31", "10:30", "11:30"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, apperrors.CodeBookingConflict, errorCode(t, resp))

	resp, err = s.bob.Create(ctx, createBody("bob", 1, "2025-12-31", "11:00", "12:00"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode, resp.ToString())

	resp, err = s.anon.CheckAvailability(ctx, 1, "2025-12-31", "10:00", "10:30")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.ToString())
	available, err := s.anon.DecodeAvailability(resp)
	require.NoError(t, err)
	assert.False(t, available)

	resp, err = s.anon.CheckAvailability(ctx, 1, "2025-12-31", "12:00", "12:30")
	require.NoError(t, err)
	available, err = s.anon.DecodeAvailability(resp)
	require.NoError(t, err)
	assert.True(t, available)

	resp, err = s.alice.Update(ctx, created.ID, map[string]any{"start_time": "09:30"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.ToString())
	updated, err := s.alice.DecodeBooking(resp)
	require.NoError(t, err)
	assert.Equal(t, "09:30:00", updated.StartTime.String())
	assert.Equal(t, "11:00:00", updated.EndTime.String())

	resp, err = s.bob.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, err = s.alice.ListForUser(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var mine []*model.Booking
	require.NoError(t, resp.DecodeData(&mine))
	assert.Len(t, mine, 1)

	resp, err = s.alice.GetAll(ctx, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, err = s.admin.GetAll(ctx, 10, 0)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	all, meta, err := s.admin.DecodeBookings(resp)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.EqualValues(t, 2, meta.TotalCount)

	resp, err = s.bob.Delete(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, err = s.alice.Delete(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = s.alice.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, apperrors.CodeBookingNotFound, errorCode(t, resp))
}

func TestCreate_ErrorStatuses(t *testing.T) {
	s := newTestServer(t, repository.NewMemoryBookingRepository())
	ctx := context.Background()

	tests := []struct {
		name   string
		client *client.BookingClient
		body   map[string]any
		status int
		code   string
	}{
		{"anonymous", s.anon, createBody("alice", 1, "2025-12-31", "10:00", "11:00"), http.StatusUnauthorized, apperrors.CodeUnauthorized},
		{"for another user", s.alice, createBody("bob", 1, "2025-12-31", "10:00", "11:00"), http.StatusForbidden, apperrors.CodeForbidden},
		{"unknown user", s.admin, createBody("ghost", 1, "2025-12-31", "10:00", "11:00"), http.StatusNotFound, apperrors.CodeUserNotFound},
		{"unknown room", s.alice, createBody("alice", 9, "2025-12-31", "10:00", "11:00"), http.StatusNotFound, apperrors.CodeRoomNotFound},
		{"room unavailable", s.alice, createBody("alice", 2, "2025-12-31", "10:00", "11:00"), http.StatusConflict, apperrors.CodeRoomUnavailable},
		{"reversed times", s.alice, createBody("alice", 1, "2025-12-31", "12:00", "11:00"), http.StatusUnprocessableEntity, apperrors.CodeInvalidTimeRange},
		{"bad date", s.alice, createBody("alice", 1, "2025/12/31", "10:00", "11:00"), http.StatusUnprocessableEntity, apperrors.CodeValidation},
		{"bad time", s.alice, createBody("alice", 1, "2025-12-31", "10h", "11:00"), http.StatusUnprocessableEntity, apperrors.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := tt.client.Create(ctx, tt.body)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode, resp.ToString())
			assert.Equal(t, tt.code, errorCode(t, resp))
		})
	}
}

func TestCreate_MalformedBody(t *testing.T) {
	s := newTestServer(t, repository.NewMemoryBookingRepository())

	resp, err := s.alice.CreateRaw(context.Background(), []byte(`{"room_id": "one"`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, apperrors.CodeInvalidInput, errorCode(t, resp))
}

func TestCreate_InvalidToken(t *testing.T) {
	s := newTestServer(t, repository.NewMemoryBookingRepository())

	resp, err := s.anon.As("not-a-jwt").Create(context.Background(), createBody("alice", 1, "2025-12-31", "10:00", "11:00"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCheckAvailability_BadQuery(t *testing.T) {
	s := newTestServer(t, repository.NewMemoryBookingRepository())
	ctx := context.Background()

	resp, err := s.anon.CheckAvailability(ctx, 1, "2025-12-31", "11:00", "10:00")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, apperrors.CodeInvalidTimeRange, errorCode(t, resp))

	resp, err = s.anon.CheckAvailability(ctx, 1, "tomorrow", "10:00", "11:00")
	require.NoError(t, err)
	assert.Equal(t, apperrors.CodeValidation, errorCode(t, resp))
}

type failingStore struct {
	repository.BookingRepository
}

func (failingStore) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealth(t *testing.T) {
	healthy := newTestServer(t, repository.NewMemoryBookingRepository())
	require.NoError(t, healthy.anon.WaitForHealthy(context.Background(), time.Second))

	log := logger.New(logger.Config{Output: io.Discard})
	router := httprouter.New()
	NewHealthHandler(failingStore{}, log).RegisterRoutes(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
