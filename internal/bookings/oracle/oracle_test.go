package oracle

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	apperrors "roomres/pkg/errors"
	"roomres/pkg/logger"
	"roomres/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logger.Logger {
	return logger.New(logger.Config{Level: logger.ERROR, Output: io.Discard})
}

func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/users/alice", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":{"username":"alice","role":"admin","is_active":true}}`)
	})
	mux.HandleFunc("/api/v1/users/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"boom"}`, http.StatusInternalServerError)
	})
	mux.HandleFunc("/api/v1/rooms/7/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":{"room_id":7,"is_available":false}}`)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"code":"NOT_FOUND","message":"not found"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPIdentityOracle(t *testing.T) {
	srv := newUpstream(t)
	o := NewHTTPIdentityOracle(srv.URL, time.Second, BreakerConfig{}, quietLogger())
	ctx := context.Background()

	facts, err := o.ResolveUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, facts.Role)
	assert.True(t, facts.IsActive)

	_, err = o.ResolveUser(ctx, "ghost")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUserNotFound), "got %v", err)

	_, err = o.ResolveUser(ctx, "broken")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnavailable), "got %v", err)
}

func TestHTTPRoomOracle(t *testing.T) {
	srv := newUpstream(t)
	o := NewHTTPRoomOracle(srv.URL, time.Second, BreakerConfig{}, quietLogger())
	ctx := context.Background()

	facts, err := o.ResolveRoom(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), facts.ID)
	assert.False(t, facts.IsAvailable)

	_, err = o.ResolveRoom(ctx, 99)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeRoomNotFound), "got %v", err)
}

func TestHTTPOracle_UpstreamDown(t *testing.T) {
	srv := newUpstream(t)
	url := srv.URL
	srv.Close()

	_, err := NewHTTPRoomOracle(url, 200*time.Millisecond, BreakerConfig{}, quietLogger()).ResolveRoom(context.Background(), 7)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnavailable), "got %v", err)
}

func countingUpstream(t *testing.T, status *atomic.Int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if code := int(status.Load()); code != http.StatusOK {
			w.WriteHeader(code)
			_, _ = io.WriteString(w, `{"message":"upstream says no"}`)
			return
		}
		_, _ = io.WriteString(w, `{"data":{"username":"alice","role":"regular_user","is_active":true,"room_id":7,"is_available":true}}`)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestHTTPIdentityOracle_BreakerFailsFast(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusInternalServerError)
	srv, hits := countingUpstream(t, &status)

	o := NewHTTPIdentityOracle(srv.URL, time.Second, BreakerConfig{Failures: 3, Timeout: time.Minute}, quietLogger())
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		_, err := o.ResolveUser(ctx, "alice")
		assert.True(t, apperrors.HasCode(err, apperrors.CodeUnavailable), "call %d: got %v", i, err)
	}
	assert.EqualValues(t, 3, hits.Load(), "calls after the breaker opened must not reach the upstream")
}

func TestHTTPRoomOracle_BreakerRecovers(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusBadGateway)
	srv, hits := countingUpstream(t, &status)

	o := NewHTTPRoomOracle(srv.URL, time.Second, BreakerConfig{Failures: 2, Timeout: 50 * time.Millisecond}, quietLogger())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := o.ResolveRoom(ctx, 7)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeUnavailable), "got %v", err)
	}
	require.EqualValues(t, 2, hits.Load())

	status.Store(http.StatusOK)
	time.Sleep(100 * time.Millisecond)

	facts, err := o.ResolveRoom(ctx, 7)
	require.NoError(t, err)
	assert.True(t, facts.IsAvailable)
	assert.EqualValues(t, 3, hits.Load())
}

func TestHTTPOracle_NotFoundKeepsBreakerClosed(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusNotFound)
	srv, hits := countingUpstream(t, &status)

	o := NewHTTPIdentityOracle(srv.URL, time.Second, BreakerConfig{Failures: 2, Timeout: time.Minute}, quietLogger())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := o.ResolveUser(ctx, "ghost")
		assert.True(t, apperrors.HasCode(err, apperrors.CodeUserNotFound), "got %v", err)
	}
	assert.EqualValues(t, 5, hits.Load())
}

func TestStatic(t *testing.T) {
	s := NewStatic().
		WithUser("alice", model.RoleRegular, true).
		WithRoom(1, true)
	ctx := context.Background()

	facts, err := s.ResolveUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.RoleRegular, facts.Role)

	_, err = s.ResolveUser(ctx, "bob")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUserNotFound))

	_, err = s.ResolveRoom(ctx, 2)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeRoomNotFound))

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = s.ResolveRoom(canceled, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
