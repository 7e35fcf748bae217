package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"roomres/pkg/client"
	apperrors "roomres/pkg/errors"
	"roomres/pkg/logger"
	"roomres/pkg/model"

	"github.com/sony/gobreaker"
)

// IdentityOracle reports the current facts about a user.
type IdentityOracle interface {
	ResolveUser(ctx context.Context, username string) (*model.UserFacts, error)
}

// RoomOracle reports whether a room exists and accepts bookings.
type RoomOracle interface {
	ResolveRoom(ctx context.Context, roomID int64) (*model.RoomFacts, error)
}

type userFetcher interface {
	GetUser(ctx context.Context, username string) (*model.UserFacts, error)
}

type roomFetcher interface {
	GetRoomStatus(ctx context.Context, roomID int64) (*model.RoomFacts, error)
}

type httpIdentityOracle struct {
	users   userFetcher
	breaker *gobreaker.CircuitBreaker
	log     *logger.Logger
}

func NewHTTPIdentityOracle(baseURL string, timeout time.Duration, breaker BreakerConfig, log *logger.Logger) IdentityOracle {
	return &httpIdentityOracle{
		users:   client.NewUsersClient(baseURL, timeout),
		breaker: newBreaker("users-service", breaker, log),
		log:     log,
	}
}

func (o *httpIdentityOracle) ResolveUser(ctx context.Context, username string) (*model.UserFacts, error) {
	result, err := o.breaker.Execute(func() (interface{}, error) {
		return o.users.GetUser(ctx, username)
	})
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			return nil, apperrors.UserNotFound(username)
		}
		if breakerOpen(err) {
			o.log.Warn("identity oracle short-circuited", "username", username, "breaker", o.breaker.State().String())
		} else {
			o.log.Error("identity oracle call failed", "username", username, "error", err)
		}
		return nil, apperrors.Unavailable("Users service", err)
	}

	facts := result.(*model.UserFacts)
	if facts.Username == "" {
		facts.Username = username
	}
	return facts, nil
}

type httpRoomOracle struct {
	rooms   roomFetcher
	breaker *gobreaker.CircuitBreaker
	log     *logger.Logger
}

func NewHTTPRoomOracle(baseURL string, timeout time.Duration, breaker BreakerConfig, log *logger.Logger) RoomOracle {
	return &httpRoomOracle{
		rooms:   client.NewRoomsClient(baseURL, timeout),
		breaker: newBreaker("rooms-service", breaker, log),
		log:     log,
	}
}

func (o *httpRoomOracle) ResolveRoom(ctx context.Context, roomID int64) (*model.RoomFacts, error) {
	result, err := o.breaker.Execute(func() (interface{}, error) {
		return o.rooms.GetRoomStatus(ctx, roomID)
	})
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			return nil, apperrors.RoomNotFound(roomID)
		}
		if breakerOpen(err) {
			o.log.Warn("room oracle short-circuited", "room_id", roomID, "breaker", o.breaker.State().String())
		} else {
			o.log.Error("room oracle call failed", "room_id", roomID, "error", err)
		}
		return nil, apperrors.Unavailable("Rooms service", err)
	}
	return result.(*model.RoomFacts), nil
}

// Static answers from fixed maps. Unknown users and rooms are reported as
// not found.
type Static struct {
	Users map[string]model.UserFacts
	Rooms map[int64]model.RoomFacts
}

func NewStatic() *Static {
	return &Static{
		Users: make(map[string]model.UserFacts),
		Rooms: make(map[int64]model.RoomFacts),
	}
}

func (s *Static) WithUser(username string, role model.Role, active bool) *Static {
	s.Users[username] = model.UserFacts{Username: username, Role: role, IsActive: active}
	return s
}

func (s *Static) WithRoom(roomID int64, available bool) *Static {
	s.Rooms[roomID] = model.RoomFacts{ID: roomID, IsAvailable: available}
	return s
}

func (s *Static) ResolveUser(ctx context.Context, username string) (*model.UserFacts, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("resolve user %s: %w", username, err)
	}
	facts, ok := s.Users[username]
	if !ok {
		return nil, apperrors.UserNotFound(username)
	}
	return &facts, nil
}

func (s *Static) ResolveRoom(ctx context.Context, roomID int64) (*model.RoomFacts, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("resolve room %d: %w", roomID, err)
	}
	facts, ok := s.Rooms[roomID]
	if !ok {
		return nil, apperrors.RoomNotFound(roomID)
	}
	return &facts, nil
}
