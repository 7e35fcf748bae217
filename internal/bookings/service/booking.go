package service

import (
	"context"
	"errors"
	"sync"

	"roomres/internal/bookings/conflict"
	bookingserrors "roomres/internal/bookings/errors"
	"roomres/internal/bookings/events"
	"roomres/internal/bookings/oracle"
	"roomres/internal/bookings/repository"
	"roomres/pkg/auth"
	"roomres/pkg/config"
	apperrors "roomres/pkg/errors"
	"roomres/pkg/model"
)

type BookingService interface {
	Create(ctx context.Context, caller *model.Caller, booking *model.Booking) (*model.Booking, error)
	Update(ctx context.Context, caller *model.Caller, id string, update *model.BookingUpdate) (*model.Booking, error)
	Delete(ctx context.Context, caller *model.Caller, id string) error
	GetByID(ctx context.Context, caller *model.Caller, id string) (*model.Booking, error)
	ListForUser(ctx context.Context, caller *model.Caller, username string) ([]*model.Booking, error)
	GetAll(ctx context.Context, caller *model.Caller, limit int, offset int64) ([]*model.Booking, int64, error)
	CheckAvailability(ctx context.Context, query *model.AvailabilityQuery) (bool, error)
}

const conflictMessage = "Room already booked for this time"

type createState struct {
	caller  *model.Caller
	booking *model.Booking
}

type updateState struct {
	caller   *model.Caller
	id       string
	update   *model.BookingUpdate
	existing *model.Booking
	merged   *model.Booking
}

type bookingState struct {
	caller   *model.Caller
	id       string
	existing *model.Booking
}

type bookingService struct {
	repo      repository.BookingRepository
	conflicts *conflict.Engine
	users     oracle.IdentityOracle
	rooms     oracle.RoomOracle
	events    events.Publisher
	cfg       *config.Config

	createFlow *pipeline[createState]
	updateFlow *pipeline[updateState]
	getFlow    *pipeline[bookingState]
	deleteFlow *pipeline[bookingState]
}

func NewBookingService(
	repo repository.BookingRepository,
	users oracle.IdentityOracle,
	rooms oracle.RoomOracle,
	publisher events.Publisher,
	cfg *config.Config,
) BookingService {
	if publisher == nil {
		publisher = events.Noop{}
	}
	s := &bookingService{
		repo:      repo,
		conflicts: conflict.NewEngine(repo),
		users:     users,
		rooms:     rooms,
		events:    publisher,
		cfg:       cfg,
	}

	s.createFlow = newPipeline("create",
		newStep("caller", func(ctx context.Context, st *createState) error {
			if err := requireCaller(st.caller); err != nil {
				return err
			}
			if st.booking.Username == "" {
				st.booking.Username = st.caller.Username
			}
			return nil
		}),
		newStep("user", func(ctx context.Context, st *createState) error {
			if err := s.resolveActiveUser(ctx, st.booking.Username); err != nil {
				return err
			}
			return auth.Authorize(st.caller, st.booking.Username, model.RoleRegular)
		}),
		newStep("room", func(ctx context.Context, st *createState) error {
			return s.resolveBookableRoom(ctx, st.booking.RoomID)
		}),
		newStep("time range", func(ctx context.Context, st *createState) error {
			return validateTimeRange(st.booking.Interval())
		}),
		newStep("check and commit", func(ctx context.Context, st *createState) error {
			return s.checkAndCommit(ctx, st.booking, "", func(ctx context.Context) error {
				return s.repo.Create(ctx, st.booking)
			})
		}),
	)

	s.updateFlow = newPipeline("update",
		newStep("caller", func(ctx context.Context, st *updateState) error {
			return requireCaller(st.caller)
		}),
		newStep("load", func(ctx context.Context, st *updateState) (err error) {
			st.existing, err = s.load(ctx, st.id)
			return err
		}),
		newStep("authorize", func(ctx context.Context, st *updateState) error {
			return auth.Authorize(st.caller, st.existing.Username, model.RoleRegular)
		}),
		newStep("merge", func(ctx context.Context, st *updateState) error {
			st.merged = st.update.Apply(st.existing)
			return nil
		}),
		newStep("time range", func(ctx context.Context, st *updateState) error {
			return validateTimeRange(st.merged.Interval())
		}),
		newStep("check and commit", func(ctx context.Context, st *updateState) error {
			return s.checkAndCommit(ctx, st.merged, st.existing.ID, func(ctx context.Context) error {
				return s.repo.Update(ctx, st.merged)
			})
		}),
	)

	readSteps := []step[bookingState]{
		newStep("caller", func(ctx context.Context, st *bookingState) error {
			return requireCaller(st.caller)
		}),
		newStep("load", func(ctx context.Context, st *bookingState) (err error) {
			st.existing, err = s.load(ctx, st.id)
			return err
		}),
		newStep("authorize", func(ctx context.Context, st *bookingState) error {
			return auth.Authorize(st.caller, st.existing.Username, model.RoleRegular)
		}),
	}
	s.getFlow = newPipeline("get", readSteps...)
	s.deleteFlow = newPipeline("delete", append(readSteps[:len(readSteps):len(readSteps)],
		newStep("delete", func(ctx context.Context, st *bookingState) error {
			if err := s.repo.Delete(ctx, st.existing.ID); err != nil {
				return s.storeError(err, st.existing, "Failed to delete booking")
			}
			return nil
		}),
	)...)

	return s
}

func (s *bookingService) Create(ctx context.Context, caller *model.Caller, booking *model.Booking) (*model.Booking, error) {
	st := &createState{caller: caller, booking: booking}
	if stepName, err := s.createFlow.Run(ctx, st); err != nil {
		s.logFailure("create", stepName, err, "username", booking.Username, "room_id", booking.RoomID, "date", booking.Date)
		return nil, s.contextError(err)
	}

	s.cfg.Log.Info("Booking created successfully",
		"id", booking.ID,
		"username", booking.Username,
		"room_id", booking.RoomID,
		"date", booking.Date,
		"interval", booking.Interval().String(),
	)
	s.publish(ctx, events.NewEvent(events.BookingCreated, caller.Username, booking))
	return booking, nil
}

func (s *bookingService) Update(ctx context.Context, caller *model.Caller, id string, update *model.BookingUpdate) (*model.Booking, error) {
	st := &updateState{caller: caller, id: id, update: update}
	if stepName, err := s.updateFlow.Run(ctx, st); err != nil {
		s.logFailure("update", stepName, err, "id", id)
		return nil, s.contextError(err)
	}

	s.cfg.Log.Info("Booking updated successfully",
		"id", id,
		"room_id", st.merged.RoomID,
		"date", st.merged.Date,
		"interval", st.merged.Interval().String(),
	)
	event := events.NewEvent(events.BookingUpdated, caller.Username, st.merged)
	event.Previous = st.existing
	s.publish(ctx, event)
	return st.merged, nil
}

func (s *bookingService) Delete(ctx context.Context, caller *model.Caller, id string) error {
	st := &bookingState{caller: caller, id: id}
	if stepName, err := s.deleteFlow.Run(ctx, st); err != nil {
		s.logFailure("delete", stepName, err, "id", id)
		return s.contextError(err)
	}

	s.cfg.Log.Info("Booking deleted successfully", "id", id)
	s.publish(ctx, events.NewEvent(events.BookingDeleted, caller.Username, st.existing))
	return nil
}

func (s *bookingService) GetByID(ctx context.Context, caller *model.Caller, id string) (*model.Booking, error) {
	st := &bookingState{caller: caller, id: id}
	if stepName, err := s.getFlow.Run(ctx, st); err != nil {
		s.logFailure("get", stepName, err, "id", id)
		return nil, s.contextError(err)
	}
	return st.existing, nil
}

func (s *bookingService) ListForUser(ctx context.Context, caller *model.Caller, username string) ([]*model.Booking, error) {
	if username == "" {
		return nil, apperrors.InvalidInput("Username cannot be empty")
	}
	if err := auth.Authorize(caller, username, model.RoleRegular); err != nil {
		s.logFailure("list for user", "authorize", err, "username", username)
		return nil, err
	}

	bookings, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		s.cfg.Log.Error("Failed to list bookings for user", "username", username, "error", err)
		return nil, s.contextError(apperrors.Internal("Failed to retrieve bookings", err))
	}
	return bookings, nil
}

func (s *bookingService) GetAll(ctx context.Context, caller *model.Caller, limit int, offset int64) ([]*model.Booking, int64, error) {
	if err := auth.Authorize(caller, "", model.RoleAdmin); err != nil {
		s.logFailure("list all", "authorize", err)
		return nil, 0, err
	}

	var count int64
	var bookings []*model.Booking
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.repo.Count(ctx)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count bookings", "error", errCount)
			errCount = apperrors.Internal("Failed to count bookings", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		bookings, errFind = s.repo.FindAll(ctx, limit, offset)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list bookings", "error", errFind)
			errFind = apperrors.Internal("Failed to retrieve bookings", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, s.contextError(errCount)
	}
	if errFind != nil {
		return nil, 0, s.contextError(errFind)
	}

	return bookings, count, nil
}

// CheckAvailability reports whether the interval is free. It uses the same
// predicate as create and update, without any side effect.
func (s *bookingService) CheckAvailability(ctx context.Context, query *model.AvailabilityQuery) (bool, error) {
	if err := validateTimeRange(query.Interval()); err != nil {
		return false, err
	}

	taken, err := s.conflicts.HasConflict(ctx, conflict.Query{
		RoomID:   query.RoomID,
		Date:     query.Date,
		Interval: query.Interval(),
	})
	if err != nil {
		s.cfg.Log.Error("Failed to check availability", "room_id", query.RoomID, "date", query.Date, "error", err)
		return false, s.contextError(apperrors.Internal("Failed to check availability", err))
	}
	return !taken, nil
}

// --- Helpers ---

func requireCaller(caller *model.Caller) error {
	if caller == nil || caller.Username == "" {
		return apperrors.Unauthorized("Authentication required")
	}
	return nil
}

func validateTimeRange(iv model.Interval) error {
	if !iv.Valid() {
		return apperrors.InvalidTimeRange(iv.Start, iv.End)
	}
	return nil
}

// resolveActiveUser treats a deactivated user as absent.
func (s *bookingService) resolveActiveUser(ctx context.Context, username string) error {
	facts, err := s.users.ResolveUser(ctx, username)
	if err != nil {
		return s.oracleError(err, "Failed to resolve user")
	}
	if !facts.IsActive {
		return apperrors.UserNotFound(username)
	}
	return nil
}

func (s *bookingService) resolveBookableRoom(ctx context.Context, roomID int64) error {
	facts, err := s.rooms.ResolveRoom(ctx, roomID)
	if err != nil {
		return s.oracleError(err, "Failed to resolve room")
	}
	if !facts.IsAvailable {
		return apperrors.RoomUnavailable(roomID)
	}
	return nil
}

func (s *bookingService) oracleError(err error, message string) error {
	if apperrors.IsAppError(err) {
		return err
	}
	return apperrors.Internal(message, err)
}

func (s *bookingService) load(ctx context.Context, id string) (*model.Booking, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}
	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.storeError(err, &model.Booking{ID: id}, "Failed to retrieve booking")
	}
	return booking, nil
}

// checkAndCommit scans for overlaps and writes candidate under the slot guard
// of its room and date, so no other writer can commit between the scan and
// the write.
func (s *bookingService) checkAndCommit(ctx context.Context, candidate *model.Booking, excludeID string, commit repository.SlotFunc) error {
	err := s.repo.WithSlotGuard(ctx, candidate.SlotKey(), func(ctx context.Context) error {
		hit, err := s.conflicts.FindConflict(ctx, conflict.Query{
			RoomID:    candidate.RoomID,
			Date:      candidate.Date,
			Interval:  candidate.Interval(),
			ExcludeID: excludeID,
		})
		if err != nil {
			return apperrors.Internal("Failed to check existing bookings", err)
		}
		if hit != nil {
			return apperrors.BookingConflict(conflictMessage, map[string]any{
				"room_id":    hit.RoomID,
				"date":       hit.Date,
				"start_time": hit.StartTime.String(),
				"end_time":   hit.EndTime.String(),
			})
		}
		return commit(ctx)
	})
	return s.storeError(err, candidate, "Failed to save booking")
}

// storeError translates repository sentinels into typed errors. AppErrors
// raised inside a guarded call pass through unchanged.
func (s *bookingService) storeError(err error, booking *model.Booking, message string) error {
	switch {
	case err == nil:
		return nil
	case apperrors.IsAppError(err):
		return apperrors.AsAppError(err)
	case errors.Is(err, bookingserrors.ErrNotFound), errors.Is(err, bookingserrors.ErrInvalidID):
		return apperrors.BookingNotFound(booking.ID)
	case errors.Is(err, bookingserrors.ErrTimeConflict):
		return apperrors.BookingConflict(conflictMessage, nil)
	case errors.Is(err, bookingserrors.ErrInvalidTimeRange):
		return apperrors.InvalidTimeRange(booking.StartTime, booking.EndTime)
	}
	return apperrors.Internal(message, err)
}

// contextError reports an expired request deadline as a timeout rather than
// an internal error.
func (s *bookingService) contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperrors.Timeout("Request timed out")
	}
	return err
}

func (s *bookingService) logFailure(op, stepName string, err error, args ...any) {
	args = append(args, "operation", op, "step", stepName, "error", err)
	if appErr := apperrors.AsAppError(err); appErr.StatusCode() < 500 {
		s.cfg.Log.Warn("Booking request rejected", args...)
		return
	}
	s.cfg.Log.Error("Booking request failed", args...)
}

// publish is best effort: the change is already committed when it runs.
func (s *bookingService) publish(ctx context.Context, event events.Event) {
	if err := s.events.Publish(ctx, event); err != nil {
		s.cfg.Log.Warn("Failed to publish booking event",
			"type", event.Type,
			"id", event.Booking.ID,
			"error", err,
		)
	}
}
