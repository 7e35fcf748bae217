package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"testing"

	"roomres/internal/bookings/events"
	"roomres/internal/bookings/oracle"
	"roomres/internal/bookings/repository"
	"roomres/pkg/config"
	apperrors "roomres/pkg/errors"
	"roomres/pkg/logger"
	"roomres/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ────────────────────────────────────────────────
// Fixtures
// ────────────────────────────────────────────────

var (
	alice = &model.Caller{Username: "alice", Role: model.RoleRegular}
	bob   = &model.Caller{Username: "bob", Role: model.RoleRegular}
	admin = &model.Caller{Username: "root", Role: model.RoleAdmin}
)

const day = model.Date("2025-12-31")

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	svc       BookingService
	repo      repository.BookingRepository
	oracles   *oracle.Static
	publisher *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := &config.Config{Log: logger.New(logger.Config{Level: logger.ERROR, Output: io.Discard})}
	repo := repository.NewMemoryBookingRepository()
	oracles := oracle.NewStatic().
		WithUser("alice", model.RoleRegular, true).
		WithUser("bob", model.RoleRegular, true).
		WithUser("root", model.RoleAdmin, true).
		WithUser("carol", model.RoleRegular, false).
		WithRoom(1, true).
		WithRoom(2, true).
		WithRoom(3, false)
	publisher := &recordingPublisher{}
	return &fixture{
		svc:       NewBookingService(repo, oracles, oracles, publisher, cfg),
		repo:      repo,
		oracles:   oracles,
		publisher: publisher,
	}
}

func newBooking(username string, roomID int64, start, end string) *model.Booking {
	return &model.Booking{
		Username:  username,
		RoomID:    roomID,
		Date:      day,
		StartTime: model.MustTime(start),
		EndTime:   model.MustTime(end),
	}
}

func (f *fixture) mustCreate(t *testing.T, caller *model.Caller, b *model.Booking) *model.Booking {
	t.Helper()
	created, err := f.svc.Create(context.Background(), caller, b)
	require.NoError(t, err)
	return created
}

func (f *fixture) count(t *testing.T) int64 {
	t.Helper()
	n, err := f.repo.Count(context.Background())
	require.NoError(t, err)
	return n
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, code), "expected %s, got %v", code, err)
}

// ────────────────────────────────────────────────
// Scenarios
// ────────────────────────────────────────────────

func TestCreate_OverlapIsRejected(t *testing.T) {
	f := newFixture(t)
	f.mustCreate(t, alice, newBooking("alice", 1, "10:00", "11:00"))

	_, err := f.svc.Create(context.Background(), bob, newBooking("bob", 1, "10:30", "11:30"))
	assertCode(t, err, apperrors.CodeBookingConflict)
	assert.EqualValues(t, 1, f.count(t))
}

func TestCreate_TouchingBoundarySucceeds(t *testing.T) {
	f := newFixture(t)
	f.mustCreate(t, alice, newBooking("alice", 1, "10:00", "11:00"))

	created, err := f.svc.Create(context.Background(), bob, newBooking("bob", 1, "11:00", "12:00"))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.EqualValues(t, 2, f.count(t))
}

func TestCreate_BookingMayEndAtMidnight(t *testing.T) {
	f := newFixture(t)
	created := f.mustCreate(t, alice, newBooking("alice", 1, "23:00", "24:00"))
	assert.Equal(t, model.EndOfDay, created.EndTime)

	_, err := f.svc.Create(context.Background(), bob, newBooking("bob", 1, "23:30", "24:00"))
	assertCode(t, err, apperrors.CodeBookingConflict)

	_, err = f.svc.Create(context.Background(), bob, newBooking("bob", 1, "24:00", "24:00"))
	assertCode(t, err, apperrors.CodeInvalidTimeRange)
}

func TestCreate_InvalidTimeRangeCreatesNothing(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), alice, newBooking("alice", 1, "12:00", "11:00"))
	assertCode(t, err, apperrors.CodeInvalidTimeRange)

	_, err = f.svc.Create(context.Background(), alice, newBooking("alice", 1, "11:00", "11:00"))
	assertCode(t, err, apperrors.CodeInvalidTimeRange)

	assert.EqualValues(t, 0, f.count(t))
	assert.Empty(t, f.publisher.types())
}

func TestCreate_RegularUserCannotBookForOthers(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), alice, newBooking("bob", 1, "10:00", "11:00"))
	assertCode(t, err, apperrors.CodeForbidden)
	assert.EqualValues(t, 0, f.count(t))
}

func TestCheckAvailability(t *testing.T) {
	f := newFixture(t)
	f.mustCreate(t, alice, newBooking("alice", 1, "10:00", "11:00"))

	query := func(start, end string) *model.AvailabilityQuery {
		return &model.AvailabilityQuery{RoomID: 1, Date: day, StartTime: model.MustTime(start), EndTime: model.MustTime(end)}
	}

	free, err := f.svc.CheckAvailability(context.Background(), query("10:00", "10:30"))
	require.NoError(t, err)
	assert.False(t, free)

	free, err = f.svc.CheckAvailability(context.Background(), query("11:00", "11:30"))
	require.NoError(t, err)
	assert.True(t, free)

	_, err = f.svc.CheckAvailability(context.Background(), query("11:30", "11:00"))
	assertCode(t, err, apperrors.CodeInvalidTimeRange)
}

func TestCreate_ConcurrentOverlappingRequests(t *testing.T) {
	f := newFixture(t)

	const attempts = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			caller := alice
			if i%2 == 1 {
				caller = bob
			}
			_, err := f.svc.Create(context.Background(), caller, newBooking(caller.Username, 1, "10:00", "11:00"))

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case apperrors.HasCode(err, apperrors.CodeBookingConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes, "exactly one concurrent create may succeed")
	assert.Equal(t, attempts-1, conflicts)
	assert.EqualValues(t, 1, f.count(t))
}

// ────────────────────────────────────────────────
// Create pipeline ordering
// ────────────────────────────────────────────────

func TestCreate_PipelineOrder(t *testing.T) {
	tests := []struct {
		name    string
		caller  *model.Caller
		booking *model.Booking
		code    string
	}{
		{"no caller", nil, newBooking("alice", 1, "10:00", "11:00"), apperrors.CodeUnauthorized},
		{"unknown user beats bad room", alice, newBooking("ghost", 99, "10:00", "11:00"), apperrors.CodeUserNotFound},
		{"inactive user", admin, newBooking("carol", 1, "10:00", "11:00"), apperrors.CodeUserNotFound},
		{"forbidden beats bad room", alice, newBooking("bob", 99, "12:00", "11:00"), apperrors.CodeForbidden},
		{"unknown room beats bad range", alice, newBooking("alice", 99, "12:00", "11:00"), apperrors.CodeRoomNotFound},
		{"unavailable room beats bad range", alice, newBooking("alice", 3, "12:00", "11:00"), apperrors.CodeRoomUnavailable},
		{"bad range beats conflict", alice, newBooking("alice", 2, "12:00", "09:00"), apperrors.CodeInvalidTimeRange},
		{"conflict", alice, newBooking("alice", 2, "09:30", "10:30"), apperrors.CodeBookingConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.mustCreate(t, bob, newBooking("bob", 2, "09:00", "10:00"))

			_, err := f.svc.Create(context.Background(), tt.caller, tt.booking)
			assertCode(t, err, tt.code)
			assert.EqualValues(t, 1, f.count(t), "a rejected create must not write")
		})
	}
}

func TestCreate_DefaultsOwnerToCaller(t *testing.T) {
	f := newFixture(t)
	created := f.mustCreate(t, alice, newBooking("", 1, "10:00", "11:00"))
	assert.Equal(t, "alice", created.Username)
}

func TestCreate_AdminBooksForOthers(t *testing.T) {
	f := newFixture(t)
	created := f.mustCreate(t, admin, newBooking("bob", 1, "10:00", "11:00"))
	assert.Equal(t, "bob", created.Username)
}

func TestCreate_OracleOutagePassesThrough(t *testing.T) {
	f := newFixture(t)
	f.svc = NewBookingService(f.repo, f.oracles, downRooms{}, f.publisher, &config.Config{Log: logger.New(logger.Config{Output: io.Discard})})

	_, err := f.svc.Create(context.Background(), alice, newBooking("alice", 1, "10:00", "11:00"))
	assertCode(t, err, apperrors.CodeUnavailable)
}

type downRooms struct{}

func (downRooms) ResolveRoom(context.Context, int64) (*model.RoomFacts, error) {
	return nil, apperrors.Unavailable("Rooms service", nil)
}

func TestCreate_PublishFailureDoesNotFailRequest(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("broker down")

	created, err := f.svc.Create(context.Background(), alice, newBooking("alice", 1, "10:00", "11:00"))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.EqualValues(t, 1, f.count(t))
}

// ────────────────────────────────────────────────
// Update
// ────────────────────────────────────────────────

func TestUpdate_NoSelfConflict(t *testing.T) {
	f := newFixture(t)
	b := f.mustCreate(t, alice, newBooking("alice", 1, "10:00", "11:00"))

	end := model.MustTime("11:30")
	updated, err := f.svc.Update(context.Background(), alice, b.ID, &model.BookingUpdate{EndTime: &end})
	require.NoError(t, err)
	assert.Equal(t, end, updated.EndTime)
	assert.Equal(t, model.MustTime("10:00"), updated.StartTime)

	start := model.MustTime("10:15")
	_, err = f.svc.Update(context.Background(), alice, b.ID, &model.BookingUpdate{StartTime: &start})
	require.NoError(t, err, "shrinking a booking inside its own interval must not conflict")

	_, err = f.svc.Update(context.Background(), alice, b.ID, &model.BookingUpdate{})
	require.NoError(t, err, "an empty update keeps the booking as it is")
}

func TestUpdate_ConflictWithOtherBooking(t *testing.T) {
	f := newFixture(t)
	mine := f.mustCreate(t, alice, newBooking("alice", 1, "10:00", "11:00"))
	f.mustCreate(t, bob, newBooking("bob", 1, "11:00", "12:00"))

	end := model.MustTime("11:01")
	_, err := f.svc.Update(context.Background(), alice, mine.ID, &model.BookingUpdate{EndTime: &end})
	assertCode(t, err, apperrors.CodeBookingConflict)

	stored, err := f.repo.FindByID(context.Background(), mine.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MustTime("11:00"), stored.EndTime, "a rejected update must not mutate")
}

func TestUpdate_MergedRangeIsValidated(t *testing.T) {
	f := newFixture(t)
	b := f.mustCreate(t, alice, newBooking("alice", 1, "10:00", "11:00"))

	start := model.MustTime("11:00")
	_, err := f.svc.Update(context.Background(), alice, b.ID, &model.BookingUpdate{StartTime: &start})
	assertCode(t, err, apperrors.CodeInvalidTimeRange)
}

func TestUpdate_MoveToAnotherDate(t *testing.T) {
	f := newFixture(t)
	b := f.mustCreate(t, alice, newBooking("alice", 1, "10:00", "11:00"))
	other := model.Date("2026-01-01")
	f.mustCreate(t, bob, &model.Booking{Username: "bob", RoomID: 1, Date: other, StartTime: model.MustTime("10:30"), EndTime: model.MustTime("12:00")})

	_, err := f.svc.Update(context.Background(), alice, b.ID, &model.BookingUpdate{Date: &other})
	assertCode(t, err, apperrors.CodeBookingConflict)

	start, end := model.MustTime("08:00"), model.MustTime("09:00")
	moved, err := f.svc.Update(context.Background(), alice, b.ID, &model.BookingUpdate{Date: &other, StartTime: &start, EndTime: &end})
	require.NoError(t, err)
	assert.Equal(t, other, moved.Date)

	free, err := f.svc.CheckAvailability(context.Background(), &model.AvailabilityQuery{RoomID: 1, Date: day, StartTime: model.MustTime("10:00"), EndTime: model.MustTime("11:00")})
	require.NoError(t, err)
	assert.True(t, free, "the old slot is released")

	assert.Equal(t, []events.Type{events.BookingCreated, events.BookingCreated, events.BookingUpdated}, f.publisher.types())
}

func TestUpdate_MissingBooking(t *testing.T) {
	f := newFixture(t)
	end := model.MustTime("11:00")

	_, err := f.svc.Update(context.Background(), alice, "6f1c5b1e-2f8a-4c41-9f0e-6a4f0f3b9d11", &model.BookingUpdate{EndTime: &end})
	assertCode(t, err, apperrors.CodeBookingNotFound)

	_, err = f.svc.Update(context.Background(), alice, "garbage", &model.BookingUpdate{EndTime: &end})
	assertCode(t, err, apperrors.CodeBookingNotFound)
}

// ────────────────────────────────────────────────
// Authorization matrix
// ────────────────────────────────────────────────

func TestAuthorizationGating(t *testing.T) {
	callers := []struct {
		name    string
		caller  *model.Caller
		allowed bool
	}{
		{"owner", alice, true},
		{"other user", bob, false},
		{"admin", admin, true},
	}

	for _, c := range callers {
		t.Run(c.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			b := f.mustCreate(t, alice, newBooking("alice", 1, "10:00", "11:00"))

			check := func(op string, err error) {
				t.Helper()
				if c.allowed {
					assert.NoError(t, err, op)
				} else {
					assertCode(t, err, apperrors.CodeForbidden)
				}
			}

			_, err := f.svc.GetByID(ctx, c.caller, b.ID)
			check("get", err)

			_, err = f.svc.ListForUser(ctx, c.caller, "alice")
			check("list", err)

			end := model.MustTime("11:30")
			_, err = f.svc.Update(ctx, c.caller, b.ID, &model.BookingUpdate{EndTime: &end})
			check("update", err)

			err = f.svc.Delete(ctx, c.caller, b.ID)
			check("delete", err)

			if !c.allowed {
				assert.EqualValues(t, 1, f.count(t))
			}
		})
	}
}

func TestGetAll_AdminOnly(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.mustCreate(t, alice, newBooking("alice", 1, fmt.Sprintf("%02d:00", 8+i), fmt.Sprintf("%02d:30", 8+i)))
	}

	_, _, err := f.svc.GetAll(context.Background(), alice, 10, 0)
	assertCode(t, err, apperrors.CodeForbidden)

	_, _, err = f.svc.GetAll(context.Background(), nil, 10, 0)
	assertCode(t, err, apperrors.CodeUnauthorized)

	page, total, err := f.svc.GetAll(context.Background(), admin, 2, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	require.Len(t, page, 2)
	assert.Equal(t, model.MustTime("09:00"), page[0].StartTime)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	b := f.mustCreate(t, alice, newBooking("alice", 1, "10:00", "11:00"))

	require.NoError(t, f.svc.Delete(context.Background(), alice, b.ID))
	assert.EqualValues(t, 0, f.count(t))

	err := f.svc.Delete(context.Background(), alice, b.ID)
	assertCode(t, err, apperrors.CodeBookingNotFound)

	assert.Equal(t, []events.Type{events.BookingCreated, events.BookingDeleted}, f.publisher.types())
}

func TestListForUser_RequiresUsername(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ListForUser(context.Background(), admin, "")
	assertCode(t, err, apperrors.CodeInvalidInput)
}

// ────────────────────────────────────────────────
// Invariant preservation
// ────────────────────────────────────────────────

func TestRandomOperationsNeverStoreOverlaps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))
	callers := []*model.Caller{alice, bob, admin}
	var ids []string

	randomInterval := func() (model.TimeOfDay, model.TimeOfDay) {
		start := model.TimeOfDay(rng.Intn(20*4) * 15 * 60)
		end := start + model.TimeOfDay((rng.Intn(8)-1)*15*60)
		return start, end
	}

	for i := 0; i < 400; i++ {
		caller := callers[rng.Intn(len(callers))]
		start, end := randomInterval()
		roomID := int64(1 + rng.Intn(2))

		if len(ids) == 0 || rng.Intn(3) > 0 {
			b := &model.Booking{Username: caller.Username, RoomID: roomID, Date: day, StartTime: start, EndTime: end}
			if created, err := f.svc.Create(ctx, caller, b); err == nil {
				ids = append(ids, created.ID)
			}
		} else {
			id := ids[rng.Intn(len(ids))]
			_, _ = f.svc.Update(ctx, admin, id, &model.BookingUpdate{StartTime: &start, EndTime: &end})
		}

		for _, room := range []int64{1, 2} {
			stored, err := f.repo.FindByRoomAndDate(ctx, room, day, "")
			require.NoError(t, err)
			for a := 0; a < len(stored); a++ {
				require.True(t, stored[a].Interval().Valid(), "stored invalid interval %s", stored[a].Interval())
				for b := a + 1; b < len(stored); b++ {
					require.False(t, stored[a].Interval().Overlaps(stored[b].Interval()),
						"step %d: %s overlaps %s in room %d", i, stored[a].Interval(), stored[b].Interval(), room)
				}
			}
		}
	}
}

// ────────────────────────────────────────────────
// Pipeline
// ────────────────────────────────────────────────

func TestPipeline_StopsAtFirstFailure(t *testing.T) {
	type state struct{ ran []string }
	boom := apperrors.Forbidden("nope")

	p := newPipeline("test",
		newStep("first", func(ctx context.Context, s *state) error { s.ran = append(s.ran, "first"); return nil }),
		newStep("second", func(ctx context.Context, s *state) error { s.ran = append(s.ran, "second"); return boom }),
		newStep("third", func(ctx context.Context, s *state) error { s.ran = append(s.ran, "third"); return nil }),
	)

	st := &state{}
	name, err := p.Run(context.Background(), st)
	assert.Equal(t, "second", name)
	assert.Same(t, boom, err, "errors are returned unchanged")
	assert.Equal(t, []string{"first", "second"}, st.ran)
}

func TestPipeline_HonorsCanceledContext(t *testing.T) {
	type state struct{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newPipeline("test", newStep("only", func(ctx context.Context, s *state) error {
		t.Error("step must not run after cancellation")
		return nil
	}))
	_, err := p.Run(ctx, &state{})
	assert.ErrorIs(t, err, context.Canceled)
}
