package schedule

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"robofleet/apperr"
	"robofleet/config"
	"robofleet/store"
	"robofleet/tasks"
)

type emitted struct {
	kind   string
	id     int64
	status string
	old    string
}

type mockEmitter struct {
	mu     sync.Mutex
	events []emitted
}

func (m *mockEmitter) add(e emitted) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
}

func (m *mockEmitter) EmitScheduleCreated(s *store.Schedule) {
	m.add(emitted{kind: "created", id: s.ID, status: s.Status})
}
func (m *mockEmitter) EmitScheduleUpdated(s *store.Schedule, old, _ string) {
	m.add(emitted{kind: "updated", id: s.ID, status: s.Status, old: old})
}
func (m *mockEmitter) EmitScheduleRestamped(s *store.Schedule) {
	m.add(emitted{kind: "restamped", id: s.ID, status: s.Status})
}
func (m *mockEmitter) EmitScheduleCanceled(s *store.Schedule) {
	m.add(emitted{kind: "canceled", id: s.ID})
}
func (m *mockEmitter) EmitInspectionCreated(in *store.Inspection) {
	m.add(emitted{kind: "inspection_created", id: in.ID})
}
func (m *mockEmitter) EmitInspectionVerified(in *store.Inspection) {
	m.add(emitted{kind: "inspection_verified", id: in.ID})
}

func (m *mockEmitter) ofKind(kind string) []emitted {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []emitted
	for _, e := range m.events {
		if e.kind == kind {
			out = append(out, e)
		}
	}
	return out
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type fixture struct {
	db      *store.DB
	svc     *Service
	emitter *mockEmitter
	clock   *clock
	robot   *store.Robot
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := store.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	robot := &store.Robot{RoboID: "ABC123", Name: "Inspector 7"}
	require.NoError(t, db.CreateRobot(context.Background(), robot))

	em := &mockEmitter{}
	clk := &clock{t: time.Date(2025, 1, 1, 9, 30, 0, 0, time.UTC)}
	svc := NewService(db, em, config.ScheduleConfig{Timezone: "UTC", SlotMinutes: 3, PageSize: 10}, zap.NewNop())
	svc.SetClock(clk.Now)
	return &fixture{db: db, svc: svc, emitter: em, clock: clk, robot: robot}
}

func (f *fixture) runner(t *testing.T) *tasks.Runner {
	r := tasks.New(f.db, f.svc, config.TasksConfig{Workers: 2, BatchSize: 10, Lease: time.Minute, MaxAttempts: 5, RetryBackoff: time.Second}, zap.NewNop(), nil)
	r.SetClock(f.clock.Now)
	return r
}

func TestCreateRejectsOverlappingSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, f.robot.ID, CreateInput{Location: "L", ScheduledDate: "2025-01-01", ScheduledTime: "09:00"})
	require.NoError(t, err)
	assert.Equal(t, "09:03:00", first.EndTime)

	_, err = f.svc.Create(ctx, f.robot.ID, CreateInput{Location: "L", ScheduledDate: "2025-01-01", ScheduledTime: "09:01"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	_, err = f.svc.Create(ctx, f.robot.ID, CreateInput{Location: "L", ScheduledDate: "2025-01-01", ScheduledTime: "09:03"})
	assert.NoError(t, err, "touching slot is free")
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.robot.ID, CreateInput{Location: "L"})
	require.Error(t, err)
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.KindValidation, ae.Kind)
	assert.Contains(t, ae.Fields, "scheduled_date")
	assert.Contains(t, ae.Fields, "scheduled_time")
	assert.NotContains(t, ae.Fields, "location")

	_, err = f.svc.Create(ctx, 999, CreateInput{Location: "L", ScheduledDate: "2025-01-01", ScheduledTime: "09:00"})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	require.NoError(t, f.db.SetRobotActive(ctx, f.robot.ID, false))
	_, err = f.svc.Create(ctx, f.robot.ID, CreateInput{Location: "L", ScheduledDate: "2025-01-01", ScheduledTime: "09:00"})
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "inactive robot")
}

func TestCreateImmediatelyStartsProcessing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.clock.Set(time.Date(2025, 1, 1, 14, 7, 42, 0, time.UTC))

	s, err := f.svc.CreateImmediately(ctx, f.robot.ID, "Bay-1")
	require.NoError(t, err)
	assert.Equal(t, store.ScheduleProcessing, s.Status)
	assert.Equal(t, "14:07:00", s.ScheduledTime)
	assert.Equal(t, "14:10:00", s.EndTime)

	_, err = f.svc.CreateImmediately(ctx, f.robot.ID, "Bay-1")
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	_, err = f.svc.CreateImmediately(ctx, f.robot.ID, "  ")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestCancelCompletedIsStateViolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s, err := f.svc.Create(ctx, f.robot.ID, CreateInput{Location: "L", ScheduledDate: "2025-01-01", ScheduledTime: "10:00"})
	require.NoError(t, err)
	require.NoError(t, f.svc.Activate(ctx, s.ID, s.Revision))
	require.NoError(t, f.svc.Complete(ctx, s.ID, s.Revision))

	_, err = f.svc.Cancel(ctx, s.ID)
	assert.True(t, apperr.Is(err, apperr.KindState))

	got, err := f.svc.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, got.IsCanceled)

	_, err = f.svc.Cancel(ctx, 999)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestCanceledScheduleIgnoresTasks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s, err := f.svc.Create(ctx, f.robot.ID, CreateInput{Location: "L", ScheduledDate: "2025-01-01", ScheduledTime: "10:00"})
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, s.ID)
	require.NoError(t, err)

	f.clock.Set(time.Date(2025, 1, 1, 10, 5, 0, 0, time.UTC))
	n, err := f.runner(t).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := f.svc.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ScheduleScheduled, got.Status)
	assert.Empty(t, f.emitter.ofKind("updated"))
}

func TestCompleteBeforeActivateIsRetried(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s, err := f.svc.Create(ctx, f.robot.ID, CreateInput{Location: "L", ScheduledDate: "2025-01-01", ScheduledTime: "10:00"})
	require.NoError(t, err)

	err = f.svc.Complete(ctx, s.ID, s.Revision)
	assert.ErrorIs(t, err, ErrOutOfOrder)
	assert.ErrorIs(t, err, tasks.ErrRetry)

	got, err := f.svc.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ScheduleScheduled, got.Status)
}

func TestMissingScheduleTaskIsNotFound(t *testing.T) {
	f := newFixture(t)
	err := f.svc.Activate(context.Background(), 12345, 1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateImmediatelyStalesOldTasks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s, err := f.svc.Create(ctx, f.robot.ID, CreateInput{Location: "L", ScheduledDate: "2025-01-01", ScheduledTime: "11:00"})
	require.NoError(t, err)

	f.clock.Set(time.Date(2025, 1, 1, 9, 45, 10, 0, time.UTC))
	bay := "Bay-9"
	updated, err := f.svc.UpdateImmediately(ctx, s.ID, &bay)
	require.NoError(t, err)
	assert.Equal(t, store.ScheduleProcessing, updated.Status)
	assert.Equal(t, "Bay-9", updated.Location)
	assert.Equal(t, "09:45:00", updated.ScheduledTime)
	assert.Equal(t, int64(2), updated.Revision)

	// Old activate for 11:00 carries revision 1 and must not touch the record.
	require.NoError(t, f.svc.Activate(ctx, s.ID, 1))
	f.clock.Set(time.Date(2025, 1, 1, 9, 48, 0, 0, time.UTC))
	_, err = f.runner(t).RunOnce(ctx)
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ScheduleCompleted, got.Status)

	_, err = f.svc.UpdateImmediately(ctx, s.ID, nil)
	assert.True(t, apperr.Is(err, apperr.KindState))
}

func TestListPagesAndCounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		clock := time.Date(2025, 1, 1, 8, i*3, 0, 0, time.UTC).Format("15:04")
		_, err := f.svc.Create(ctx, f.robot.ID, CreateInput{Location: "L", ScheduledDate: "2025-01-02", ScheduledTime: clock})
		require.NoError(t, err)
	}
	p, err := f.svc.List(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 12, p.Count)
	assert.Len(t, p.Results, 10)
	assert.True(t, p.HasNext)
	assert.False(t, p.HasPrevious)
	assert.Equal(t, 12, p.StatusCounts[store.ScheduleScheduled])

	p, err = f.svc.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, p.Results, 2)
	assert.False(t, p.HasNext)

	_, err = f.svc.List(ctx, 3)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestListByDateRange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.ListByDateRange(ctx, "2025-01-05", "2025-01-01")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = f.svc.ListByDateRange(ctx, "bad", "2025-01-01")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.svc.Create(ctx, f.robot.ID, CreateInput{Location: "L", ScheduledDate: "2025-01-03", ScheduledTime: "10:00"})
	require.NoError(t, err)
	list, err := f.svc.ListByDateRange(ctx, "2025-01-01", "2025-01-03")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

// Booking at 10:00 flips to processing when the clock reaches 10:00 and to
// completed at 10:03, with one status event for each step.
func TestScheduleLifecycleEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.runner(t)

	s, err := f.svc.Create(ctx, f.robot.ID, CreateInput{Location: "Bay-1", ScheduledDate: "2025-01-01", ScheduledTime: "10:00"})
	require.NoError(t, err)
	assert.Equal(t, store.ScheduleScheduled, s.Status)
	assert.Equal(t, "10:03:00", s.EndTime)
	assert.Equal(t, "ABC123", s.RoboID)

	f.clock.Set(time.Date(2025, 1, 1, 9, 59, 59, 0, time.UTC))
	n, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Set(time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC))
	n, err = r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err := f.svc.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ScheduleProcessing, got.Status)

	f.clock.Set(time.Date(2025, 1, 1, 10, 3, 0, 0, time.UTC))
	n, err = r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err = f.svc.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ScheduleCompleted, got.Status)

	updates := f.emitter.ofKind("updated")
	require.Len(t, updates, 2)
	assert.Equal(t, emitted{kind: "updated", id: s.ID, status: store.ScheduleProcessing, old: store.ScheduleScheduled}, updates[0])
	assert.Equal(t, emitted{kind: "updated", id: s.ID, status: store.ScheduleCompleted, old: store.ScheduleProcessing}, updates[1])

	// Redelivery of a finished transition changes nothing.
	require.NoError(t, f.svc.Activate(ctx, s.ID, s.Revision))
	assert.Len(t, f.emitter.ofKind("updated"), 2)
}
