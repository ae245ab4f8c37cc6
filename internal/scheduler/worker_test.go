package scheduler

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/richxcame/ride-dispatch/internal/rides"
	"github.com/richxcame/ride-dispatch/pkg/common"
)

// ============================================================================
// Mock Database
// ============================================================================

// MockDatabase implements the Database interface for testing
type MockDatabase struct {
	mock.Mock
}

func (m *MockDatabase) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	callArgs := m.Called(ctx, query, args)
	if callArgs.Get(0) == nil {
		return nil, callArgs.Error(1)
	}
	return callArgs.Get(0).(pgx.Rows), callArgs.Error(1)
}

func (m *MockDatabase) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	callArgs := m.Called(ctx, query, args)
	return callArgs.Get(0).(pgconn.CommandTag), callArgs.Error(1)
}

// ============================================================================
// Mock Rows
// ============================================================================

// MockRows implements pgx.Rows for testing
type MockRows struct {
	mock.Mock
	data         [][]any
	currentIndex int
	columns      []string
	closed       bool
}

func NewMockRows(columns []string, data [][]any) *MockRows {
	return &MockRows{
		data:         data,
		currentIndex: -1,
		columns:      columns,
		closed:       false,
	}
}

func (m *MockRows) Close() {
	m.closed = true
}

func (m *MockRows) Err() error {
	return nil
}

func (m *MockRows) CommandTag() pgconn.CommandTag {
	return pgconn.NewCommandTag("SELECT")
}

func (m *MockRows) FieldDescriptions() []pgconn.FieldDescription {
	return nil
}

func (m *MockRows) Next() bool {
	m.currentIndex++
	return m.currentIndex < len(m.data)
}

func (m *MockRows) Scan(dest ...any) error {
	if m.currentIndex < 0 || m.currentIndex >= len(m.data) {
		return errors.New("no row to scan")
	}
	row := m.data[m.currentIndex]
	if len(dest) != len(row) {
		return errors.New("column count mismatch")
	}
	for i, v := range row {
		// Use reflection to set the value
		destVal := reflect.ValueOf(dest[i])
		if destVal.Kind() != reflect.Ptr {
			return errors.New("destination must be a pointer")
		}
		srcVal := reflect.ValueOf(v)
		destVal.Elem().Set(srcVal)
	}
	return nil
}

func (m *MockRows) Values() ([]any, error) {
	if m.currentIndex < 0 || m.currentIndex >= len(m.data) {
		return nil, errors.New("no row")
	}
	return m.data[m.currentIndex], nil
}

func (m *MockRows) RawValues() [][]byte {
	return nil
}

func (m *MockRows) Conn() *pgx.Conn {
	return nil
}

// ============================================================================
// Mock Publisher
// ============================================================================

type MockPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *MockPublisher) Publish(ctx context.Context, subject, eventType string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
	return nil
}

func (p *MockPublisher) Events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

// ============================================================================
// Mock Canceller
// ============================================================================

type MockCanceller struct {
	mock.Mock
}

func (m *MockCanceller) CancelRide(ctx context.Context, rideID uuid.UUID, cancelledBy, reason string) (*rides.Ride, error) {
	args := m.Called(ctx, rideID, cancelledBy, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*rides.Ride), args.Error(1)
}

// ============================================================================
// Test Helpers
// ============================================================================

func testLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

func newTestWorker(db Database) (*Worker, *MockPublisher, *MockCanceller) {
	bus := &MockPublisher{}
	canceller := new(MockCanceller)
	return NewWorker(db, bus, canceller, testLogger(), DefaultConfig()), bus, canceller
}

func containsString(s, substr string) bool {
	return strings.Contains(s, substr)
}

// ============================================================================
// TestNewWorker Tests
// ============================================================================

func TestNewWorker(t *testing.T) {
	t.Run("creates worker with defaults for zero config", func(t *testing.T) {
		mockDB := new(MockDatabase)
		worker := NewWorker(mockDB, nil, nil, testLogger(), Config{})

		assert.NotNil(t, worker)
		assert.Equal(t, 5*time.Minute, worker.cfg.Interval)
		assert.Equal(t, 15*time.Minute, worker.cfg.StaleAfter)
		assert.NotNil(t, worker.done)
	})

	t.Run("keeps explicit config values", func(t *testing.T) {
		mockDB := new(MockDatabase)
		cfg := Config{Interval: time.Minute, ActivationWindow: 2 * time.Minute, StaleAfter: 30 * time.Minute}
		worker := NewWorker(mockDB, nil, nil, testLogger(), cfg)

		assert.Equal(t, cfg, worker.cfg)
	})
}

// ============================================================================
// TestWorker_Stop Tests
// ============================================================================

func TestWorker_Stop(t *testing.T) {
	mockDB := new(MockDatabase)
	worker, _, _ := newTestWorker(mockDB)

	// Channel should be open before stop
	select {
	case <-worker.done:
		t.Fatal("done channel should be open")
	default:
		// Expected
	}

	worker.Stop()

	// Channel should be closed after stop
	select {
	case <-worker.done:
		// Expected
	default:
		t.Fatal("done channel should be closed")
	}
}

// ============================================================================
// TestWorker_ProcessScheduledRides Tests
// ============================================================================

func TestWorker_ProcessScheduledRides_EmptyResults(t *testing.T) {
	mockDB := new(MockDatabase)
	worker, bus, _ := newTestWorker(mockDB)

	emptyRows := NewMockRows([]string{}, [][]any{})
	mockDB.On("Query", mock.Anything, mock.Anything, mock.Anything).Return(emptyRows, nil)

	worker.processScheduledRides(context.Background())

	mockDB.AssertExpectations(t)
	mockDB.AssertNotCalled(t, "Exec", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, bus.Events())
}

func TestWorker_ProcessScheduledRides_QueryError(t *testing.T) {
	mockDB := new(MockDatabase)
	worker, _, _ := newTestWorker(mockDB)

	mockDB.On("Query", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("database error"))

	// Should not panic on query error
	worker.processScheduledRides(context.Background())

	mockDB.AssertExpectations(t)
}

func TestWorker_ProcessScheduledRides_PromotesDueRide(t *testing.T) {
	mockDB := new(MockDatabase)
	worker, bus, _ := newTestWorker(mockDB)

	rideID := uuid.New()
	riderID := uuid.New()
	driverID := uuid.New()
	startAt := time.Now().Add(-2 * time.Minute)

	rows := NewMockRows(
		[]string{"id", "rider_id", "driver_id", "start_time"},
		[][]any{
			{rideID, riderID, driverID, startAt},
		},
	)

	mockDB.On("Query", mock.Anything, mock.Anything, mock.Anything).Return(rows, nil)
	mockDB.On("Exec", mock.Anything, mock.MatchedBy(func(q string) bool {
		return containsString(q, "status = 'in_progress'") && containsString(q, "status = 'accepted'")
	}), mock.Anything).Return(pgconn.NewCommandTag("UPDATE 1"), nil)
	mockDB.On("Exec", mock.Anything, mock.MatchedBy(func(q string) bool {
		return containsString(q, "UPDATE drivers") && containsString(q, "is_busy = true")
	}), []any{driverID}).Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	worker.processScheduledRides(context.Background())

	mockDB.AssertExpectations(t)
	assert.Equal(t, []string{"ride.started"}, bus.Events())
}

func TestWorker_ProcessScheduledRides_LostRaceSkipsDriverBusyFlag(t *testing.T) {
	mockDB := new(MockDatabase)
	worker, _, _ := newTestWorker(mockDB)

	driverID := uuid.New()
	rows := NewMockRows(
		[]string{"id", "rider_id", "driver_id", "start_time"},
		[][]any{
			{uuid.New(), uuid.New(), driverID, time.Now().Add(-time.Minute)},
		},
	)

	mockDB.On("Query", mock.Anything, mock.Anything, mock.Anything).Return(rows, nil)
	mockDB.On("Exec", mock.Anything, mock.MatchedBy(func(q string) bool {
		return containsString(q, "status = 'in_progress'")
	}), mock.Anything).Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	worker.processScheduledRides(context.Background())

	mockDB.AssertNotCalled(t, "Exec", mock.Anything, mock.MatchedBy(func(q string) bool {
		return containsString(q, "UPDATE drivers")
	}), []any{driverID})
}

func TestWorker_ProcessScheduledRides_LostPromotionRaceEmitsNothing(t *testing.T) {
	mockDB := new(MockDatabase)
	worker, bus, _ := newTestWorker(mockDB)

	rideID := uuid.New()
	rows := NewMockRows(
		[]string{"id", "rider_id", "driver_id", "start_time"},
		[][]any{
			{rideID, uuid.New(), uuid.New(), time.Now().Add(-time.Minute)},
		},
	)

	mockDB.On("Query", mock.Anything, mock.Anything, mock.Anything).Return(rows, nil)
	// Another instance promoted the ride first.
	mockDB.On("Exec", mock.Anything, mock.Anything, mock.Anything).Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	worker.processScheduledRides(context.Background())

	mockDB.AssertExpectations(t)
	assert.Empty(t, bus.Events())
}

func TestWorker_ProcessScheduledRides_MultipleDueRides(t *testing.T) {
	mockDB := new(MockDatabase)
	worker, bus, _ := newTestWorker(mockDB)

	rows := NewMockRows(
		[]string{"id", "rider_id", "driver_id", "start_time"},
		[][]any{
			{uuid.New(), uuid.New(), uuid.New(), time.Now().Add(-time.Minute)},
			{uuid.New(), uuid.New(), uuid.New(), time.Now().Add(-3 * time.Minute)},
		},
	)

	mockDB.On("Query", mock.Anything, mock.Anything, mock.Anything).Return(rows, nil)
	mockDB.On("Exec", mock.Anything, mock.Anything, mock.Anything).Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	worker.processScheduledRides(context.Background())

	mockDB.AssertExpectations(t)
	assert.Equal(t, []string{"ride.started", "ride.started"}, bus.Events())
}

// ============================================================================
// TestWorker_SendReminders Tests
// ============================================================================

func TestWorker_SendReminders_FiresDueThresholds(t *testing.T) {
	mockDB := new(MockDatabase)
	worker, bus, _ := newTestWorker(mockDB)

	rideID := uuid.New()
	riderID := uuid.New()
	startAt := time.Now().Add(25 * time.Minute)

	rows := NewMockRows(
		[]string{"id", "rider_id", "start_time"},
		[][]any{
			{rideID, riderID, startAt},
		},
	)

	mockDB.On("Query", mock.Anything, mock.Anything, mock.Anything).Return(rows, nil)
	// 25 minutes out: the 60 and 30 minute thresholds are due, 5 is not.
	mockDB.On("Exec", mock.Anything, mock.MatchedBy(func(q string) bool {
		return containsString(q, "ride_reminders")
	}), []any{rideID, 60}).Return(pgconn.NewCommandTag("INSERT 0 1"), nil)
	mockDB.On("Exec", mock.Anything, mock.MatchedBy(func(q string) bool {
		return containsString(q, "ride_reminders")
	}), []any{rideID, 30}).Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	worker.sendReminders(context.Background())

	mockDB.AssertExpectations(t)
	mockDB.AssertNotCalled(t, "Exec", mock.Anything, mock.Anything, []any{rideID, 5})
	assert.Equal(t, []string{"ride.reminder", "ride.reminder"}, bus.Events())
}

func TestWorker_SendReminders_EachThresholdFiresOnce(t *testing.T) {
	mockDB := new(MockDatabase)
	worker, bus, _ := newTestWorker(mockDB)

	rideID := uuid.New()
	riderID := uuid.New()
	startAt := time.Now().Add(25 * time.Minute)

	row := []any{rideID, riderID, startAt}

	// First pass inserts the markers, second pass conflicts on both.
	mockDB.On("Query", mock.Anything, mock.Anything, mock.Anything).
		Return(NewMockRows([]string{"id", "rider_id", "start_time"}, [][]any{row}), nil).Once()
	mockDB.On("Query", mock.Anything, mock.Anything, mock.Anything).
		Return(NewMockRows([]string{"id", "rider_id", "start_time"}, [][]any{row}), nil).Once()
	mockDB.On("Exec", mock.Anything, mock.Anything, mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil).Times(2)
	mockDB.On("Exec", mock.Anything, mock.Anything, mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 0"), nil).Times(2)

	worker.sendReminders(context.Background())
	worker.sendReminders(context.Background())

	mockDB.AssertExpectations(t)
	assert.Equal(t, []string{"ride.reminder", "ride.reminder"}, bus.Events(),
		"second pass must not re-send reminders")
}

func TestWorker_SendReminders_NoUpcomingRides(t *testing.T) {
	mockDB := new(MockDatabase)
	worker, bus, _ := newTestWorker(mockDB)

	mockDB.On("Query", mock.Anything, mock.Anything, mock.Anything).
		Return(NewMockRows([]string{}, [][]any{}), nil)

	worker.sendReminders(context.Background())

	mockDB.AssertNotCalled(t, "Exec", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, bus.Events())
}

func TestWorker_SendReminders_InsertErrorDoesNotPublish(t *testing.T) {
	mockDB := new(MockDatabase)
	worker, bus, _ := newTestWorker(mockDB)

	rideID := uuid.New()
	startAt := time.Now().Add(4 * time.Minute)
	rows := NewMockRows(
		[]string{"id", "rider_id", "start_time"},
		[][]any{
			{rideID, uuid.New(), startAt},
		},
	)

	mockDB.On("Query", mock.Anything, mock.Anything, mock.Anything).Return(rows, nil)
	mockDB.On("Exec", mock.Anything, mock.Anything, mock.Anything).
		Return(pgconn.NewCommandTag(""), errors.New("database error"))

	worker.sendReminders(context.Background())

	assert.Empty(t, bus.Events())
}

// ============================================================================
// TestWorker_ExpireStaleRides Tests
// ============================================================================

func TestWorker_ExpireStaleRides_CancelsThroughRideService(t *testing.T) {
	mockDB := new(MockDatabase)
	worker, _, canceller := newTestWorker(mockDB)

	staleA, staleB := uuid.New(), uuid.New()
	rows := NewMockRows([]string{"id"}, [][]any{{staleA}, {staleB}})
	mockDB.On("Query", mock.Anything, mock.MatchedBy(func(q string) bool {
		return containsString(q, "status = 'requested'")
	}), mock.Anything).Return(rows, nil)
	canceller.On("CancelRide", mock.Anything, staleA, rides.CancelledBySystem, rides.ReasonStaleRequest).
		Return(&rides.Ride{ID: staleA, Status: rides.StatusCancelled}, nil)
	canceller.On("CancelRide", mock.Anything, staleB, rides.CancelledBySystem, rides.ReasonStaleRequest).
		Return(&rides.Ride{ID: staleB, Status: rides.StatusCancelled}, nil)

	worker.expireStaleRides(context.Background())

	mockDB.AssertExpectations(t)
	canceller.AssertExpectations(t)
}

func TestWorker_ExpireStaleRides_QueryError(t *testing.T) {
	mockDB := new(MockDatabase)
	worker, _, canceller := newTestWorker(mockDB)

	mockDB.On("Query", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("database error"))

	// Should not panic
	worker.expireStaleRides(context.Background())

	canceller.AssertNotCalled(t, "CancelRide", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestWorker_ExpireStaleRides_AcceptedMeanwhileIsSkipped(t *testing.T) {
	mockDB := new(MockDatabase)
	worker, _, canceller := newTestWorker(mockDB)

	staleID := uuid.New()
	rows := NewMockRows([]string{"id"}, [][]any{{staleID}})
	mockDB.On("Query", mock.Anything, mock.Anything, mock.Anything).Return(rows, nil)
	canceller.On("CancelRide", mock.Anything, staleID, rides.CancelledBySystem, rides.ReasonStaleRequest).
		Return(nil, common.NewUnprocessableError("ride is already accepted"))

	worker.expireStaleRides(context.Background())

	canceller.AssertExpectations(t)
}

// ============================================================================
// TestWorker_StartStop Tests
// ============================================================================

func TestWorker_StartRunsImmediatePassAndStops(t *testing.T) {
	mockDB := new(MockDatabase)
	worker, _, _ := newTestWorker(mockDB)
	worker.cfg.Interval = time.Hour

	mockDB.On("Query", mock.Anything, mock.Anything, mock.Anything).
		Return(NewMockRows([]string{}, [][]any{}), nil)
	mockDB.On("Exec", mock.Anything, mock.Anything, mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	stopped := make(chan struct{})
	go func() {
		worker.Start(context.Background())
		close(stopped)
	}()

	time.Sleep(50 * time.Millisecond)
	worker.Stop()

	select {
	case <-stopped:
		// Expected
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
	mockDB.AssertCalled(t, "Query", mock.Anything, mock.Anything, mock.Anything)
}
