package usecases

import (
	"context"
	"errors"
	"sync"
	"time"

	"stresstest-server/entities"
	"stresstest-server/repositories"
)

// ErrIDRequired is returned when an operation is called without a record id.
var ErrIDRequired = errors.New("device test id is required")

// DeviceTestUseCase runs the record lifecycle against the store.
type DeviceTestUseCase struct {
	repo      repositories.DeviceTestRepository
	validator entities.Validator
	locks     recordLocks

	// Now is the clock used by lifecycle transitions.
	Now func() time.Time
}

func NewDeviceTestUseCase(repo repositories.DeviceTestRepository, validator entities.Validator) *DeviceTestUseCase {
	return &DeviceTestUseCase{
		repo:      repo,
		validator: validator,
		locks:     recordLocks{held: make(map[string]*recordLock)},
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

// Versions returns the software versions accepted by validation.
func (uc *DeviceTestUseCase) Versions() []string {
	return uc.validator.AllowedVersions
}

// CreateDeviceTest validates input and stores a new record.
func (uc *DeviceTestUseCase) CreateDeviceTest(ctx context.Context, in entities.DeviceTestInput) (*entities.DeviceTest, error) {
	test, err := uc.validator.Validate(in)
	if err != nil {
		return nil, err
	}
	if err := uc.repo.Create(ctx, test); err != nil {
		return nil, err
	}
	return test, nil
}

// GetDeviceTest retrieves a record by ID
func (uc *DeviceTestUseCase) GetDeviceTest(ctx context.Context, id string) (*entities.DeviceTest, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	return uc.repo.GetByID(ctx, id)
}

// ListDeviceTests returns the records matching c in insertion order.
func (uc *DeviceTestUseCase) ListDeviceTests(ctx context.Context, c FilterCriteria) ([]entities.DeviceTest, error) {
	all, err := uc.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	return Filter(all, c), nil
}

// Stats counts the whole fleet regardless of any filter.
func (uc *DeviceTestUseCase) Stats(ctx context.Context) (Stats, error) {
	all, err := uc.repo.List(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Aggregate(all), nil
}

// EditDeviceTest overwrites every editable field of a record.
func (uc *DeviceTestUseCase) EditDeviceTest(ctx context.Context, id string, in entities.DeviceTestInput) (*entities.DeviceTest, error) {
	edited, err := uc.validator.Validate(in)
	if err != nil {
		return nil, err
	}
	return uc.mutate(ctx, id, func(t *entities.DeviceTest) (bool, error) {
		ApplyEdit(t, *edited)
		return true, nil
	})
}

// StartDeviceTest moves a pending record to running.
func (uc *DeviceTestUseCase) StartDeviceTest(ctx context.Context, id string) (*entities.DeviceTest, error) {
	now := uc.Now()
	return uc.mutate(ctx, id, func(t *entities.DeviceTest) (bool, error) {
		return Start(t, now)
	})
}

// CompleteDeviceTest marks a running record completed and derives TotalHours.
func (uc *DeviceTestUseCase) CompleteDeviceTest(ctx context.Context, id string) (*entities.DeviceTest, error) {
	now := uc.Now()
	return uc.mutate(ctx, id, func(t *entities.DeviceTest) (bool, error) {
		return MarkCompleted(t, now)
	})
}

// FailDeviceTest marks a running record failed.
func (uc *DeviceTestUseCase) FailDeviceTest(ctx context.Context, id string) (*entities.DeviceTest, error) {
	now := uc.Now()
	return uc.mutate(ctx, id, func(t *entities.DeviceTest) (bool, error) {
		return MarkFailed(t, now)
	})
}

// RecordBattery stores the latest battery level of a running test.
func (uc *DeviceTestUseCase) RecordBattery(ctx context.Context, id string, level int) (*entities.DeviceTest, error) {
	return uc.mutate(ctx, id, func(t *entities.DeviceTest) (bool, error) {
		level = entities.ClampBattery(level)
		if t.Status != entities.StatusRunning || t.AfterBattery == level {
			return false, nil
		}
		t.AfterBattery = level
		return true, nil
	})
}

// DeleteDeviceTest removes a record
func (uc *DeviceTestUseCase) DeleteDeviceTest(ctx context.Context, id string) error {
	if id == "" {
		return ErrIDRequired
	}
	unlock := uc.locks.lock(id)
	defer unlock()
	return uc.repo.Delete(ctx, id)
}

// mutate runs a read-modify-write on one record. Writes to the same record
// are serialized so two concurrent transitions cannot both apply.
func (uc *DeviceTestUseCase) mutate(ctx context.Context, id string, fn func(*entities.DeviceTest) (bool, error)) (*entities.DeviceTest, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	unlock := uc.locks.lock(id)
	defer unlock()

	test, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	changed, err := fn(test)
	if err != nil {
		return nil, err
	}
	if !changed {
		return test, nil
	}
	if err := uc.repo.Update(ctx, test); err != nil {
		return nil, err
	}
	return test, nil
}

type recordLock struct {
	mu   sync.Mutex
	refs int
}

// recordLocks hands out one mutex per record id and forgets it once unused.
type recordLocks struct {
	mu   sync.Mutex
	held map[string]*recordLock
}

func (l *recordLocks) lock(id string) func() {
	l.mu.Lock()
	rl, ok := l.held[id]
	if !ok {
		rl = &recordLock{}
		l.held[id] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.mu.Lock()
	return func() {
		rl.mu.Unlock()
		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.held, id)
		}
		l.mu.Unlock()
	}
}
