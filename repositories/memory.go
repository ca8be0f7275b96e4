package repositories

import (
	"context"
	"sync"
	"time"

	"stresstest-server/entities"

	"github.com/google/uuid"
)

// Compile-time checks that the in-memory stores satisfy the contracts.
var (
	_ DeviceTestRepository     = (*MemoryDeviceTestRepository)(nil)
	_ BatteryReadingRepository = (*MemoryBatteryReadingRepository)(nil)
	_ UserRepository           = (*MemoryUserRepository)(nil)
)

// MemoryDeviceTestRepository keeps records in process memory. It is used when
// no database driver is configured and by tests.
type MemoryDeviceTestRepository struct {
	mu    sync.RWMutex
	order []string
	tests map[string]entities.DeviceTest
	used  map[string]struct{} // every id ever handed out, deleted ones included
}

func NewMemoryDeviceTestRepository() *MemoryDeviceTestRepository {
	return &MemoryDeviceTestRepository{
		tests: make(map[string]entities.DeviceTest),
		used:  make(map[string]struct{}),
	}
}

func (r *MemoryDeviceTestRepository) Create(ctx context.Context, test *entities.DeviceTest) error {
	if err := ctx.Err(); err != nil {
		return translate(err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if test.ID == "" {
		test.ID = uuid.New().String()
	}
	if _, dup := r.used[test.ID]; dup {
		return translate(errDuplicateID)
	}
	if test.Status == "" {
		test.Status = entities.StatusPending
	}
	now := time.Now().UTC()
	test.CreatedAt = now
	test.UpdatedAt = now

	r.used[test.ID] = struct{}{}
	r.order = append(r.order, test.ID)
	r.tests[test.ID] = test.Clone()
	return nil
}

func (r *MemoryDeviceTestRepository) GetByID(ctx context.Context, id string) (*entities.DeviceTest, error) {
	if err := ctx.Err(); err != nil {
		return nil, translate(err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	test, ok := r.tests[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := test.Clone()
	return &out, nil
}

func (r *MemoryDeviceTestRepository) List(ctx context.Context) ([]entities.DeviceTest, error) {
	if err := ctx.Err(); err != nil {
		return nil, translate(err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]entities.DeviceTest, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.tests[id].Clone())
	}
	return out, nil
}

func (r *MemoryDeviceTestRepository) Update(ctx context.Context, test *entities.DeviceTest) error {
	if err := ctx.Err(); err != nil {
		return translate(err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.tests[test.ID]
	if !ok {
		return ErrNotFound
	}
	test.CreatedAt = existing.CreatedAt
	test.UpdatedAt = time.Now().UTC()
	r.tests[test.ID] = test.Clone()
	return nil
}

func (r *MemoryDeviceTestRepository) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return translate(err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tests[id]; !ok {
		return ErrNotFound
	}
	delete(r.tests, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// MemoryBatteryReadingRepository stores readings per device test.
type MemoryBatteryReadingRepository struct {
	mu       sync.RWMutex
	readings map[string][]entities.BatteryReading
}

func NewMemoryBatteryReadingRepository() *MemoryBatteryReadingRepository {
	return &MemoryBatteryReadingRepository{readings: make(map[string][]entities.BatteryReading)}
}

func (r *MemoryBatteryReadingRepository) CreateBatch(ctx context.Context, readings []entities.BatteryReading) error {
	if err := ctx.Err(); err != nil {
		return translate(err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	for _, rd := range readings {
		if rd.ID == "" {
			rd.ID = uuid.New().String()
		}
		rd.Level = entities.ClampBattery(rd.Level)
		rd.CreatedAt = now
		r.readings[rd.DeviceTestID] = append(r.readings[rd.DeviceTestID], rd)
	}
	return nil
}

func (r *MemoryBatteryReadingRepository) ListByDeviceTest(ctx context.Context, deviceTestID string) ([]entities.BatteryReading, error) {
	if err := ctx.Err(); err != nil {
		return nil, translate(err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]entities.BatteryReading, len(r.readings[deviceTestID]))
	copy(out, r.readings[deviceTestID])
	return out, nil
}

// MemoryUserRepository holds operator accounts.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]entities.User
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[string]entities.User)}
}

func (r *MemoryUserRepository) Create(ctx context.Context, user *entities.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == user.Username {
			return translate(errDuplicateUser)
		}
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now
	r.users[user.ID] = *user
	return nil
}

func (r *MemoryUserRepository) GetByUsername(ctx context.Context, username string) (*entities.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryUserRepository) GetByID(ctx context.Context, id string) (*entities.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}
