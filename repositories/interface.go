package repositories

import (
	"context"
	"errors"

	"stresstest-server/entities"
)

var (
	// ErrNotFound is returned when the target record does not exist (or was deleted).
	ErrNotFound = errors.New("record not found")
	// ErrStoreUnavailable wraps any backend failure; the record set is left unchanged.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// DeviceTestRepository is the persistence boundary for device test records.
// Every write is a whole-record write; no caller ever observes a partial record.
type DeviceTestRepository interface {
	Create(ctx context.Context, test *entities.DeviceTest) error
	GetByID(ctx context.Context, id string) (*entities.DeviceTest, error)
	List(ctx context.Context) ([]entities.DeviceTest, error)
	Update(ctx context.Context, test *entities.DeviceTest) error
	Delete(ctx context.Context, id string) error
}

type BatteryReadingRepository interface {
	CreateBatch(ctx context.Context, readings []entities.BatteryReading) error
	ListByDeviceTest(ctx context.Context, deviceTestID string) ([]entities.BatteryReading, error)
}

type UserRepository interface {
	Create(ctx context.Context, user *entities.User) error
	GetByUsername(ctx context.Context, username string) (*entities.User, error)
	GetByID(ctx context.Context, id string) (*entities.User, error)
}
