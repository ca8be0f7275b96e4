package usecases

import (
	"context"
	"errors"

	"stresstest-server/entities"
	"stresstest-server/logs"
	"stresstest-server/repositories"
)

// TelemetryUseCase stores battery readings pushed by devices under test.
type TelemetryUseCase struct {
	repo  repositories.BatteryReadingRepository
	tests *DeviceTestUseCase
}

func NewTelemetryUseCase(r repositories.BatteryReadingRepository, tests *DeviceTestUseCase) *TelemetryUseCase {
	return &TelemetryUseCase{repo: r, tests: tests}
}

// Persist writes a batch of readings and pushes the newest level of each
// test into its record. Only a failed batch write is returned; record updates
// are best effort because the readings themselves are already stored.
func (uc *TelemetryUseCase) Persist(ctx context.Context, readings []entities.BatteryReading) error {
	if len(readings) == 0 {
		return nil
	}
	if err := uc.repo.CreateBatch(ctx, readings); err != nil {
		return err
	}

	latest := make(map[string]entities.BatteryReading)
	for _, r := range readings {
		if cur, ok := latest[r.DeviceTestID]; !ok || !r.RecordedAt.Before(cur.RecordedAt) {
			latest[r.DeviceTestID] = r
		}
	}
	for id, r := range latest {
		if _, err := uc.tests.RecordBattery(ctx, id, r.Level); err != nil && !errors.Is(err, repositories.ErrNotFound) {
			logs.Logger.WithError(err).WithField("device_test_id", id).Warn("could not update battery level")
		}
	}
	return nil
}

// Readings lists the stored readings of one test, oldest first.
func (uc *TelemetryUseCase) Readings(ctx context.Context, deviceTestID string) ([]entities.BatteryReading, error) {
	if deviceTestID == "" {
		return nil, ErrIDRequired
	}
	return uc.repo.ListByDeviceTest(ctx, deviceTestID)
}
