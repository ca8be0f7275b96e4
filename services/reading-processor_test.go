package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stresstest-server/entities"
	"stresstest-server/repositories"
	"stresstest-server/usecases"
)

type flakyReadings struct {
	*repositories.MemoryBatteryReadingRepository
	fail bool
}

func (f *flakyReadings) CreateBatch(ctx context.Context, readings []entities.BatteryReading) error {
	if f.fail {
		return errors.Join(repositories.ErrStoreUnavailable, errors.New("db down"))
	}
	return f.MemoryBatteryReadingRepository.CreateBatch(ctx, readings)
}

func setup(t *testing.T) (*ReadingProcessor, *flakyReadings, *usecases.DeviceTestUseCase, string) {
	t.Helper()
	tests := usecases.NewDeviceTestUseCase(repositories.NewMemoryDeviceTestRepository(), entities.NewValidator(nil))
	readings := &flakyReadings{MemoryBatteryReadingRepository: repositories.NewMemoryBatteryReadingRepository()}
	rp := NewReadingProcessor(usecases.NewTelemetryUseCase(readings, tests), 0, time.Hour)

	ctx := context.Background()
	in := entities.NewInput()
	in.SerialNumber, in.IMEI = "SN1", "1"
	created, err := tests.CreateDeviceTest(ctx, in)
	require.NoError(t, err)
	_, err = tests.StartDeviceTest(ctx, created.ID)
	require.NoError(t, err)
	return rp, readings, tests, created.ID
}

func TestProcessCachedData(t *testing.T) {
	rp, readings, tests, id := setup(t)
	ctx := context.Background()

	rp.AddReading(entities.BatteryReading{DeviceTestID: id, Level: 95, RecordedAt: time.Now()})
	rp.AddReading(entities.BatteryReading{DeviceTestID: id, Level: 93, RecordedAt: time.Now().Add(time.Second)})

	assert.Equal(t, 2, rp.ProcessCachedData(ctx))
	assert.Equal(t, 0, rp.GetCacheStats()["total_readings"])

	stored, err := readings.ListByDeviceTest(ctx, id)
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	rec, err := tests.GetDeviceTest(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 93, rec.AfterBattery)

	assert.Equal(t, 0, rp.ProcessCachedData(ctx))
}

func TestProcessCachedData_RestoresOnFailure(t *testing.T) {
	rp, readings, _, id := setup(t)
	ctx := context.Background()

	readings.fail = true
	rp.AddReading(entities.BatteryReading{DeviceTestID: id, Level: 80, RecordedAt: time.Now()})
	assert.Equal(t, 0, rp.ProcessCachedData(ctx))
	assert.Len(t, rp.GetAllCachedData()[id], 1)

	readings.fail = false
	assert.Equal(t, 1, rp.ProcessCachedData(ctx))
}

func TestStart_FlushesOnCancel(t *testing.T) {
	rp, readings, _, id := setup(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := rp.Start(ctx)
	rp.AddReading(entities.BatteryReading{DeviceTestID: id, Level: 70, RecordedAt: time.Now()})
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("processor did not stop")
	}
	stored, err := readings.ListByDeviceTest(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}
