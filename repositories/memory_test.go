package repositories

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stresstest-server/entities"
)

func TestMemoryDeviceTests_CRUD(t *testing.T) {
	repo := NewMemoryDeviceTestRepository()
	ctx := context.Background()

	a := &entities.DeviceTest{SerialNumber: "SN1", IMEI: "1"}
	b := &entities.DeviceTest{SerialNumber: "SN2", IMEI: "2", Status: entities.StatusRunning}
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, b))
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, entities.StatusPending, a.Status)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, a.ID, all[0].ID)
	assert.Equal(t, b.ID, all[1].ID)

	a.Remarks = "updated"
	require.NoError(t, repo.Update(ctx, a))
	got, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "updated", got.Remarks)

	require.NoError(t, repo.Delete(ctx, a.ID))
	_, err = repo.GetByID(ctx, a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.Update(ctx, a), ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, a.ID), ErrNotFound)

	all, err = repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestMemoryDeviceTests_IDsNeverReused(t *testing.T) {
	repo := NewMemoryDeviceTestRepository()
	ctx := context.Background()

	a := &entities.DeviceTest{ID: "fixed", SerialNumber: "SN1", IMEI: "1"}
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Delete(ctx, "fixed"))

	again := &entities.DeviceTest{ID: "fixed", SerialNumber: "SN1", IMEI: "1"}
	assert.ErrorIs(t, repo.Create(ctx, again), ErrStoreUnavailable)
}

func TestMemoryDeviceTests_ReturnsCopies(t *testing.T) {
	repo := NewMemoryDeviceTestRepository()
	ctx := context.Background()

	a := &entities.DeviceTest{SerialNumber: "SN1", IMEI: "1"}
	require.NoError(t, repo.Create(ctx, a))
	a.SerialNumber = "mutated after create"

	got, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "SN1", got.SerialNumber)

	got.SerialNumber = "mutated after read"
	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, "SN1", all[0].SerialNumber)
}

func TestMemoryDeviceTests_CancelledContext(t *testing.T) {
	repo := NewMemoryDeviceTestRepository()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := repo.Create(ctx, &entities.DeviceTest{SerialNumber: "SN1", IMEI: "1"})
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	all, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestMemoryUsers(t *testing.T) {
	repo := NewMemoryUserRepository()
	ctx := context.Background()

	u := &entities.User{Username: "admin", PasswordHash: "x"}
	require.NoError(t, repo.Create(ctx, u))
	assert.ErrorIs(t, repo.Create(ctx, &entities.User{Username: "admin"}), ErrStoreUnavailable)

	got, err := repo.GetByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryBatteryReadings(t *testing.T) {
	repo := NewMemoryBatteryReadingRepository()
	ctx := context.Background()

	require.NoError(t, repo.CreateBatch(ctx, []entities.BatteryReading{
		{DeviceTestID: "t1", Level: 120},
		{DeviceTestID: "t2", Level: 50},
	}))
	got, err := repo.ListByDeviceTest(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 100, got[0].Level)
	assert.NotEmpty(t, got[0].ID)
}
