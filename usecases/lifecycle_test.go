package usecases

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stresstest-server/entities"
)

var t0 = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func TestStart(t *testing.T) {
	rec := &entities.DeviceTest{Status: entities.StatusPending}

	changed, err := Start(rec, t0)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, entities.StatusRunning, rec.Status)
	require.NotNil(t, rec.StartTime)
	assert.Equal(t, t0, *rec.StartTime)

	changed, err = Start(rec, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, t0, *rec.StartTime)
}

func TestStart_KeepsExistingStartTime(t *testing.T) {
	earlier := t0.Add(-time.Hour)
	rec := &entities.DeviceTest{Status: entities.StatusPending, StartTime: &earlier}

	_, err := Start(rec, t0)
	require.NoError(t, err)
	assert.Equal(t, earlier, *rec.StartTime)
}

func TestMarkCompleted_AfterTwoHours(t *testing.T) {
	rec := &entities.DeviceTest{Status: entities.StatusPending}
	_, err := Start(rec, t0)
	require.NoError(t, err)

	changed, err := MarkCompleted(rec, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, entities.StatusCompleted, rec.Status)
	require.NotNil(t, rec.EndTime)
	assert.Equal(t, t0.Add(2*time.Hour), *rec.EndTime)
	assert.InDelta(t, 2.0, rec.TotalHours, 1e-9)
}

func TestMarkCompleted_Twice(t *testing.T) {
	start := t0
	rec := &entities.DeviceTest{Status: entities.StatusRunning, StartTime: &start}

	_, err := MarkCompleted(rec, t0.Add(2*time.Hour))
	require.NoError(t, err)

	changed, err := MarkCompleted(rec, t0.Add(5*time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.InDelta(t, 2.0, rec.TotalHours, 1e-9)
	assert.Equal(t, t0.Add(2*time.Hour), *rec.EndTime)
}

func TestMarkCompleted_WithoutStartTime(t *testing.T) {
	rec := &entities.DeviceTest{Status: entities.StatusRunning}

	_, err := MarkCompleted(rec, t0)
	require.NoError(t, err)
	assert.Zero(t, rec.TotalHours)
	assert.NotNil(t, rec.EndTime)
}

func TestMarkFailed(t *testing.T) {
	start := t0
	rec := &entities.DeviceTest{Status: entities.StatusRunning, StartTime: &start, TotalHours: 1.5}

	changed, err := MarkFailed(rec, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, entities.StatusFailed, rec.Status)
	assert.Nil(t, rec.EndTime)
	assert.Equal(t, 1.5, rec.TotalHours)
}

func TestInvalidTransitions(t *testing.T) {
	cases := []struct {
		from entities.Status
		fn   func(*entities.DeviceTest, time.Time) (bool, error)
	}{
		{entities.StatusPending, MarkCompleted},
		{entities.StatusPending, MarkFailed},
		{entities.StatusCompleted, Start},
		{entities.StatusCompleted, MarkFailed},
		{entities.StatusFailed, Start},
		{entities.StatusFailed, MarkCompleted},
	}
	for _, tc := range cases {
		rec := &entities.DeviceTest{Status: tc.from}
		changed, err := tc.fn(rec, t0)
		assert.ErrorIs(t, err, ErrInvalidTransition, "from %s", tc.from)
		assert.False(t, changed)
		assert.Equal(t, tc.from, rec.Status)
	}
}

func TestCompletionHours(t *testing.T) {
	start := t0
	assert.Zero(t, CompletionHours(nil, t0))
	assert.InDelta(t, 0.5, CompletionHours(&start, t0.Add(30*time.Minute)), 1e-9)
	assert.Zero(t, CompletionHours(&start, t0.Add(-time.Hour)))
}

func TestApplyEdit_CanRevertTerminalStatus(t *testing.T) {
	end := t0
	rec := &entities.DeviceTest{ID: "x", Status: entities.StatusCompleted, EndTime: &end, TotalHours: 3}

	ApplyEdit(rec, entities.DeviceTest{
		SerialNumber:  "SN9",
		IMEI:          "9",
		Status:        entities.StatusRunning,
		TotalHours:    -4,
		BeforeBattery: 120,
	})
	assert.Equal(t, "x", rec.ID)
	assert.Equal(t, entities.StatusRunning, rec.Status)
	assert.Nil(t, rec.EndTime)
	assert.Zero(t, rec.TotalHours)
	assert.Equal(t, 100, rec.BeforeBattery)
	assert.Equal(t, "SN9", rec.SerialNumber)
}
