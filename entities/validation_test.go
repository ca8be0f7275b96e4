package entities

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validInput() DeviceTestInput {
	in := NewInput()
	in.SerialNumber = "SN1"
	in.IMEI = "111111111111111"
	in.SoftwareVersion = "v2.1.3"
	return in
}

func TestValidate_Defaults(t *testing.T) {
	in := validInput()
	in.Status = ""

	test, err := NewValidator(DefaultVersions).Validate(in)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, test.Status)
	assert.Equal(t, 100, test.BeforeBattery)
	assert.Zero(t, test.TotalHours)
	assert.Empty(t, test.ID)
}

func TestValidate_ClampsBattery(t *testing.T) {
	in := validInput()
	in.BeforeBattery = 150
	in.AfterBattery = -20

	test, err := NewValidator(DefaultVersions).Validate(in)
	require.NoError(t, err)
	assert.Equal(t, 100, test.BeforeBattery)
	assert.Equal(t, 0, test.AfterBattery)
}

func TestValidate_RequiredFields(t *testing.T) {
	in := validInput()
	in.SerialNumber = "   "
	in.IMEI = ""

	_, err := NewValidator(DefaultVersions).Validate(in)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "serial_number")
	assert.Contains(t, verr.Fields, "imei")
	assert.Equal(t, "validation failed: imei: is required; serial_number: is required", verr.Error())
}

func TestValidate_Status(t *testing.T) {
	in := validInput()
	in.Status = "Running"
	test, err := NewValidator(nil).Validate(in)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, test.Status)

	in.Status = "paused"
	_, err = NewValidator(nil).Validate(in)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "status")
}

func TestValidate_Versions(t *testing.T) {
	in := validInput()
	in.SoftwareVersion = "v9.9.9"

	_, err := NewValidator(DefaultVersions).Validate(in)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "software_version")

	// free-text variant
	test, err := NewValidator(nil).Validate(in)
	require.NoError(t, err)
	assert.Equal(t, "v9.9.9", test.SoftwareVersion)

	in.SoftwareVersion = ""
	_, err = NewValidator(DefaultVersions).Validate(in)
	assert.NoError(t, err)
}

func TestValidate_Times(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)

	in := validInput()
	in.StartTime = &start
	in.EndTime = &end
	_, err := NewValidator(nil).Validate(in)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "end_time")

	in = validInput()
	in.Status = StatusCompleted
	_, err = NewValidator(nil).Validate(in)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "is required when status is completed", verr.Fields["end_time"])

	in.TotalHours = -1
	in.EndTime = &start
	_, err = NewValidator(nil).Validate(in)
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "total_hours")
}

func TestValidate_DoesNotAliasInputTimes(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	in := validInput()
	in.StartTime = &start

	test, err := NewValidator(nil).Validate(in)
	require.NoError(t, err)
	start = start.Add(time.Hour)
	assert.Equal(t, 10, test.StartTime.Hour())
}

func TestClampBattery(t *testing.T) {
	assert.Equal(t, 0, ClampBattery(-1))
	assert.Equal(t, 42, ClampBattery(42))
	assert.Equal(t, 100, ClampBattery(150))
}

func TestDeviceTest_InputRoundTrip(t *testing.T) {
	end := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	d := DeviceTest{
		ID:            "abc",
		SerialNumber:  "SN2",
		IMEI:          "222",
		EndTime:       &end,
		BeforeBattery: 90,
		Status:        StatusCompleted,
		Remarks:       "ok",
	}
	in := d.Input()
	assert.Equal(t, "SN2", in.SerialNumber)
	assert.Equal(t, StatusCompleted, in.Status)
	require.NotNil(t, in.EndTime)
	assert.NotSame(t, d.EndTime, in.EndTime)

	c := d.Clone()
	assert.NotSame(t, d.EndTime, c.EndTime)
	assert.Equal(t, d, c)
}

func TestStatus_Terminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, Status("paused").Valid())
}
