package usecases

import (
	"errors"
	"fmt"
	"time"

	"stresstest-server/entities"
)

// ErrInvalidTransition is returned when the lifecycle does not allow moving
// a record from its current status to the requested one.
var ErrInvalidTransition = errors.New("invalid status transition")

// transitions lists the automatic moves allowed out of each status.
// Terminal statuses have none; only ApplyEdit can leave them.
var transitions = map[entities.Status][]entities.Status{
	entities.StatusPending: {entities.StatusRunning},
	entities.StatusRunning: {entities.StatusCompleted, entities.StatusFailed},
}

// CanTransition reports whether the engine may move from one status to another.
func CanTransition(from, to entities.Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func transition(t *entities.DeviceTest, to entities.Status) (bool, error) {
	if t.Status == to {
		return false, nil
	}
	if !CanTransition(t.Status, to) {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, to)
	}
	t.Status = to
	return true, nil
}

// Start moves a pending test to running and stamps StartTime if unset.
func Start(t *entities.DeviceTest, now time.Time) (bool, error) {
	changed, err := transition(t, entities.StatusRunning)
	if err != nil || !changed {
		return changed, err
	}
	if t.StartTime == nil {
		start := now
		t.StartTime = &start
	}
	return true, nil
}

// MarkCompleted moves a running test to completed. EndTime and TotalHours
// are both derived from the single instant now. A test that is already
// completed is left untouched so elapsed time is never counted twice.
func MarkCompleted(t *entities.DeviceTest, now time.Time) (bool, error) {
	changed, err := transition(t, entities.StatusCompleted)
	if err != nil || !changed {
		return changed, err
	}
	end := now
	t.EndTime = &end
	t.TotalHours = CompletionHours(t.StartTime, end)
	return true, nil
}

// MarkFailed moves a running test to failed. No other field changes.
func MarkFailed(t *entities.DeviceTest, _ time.Time) (bool, error) {
	return transition(t, entities.StatusFailed)
}

// CompletionHours is the automatic totalHours derivation: elapsed hours
// between start and end, or 0 without a start time.
func CompletionHours(start *time.Time, end time.Time) float64 {
	if start == nil {
		return 0
	}
	h := end.Sub(*start).Hours()
	if h < 0 {
		return 0
	}
	return h
}

// ApplyEdit is the manual override path: every editable field of t is
// replaced by the validated edit, status and TotalHours included. It may move
// a terminal record back to pending or running.
func ApplyEdit(t *entities.DeviceTest, edited entities.DeviceTest) {
	t.SerialNumber = edited.SerialNumber
	t.IMEI = edited.IMEI
	t.SoftwareVersion = edited.SoftwareVersion
	t.StartTime = edited.StartTime
	t.EndTime = edited.EndTime
	t.TotalHours = ManualHours(edited.TotalHours)
	t.BeforeBattery = entities.ClampBattery(edited.BeforeBattery)
	t.AfterBattery = entities.ClampBattery(edited.AfterBattery)
	t.Status = edited.Status
	t.Remarks = edited.Remarks
	t.Notes = edited.Notes
}

// ManualHours is the operator-supplied totalHours derivation; negative
// values never reach a record.
func ManualHours(h float64) float64 {
	return max(h, 0)
}
