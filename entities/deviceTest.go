package entities

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Status is the lifecycle state of a device test.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Statuses lists every known status in display order.
var Statuses = []Status{StatusPending, StatusRunning, StatusCompleted, StatusFailed}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no automatic transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// DefaultVersions are the EZBus software versions offered by the add form.
var DefaultVersions = []string{"v2.1.2", "v2.1.3", "v2.1.4", "v2.2.0"}

// DeviceTest is one tracked stress-test run for a physical device.
type DeviceTest struct {
	ID              string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	SerialNumber    string         `gorm:"index;not null" json:"serial_number"`
	IMEI            string         `gorm:"column:imei;index;not null" json:"imei"`
	SoftwareVersion string         `gorm:"type:varchar(64)" json:"software_version"`
	StartTime       *time.Time     `json:"start_time"`
	EndTime         *time.Time     `json:"end_time"`
	TotalHours      float64        `json:"total_hours"`
	BeforeBattery   int            `json:"before_battery"`
	AfterBattery    int            `json:"after_battery"`
	Status          Status         `gorm:"type:varchar(16);index" json:"status"`
	Remarks         string         `json:"remarks"`
	Notes           string         `gorm:"type:text" json:"notes"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName keeps the collection name used by the dashboard since day one.
func (DeviceTest) TableName() string { return "stress_tests" }

func (d *DeviceTest) BeforeCreate(tx *gorm.DB) (err error) {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.Status == "" {
		d.Status = StatusPending
	}
	return nil
}

// Input returns the editable fields of d, the starting point of an edit draft.
func (d DeviceTest) Input() DeviceTestInput {
	return DeviceTestInput{
		SerialNumber:    d.SerialNumber,
		IMEI:            d.IMEI,
		SoftwareVersion: d.SoftwareVersion,
		StartTime:       copyTime(d.StartTime),
		EndTime:         copyTime(d.EndTime),
		TotalHours:      d.TotalHours,
		BeforeBattery:   d.BeforeBattery,
		AfterBattery:    d.AfterBattery,
		Status:          d.Status,
		Remarks:         d.Remarks,
		Notes:           d.Notes,
	}
}

// Clone returns a deep copy so callers never share timestamp pointers.
func (d DeviceTest) Clone() DeviceTest {
	d.StartTime = copyTime(d.StartTime)
	d.EndTime = copyTime(d.EndTime)
	return d
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
