package entities

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// BatteryReading is a telemetry sample pushed by a device under test.
type BatteryReading struct {
	ID           string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	DeviceTestID string         `gorm:"index;type:varchar(36)" json:"device_test_id"`
	Level        int            `json:"level"`
	RecordedAt   time.Time      `gorm:"index" json:"recorded_at"`
	Meta         datatypes.JSON `json:"meta,omitempty"` // raw extras such as voltage or temperature
	CreatedAt    time.Time      `json:"created_at"`
}

func (r *BatteryReading) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	r.Level = ClampBattery(r.Level)
	return
}
