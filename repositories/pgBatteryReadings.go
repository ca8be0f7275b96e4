package repositories

import (
	"context"

	"stresstest-server/db"
	"stresstest-server/entities"
)

type batteryReadingPgRepository struct {
	db db.Database
}

func NewBatteryReadingPgRepository(database db.Database) BatteryReadingRepository {
	return &batteryReadingPgRepository{db: database}
}

func (r *batteryReadingPgRepository) CreateBatch(ctx context.Context, readings []entities.BatteryReading) error {
	if len(readings) == 0 {
		return nil
	}
	return translate(r.db.GetDB().WithContext(ctx).Create(&readings).Error)
}

func (r *batteryReadingPgRepository) ListByDeviceTest(ctx context.Context, deviceTestID string) ([]entities.BatteryReading, error) {
	var readings []entities.BatteryReading
	err := r.db.GetDB().WithContext(ctx).Where("device_test_id = ?", deviceTestID).Order("recorded_at ASC").Find(&readings).Error
	if err != nil {
		return nil, translate(err)
	}
	return readings, nil
}
