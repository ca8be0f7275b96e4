package repositories

import (
	"context"

	"stresstest-server/db"
	"stresstest-server/entities"

	"gorm.io/gorm"
)

type deviceTestPgRepository struct {
	db db.Database
}

func NewDeviceTestPgRepository(database db.Database) DeviceTestRepository {
	return &deviceTestPgRepository{db: database}
}

func (r *deviceTestPgRepository) Create(ctx context.Context, test *entities.DeviceTest) error {
	return translate(r.db.GetDB().WithContext(ctx).Create(test).Error)
}

func (r *deviceTestPgRepository) GetByID(ctx context.Context, id string) (*entities.DeviceTest, error) {
	var test entities.DeviceTest
	if err := r.db.GetDB().WithContext(ctx).Where("id = ?", id).First(&test).Error; err != nil {
		return nil, translate(err)
	}
	return &test, nil
}

// List returns every record in insertion order.
func (r *deviceTestPgRepository) List(ctx context.Context) ([]entities.DeviceTest, error) {
	var tests []entities.DeviceTest
	err := r.db.GetDB().WithContext(ctx).Order("created_at ASC").Order("id ASC").Find(&tests).Error
	if err != nil {
		return nil, translate(err)
	}
	return tests, nil
}

// Update overwrites every field of an existing record inside one transaction.
func (r *deviceTestPgRepository) Update(ctx context.Context, test *entities.DeviceTest) error {
	err := r.db.GetDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing entities.DeviceTest
		if err := tx.Select("id", "created_at").Where("id = ?", test.ID).First(&existing).Error; err != nil {
			return err
		}
		test.CreatedAt = existing.CreatedAt
		return tx.Save(test).Error
	})
	return translate(err)
}

func (r *deviceTestPgRepository) Delete(ctx context.Context, id string) error {
	res := r.db.GetDB().WithContext(ctx).Where("id = ?", id).Delete(&entities.DeviceTest{})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
