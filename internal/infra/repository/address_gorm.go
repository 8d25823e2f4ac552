package repository

import (
	"context"
	"errors"

	"app/internal/domain/model"
	repo "app/internal/repository"

	"gorm.io/gorm"
)

type AddressGormRepository struct {
	db *gorm.DB
}

// DI
func NewAddressGormRepository(db *gorm.DB) *AddressGormRepository {
	return &AddressGormRepository{db: db}
}

func (r *AddressGormRepository) Create(ctx context.Context, address model.Address) (model.Address, error) {
	if err := r.db.WithContext(ctx).Create(&address).Error; err != nil {
		return model.Address{}, err
	}
	return address, nil
}

func (r *AddressGormRepository) ListByUserID(ctx context.Context, userID int64) ([]model.Address, error) {
	var list []model.Address
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("is_default desc").
		Order("id asc").
		Find(&list).Error
	if err != nil {
		return []model.Address{}, err
	}
	return list, nil
}

func (r *AddressGormRepository) FindByID(ctx context.Context, addressID int64) (model.Address, error) {
	var a model.Address
	err := r.db.WithContext(ctx).First(&a, addressID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Address{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Address{}, err
	}
	return a, nil
}

func (r *AddressGormRepository) Update(ctx context.Context, address model.Address) error {
	res := r.db.WithContext(ctx).Model(&model.Address{}).
		Where("id = ?", address.ID).
		Updates(map[string]interface{}{
			"street":      address.Street,
			"city":        address.City,
			"state":       address.State,
			"postal_code": address.PostalCode,
			"country":     address.Country,
			"name":        address.Name,
			"phone":       address.Phone,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *AddressGormRepository) Delete(ctx context.Context, addressID int64) error {
	res := r.db.WithContext(ctx).Delete(&model.Address{}, addressID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *AddressGormRepository) IsOwnedByUser(ctx context.Context, addressID, userID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Address{}).
		Where("id = ? AND user_id = ?", addressID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// デフォルト住所の切り替え。既存のデフォルトを落としてから立てる
func (r *AddressGormRepository) SetDefault(ctx context.Context, userID, addressID int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Address{}).
			Where("user_id = ? AND is_default = ?", userID, true).
			Update("is_default", false).Error; err != nil {
			return err
		}

		res := tx.Model(&model.Address{}).
			Where("id = ? AND user_id = ?", addressID, userID).
			Update("is_default", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return repo.ErrNotFound
		}
		return nil
	})
}
