package repository

import (
	"context"
	"errors"
	"fmt"

	"rifas/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SaleRepository struct {
	db *gorm.DB
}

func NewSaleRepository(db *gorm.DB) *SaleRepository {
	return &SaleRepository{db: db}
}

func (r *SaleRepository) Create(ctx context.Context, tx *gorm.DB, sale *model.Sale) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(sale).Error
}

func (r *SaleRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Sale, error) {
	if tx == nil {
		tx = r.db
	}
	var sale model.Sale
	err := tx.WithContext(ctx).Where("id = ?", id).First(&sale).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: sale %d", model.ErrNotFound, id)
		}
		return nil, err
	}
	return &sale, nil
}

func (r *SaleRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*model.Sale, error) {
	var sale model.Sale
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&sale).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: sale %d", model.ErrNotFound, id)
		}
		return nil, err
	}
	return &sale, nil
}

// UpdatePaid 更新缓存的已付金额与状态
func (r *SaleRepository) UpdatePaid(ctx context.Context, tx *gorm.DB, id int64, amountPaid int64, status string) error {
	result := tx.WithContext(ctx).
		Model(&model.Sale{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"amount_paid": amountPaid,
			"status":      status,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: sale %d", model.ErrNotFound, id)
	}
	return nil
}

// Delete 仍有票引用该销售时拒绝删除，必须先解除关联
func (r *SaleRepository) Delete(ctx context.Context, id int64) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := r.GetByIDForUpdate(ctx, tx, id); err != nil {
			return err
		}

		refs, err := NewTicketRepository(r.db).CountBySaleID(ctx, tx, id)
		if err != nil {
			return err
		}
		if refs > 0 {
			return fmt.Errorf("%w: sale %d still referenced by %d tickets", model.ErrConflict, id, refs)
		}

		var installments int64
		if err := tx.Model(&model.Installment{}).Where("sale_id = ?", id).Count(&installments).Error; err != nil {
			return err
		}
		if installments > 0 {
			return fmt.Errorf("%w: sale %d has %d installments", model.ErrConflict, id, installments)
		}

		return tx.Delete(&model.Sale{}, id).Error
	})
	return TranslateError(err)
}
