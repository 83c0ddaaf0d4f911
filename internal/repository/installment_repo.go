package repository

import (
	"context"

	"rifas/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type InstallmentRepository struct {
	db *gorm.DB
}

func NewInstallmentRepository(db *gorm.DB) *InstallmentRepository {
	return &InstallmentRepository{db: db}
}

func (r *InstallmentRepository) CreateBatch(ctx context.Context, tx *gorm.DB, rows []*model.Installment) error {
	if len(rows) == 0 {
		return nil
	}
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(&rows).Error
}

// LockSumBySale 锁定销售的所有流水并求和，不信任 sale.amount_paid 缓存
func (r *InstallmentRepository) LockSumBySale(ctx context.Context, tx *gorm.DB, saleID int64) (int64, error) {
	var rows []*model.Installment
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("sale_id = ?", saleID).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return 0, err
	}
	var total int64
	for _, row := range rows {
		total += row.Amount
	}
	return total, nil
}

// SumBySale 只读求和
func (r *InstallmentRepository) SumBySale(ctx context.Context, tx *gorm.DB, saleID int64) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	var total int64
	err := tx.WithContext(ctx).
		Model(&model.Installment{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("sale_id = ?", saleID).
		Scan(&total).Error
	return total, err
}

type ticketPaid struct {
	TicketID int64
	Total    int64
}

// SumByTicket 按票汇总已付金额
func (r *InstallmentRepository) SumByTicket(ctx context.Context, tx *gorm.DB, saleID int64) (map[int64]int64, error) {
	if tx == nil {
		tx = r.db
	}
	var rows []ticketPaid
	err := tx.WithContext(ctx).
		Model(&model.Installment{}).
		Select("ticket_id, COALESCE(SUM(amount), 0) AS total").
		Where("sale_id = ?", saleID).
		Group("ticket_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[int64]int64, len(rows))
	for _, row := range rows {
		out[row.TicketID] = row.Total
	}
	return out, nil
}

func (r *InstallmentRepository) ListBySale(ctx context.Context, saleID int64) ([]*model.Installment, error) {
	var rows []*model.Installment
	err := r.db.WithContext(ctx).
		Where("sale_id = ?", saleID).
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}
