package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rifas/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TicketRepository struct {
	db *gorm.DB
}

func NewTicketRepository(db *gorm.DB) *TicketRepository {
	return &TicketRepository{db: db}
}

func (r *TicketRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Ticket, error) {
	if tx == nil {
		tx = r.db
	}
	var ticket model.Ticket
	err := tx.WithContext(ctx).Where("id = ?", id).First(&ticket).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: ticket %d", model.ErrNotFound, id)
		}
		return nil, err
	}
	return &ticket, nil
}

// LockByIDs 按 id 升序锁定一组票
//
// 所有流程都按 id 升序加锁，避免并发事务在重叠的票集合上形成死锁
func (r *TicketRepository) LockByIDs(ctx context.Context, tx *gorm.DB, ids []int64) ([]*model.Ticket, error) {
	var tickets []*model.Ticket
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&tickets).Error
	if err != nil {
		return nil, err
	}
	if len(tickets) != len(ids) {
		found := make(map[int64]bool, len(tickets))
		for _, t := range tickets {
			found[t.ID] = true
		}
		for _, id := range ids {
			if !found[id] {
				return nil, fmt.Errorf("%w: ticket %d", model.ErrNotFound, id)
			}
		}
	}
	return tickets, nil
}

// LockBySaleID 锁定销售下的所有票（id 升序）
func (r *TicketRepository) LockBySaleID(ctx context.Context, tx *gorm.DB, saleID int64) ([]*model.Ticket, error) {
	var tickets []*model.Ticket
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("sale_id = ?", saleID).
		Order("id ASC").
		Find(&tickets).Error
	return tickets, err
}

func (r *TicketRepository) ListBySaleID(ctx context.Context, tx *gorm.DB, saleID int64) ([]*model.Ticket, error) {
	if tx == nil {
		tx = r.db
	}
	var tickets []*model.Ticket
	err := tx.WithContext(ctx).
		Where("sale_id = ?", saleID).
		Order("id ASC").
		Find(&tickets).Error
	return tickets, err
}

func (r *TicketRepository) ListByRaffleID(ctx context.Context, raffleID int64) ([]*model.Ticket, error) {
	var tickets []*model.Ticket
	err := r.db.WithContext(ctx).
		Where("raffle_id = ?", raffleID).
		Order("id ASC").
		Find(&tickets).Error
	return tickets, err
}

// Reserve 把一组票置为 RESERVED
//
// 条件更新：只有 AVAILABLE，或未绑定销售且预订已过期的票才会被更新。
// 受影响行数不等于票数说明有票已被他人占用，调用方必须回滚整个事务。
func (r *TicketRepository) Reserve(ctx context.Context, tx *gorm.DB, ids []int64, token string, until, now time.Time) error {
	result := tx.WithContext(ctx).
		Model(&model.Ticket{}).
		Where("id IN ?", ids).
		Where("(status = ? OR (status = ? AND sale_id IS NULL AND reserved_until <= ?))",
			model.TicketStatusAvailable, model.TicketStatusReserved, now).
		Updates(map[string]interface{}{
			"status":            model.TicketStatusReserved,
			"reservation_token": token,
			"reserved_until":    until,
			"client_id":         nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected != int64(len(ids)) {
		return fmt.Errorf("%w: ticket taken concurrently", model.ErrNotAvailable)
	}
	return nil
}

// AssignRequest 票分配参数
//
// Status 为 RESERVED（待付款销售）时必须给出新的 Token 与 Until，
// 其余状态会清空 token 与过期时间
type AssignRequest struct {
	TicketIDs     []int64
	SaleID        int64
	ClientID      int64
	Status        string
	ExpectedToken string
	Token         *string
	Until         *time.Time
}

// AssignToSale 把已校验的预订票批量分配给销售，全部成功或全部失败
//
// WHERE 条件带上原 token，同一个预订 token 只能被消费一次
func (r *TicketRepository) AssignToSale(ctx context.Context, tx *gorm.DB, req *AssignRequest) error {
	if req.Status == model.TicketStatusReserved && (req.Token == nil || req.Until == nil) {
		return fmt.Errorf("%w: reserved tickets need a token and expiry", model.ErrConflict)
	}
	updates := map[string]interface{}{
		"status":            req.Status,
		"sale_id":           req.SaleID,
		"client_id":         req.ClientID,
		"reservation_token": nil,
		"reserved_until":    nil,
	}
	if req.Status == model.TicketStatusReserved {
		updates["reservation_token"] = *req.Token
		updates["reserved_until"] = *req.Until
	}

	result := tx.WithContext(ctx).
		Model(&model.Ticket{}).
		Where("id IN ? AND status = ? AND reservation_token = ? AND sale_id IS NULL",
			req.TicketIDs, model.TicketStatusReserved, req.ExpectedToken).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected != int64(len(req.TicketIDs)) {
		return fmt.Errorf("%w: reservation already consumed", model.ErrReservationInvalid)
	}
	return nil
}

// UpdateStatusBySale 销售下所有票同步为新状态，离开 RESERVED 时清除 token 与过期时间
func (r *TicketRepository) UpdateStatusBySale(ctx context.Context, tx *gorm.DB, saleID int64, status string) (int64, error) {
	updates := map[string]interface{}{
		"status": status,
	}
	if status != model.TicketStatusReserved {
		updates["reservation_token"] = nil
		updates["reserved_until"] = nil
	}
	result := tx.WithContext(ctx).
		Model(&model.Ticket{}).
		Where("sale_id = ?", saleID).
		Updates(updates)
	return result.RowsAffected, result.Error
}

// Release 把 RESERVED 票恢复为 AVAILABLE，清空 token、过期时间、销售、客户
func (r *TicketRepository) Release(ctx context.Context, tx *gorm.DB, ids []int64) (int64, error) {
	result := tx.WithContext(ctx).
		Model(&model.Ticket{}).
		Where("id IN ? AND status = ?", ids, model.TicketStatusReserved).
		Updates(map[string]interface{}{
			"status":            model.TicketStatusAvailable,
			"reservation_token": nil,
			"reserved_until":    nil,
			"sale_id":           nil,
			"client_id":         nil,
		})
	return result.RowsAffected, result.Error
}

// FindExpired 查找已过期的预订（不加锁，仅用于挑选候选）
func (r *TicketRepository) FindExpired(ctx context.Context, now time.Time, limit int) ([]*model.Ticket, error) {
	var tickets []*model.Ticket
	err := r.db.WithContext(ctx).
		Where("status = ? AND reserved_until <= ?", model.TicketStatusReserved, now).
		Order("id ASC").
		Limit(limit).
		Find(&tickets).Error
	return tickets, err
}

// LockExpired 加锁后再次确认候选票仍处于过期预订状态
func (r *TicketRepository) LockExpired(ctx context.Context, tx *gorm.DB, ids []int64, now time.Time) ([]*model.Ticket, error) {
	var tickets []*model.Ticket
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ? AND status = ? AND reserved_until <= ?", ids, model.TicketStatusReserved, now).
		Order("id ASC").
		Find(&tickets).Error
	return tickets, err
}

// LockExpiredBySaleIDs 锁定这些销售下所有已过期的待付款票
//
// 同一销售的票必须在同一个事务里一起释放，不受清理批量大小限制
func (r *TicketRepository) LockExpiredBySaleIDs(ctx context.Context, tx *gorm.DB, saleIDs []int64, now time.Time) ([]*model.Ticket, error) {
	var tickets []*model.Ticket
	if len(saleIDs) == 0 {
		return tickets, nil
	}
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("sale_id IN ? AND status = ? AND reserved_until <= ?", saleIDs, model.TicketStatusReserved, now).
		Order("id ASC").
		Find(&tickets).Error
	return tickets, err
}

func (r *TicketRepository) CountBySaleID(ctx context.Context, tx *gorm.DB, saleID int64) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	var count int64
	err := tx.WithContext(ctx).Model(&model.Ticket{}).Where("sale_id = ?", saleID).Count(&count).Error
	return count, err
}
