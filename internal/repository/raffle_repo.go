package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"rifas/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RaffleRepository struct {
	db *gorm.DB
}

func NewRaffleRepository(db *gorm.DB) *RaffleRepository {
	return &RaffleRepository{db: db}
}

func (r *RaffleRepository) Create(ctx context.Context, raffle *model.Raffle) error {
	return r.db.WithContext(ctx).Create(raffle).Error
}

func (r *RaffleRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Raffle, error) {
	if tx == nil {
		tx = r.db
	}
	var raffle model.Raffle
	err := tx.WithContext(ctx).Where("id = ?", id).First(&raffle).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: raffle %d", model.ErrNotFound, id)
		}
		return nil, err
	}
	return &raffle, nil
}

// GetByIDForUpdate 锁定抽奖行（SELECT ... FOR UPDATE）
func (r *RaffleRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*model.Raffle, error) {
	var raffle model.Raffle
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&raffle).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: raffle %d", model.ErrNotFound, id)
		}
		return nil, err
	}
	return &raffle, nil
}

// AddSold 调整已售票数，delta 可以为负（正式释放时回退）
func (r *RaffleRepository) AddSold(ctx context.Context, tx *gorm.DB, id int64, delta int) error {
	if delta == 0 {
		return nil
	}
	query := tx.WithContext(ctx).Model(&model.Raffle{}).Where("id = ?", id)
	if delta < 0 {
		query = query.Where("tickets_sold >= ?", -delta)
	}
	result := query.UpdateColumn("tickets_sold", gorm.Expr("tickets_sold + ?", delta))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: raffle %d sold counter cannot move by %d", model.ErrConflict, id, delta)
	}
	return nil
}

// GenerateTickets 一次性生成票号，已经生成过则拒绝
//
// 票号从 0 开始，按 TicketCount-1 的位数补零，例如 100 张票为 00..99
func (r *RaffleRepository) GenerateTickets(ctx context.Context, raffleID int64) (int, error) {
	created := 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		raffle, err := r.GetByIDForUpdate(ctx, tx, raffleID)
		if err != nil {
			return err
		}
		if raffle.TicketCount <= 0 {
			return fmt.Errorf("%w: raffle %d has no ticket count", model.ErrNoTickets, raffleID)
		}

		var existing int64
		if err := tx.Model(&model.Ticket{}).Where("raffle_id = ?", raffleID).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return fmt.Errorf("%w: raffle %d already has %d tickets", model.ErrConflict, raffleID, existing)
		}

		width := len(strconv.Itoa(raffle.TicketCount - 1))
		tickets := make([]*model.Ticket, 0, raffle.TicketCount)
		for i := 0; i < raffle.TicketCount; i++ {
			tickets = append(tickets, &model.Ticket{
				RaffleID: raffleID,
				Number:   fmt.Sprintf("%0*d", width, i),
				Status:   model.TicketStatusAvailable,
			})
		}
		if err := tx.CreateInBatches(tickets, 500).Error; err != nil {
			return err
		}
		created = len(tickets)
		return nil
	})
	return created, TranslateError(err)
}
