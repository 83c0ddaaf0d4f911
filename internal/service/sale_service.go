package service

import (
	"context"
	"fmt"
	"time"

	"rifas/internal/clock"
	"rifas/internal/config"
	"rifas/internal/infrastructure/cache"
	"rifas/internal/ledger"
	"rifas/internal/metrics"
	"rifas/internal/model"
	"rifas/internal/repository"
	"rifas/pkg/idgen"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SaleService 销售聚合与分期付款登记
//
// sale.amount_paid 只是查询用的缓存列，所有涉及金额的判断都重新对 installment 求和。
// 加锁顺序：销售 -> 流水 -> 票（id 升序）
type SaleService struct {
	db              *gorm.DB
	cfg             *config.Config
	clock           clock.Clock
	board           cache.Board
	metrics         *metrics.Metrics
	log             *zap.Logger
	saleRepo        *repository.SaleRepository
	ticketRepo      *repository.TicketRepository
	installmentRepo *repository.InstallmentRepository
	outboxRepo      *repository.OutboxRepository
}

func NewSaleService(deps Deps) *SaleService {
	deps = deps.withDefaults()
	return &SaleService{
		db:              deps.DB,
		cfg:             deps.Config,
		clock:           deps.Clock,
		board:           deps.Board,
		metrics:         deps.Metrics,
		log:             deps.Logger.With(zap.String("component", "sale")),
		saleRepo:        repository.NewSaleRepository(deps.DB),
		ticketRepo:      repository.NewTicketRepository(deps.DB),
		installmentRepo: repository.NewInstallmentRepository(deps.DB),
		outboxRepo:      repository.NewOutboxRepository(deps.DB),
	}
}

type CreateSaleRequest struct {
	RaffleID        int64
	ClientID        int64
	AmountTotal     int64
	AmountPaid      int64
	PaymentMethodID *int64
	Online          bool
}

// CreateSale 在调用方事务中创建销售，状态由金额推导；不移动任何票
func (s *SaleService) CreateSale(ctx context.Context, tx *gorm.DB, req *CreateSaleRequest) (*model.Sale, error) {
	if req.AmountTotal <= 0 {
		return nil, fmt.Errorf("%w: sale total must be greater than zero", model.ErrInvalidAmount)
	}
	if req.AmountPaid < 0 || req.AmountPaid > req.AmountTotal {
		return nil, fmt.Errorf("%w: paid amount %d outside 0..%d", model.ErrInvalidAmount, req.AmountPaid, req.AmountTotal)
	}

	sale := &model.Sale{
		SaleNo:          idgen.GenerateSaleNo(),
		RaffleID:        req.RaffleID,
		ClientID:        req.ClientID,
		AmountTotal:     req.AmountTotal,
		AmountPaid:      req.AmountPaid,
		Status:          ledger.DeriveSaleStatus(req.AmountTotal, req.AmountPaid),
		Online:          req.Online,
		PaymentMethodID: req.PaymentMethodID,
	}
	if err := s.saleRepo.Create(ctx, tx, sale); err != nil {
		return nil, fmt.Errorf("create sale: %w", err)
	}
	return sale, nil
}

type InstallmentRequest struct {
	SaleID          int64
	Amount          int64
	PaymentMethodID *int64
	ActorID         *int64 // 为空表示公开/无人值守流程
	Note            string
}

// RecordInstallment 登记一笔付款并按票均分
//
// 流程（同一事务）：
//  1. 锁定销售
//  2. 锁定并汇总已有流水，校验剩余应付
//  3. 锁定销售下的所有票
//  4. 按票均分，每张票写入一条流水
//  5. 更新销售缓存的已付金额与状态
//  6. 票状态跟随销售状态
func (s *SaleService) RecordInstallment(ctx context.Context, req *InstallmentRequest) (sale *model.Sale, err error) {
	defer func() { s.metrics.ObserveInstallment(err) }()

	var receiptNo string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.saleRepo.GetByIDForUpdate(ctx, tx, req.SaleID)
		if err != nil {
			return err
		}

		paid, err := s.installmentRepo.LockSumBySale(ctx, tx, locked.ID)
		if err != nil {
			return err
		}
		remaining := locked.AmountTotal - paid
		if remaining <= 0 {
			return fmt.Errorf("%w: sale %s", model.ErrAlreadySettled, locked.SaleNo)
		}
		if err := ledger.ValidateInstallment(req.Amount, remaining); err != nil {
			return err
		}

		tickets, err := s.ticketRepo.LockBySaleID(ctx, tx, locked.ID)
		if err != nil {
			return err
		}
		if len(tickets) == 0 {
			return fmt.Errorf("%w: sale %s", model.ErrNoTickets, locked.SaleNo)
		}

		status := model.InstallmentStatusRegistered
		if req.ActorID != nil {
			status = model.InstallmentStatusConfirmed
		}
		receiptNo, err = s.appendInstallments(ctx, tx, locked, tickets, &installmentBatch{
			amount:          req.Amount,
			paymentMethodID: req.PaymentMethodID,
			actorID:         req.ActorID,
			status:          status,
			note:            req.Note,
		})
		if err != nil {
			return err
		}

		newPaid := paid + req.Amount
		newStatus := ledger.DeriveSaleStatus(locked.AmountTotal, newPaid)
		if err := s.saleRepo.UpdatePaid(ctx, tx, locked.ID, newPaid, newStatus); err != nil {
			return err
		}
		if _, err := s.ticketRepo.UpdateStatusBySale(ctx, tx, locked.ID, ledger.DeriveTicketStatus(newStatus)); err != nil {
			return err
		}

		msg, err := newOutboxMessage(s.cfg.Kafka.Topic.SaleEvents, model.EventInstallmentRecorded, map[string]interface{}{
			"sale_no":     locked.SaleNo,
			"sale_id":     locked.ID,
			"receipt_no":  receiptNo,
			"amount":      req.Amount,
			"amount_paid": newPaid,
			"status":      newStatus,
		})
		if err != nil {
			return err
		}
		if err := s.outboxRepo.Create(ctx, tx, msg); err != nil {
			return err
		}

		locked.AmountPaid = newPaid
		locked.Status = newStatus
		sale = locked
		return nil
	})
	if err != nil {
		return nil, repository.TranslateError(err)
	}

	invalidateBoard(ctx, s.board, s.log, sale.RaffleID)
	s.log.Info("installment recorded",
		zap.String("sale_no", sale.SaleNo),
		zap.String("receipt_no", receiptNo),
		zap.Int64("amount", req.Amount),
		zap.Int64("amount_paid", sale.AmountPaid),
		zap.String("status", sale.Status))
	return sale, nil
}

type installmentBatch struct {
	amount          int64
	paymentMethodID *int64
	actorID         *int64
	status          string
	note            string
}

// appendInstallments 把一笔付款拆到每张票上，余数计入 id 最大的票；返回收据号
func (s *SaleService) appendInstallments(ctx context.Context, tx *gorm.DB, sale *model.Sale, tickets []*model.Ticket, b *installmentBatch) (string, error) {
	parts, err := ledger.Split(b.amount, len(tickets))
	if err != nil {
		return "", err
	}
	receiptNo := idgen.GenerateReceiptNo()
	rows := make([]*model.Installment, 0, len(tickets))
	for i, t := range tickets {
		rows = append(rows, &model.Installment{
			ReceiptNo:       receiptNo,
			SaleID:          sale.ID,
			TicketID:        t.ID,
			Amount:          parts[i],
			Currency:        s.cfg.Business.Currency,
			PaymentMethodID: b.paymentMethodID,
			ActorID:         b.actorID,
			Status:          b.status,
			Note:            b.note,
		})
	}
	if err := s.installmentRepo.CreateBatch(ctx, tx, rows); err != nil {
		return "", fmt.Errorf("insert installments: %w", err)
	}
	return receiptNo, nil
}

// TicketBalance 单张票的展示用金额，不是独立的结算对象
type TicketBalance struct {
	TicketID int64  `json:"ticket_id"`
	Number   string `json:"number"`
	Status   string `json:"status"`
	Price    int64  `json:"price"`
	Paid     int64  `json:"paid"`
	Balance  int64  `json:"balance"`
}

type FinancialSummary struct {
	SaleID      int64           `json:"sale_id"`
	SaleNo      string          `json:"sale_no"`
	Status      string          `json:"status"`
	AmountTotal int64           `json:"amount_total"`
	AmountPaid  int64           `json:"amount_paid"`
	Balance     int64           `json:"balance"`
	Tickets     []TicketBalance `json:"tickets"`
	ComputedAt  time.Time       `json:"computed_at"`
}

// GetFinancialSummary 只读汇总，已付金额从流水重新计算
//
// 所有读取放在同一个事务里，看到的是同一个快照，已付总额与每张票的已付金额一致
func (s *SaleService) GetFinancialSummary(ctx context.Context, saleID int64) (*FinancialSummary, error) {
	var (
		sale         *model.Sale
		paid         int64
		tickets      []*model.Ticket
		paidByTicket map[int64]int64
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if sale, err = s.saleRepo.GetByID(ctx, tx, saleID); err != nil {
			return err
		}
		if paid, err = s.installmentRepo.SumBySale(ctx, tx, saleID); err != nil {
			return err
		}
		if tickets, err = s.ticketRepo.ListBySaleID(ctx, tx, saleID); err != nil {
			return err
		}
		paidByTicket, err = s.installmentRepo.SumByTicket(ctx, tx, saleID)
		return err
	})
	if err != nil {
		return nil, repository.TranslateError(err)
	}

	summary := &FinancialSummary{
		SaleID:      sale.ID,
		SaleNo:      sale.SaleNo,
		Status:      ledger.DeriveSaleStatus(sale.AmountTotal, paid),
		AmountTotal: sale.AmountTotal,
		AmountPaid:  paid,
		Balance:     ledger.Balance(sale.AmountTotal, paid),
		Tickets:     make([]TicketBalance, 0, len(tickets)),
		ComputedAt:  s.clock.Now(),
	}
	if len(tickets) == 0 {
		return summary, nil
	}

	prices, err := ledger.PerTicketPrice(sale.AmountTotal, len(tickets))
	if err != nil {
		return nil, err
	}
	for i, t := range tickets {
		ticketPaid := paidByTicket[t.ID]
		summary.Tickets = append(summary.Tickets, TicketBalance{
			TicketID: t.ID,
			Number:   t.Number,
			Status:   t.Status,
			Price:    prices[i],
			Paid:     ticketPaid,
			Balance:  ledger.Balance(prices[i], ticketPaid),
		})
	}
	return summary, nil
}
