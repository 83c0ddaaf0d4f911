package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"rifas/internal/clock"
	"rifas/internal/config"
	"rifas/internal/infrastructure/cache"
	"rifas/internal/ledger"
	"rifas/internal/metrics"
	"rifas/internal/model"
	"rifas/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// BookingService 公开购票：校验预订 -> 识别客户 -> 创建销售 -> 分配票 -> 登记首付
type BookingService struct {
	db         *gorm.DB
	cfg        *config.Config
	clock      clock.Clock
	board      cache.Board
	metrics    *metrics.Metrics
	log        *zap.Logger
	sales      *SaleService
	raffleRepo *repository.RaffleRepository
	ticketRepo *repository.TicketRepository
	clientRepo *repository.ClientRepository
	outboxRepo *repository.OutboxRepository
}

func NewBookingService(deps Deps, sales *SaleService) *BookingService {
	deps = deps.withDefaults()
	if sales == nil {
		sales = NewSaleService(deps)
	}
	return &BookingService{
		db:         deps.DB,
		cfg:        deps.Config,
		clock:      deps.Clock,
		board:      deps.Board,
		metrics:    deps.Metrics,
		log:        deps.Logger.With(zap.String("component", "booking")),
		sales:      sales,
		raffleRepo: repository.NewRaffleRepository(deps.DB),
		ticketRepo: repository.NewTicketRepository(deps.DB),
		clientRepo: repository.NewClientRepository(deps.DB),
		outboxRepo: repository.NewOutboxRepository(deps.DB),
	}
}

type ClientInfo struct {
	Name       string
	Phone      string
	Email      string
	NationalID string
	Address    string
}

type BookingRequest struct {
	RaffleID        int64
	TicketIDs       []int64
	Token           string
	Client          ClientInfo
	AmountPaid      int64
	PaymentMethodID *int64
	Online          bool
}

type BookingResult struct {
	Sale      *model.Sale   `json:"sale"`
	Client    *model.Client `json:"client"`
	TicketIDs []int64       `json:"ticket_ids"`
	ReceiptNo string        `json:"receipt_no,omitempty"`
	// HoldUntil 未付款时票为该销售保留到此时间，之后由过期清理释放
	HoldUntil *time.Time `json:"hold_until,omitempty"`
}

// Book 用有效预订完成下单，整个购物车在一个事务中全部成功或全部失败
func (s *BookingService) Book(ctx context.Context, req *BookingRequest) (result *BookingResult, err error) {
	defer func() { s.metrics.ObserveBooking(err) }()

	ids, _ := sortedIDs(req.TicketIDs)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: booking without tickets", model.ErrNoTickets)
	}
	if limit := s.cfg.Business.MaxTicketsPerBooking; limit > 0 && len(ids) > limit {
		return nil, fmt.Errorf("%w: at most %d tickets per booking", model.ErrInvalidInput, limit)
	}
	if strings.TrimSpace(req.Token) == "" {
		return nil, fmt.Errorf("%w: missing reservation token", model.ErrReservationInvalid)
	}
	if req.AmountPaid < 0 {
		return nil, fmt.Errorf("%w: paid amount cannot be negative", model.ErrInvalidAmount)
	}

	now := s.clock.Now()
	result = &BookingResult{TicketIDs: ids}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. 锁定抽奖
		raffle, err := s.raffleRepo.GetByIDForUpdate(ctx, tx, req.RaffleID)
		if err != nil {
			return err
		}
		if raffle.Status != model.RaffleStatusActive {
			return fmt.Errorf("%w: raffle %d is %s", model.ErrRaffleNotActive, raffle.ID, raffle.Status)
		}

		// 2. 锁定并校验每张票的预订
		tickets, err := s.ticketRepo.LockByIDs(ctx, tx, ids)
		if err != nil {
			return err
		}
		for _, t := range tickets {
			if t.RaffleID != raffle.ID {
				return fmt.Errorf("%w: ticket %d does not belong to raffle %d", model.ErrReservationInvalid, t.ID, raffle.ID)
			}
			if reason := checkReservation(t, req.Token, now); reason != "" {
				return fmt.Errorf("%w: %s", model.ErrReservationInvalid, reason)
			}
		}

		amountTotal := raffle.TicketPrice * int64(len(tickets))
		if req.AmountPaid > amountTotal {
			return fmt.Errorf("%w: paid amount %d exceeds total %d", model.ErrInvalidAmount, req.AmountPaid, amountTotal)
		}

		// 3. 识别客户
		client, err := s.resolveClient(ctx, tx, &req.Client)
		if err != nil {
			return err
		}
		result.Client = client

		// 4. 创建销售并分配票
		sale, err := s.sales.CreateSale(ctx, tx, &CreateSaleRequest{
			RaffleID:        raffle.ID,
			ClientID:        client.ID,
			AmountTotal:     amountTotal,
			AmountPaid:      req.AmountPaid,
			PaymentMethodID: req.PaymentMethodID,
			Online:          req.Online,
		})
		if err != nil {
			return err
		}
		result.Sale = sale

		assign := &repository.AssignRequest{
			TicketIDs:     ids,
			SaleID:        sale.ID,
			ClientID:      client.ID,
			Status:        ledger.DeriveTicketStatus(sale.Status),
			ExpectedToken: req.Token,
		}
		if assign.Status == model.TicketStatusReserved {
			holdToken, err := newReservationToken()
			if err != nil {
				return err
			}
			holdUntil := now.Add(s.cfg.Business.PendingHold())
			assign.Token = &holdToken
			assign.Until = &holdUntil
			result.HoldUntil = &holdUntil
		}
		if err := s.ticketRepo.AssignToSale(ctx, tx, assign); err != nil {
			return err
		}

		// 5. 首付按票拆分，公开流程登记为待确认
		if req.AmountPaid > 0 {
			receiptNo, err := s.sales.appendInstallments(ctx, tx, sale, tickets, &installmentBatch{
				amount:          req.AmountPaid,
				paymentMethodID: req.PaymentMethodID,
				status:          model.InstallmentStatusRegistered,
				note:            "initial payment",
			})
			if err != nil {
				return err
			}
			result.ReceiptNo = receiptNo
		}

		// 6. 已售数
		if err := s.raffleRepo.AddSold(ctx, tx, raffle.ID, len(ids)); err != nil {
			return err
		}

		msg, err := newOutboxMessage(s.cfg.Kafka.Topic.SaleEvents, model.EventSaleBooked, map[string]interface{}{
			"sale_no":      sale.SaleNo,
			"sale_id":      sale.ID,
			"raffle_id":    raffle.ID,
			"client_id":    client.ID,
			"ticket_ids":   ids,
			"amount_total": sale.AmountTotal,
			"amount_paid":  sale.AmountPaid,
			"status":       sale.Status,
			"online":       sale.Online,
		})
		if err != nil {
			return err
		}
		return s.outboxRepo.Create(ctx, tx, msg)
	})
	if err != nil {
		return nil, repository.TranslateError(err)
	}

	invalidateBoard(ctx, s.board, s.log, req.RaffleID)
	s.log.Info("sale booked",
		zap.String("sale_no", result.Sale.SaleNo),
		zap.Int64("raffle_id", req.RaffleID),
		zap.Int("tickets", len(ids)),
		zap.Int64("amount_total", result.Sale.AmountTotal),
		zap.Int64("amount_paid", result.Sale.AmountPaid),
		zap.String("status", result.Sale.Status))
	return result, nil
}

// resolveClient 先按手机号、再按证件号查找，都没有时创建，避免同一买家重复建档
func (s *BookingService) resolveClient(ctx context.Context, tx *gorm.DB, info *ClientInfo) (*model.Client, error) {
	phone := strings.TrimSpace(info.Phone)
	nationalID := strings.TrimSpace(info.NationalID)

	client, err := s.clientRepo.FindByPhone(ctx, tx, phone)
	if err != nil {
		return nil, err
	}
	if client != nil {
		return client, nil
	}
	client, err = s.clientRepo.FindByNationalID(ctx, tx, nationalID)
	if err != nil {
		return nil, err
	}
	if client != nil {
		return client, nil
	}

	if phone == "" {
		return nil, fmt.Errorf("%w: client phone is required", model.ErrInvalidInput)
	}
	client = &model.Client{
		Name:    strings.TrimSpace(info.Name),
		Phone:   phone,
		Email:   strings.TrimSpace(info.Email),
		Address: strings.TrimSpace(info.Address),
	}
	if nationalID != "" {
		client.NationalID = &nationalID
	}
	if err := s.clientRepo.Create(ctx, tx, client); err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	return client, nil
}
