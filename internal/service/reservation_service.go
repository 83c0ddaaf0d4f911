package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sort"
	"time"

	"rifas/internal/clock"
	"rifas/internal/config"
	"rifas/internal/infrastructure/cache"
	"rifas/internal/metrics"
	"rifas/internal/model"
	"rifas/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ReservationService 票的预订、校验与释放
//
// 所有状态变化都在事务中对目标票行加锁后进行，多张票一律按 id 升序加锁
type ReservationService struct {
	db         *gorm.DB
	cfg        *config.Config
	clock      clock.Clock
	board      cache.Board
	metrics    *metrics.Metrics
	log        *zap.Logger
	raffleRepo *repository.RaffleRepository
	ticketRepo *repository.TicketRepository
	outboxRepo *repository.OutboxRepository
}

func NewReservationService(deps Deps) *ReservationService {
	deps = deps.withDefaults()
	return &ReservationService{
		db:         deps.DB,
		cfg:        deps.Config,
		clock:      deps.Clock,
		board:      deps.Board,
		metrics:    deps.Metrics,
		log:        deps.Logger.With(zap.String("component", "reservation")),
		raffleRepo: repository.NewRaffleRepository(deps.DB),
		ticketRepo: repository.NewTicketRepository(deps.DB),
		outboxRepo: repository.NewOutboxRepository(deps.DB),
	}
}

// Reservation 预订凭证，Token 只在此处返回一次，下单时原样提交
type Reservation struct {
	RaffleID  int64     `json:"raffle_id"`
	TicketIDs []int64   `json:"ticket_ids"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ReleaseResult 一次过期清理的结果
//
// Simple：未下单的预订；Formal：已下单但在保留期内没有付款的票
type ReleaseResult struct {
	Simple int `json:"simple"`
	Formal int `json:"formal"`
}

func (r ReleaseResult) Total() int {
	return r.Simple + r.Formal
}

// Reserve 预订单张票
func (s *ReservationService) Reserve(ctx context.Context, ticketID int64, ttl time.Duration) (*Reservation, error) {
	ticket, err := s.ticketRepo.GetByID(ctx, nil, ticketID)
	if err != nil {
		s.metrics.ObserveReservation(err)
		return nil, err
	}
	return s.ReserveTickets(ctx, ticket.RaffleID, []int64{ticketID}, ttl)
}

// ReserveTickets 以同一个 token 预订一组票，全部成功或全部失败
//
// ttl <= 0 时使用配置的默认时长
func (s *ReservationService) ReserveTickets(ctx context.Context, raffleID int64, ids []int64, ttl time.Duration) (res *Reservation, err error) {
	defer func() { s.metrics.ObserveReservation(err) }()

	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: empty reservation", model.ErrNoTickets)
	}
	sorted, dup := sortedIDs(ids)
	if dup {
		return nil, fmt.Errorf("%w: duplicate ticket ids", model.ErrConflict)
	}
	if limit := s.cfg.Business.MaxTicketsPerBooking; limit > 0 && len(sorted) > limit {
		return nil, fmt.Errorf("%w: at most %d tickets per reservation", model.ErrInvalidInput, limit)
	}
	if ttl <= 0 {
		ttl = s.cfg.Business.ReservationTTL()
	}

	token, err := newReservationToken()
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	until := now.Add(ttl)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		raffle, err := s.raffleRepo.GetByID(ctx, tx, raffleID)
		if err != nil {
			return err
		}
		if raffle.Status != model.RaffleStatusActive {
			return fmt.Errorf("%w: raffle %d is %s", model.ErrRaffleNotActive, raffleID, raffle.Status)
		}

		tickets, err := s.ticketRepo.LockByIDs(ctx, tx, sorted)
		if err != nil {
			return err
		}
		for _, t := range tickets {
			if t.RaffleID != raffleID {
				return fmt.Errorf("%w: ticket %d does not belong to raffle %d", model.ErrConflict, t.ID, raffleID)
			}
			if !t.Reservable(now) {
				return fmt.Errorf("%w: ticket %s is %s", model.ErrNotAvailable, t.Number, t.Status)
			}
		}

		if err := s.ticketRepo.Reserve(ctx, tx, sorted, token, until, now); err != nil {
			return err
		}

		msg, err := newOutboxMessage(s.cfg.Kafka.Topic.ReservationEvents, model.EventReservationCreated, map[string]interface{}{
			"raffle_id":  raffleID,
			"ticket_ids": sorted,
			"expires_at": until.Format(time.RFC3339),
		})
		if err != nil {
			return err
		}
		return s.outboxRepo.Create(ctx, tx, msg)
	})
	if err != nil {
		return nil, repository.TranslateError(err)
	}

	invalidateBoard(ctx, s.board, s.log, raffleID)
	s.log.Debug("tickets reserved",
		zap.Int64("raffle_id", raffleID),
		zap.Int64s("ticket_ids", sorted),
		zap.Time("expires_at", until))

	return &Reservation{
		RaffleID:  raffleID,
		TicketIDs: sorted,
		Token:     token,
		ExpiresAt: until,
	}, nil
}

// ValidateReservation 票必须处于 RESERVED、token 一致且未过期，否则返回 ErrConflict
func (s *ReservationService) ValidateReservation(ctx context.Context, ticketID int64, token string) error {
	ticket, err := s.ticketRepo.GetByID(ctx, nil, ticketID)
	if err != nil {
		return err
	}
	if reason := checkReservation(ticket, token, s.clock.Now()); reason != "" {
		return fmt.Errorf("%w: %s", model.ErrConflict, reason)
	}
	return nil
}

// CancelReservation 持有 token 的一方主动放弃预订
func (s *ReservationService) CancelReservation(ctx context.Context, ticketID int64, token string) error {
	return s.release(ctx, ticketID, &token)
}

// Release 释放一张尚未下单的预订票
//
// 已绑定销售的票只能由过期清理释放；INSTALLMENT / PAID 票带有付款流水，不能释放
func (s *ReservationService) Release(ctx context.Context, ticketID int64) error {
	return s.release(ctx, ticketID, nil)
}

func (s *ReservationService) release(ctx context.Context, ticketID int64, token *string) error {
	var raffleID int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tickets, err := s.ticketRepo.LockByIDs(ctx, tx, []int64{ticketID})
		if err != nil {
			return err
		}
		ticket := tickets[0]
		raffleID = ticket.RaffleID

		if token != nil {
			if reason := checkReservation(ticket, *token, s.clock.Now()); reason != "" {
				return fmt.Errorf("%w: %s", model.ErrConflict, reason)
			}
		}
		if ticket.Status != model.TicketStatusReserved {
			return fmt.Errorf("%w: ticket %d is %s", model.ErrConflict, ticket.ID, ticket.Status)
		}
		if ticket.SaleID != nil {
			return fmt.Errorf("%w: ticket %d is held for sale %d", model.ErrConflict, ticket.ID, *ticket.SaleID)
		}

		if _, err := s.ticketRepo.Release(ctx, tx, []int64{ticket.ID}); err != nil {
			return err
		}
		return s.writeReleased(ctx, tx, ticket.RaffleID, []int64{ticket.ID}, metrics.ReleaseExplicit)
	})
	if err != nil {
		return repository.TranslateError(err)
	}

	invalidateBoard(ctx, s.board, s.log, raffleID)
	s.metrics.AddReleased(metrics.ReleaseExplicit, 1)
	return nil
}

// ReleaseExpiredBatch 释放所有已过期的预订
//
// 候选票不加锁查出后按抽奖分组，每个抽奖一个事务：先锁抽奖行再锁票，
// 与下单流程的加锁顺序一致。加锁后重新确认过期条件，因此与下单、付款并发执行是安全的，
// 重复执行不会多释放。某个抽奖失败不影响其他抽奖，错误合并返回。
func (s *ReservationService) ReleaseExpiredBatch(ctx context.Context) (result *ReleaseResult, err error) {
	defer func() { s.metrics.ObserveSweep(err) }()

	now := s.clock.Now()
	result = &ReleaseResult{}

	candidates, err := s.ticketRepo.FindExpired(ctx, now, s.cfg.Business.SweepBatchSize)
	if err != nil {
		return result, repository.TranslateError(err)
	}
	if len(candidates) == 0 {
		return result, nil
	}

	byRaffle := make(map[int64][]int64)
	for _, t := range candidates {
		byRaffle[t.RaffleID] = append(byRaffle[t.RaffleID], t.ID)
	}
	raffleIDs := make([]int64, 0, len(byRaffle))
	for id := range byRaffle {
		raffleIDs = append(raffleIDs, id)
	}
	sort.Slice(raffleIDs, func(i, j int) bool { return raffleIDs[i] < raffleIDs[j] })

	var (
		errs    []error
		touched []int64
	)
	for _, raffleID := range raffleIDs {
		simple, formal, err := s.releaseExpired(ctx, raffleID, byRaffle[raffleID], now)
		if err != nil {
			errs = append(errs, fmt.Errorf("raffle %d: %w", raffleID, repository.TranslateError(err)))
			continue
		}
		if simple+formal > 0 {
			touched = append(touched, raffleID)
		}
		result.Simple += simple
		result.Formal += formal
	}

	if len(touched) > 0 {
		invalidateBoard(ctx, s.board, s.log, touched...)
	}
	s.metrics.AddReleased(metrics.ReleaseSimple, result.Simple)
	s.metrics.AddReleased(metrics.ReleaseFormal, result.Formal)
	return result, errors.Join(errs...)
}

func (s *ReservationService) releaseExpired(ctx context.Context, raffleID int64, ids []int64, now time.Time) (simple, formal int, err error) {
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.raffleRepo.GetByIDForUpdate(ctx, tx, raffleID); err != nil {
			return err
		}
		locked, err := s.ticketRepo.LockExpired(ctx, tx, ids, now)
		if err != nil {
			return err
		}
		if len(locked) == 0 {
			return nil
		}
		if locked, err = s.withSaleSiblings(ctx, tx, locked, now); err != nil {
			return err
		}

		simple, formal = 0, 0
		for _, t := range locked {
			if t.SaleID != nil || t.ClientID != nil {
				formal++
			} else {
				simple++
			}
		}

		lockedIDs := ticketIDs(locked)
		released, err := s.ticketRepo.Release(ctx, tx, lockedIDs)
		if err != nil {
			return err
		}
		if released != int64(len(locked)) {
			return fmt.Errorf("%w: released %d of %d expired tickets", model.ErrConflict, released, len(locked))
		}
		// 正式释放的票在下单时计入了已售数，这里回退
		if err := s.raffleRepo.AddSold(ctx, tx, raffleID, -formal); err != nil {
			return err
		}
		return s.writeReleased(ctx, tx, raffleID, lockedIDs, "expired")
	})
	if err != nil {
		return 0, 0, err
	}
	return simple, formal, nil
}

// withSaleSiblings 候选票按 id 截断后可能只包含某个待付款销售的一部分票，
// 这里补齐同一销售下其余已过期的票，保证销售与已售计数一起回退
func (s *ReservationService) withSaleSiblings(ctx context.Context, tx *gorm.DB, locked []*model.Ticket, now time.Time) ([]*model.Ticket, error) {
	seen := make(map[int64]bool, len(locked))
	saleSeen := make(map[int64]bool)
	var saleIDs []int64
	for _, t := range locked {
		seen[t.ID] = true
		if t.SaleID != nil && !saleSeen[*t.SaleID] {
			saleSeen[*t.SaleID] = true
			saleIDs = append(saleIDs, *t.SaleID)
		}
	}
	if len(saleIDs) == 0 {
		return locked, nil
	}

	siblings, err := s.ticketRepo.LockExpiredBySaleIDs(ctx, tx, saleIDs, now)
	if err != nil {
		return nil, err
	}
	merged := locked
	for _, t := range siblings {
		if !seen[t.ID] {
			seen[t.ID] = true
			merged = append(merged, t)
		}
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ID < merged[j].ID })
	return merged, nil
}

func (s *ReservationService) writeReleased(ctx context.Context, tx *gorm.DB, raffleID int64, ids []int64, reason string) error {
	msg, err := newOutboxMessage(s.cfg.Kafka.Topic.ReservationEvents, model.EventReservationReleased, map[string]interface{}{
		"raffle_id":  raffleID,
		"ticket_ids": ids,
		"reason":     reason,
	})
	if err != nil {
		return err
	}
	return s.outboxRepo.Create(ctx, tx, msg)
}

// checkReservation 返回预订无效的具体原因，有效时返回空串
func checkReservation(t *model.Ticket, token string, now time.Time) string {
	switch {
	case t.Status != model.TicketStatusReserved:
		return fmt.Sprintf("ticket %s is %s, not reserved", t.Number, t.Status)
	case t.SaleID != nil:
		return fmt.Sprintf("ticket %s reservation already consumed", t.Number)
	case t.ReservationToken == nil || token == "" ||
		subtle.ConstantTimeCompare([]byte(*t.ReservationToken), []byte(token)) != 1:
		return fmt.Sprintf("ticket %s reservation token mismatch", t.Number)
	case t.ReservationExpired(now):
		return fmt.Sprintf("ticket %s reservation expired", t.Number)
	default:
		return ""
	}
}
