package service

import (
	"context"

	"rifas/internal/clock"
	"rifas/internal/infrastructure/cache"
	"rifas/internal/model"
	"rifas/internal/repository"

	"go.uber.org/zap"
)

// RaffleService 票号生成与公开票板
type RaffleService struct {
	clock      clock.Clock
	board      cache.Board
	log        *zap.Logger
	raffleRepo *repository.RaffleRepository
	ticketRepo *repository.TicketRepository
}

func NewRaffleService(deps Deps) *RaffleService {
	deps = deps.withDefaults()
	return &RaffleService{
		clock:      deps.Clock,
		board:      deps.Board,
		log:        deps.Logger.With(zap.String("component", "raffle")),
		raffleRepo: repository.NewRaffleRepository(deps.DB),
		ticketRepo: repository.NewTicketRepository(deps.DB),
	}
}

// GenerateTickets 为抽奖一次性生成全部票
func (s *RaffleService) GenerateTickets(ctx context.Context, raffleID int64) (int, error) {
	created, err := s.raffleRepo.GenerateTickets(ctx, raffleID)
	if err != nil {
		return 0, err
	}
	invalidateBoard(ctx, s.board, s.log, raffleID)
	s.log.Info("tickets generated", zap.Int64("raffle_id", raffleID), zap.Int("count", created))
	return created, nil
}

// Board 公开票板，只用于展示
//
// 过期但尚未清理的公开预订显示为可售；缓存读写失败时直接查库
func (s *RaffleService) Board(ctx context.Context, raffleID int64) ([]model.BoardTicket, error) {
	cached, ok, err := s.board.Get(ctx, raffleID)
	if err != nil {
		s.log.Warn("read board cache failed", zap.Int64("raffle_id", raffleID), zap.Error(err))
	} else if ok {
		return cached, nil
	}

	if _, err := s.raffleRepo.GetByID(ctx, nil, raffleID); err != nil {
		return nil, err
	}
	tickets, err := s.ticketRepo.ListByRaffleID(ctx, raffleID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	board := make([]model.BoardTicket, 0, len(tickets))
	for _, t := range tickets {
		board = append(board, model.BoardTicket{
			ID:        t.ID,
			Number:    t.Number,
			Available: t.Reservable(now),
		})
	}
	if err := s.board.Set(ctx, raffleID, board); err != nil {
		s.log.Warn("write board cache failed", zap.Int64("raffle_id", raffleID), zap.Error(err))
	}
	return board, nil
}
