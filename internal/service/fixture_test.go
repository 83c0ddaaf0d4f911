package service

import (
	"context"
	"testing"
	"time"

	"rifas/internal/clock"
	"rifas/internal/config"
	"rifas/internal/infrastructure/cache"
	"rifas/internal/metrics"
	"rifas/internal/model"
	"rifas/internal/testutil"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type fixture struct {
	db           *gorm.DB
	cfg          *config.Config
	clock        *clock.Fake
	board        *cache.MemoryBoard
	reservations *ReservationService
	sales        *SaleService
	bookings     *BookingService
	raffles      *RaffleService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewDB(t)
	deps := Deps{
		DB:      db,
		Config:  config.Default(),
		Clock:   clock.NewFake(testutil.Epoch),
		Board:   cache.NewMemoryBoard(),
		Metrics: metrics.New(prometheus.NewRegistry()),
		Logger:  zaptest.NewLogger(t),
	}
	sales := NewSaleService(deps)
	return &fixture{
		db:           db,
		cfg:          deps.Config,
		clock:        deps.Clock.(*clock.Fake),
		board:        deps.Board.(*cache.MemoryBoard),
		reservations: NewReservationService(deps),
		sales:        sales,
		bookings:     NewBookingService(deps, sales),
		raffles:      NewRaffleService(deps),
	}
}

func (f *fixture) activeRaffle(t *testing.T, price int64, count int) (*model.Raffle, []*model.Ticket) {
	t.Helper()
	return testutil.SeedRaffle(t, f.db, price, count, model.RaffleStatusActive)
}

func (f *fixture) reserve(t *testing.T, raffleID int64, tickets ...*model.Ticket) *Reservation {
	t.Helper()
	ids := make([]int64, 0, len(tickets))
	for _, tk := range tickets {
		ids = append(ids, tk.ID)
	}
	res, err := f.reservations.ReserveTickets(context.Background(), raffleID, ids, 0)
	require.NoError(t, err)
	return res
}

func (f *fixture) book(t *testing.T, res *Reservation, phone string, paid int64) *BookingResult {
	t.Helper()
	result, err := f.bookings.Book(context.Background(), bookingRequest(res, phone, paid))
	require.NoError(t, err)
	return result
}

func bookingRequest(res *Reservation, phone string, paid int64) *BookingRequest {
	return &BookingRequest{
		RaffleID:  res.RaffleID,
		TicketIDs: res.TicketIDs,
		Token:     res.Token,
		Client: ClientInfo{
			Name:  "Ana Gómez",
			Phone: phone,
			Email: "ana@example.com",
		},
		AmountPaid: paid,
		Online:     true,
	}
}

// assertTicketInvariants RESERVED 当且仅当 token 与过期时间同时存在；AVAILABLE 时没有任何归属
func assertTicketInvariants(t *testing.T, db *gorm.DB) {
	t.Helper()
	var tickets []*model.Ticket
	require.NoError(t, db.Find(&tickets).Error)
	for _, tk := range tickets {
		hasToken := tk.ReservationToken != nil
		hasUntil := tk.ReservedUntil != nil
		assert.Equal(t, hasToken, hasUntil, "ticket %d token/expiry set together", tk.ID)
		assert.Equal(t, tk.Status == model.TicketStatusReserved, hasToken, "ticket %d reserved iff token", tk.ID)
		if tk.Status == model.TicketStatusAvailable || tk.Status == model.TicketStatusVoid {
			assert.Nil(t, tk.SaleID, "ticket %d sale", tk.ID)
			assert.Nil(t, tk.ClientID, "ticket %d client", tk.ID)
		}
	}
}

// assertNoDrift 缓存的已付金额等于流水之和
func assertNoDrift(t *testing.T, db *gorm.DB) {
	t.Helper()
	var sales []*model.Sale
	require.NoError(t, db.Find(&sales).Error)
	for _, sale := range sales {
		assert.Equal(t, testutil.SumInstallments(t, db, sale.ID), sale.AmountPaid, "sale %d amount_paid", sale.ID)
	}
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}
