package service

import (
	"context"
	"testing"

	"rifas/internal/model"
	"rifas/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// bookHalfPaid 价格 10000 的三张票，首付 15000
func bookHalfPaid(t *testing.T, f *fixture) (*BookingResult, []*model.Ticket) {
	t.Helper()
	raffle, tickets := f.activeRaffle(t, 10000, 5)
	res := f.reserve(t, raffle.ID, tickets[0], tickets[1], tickets[2])
	return f.book(t, res, "3001234567", 15000), tickets[:3]
}

func TestRecordInstallmentSettlesSale(t *testing.T) {
	f := newFixture(t)
	booked, tickets := bookHalfPaid(t, f)
	actor := int64(7)

	sale, err := f.sales.RecordInstallment(context.Background(), &InstallmentRequest{
		SaleID:  booked.Sale.ID,
		Amount:  15000,
		ActorID: &actor,
		Note:    "pago en efectivo",
	})
	require.NoError(t, err)
	assert.Equal(t, model.SaleStatusPaid, sale.Status)
	assert.Equal(t, int64(30000), sale.AmountPaid)

	stored := testutil.ReloadSale(t, f.db, booked.Sale.ID)
	assert.Equal(t, model.SaleStatusPaid, stored.Status)
	assert.Equal(t, int64(30000), stored.AmountPaid)
	for _, tk := range tickets {
		assert.Equal(t, model.TicketStatusPaid, testutil.ReloadTicket(t, f.db, tk.ID).Status)
	}

	var confirmed []*model.Installment
	require.NoError(t, f.db.Where("sale_id = ? AND status = ?", sale.ID, model.InstallmentStatusConfirmed).Find(&confirmed).Error)
	require.Len(t, confirmed, 3)
	for _, row := range confirmed {
		assert.Equal(t, int64(5000), row.Amount)
		require.NotNil(t, row.ActorID)
		assert.Equal(t, actor, *row.ActorID)
		assert.Equal(t, "pago en efectivo", row.Note)
	}
	assert.Equal(t, int64(6), testutil.CountRows(t, f.db, &model.Installment{}, "sale_id = ?", sale.ID))
	assert.Equal(t, int64(1), testutil.CountRows(t, f.db, &model.OutboxMessage{}, "event_type = ?", model.EventInstallmentRecorded))
	assertNoDrift(t, f.db)
}

func TestRecordInstallmentOverBalanceChangesNothing(t *testing.T) {
	f := newFixture(t)
	booked, tickets := bookHalfPaid(t, f)

	_, err := f.sales.RecordInstallment(context.Background(), &InstallmentRequest{SaleID: booked.Sale.ID, Amount: 15001})
	assert.ErrorIs(t, err, model.ErrInvalidAmount)
	assert.Contains(t, err.Error(), "exceeds remaining balance")

	stored := testutil.ReloadSale(t, f.db, booked.Sale.ID)
	assert.Equal(t, int64(15000), stored.AmountPaid)
	assert.Equal(t, model.SaleStatusInstallment, stored.Status)
	assert.Equal(t, int64(3), testutil.CountRows(t, f.db, &model.Installment{}, ""))
	for _, tk := range tickets {
		assert.Equal(t, model.TicketStatusInstallment, testutil.ReloadTicket(t, f.db, tk.ID).Status)
	}
	assertNoDrift(t, f.db)
}

func TestRecordInstallmentRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	booked, _ := bookHalfPaid(t, f)

	_, err := f.sales.RecordInstallment(ctx, &InstallmentRequest{SaleID: booked.Sale.ID, Amount: 0})
	assert.ErrorIs(t, err, model.ErrInvalidAmount)

	_, err = f.sales.RecordInstallment(ctx, &InstallmentRequest{SaleID: booked.Sale.ID, Amount: -500})
	assert.ErrorIs(t, err, model.ErrInvalidAmount)

	_, err = f.sales.RecordInstallment(ctx, &InstallmentRequest{SaleID: 424242, Amount: 100})
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = f.sales.RecordInstallment(ctx, &InstallmentRequest{SaleID: booked.Sale.ID, Amount: 15000})
	require.NoError(t, err)

	_, err = f.sales.RecordInstallment(ctx, &InstallmentRequest{SaleID: booked.Sale.ID, Amount: 1})
	assert.ErrorIs(t, err, model.ErrAlreadySettled)
	assertNoDrift(t, f.db)
}

func TestRecordInstallmentWithoutTickets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	raffle, _ := f.activeRaffle(t, 10000, 2)

	client := &model.Client{Name: "Luis", Phone: "3105550000"}
	require.NoError(t, f.db.Create(client).Error)

	var sale *model.Sale
	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		sale, err = f.sales.CreateSale(ctx, tx, &CreateSaleRequest{
			RaffleID:    raffle.ID,
			ClientID:    client.ID,
			AmountTotal: 20000,
		})
		return err
	}))
	assert.Equal(t, model.SaleStatusPending, sale.Status)

	_, err := f.sales.RecordInstallment(ctx, &InstallmentRequest{SaleID: sale.ID, Amount: 1000})
	assert.ErrorIs(t, err, model.ErrNoTickets)
	assert.Equal(t, int64(0), testutil.CountRows(t, f.db, &model.Installment{}, ""))
}

func TestCreateSaleValidatesAmounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.sales.CreateSale(ctx, f.db, &CreateSaleRequest{AmountTotal: 0})
	assert.ErrorIs(t, err, model.ErrInvalidAmount)

	_, err = f.sales.CreateSale(ctx, f.db, &CreateSaleRequest{AmountTotal: 100, AmountPaid: 101})
	assert.ErrorIs(t, err, model.ErrInvalidAmount)
}

func TestRecordInstallmentRemainderGoesToLastTicket(t *testing.T) {
	f := newFixture(t)
	raffle, tickets := f.activeRaffle(t, 10000, 3)
	res := f.reserve(t, raffle.ID, tickets[0], tickets[1], tickets[2])
	booked := f.book(t, res, "3001234567", 0)

	_, err := f.sales.RecordInstallment(context.Background(), &InstallmentRequest{SaleID: booked.Sale.ID, Amount: 10000})
	require.NoError(t, err)

	var rows []*model.Installment
	require.NoError(t, f.db.Where("sale_id = ?", booked.Sale.ID).Order("ticket_id ASC").Find(&rows).Error)
	require.Len(t, rows, 3)
	assert.Equal(t, int64(3333), rows[0].Amount)
	assert.Equal(t, int64(3333), rows[1].Amount)
	assert.Equal(t, int64(3334), rows[2].Amount)
	assert.Equal(t, tickets[2].ID, rows[2].TicketID)
	assertNoDrift(t, f.db)
}

func TestGetFinancialSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	booked, tickets := bookHalfPaid(t, f)

	// 缓存列被改坏也不影响汇总
	require.NoError(t, f.db.Model(&model.Sale{}).Where("id = ?", booked.Sale.ID).Update("amount_paid", 1).Error)

	summary, err := f.sales.GetFinancialSummary(ctx, booked.Sale.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(30000), summary.AmountTotal)
	assert.Equal(t, int64(15000), summary.AmountPaid)
	assert.Equal(t, int64(15000), summary.Balance)
	assert.Equal(t, model.SaleStatusInstallment, summary.Status)
	require.Len(t, summary.Tickets, 3)
	for i, line := range summary.Tickets {
		assert.Equal(t, tickets[i].ID, line.TicketID)
		assert.Equal(t, int64(10000), line.Price)
		assert.Equal(t, int64(5000), line.Paid)
		assert.Equal(t, int64(5000), line.Balance)
	}

	_, err = f.sales.GetFinancialSummary(ctx, 999)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestFinancialSummaryIsConsistentDuringPayments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	booked, _ := bookHalfPaid(t, f)

	done := make(chan error, 1)
	go func() {
		for i := 0; i < 5; i++ {
			if _, err := f.sales.RecordInstallment(ctx, &InstallmentRequest{SaleID: booked.Sale.ID, Amount: 1000}); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	for i := 0; i < 20; i++ {
		summary, err := f.sales.GetFinancialSummary(ctx, booked.Sale.ID)
		require.NoError(t, err)
		var ticketsPaid int64
		for _, line := range summary.Tickets {
			ticketsPaid += line.Paid
		}
		assert.Equal(t, summary.AmountPaid, ticketsPaid)
		assert.Equal(t, summary.AmountTotal-summary.AmountPaid, summary.Balance)
	}
	require.NoError(t, <-done)

	summary, err := f.sales.GetFinancialSummary(ctx, booked.Sale.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(20000), summary.AmountPaid)
	assertNoDrift(t, f.db)
}
