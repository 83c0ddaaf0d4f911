// Package ledger 票价、分期分摊与付款状态推导。纯函数，无 I/O。
//
// 金额一律使用最小货币单位 int64。不能整除时余数全部计入最后一张票，
// 保证拆分后的金额之和与原金额完全相等。
package ledger

import (
	"fmt"

	"rifas/internal/model"
)

// Split 把 amount 均分为 n 份，余数计入最后一份
func Split(amount int64, n int) ([]int64, error) {
	if n <= 0 {
		return nil, model.ErrNoTickets
	}
	if amount < 0 {
		return nil, fmt.Errorf("%w: negative amount %d", model.ErrInvalidAmount, amount)
	}
	base := amount / int64(n)
	parts := make([]int64, n)
	for i := range parts {
		parts[i] = base
	}
	parts[n-1] += amount - base*int64(n)
	return parts, nil
}

// PerTicketPrice 销售总额按票分摊后的单票价格
func PerTicketPrice(saleTotal int64, ticketCount int) ([]int64, error) {
	return Split(saleTotal, ticketCount)
}

// AllocateInstallment 校验付款金额并按票均分
//
// amount 必须 > 0 且 <= remaining
func AllocateInstallment(amount, remaining int64, ticketCount int) ([]int64, error) {
	if err := ValidateInstallment(amount, remaining); err != nil {
		return nil, err
	}
	return Split(amount, ticketCount)
}

// ValidateInstallment 付款金额必须 > 0 且不超过剩余应付
func ValidateInstallment(amount, remaining int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: amount must be greater than zero", model.ErrInvalidAmount)
	}
	if amount > remaining {
		return fmt.Errorf("%w: amount %d exceeds remaining balance %d", model.ErrInvalidAmount, amount, remaining)
	}
	return nil
}

// DeriveSaleStatus 根据已付与应付金额推导销售状态
func DeriveSaleStatus(amountTotal, amountPaid int64) string {
	switch {
	case amountPaid >= amountTotal:
		return model.SaleStatusPaid
	case amountPaid > 0:
		return model.SaleStatusInstallment
	default:
		return model.SaleStatusPending
	}
}

// DeriveTicketStatus 票状态跟随销售状态，一个销售下的所有票同步变化
func DeriveTicketStatus(saleStatus string) string {
	switch saleStatus {
	case model.SaleStatusPaid:
		return model.TicketStatusPaid
	case model.SaleStatusInstallment:
		return model.TicketStatusInstallment
	default:
		return model.TicketStatusReserved
	}
}

// Balance 剩余应付，不会小于 0
func Balance(amountTotal, amountPaid int64) int64 {
	if amountPaid >= amountTotal {
		return 0
	}
	return amountTotal - amountPaid
}
