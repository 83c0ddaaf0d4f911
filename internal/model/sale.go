package model

import (
	"time"
)

const (
	SaleStatusPending     = "PENDING"
	SaleStatusInstallment = "INSTALLMENT"
	SaleStatusPaid        = "PAID"
)

// Sale 销售（venta）
//
// AmountPaid 只是缓存列，真实值永远以 installment 流水求和为准；
// Status 是 (AmountPaid, AmountTotal) 的纯函数，见 ledger.DeriveSaleStatus
type Sale struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	SaleNo          string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"sale_no"`
	RaffleID        int64     `gorm:"index;not null" json:"raffle_id"`
	ClientID        int64     `gorm:"index;not null" json:"client_id"`
	AmountTotal     int64     `gorm:"not null" json:"amount_total"`
	AmountPaid      int64     `gorm:"not null;default:0" json:"amount_paid"`
	Status          string    `gorm:"type:varchar(20);index;not null" json:"status"`
	Online          bool      `gorm:"not null;default:false" json:"online"`
	PaymentMethodID *int64    `json:"payment_method_id"`
	CreatedAt       time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Sale) TableName() string {
	return "sale"
}
