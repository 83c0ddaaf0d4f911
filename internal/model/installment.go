package model

import (
	"time"
)

const (
	InstallmentStatusRegistered = "REGISTERED" // 公开流程登记，待人工确认
	InstallmentStatusConfirmed  = "CONFIRMED"  // 操作员登记
)

// Installment 分期付款流水（abono）
//
// 流水表设计原则：
//  1. 只追加，不修改，不删除，更正通过新增流水完成
//  2. 一次付款按票拆分，每张票一条记录
//  3. 与销售、票的汇总更新在同一事务中写入
type Installment struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ReceiptNo       string    `gorm:"type:varchar(64);index;not null" json:"receipt_no"` // 同一次付款的所有行共享
	SaleID          int64     `gorm:"index;not null" json:"sale_id"`
	TicketID        int64     `gorm:"index;not null" json:"ticket_id"`
	Amount          int64     `gorm:"not null" json:"amount"`
	Currency        string    `gorm:"type:varchar(8);not null" json:"currency"`
	PaymentMethodID *int64    `json:"payment_method_id"`
	ActorID         *int64    `json:"actor_id"`
	Status          string    `gorm:"type:varchar(20);not null" json:"status"`
	Note            string    `gorm:"type:varchar(512)" json:"note"`
	CreatedAt       time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (Installment) TableName() string {
	return "installment"
}
