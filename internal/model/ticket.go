package model

import (
	"time"
)

const (
	TicketStatusAvailable   = "AVAILABLE"
	TicketStatusReserved    = "RESERVED"
	TicketStatusInstallment = "INSTALLMENT"
	TicketStatusPaid        = "PAID"
	TicketStatusVoid        = "VOID"
)

// Ticket 票（boleta）
//
// 状态约束：
//  1. RESERVED 时 ReservationToken 与 ReservedUntil 必须同时存在
//  2. AVAILABLE / VOID 时 token、过期时间、销售、客户全部为空
//  3. 同一张票同一时间最多属于一个销售
type Ticket struct {
	ID               int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	RaffleID         int64      `gorm:"not null;uniqueIndex:uk_ticket_raffle_number,priority:1;index:idx_ticket_status_until,priority:1" json:"raffle_id"`
	Number           string     `gorm:"type:varchar(16);not null;uniqueIndex:uk_ticket_raffle_number,priority:2" json:"number"`
	Status           string     `gorm:"type:varchar(20);not null;index:idx_ticket_status_until,priority:2" json:"status"`
	SaleID           *int64     `gorm:"index" json:"sale_id"`
	ClientID         *int64     `gorm:"index" json:"client_id"`
	ReservationToken *string    `gorm:"type:varchar(64)" json:"-"`
	ReservedUntil    *time.Time `gorm:"index:idx_ticket_status_until,priority:3" json:"reserved_until"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Ticket) TableName() string {
	return "ticket"
}

// ReservationExpired 预订是否已过期（过期时间 <= now 视为过期）
func (t *Ticket) ReservationExpired(now time.Time) bool {
	return t.ReservedUntil == nil || !t.ReservedUntil.After(now)
}

// Reservable 票是否可以被新的预订占用
func (t *Ticket) Reservable(now time.Time) bool {
	switch t.Status {
	case TicketStatusAvailable:
		return true
	case TicketStatusReserved:
		// 已绑定销售的预留（待付款）不允许被公开预订抢占，只能由清理任务释放
		return t.SaleID == nil && t.ReservationExpired(now)
	default:
		return false
	}
}

// BoardTicket 公开票板上的一格，只用于展示，不参与任何业务判断
type BoardTicket struct {
	ID        int64  `json:"id"`
	Number    string `json:"number"`
	Available bool   `json:"available"`
}
