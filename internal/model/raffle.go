package model

import (
	"time"
)

const (
	RaffleStatusDraft    = "DRAFT"
	RaffleStatusActive   = "ACTIVE"
	RaffleStatusPaused   = "PAUSED"
	RaffleStatusFinished = "FINISHED"
)

// Raffle 抽奖活动
// 票数在生成票之后不可修改；本模块只会修改 TicketsSold 计数
type Raffle struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"type:varchar(128);not null" json:"name"`
	TicketPrice int64     `gorm:"not null" json:"ticket_price"` // 单张票价（最小货币单位）
	TicketCount int       `gorm:"not null" json:"ticket_count"`
	TicketsSold int       `gorm:"not null;default:0" json:"tickets_sold"`
	Status      string    `gorm:"type:varchar(20);index;not null" json:"status"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Raffle) TableName() string {
	return "raffle"
}
