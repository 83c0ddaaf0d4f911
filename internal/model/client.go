package model

import (
	"time"
)

// Client 购票客户
// 手机号唯一；证件号可选但唯一（NULL 不参与唯一约束）
type Client struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name       string    `gorm:"type:varchar(128);not null" json:"name"`
	Phone      string    `gorm:"type:varchar(32);uniqueIndex;not null" json:"phone"`
	Email      string    `gorm:"type:varchar(128)" json:"email"`
	NationalID *string   `gorm:"type:varchar(32);uniqueIndex" json:"national_id"`
	Address    string    `gorm:"type:varchar(256)" json:"address"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Client) TableName() string {
	return "client"
}
