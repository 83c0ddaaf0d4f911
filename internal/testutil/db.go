// Package testutil 测试用的内存数据库与数据构造
package testutil

import (
	"fmt"
	"strconv"
	"testing"
	"time"

	"rifas/internal/infrastructure/database"
	"rifas/internal/model"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Epoch 测试时钟起点，整秒，避免 sqlite 按字符串比较时间时受小数位影响
var Epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// NewDB 每个测试独立的内存库
//
// 只允许一个连接：事务之间串行执行，效果等同 MySQL 行锁下的串行化
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

// SeedRaffle 创建抽奖并生成 count 张可售票
func SeedRaffle(t testing.TB, db *gorm.DB, price int64, count int, status string) (*model.Raffle, []*model.Ticket) {
	t.Helper()

	raffle := &model.Raffle{
		Name:        "rifa de prueba",
		TicketPrice: price,
		TicketCount: count,
		Status:      status,
	}
	require.NoError(t, db.Create(raffle).Error)

	width := len(strconv.Itoa(count - 1))
	tickets := make([]*model.Ticket, 0, count)
	for i := 0; i < count; i++ {
		tickets = append(tickets, &model.Ticket{
			RaffleID: raffle.ID,
			Number:   fmt.Sprintf("%0*d", width, i),
			Status:   model.TicketStatusAvailable,
		})
	}
	require.NoError(t, db.Create(&tickets).Error)
	return raffle, tickets
}

// ReloadTicket 从数据库重新读取票
func ReloadTicket(t testing.TB, db *gorm.DB, id int64) *model.Ticket {
	t.Helper()
	var ticket model.Ticket
	require.NoError(t, db.First(&ticket, id).Error)
	return &ticket
}

func ReloadSale(t testing.TB, db *gorm.DB, id int64) *model.Sale {
	t.Helper()
	var sale model.Sale
	require.NoError(t, db.First(&sale, id).Error)
	return &sale
}

func ReloadRaffle(t testing.TB, db *gorm.DB, id int64) *model.Raffle {
	t.Helper()
	var raffle model.Raffle
	require.NoError(t, db.First(&raffle, id).Error)
	return &raffle
}

// SumInstallments 直接对流水表求和
func SumInstallments(t testing.TB, db *gorm.DB, saleID int64) int64 {
	t.Helper()
	var total int64
	require.NoError(t, db.Model(&model.Installment{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("sale_id = ?", saleID).
		Scan(&total).Error)
	return total
}

// CountRows 统计表中满足条件的行数
func CountRows(t testing.TB, db *gorm.DB, value interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	q := db.Model(value)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}
