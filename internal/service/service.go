package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"

	"rifas/internal/clock"
	"rifas/internal/config"
	"rifas/internal/infrastructure/cache"
	"rifas/internal/metrics"
	"rifas/internal/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Deps 各服务共用的依赖
//
// Clock、Board、Logger 为空时使用默认实现；Metrics 为空时不做统计
type Deps struct {
	DB      *gorm.DB
	Config  *config.Config
	Clock   clock.Clock
	Board   cache.Board
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Config == nil {
		d.Config = config.Default()
	}
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Board == nil {
		d.Board = cache.NewMemoryBoard()
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return d
}

// invalidateBoard 事务提交后清理票板缓存，失败只记日志
func invalidateBoard(ctx context.Context, board cache.Board, log *zap.Logger, raffleIDs ...int64) {
	if err := board.Invalidate(ctx, raffleIDs...); err != nil {
		log.Warn("invalidate board cache failed", zap.Int64s("raffle_ids", raffleIDs), zap.Error(err))
	}
}

// newOutboxMessage 构造待发送事件，与业务数据在同一事务中写入
func newOutboxMessage(topic, eventType string, payload interface{}) (*model.OutboxMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	return &model.OutboxMessage{
		MessageKey: uuid.NewString(),
		Topic:      topic,
		EventType:  eventType,
		Payload:    datatypes.JSON(raw),
		Status:     model.OutboxStatusPending,
	}, nil
}

// newReservationToken 32 字节随机数，URL 安全的 base64 编码
func newReservationToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate reservation token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// sortedIDs 返回升序去重后的 id 以及是否存在重复
func sortedIDs(ids []int64) ([]int64, bool) {
	out := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	dup := false
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			dup = true
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, dup
}

func ticketIDs(tickets []*model.Ticket) []int64 {
	ids := make([]int64, 0, len(tickets))
	for _, t := range tickets {
		ids = append(ids, t.ID)
	}
	return ids
}
