package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"rifas/internal/model"

	"github.com/go-redis/redis/v8"
)

// Board 票板缓存
//
// 缓存只服务于公开票板的展示；预订、下单、付款的判断永远读数据库。
// 任何已提交的状态变化之后调用 Invalidate，失败只记日志。
type Board interface {
	Get(ctx context.Context, raffleID int64) ([]model.BoardTicket, bool, error)
	Set(ctx context.Context, raffleID int64, tickets []model.BoardTicket) error
	Invalidate(ctx context.Context, raffleIDs ...int64) error
}

type RedisBoard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisBoard(client *redis.Client, ttl time.Duration) *RedisBoard {
	return &RedisBoard{client: client, ttl: ttl}
}

func boardKey(raffleID int64) string {
	return fmt.Sprintf("rifas:board:%d", raffleID)
}

func (b *RedisBoard) Get(ctx context.Context, raffleID int64) ([]model.BoardTicket, bool, error) {
	raw, err := b.client.Get(ctx, boardKey(raffleID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var tickets []model.BoardTicket
	if err := json.Unmarshal(raw, &tickets); err != nil {
		return nil, false, err
	}
	return tickets, true, nil
}

func (b *RedisBoard) Set(ctx context.Context, raffleID int64, tickets []model.BoardTicket) error {
	raw, err := json.Marshal(tickets)
	if err != nil {
		return err
	}
	return b.client.Set(ctx, boardKey(raffleID), raw, b.ttl).Err()
}

func (b *RedisBoard) Invalidate(ctx context.Context, raffleIDs ...int64) error {
	if len(raffleIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(raffleIDs))
	for _, id := range raffleIDs {
		keys = append(keys, boardKey(id))
	}
	return b.client.Del(ctx, keys...).Err()
}

// MemoryBoard 进程内实现，redis 不可用时及测试中使用
type MemoryBoard struct {
	mu      sync.Mutex
	entries map[int64][]model.BoardTicket
}

func NewMemoryBoard() *MemoryBoard {
	return &MemoryBoard{entries: make(map[int64][]model.BoardTicket)}
}

func (b *MemoryBoard) Get(_ context.Context, raffleID int64) ([]model.BoardTicket, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	tickets, ok := b.entries[raffleID]
	return tickets, ok, nil
}

func (b *MemoryBoard) Set(_ context.Context, raffleID int64, tickets []model.BoardTicket) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[raffleID] = tickets
	return nil
}

func (b *MemoryBoard) Invalidate(_ context.Context, raffleIDs ...int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range raffleIDs {
		delete(b.entries, id)
	}
	return nil
}
