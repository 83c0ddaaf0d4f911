package job

import (
	"context"
	"time"

	"rifas/internal/config"
	"rifas/internal/infrastructure/mq"
	"rifas/internal/model"
	"rifas/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OutboxSender 把 outbox 表中的待发送事件投递到 Kafka
//
// 至少投递一次：发送成功但标记失败时会重复发送，消费方按 message_key 去重
type OutboxSender struct {
	outboxRepo *repository.OutboxRepository
	producer   mq.Producer
	cfg        *config.Config
	log        *zap.Logger
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
}

func NewOutboxSender(db *gorm.DB, cfg *config.Config, producer mq.Producer, log *zap.Logger) *OutboxSender {
	if log == nil {
		log = zap.NewNop()
	}
	return &OutboxSender{
		outboxRepo: repository.NewOutboxRepository(db),
		producer:   producer,
		cfg:        cfg,
		log:        log.With(zap.String("component", "outbox_sender")),
		stopCh:     make(chan struct{}),
		interval:   500 * time.Millisecond,
		batchSize:  100,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	s.log.Info("outbox sender started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("context cancelled, outbox sender exiting")
			return
		case <-s.stopCh:
			s.log.Info("outbox sender stopped")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

// processPendingMessages 返回本轮发送成功的条数
func (s *OutboxSender) processPendingMessages(ctx context.Context) int {
	messages, err := s.outboxRepo.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		s.log.Error("query pending outbox messages failed", zap.Error(err))
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if s.sendMessage(ctx, msg) {
			sent++
		}
	}
	return sent
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) bool {
	err := s.producer.SendMessage(msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		if err := s.outboxRepo.MarkAsSent(ctx, msg.ID); err != nil {
			s.log.Error("mark outbox message sent failed", zap.Int64("id", msg.ID), zap.Error(err))
			return false
		}
		s.log.Debug("outbox message sent",
			zap.Int64("id", msg.ID),
			zap.String("topic", msg.Topic),
			zap.String("event_type", msg.EventType))
		return true
	}

	s.log.Warn("send outbox message failed", zap.Int64("id", msg.ID), zap.Error(err))
	exhausted, err := s.outboxRepo.RecordFailure(ctx, msg, s.cfg.Business.MaxRetryCount)
	if err != nil {
		s.log.Error("record outbox failure failed", zap.Int64("id", msg.ID), zap.Error(err))
		return false
	}
	if exhausted {
		s.log.Error("outbox message exceeded max retries, marked failed",
			zap.Int64("id", msg.ID),
			zap.String("event_type", msg.EventType))
	}
	return false
}
