package service

import (
	"context"
	"encoding/json"
	"fmt"
	"lifecircle_backend/internal/model"
	"lifecircle_backend/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// NotificationService 通知记录出口：结构化日志 + 按用户的 Redis 频道发布。
// 外部投递管道订阅 notify:user:<id> 消费；存储、已读状态都不归这里管。
type NotificationService struct {
	Redis *redis.Client
	ctx   context.Context
}

func NewNotificationService(rdb *redis.Client) *NotificationService {
	return &NotificationService{
		Redis: rdb,
		ctx:   context.Background(),
	}
}

func (s *NotificationService) Emit(n *model.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}

	logger.Log.Info("notification emitted",
		zap.Uint("targetUserId", n.TargetUserID),
		zap.String("kind", string(n.Kind)))

	if s.Redis == nil {
		return nil
	}
	channel := fmt.Sprintf("notify:user:%d", n.TargetUserID)
	return s.Redis.Publish(s.ctx, channel, payload).Err()
}
