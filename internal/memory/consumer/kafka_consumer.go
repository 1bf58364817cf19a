package consumer

import (
	"Minerva/internal/database/kafka"
	"Minerva/internal/memory"
	"Minerva/pkg/logger"
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// InteractionEvent 是记忆回写主题上的消息载荷。编排引擎在一次会话完成后
// 异步发布该事件，由本消费者落库为长期记忆。
type InteractionEvent struct {
	OwnerID    string   `json:"ownerId"`
	Text       string   `json:"text"`
	Tags       []string `json:"tags,omitempty"`
	Importance float64  `json:"importance"`
}

// Consumer 持续从回写主题消费交互事件并写入记忆存储。
type Consumer struct {
	client *kafka.KafkaClient
	svc    *memory.Service
	log    *logger.Logger
}

// NewConsumer 创建一个记忆回写消费者。
func NewConsumer(client *kafka.KafkaClient, svc *memory.Service, log *logger.Logger) *Consumer {
	return &Consumer{client: client, svc: svc, log: log}
}

// Run 阻塞式地消费消息，直到 ctx 被取消。
// 单条消息的失败只记录日志，不会中断消费循环。
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info("记忆回写消费者已启动")

	for {
		msg, err := c.client.Reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
				c.log.Info("记忆回写消费者已停止")
				return nil
			}
			return fmt.Errorf("读取 Kafka 消息失败: %w", err)
		}

		var event InteractionEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			c.log.Warn(fmt.Sprintf("无法解析交互事件, offset=%d: %v", msg.Offset, err))
			continue
		}
		if event.OwnerID == "" || event.Text == "" {
			c.log.Warn(fmt.Sprintf("交互事件缺少必要字段, offset=%d", msg.Offset))
			continue
		}

		id, err := c.svc.Store(ctx, event.OwnerID, event.Text, event.Tags, event.Importance)
		if err != nil {
			c.log.Error(fmt.Sprintf("记忆回写失败, owner=%s: %v", event.OwnerID, err))
			continue
		}
		c.log.Info(fmt.Sprintf("记忆回写成功, owner=%s, id=%s", event.OwnerID, id))
	}
}
