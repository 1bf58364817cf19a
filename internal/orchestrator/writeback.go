package orchestrator

import (
	"Minerva/internal/database/kafka"
	"Minerva/internal/memory"
	"Minerva/internal/memory/consumer"
	"context"
	"encoding/json"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"
)

// InteractionRecorder 异步持久化一次完成的交互。实现要么直接写入
// 记忆存储，要么发布到 Kafka 回写主题由消费者落库。
type InteractionRecorder interface {
	Record(ctx context.Context, event consumer.InteractionEvent) error
}

// DirectRecorder 绕过消息队列，直接写记忆存储。用于未配置 Kafka 的部署。
type DirectRecorder struct {
	svc *memory.Service
}

func NewDirectRecorder(svc *memory.Service) *DirectRecorder {
	return &DirectRecorder{svc: svc}
}

func (r *DirectRecorder) Record(ctx context.Context, event consumer.InteractionEvent) error {
	_, err := r.svc.Store(ctx, event.OwnerID, event.Text, event.Tags, event.Importance)
	return err
}

// KafkaRecorder 把交互事件发布到回写主题。
type KafkaRecorder struct {
	client *kafka.KafkaClient
}

func NewKafkaRecorder(client *kafka.KafkaClient) *KafkaRecorder {
	return &KafkaRecorder{client: client}
}

func (r *KafkaRecorder) Record(ctx context.Context, event consumer.InteractionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("无法序列化交互事件: %w", err)
	}
	return r.client.Writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(event.OwnerID),
		Value: payload,
	})
}
