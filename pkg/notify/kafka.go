// Package notify 提供面向运维侧的出站通知能力。
package notify

import (
	"context"
	"encoding/json"
	"time"

	"trainvault-go/internal/config"
	"trainvault-go/pkg/log"

	"github.com/segmentio/kafka-go"
)

// Sender 是出站通知的抽象，由编排层按主题和模板上下文调用。
type Sender interface {
	Send(ctx context.Context, subject string, body interface{}) error
}

// message 是写入 Kafka 的通知信封。
type message struct {
	Subject string      `json:"subject"`
	Body    interface{} `json:"body"`
	SentAt  time.Time   `json:"sent_at"`
}

// KafkaSender 将通知发布到 Kafka 主题，由下游告警/邮件系统消费。
type KafkaSender struct {
	writer *kafka.Writer
}

// NewKafkaSender 初始化 Kafka 通知生产者。
func NewKafkaSender(cfg config.KafkaConfig) *KafkaSender {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka 通知生产者初始化成功")
	return &KafkaSender{writer: writer}
}

// Send 将一条通知序列化后写入 Kafka。
func (s *KafkaSender) Send(ctx context.Context, subject string, body interface{}) error {
	raw, err := json.Marshal(message{Subject: subject, Body: body, SentAt: time.Now()})
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(subject),
		Value: raw,
	})
}

// Close 关闭底层 Kafka writer。
func (s *KafkaSender) Close() error {
	return s.writer.Close()
}
