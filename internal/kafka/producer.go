package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/nexusrag/backend-go/internal/logger"
)

// 文档生命周期事件类型
const (
	EventDocumentUploaded = "document.uploaded"
	EventDocumentReady    = "document.ready"
	EventDocumentFailed   = "document.failed"
	EventDocumentDeleted  = "document.deleted"
	EventDocumentQueried  = "document.queried"
)

// DocumentEvent 文档生命周期事件
type DocumentEvent struct {
	Event     string    `json:"event"`
	DocID     string    `json:"doc_id"`
	DocName   string    `json:"doc_name,omitempty"`
	Status    string    `json:"status,omitempty"`
	PageCount int       `json:"page_count,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Producer Kafka生产者
type Producer struct {
	producer sarama.SyncProducer
	topic    string
}

var globalProducer *Producer

// InitProducer 初始化Kafka生产者
func InitProducer(brokers []string, topic string) error {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Timeout = 10 * time.Second

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return fmt.Errorf("创建Kafka生产者失败: %w", err)
	}

	globalProducer = &Producer{
		producer: producer,
		topic:    topic,
	}

	logger.Info("Kafka生产者初始化成功", zap.Strings("brokers", brokers), zap.String("topic", topic))
	return nil
}

// GetProducer 获取全局生产者实例
func GetProducer() *Producer {
	return globalProducer
}

// SendEvent 发送文档事件到Kafka
func (p *Producer) SendEvent(event *DocumentEvent) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("Kafka生产者未初始化")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}

	kafkaMsg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.DocID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{
				Key:   []byte("event"),
				Value: []byte(event.Event),
			},
		},
	}

	partition, offset, err := p.producer.SendMessage(kafkaMsg)
	if err != nil {
		logger.Error("发送Kafka消息失败", zap.Error(err))
		return fmt.Errorf("发送消息失败: %w", err)
	}

	logger.Debug("Kafka消息发送成功",
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
		zap.String("doc_id", event.DocID),
		zap.String("event", event.Event))

	return nil
}

// Close 关闭生产者
func (p *Producer) Close() error {
	if p != nil && p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// PublishDocumentEvent 发送文档事件（便捷方法）。
// Kafka未配置时静默跳过,不影响主流程。
func PublishDocumentEvent(eventType, docID, docName, status string, pageCount int, errMsg string) error {
	producer := GetProducer()
	if producer == nil {
		return nil
	}

	return producer.SendEvent(&DocumentEvent{
		Event:     eventType,
		DocID:     docID,
		DocName:   docName,
		Status:    status,
		PageCount: pageCount,
		Error:     errMsg,
		Timestamp: time.Now(),
	})
}
