package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaWriter is the subset of *kafka.Writer used by KafkaSender.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaSender hands messages off to a topic for an external provider
// adapter (SMS gateway, push service) to execute.
type KafkaSender struct {
	writer KafkaWriter
	topic  string
}

// NewKafkaSender creates a sender that publishes to topic. When the writer
// already has a fixed topic, pass an empty topic.
func NewKafkaSender(writer KafkaWriter, topic string) *KafkaSender {
	return &KafkaSender{writer: writer, topic: topic}
}

// NewKafkaWriter builds a *kafka.Writer balanced by message key.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
}

// KafkaCommand is the record written to the topic.
type KafkaCommand struct {
	ID       string  `json:"id"`
	Event    string  `json:"event"`
	Channel  Channel `json:"channel"`
	Target   string  `json:"target"`
	TenantID string  `json:"tenant_id,omitempty"`
	Subject  string  `json:"subject,omitempty"`
	Content  string  `json:"content"`
}

func (s *KafkaSender) Deliver(ctx context.Context, msg Message) (DeliveryResult, error) {
	payload, err := json.Marshal(KafkaCommand{
		ID:       msg.NotificationID,
		Event:    msg.EventKey,
		Channel:  msg.Channel,
		Target:   msg.Address,
		TenantID: msg.TenantID,
		Subject:  msg.Content.Title,
		Content:  msg.Content.Text,
	})
	if err != nil {
		return DeliveryResult{}, fmt.Errorf("failed to marshal kafka command: %w", err)
	}

	// Keyed by target so one recipient's messages stay ordered on a partition.
	err = s.writer.WriteMessages(ctx, kafka.Message{
		Topic: s.topic,
		Key:   []byte(msg.Address),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "channel", Value: []byte(msg.Channel)},
			{Key: "event", Value: []byte(msg.EventKey)},
		},
	})
	if err != nil {
		return DeliveryResult{}, fmt.Errorf("failed to publish to kafka: %w", err)
	}
	return DeliveryResult{Status: StatusDelivered, ProviderID: s.topic, At: time.Now()}, nil
}
