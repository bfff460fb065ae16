package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/segmentio/kafka-go"

	"taskboard/internal/config"
	"taskboard/internal/models"
	"taskboard/pkg/logger"
)

// EnsureTopic creates the task-events topic with configured partitions (idempotent).
// Call at startup; if it fails (e.g. no broker or topic exists), app still runs.
func EnsureTopic(ctx context.Context) {
	cfg := config.Get()
	if len(cfg.KafkaBrokers) == 0 {
		return
	}
	conn, err := kafka.Dial("tcp", cfg.KafkaBrokers[0])
	if err != nil {
		logger.Debug(ctx, "Kafka dial for topic creation failed", "error", err)
		return
	}
	defer conn.Close()
	controller, err := conn.Controller()
	if err != nil {
		logger.Debug(ctx, "Kafka controller lookup failed", "error", err)
		return
	}
	ctrlConn, err := kafka.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	if err != nil {
		logger.Debug(ctx, "Kafka controller dial failed", "error", err)
		return
	}
	defer ctrlConn.Close()
	err = ctrlConn.CreateTopics(kafka.TopicConfig{
		Topic:             cfg.KafkaTopic,
		NumPartitions:     cfg.KafkaPartitions,
		ReplicationFactor: 1,
	})
	if err != nil {
		logger.Debug(ctx, "Kafka create topic failed (topic may already exist)", "error", err)
		return
	}
	logger.Info(ctx, "Kafka topic ensured", "topic", cfg.KafkaTopic, "partitions", cfg.KafkaPartitions)
}

var (
	writer *kafka.Writer
	wOnce  sync.Once
)

// Producer returns the global Kafka writer for task events (initialized on first use).
func Producer(ctx context.Context) *kafka.Writer {
	wOnce.Do(func() {
		cfg := config.Get()
		writer = &kafka.Writer{
			Addr:         kafka.TCP(cfg.KafkaBrokers...),
			Topic:        cfg.KafkaTopic,
			Balancer:     &kafka.Hash{},
			BatchSize:    100,
			BatchTimeout: 0,
			Async:        true,
			RequiredAcks: kafka.RequireOne,
		}
		logger.Info(ctx, "Kafka producer initialized", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	})
	return writer
}

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Publisher announces committed task changes.
type Publisher struct {
	w MessageWriter
}

func NewPublisher(w MessageWriter) *Publisher {
	return &Publisher{w: w}
}

// Publish writes ev keyed by user so one user's events stay ordered within a
// partition. A publisher without a writer drops events.
func (p *Publisher) Publish(ctx context.Context, ev models.TaskEvent) error {
	if p == nil || p.w == nil {
		return nil
	}
	msg, err := Encode(ev)
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, msg)
}

// Encode builds the Kafka message for ev.
func Encode(ev models.TaskEvent) (kafka.Message, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{Key: []byte(ev.UserID), Value: payload}, nil
}

// Decode parses a message produced by Encode.
func Decode(msg kafka.Message) (models.TaskEvent, error) {
	var ev models.TaskEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return ev, fmt.Errorf("decode task event: %w", err)
	}
	if ev.UserID == "" {
		ev.UserID = string(msg.Key)
	}
	return ev, nil
}

// Topic returns the task events topic name.
func Topic() string {
	return config.Get().KafkaTopic
}

// Brokers returns Kafka broker addresses.
func Brokers() []string {
	return config.Get().KafkaBrokers
}
