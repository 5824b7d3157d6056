package mqx

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"cafeteria-menu-system/shared/config"
	"cafeteria-menu-system/shared/events"
)

type Producer struct {
	writer *kafka.Writer
	topic  string
}

func NewProducer(cfg config.Config) (*Producer, error) {
	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	topic := cfg.KafkaEventsTopic
	if topic == "" {
		topic = events.TopicMenuEvents
	}
	w := &kafka.Writer{
		Addr: kafka.TCP(cfg.KafkaBrokers...),
		// Keyed by location so one location's events stay in one partition.
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		MaxAttempts:  max(cfg.KafkaRetryMax, 1),
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: time.Duration(cfg.KafkaWriteMS) * time.Millisecond,
		Transport: &kafka.Transport{
			ClientID: cfg.KafkaClientID,
		},
	}
	return &Producer{writer: w, topic: topic}, nil
}

func (p *Producer) Topic() string {
	if p == nil {
		return ""
	}
	return p.topic
}

// PublishEnvelope writes env to the events topic.
func (p *Producer) PublishEnvelope(ctx context.Context, env events.Envelope) error {
	if p == nil || p.writer == nil {
		return errors.New("producer not initialized")
	}
	msg, err := EnvelopeMessage(p.topic, env)
	if err != nil {
		return err
	}
	ctx, span := otel.Tracer("mqx").Start(ctx, "kafka.produce")
	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", p.topic),
		attribute.String("menu.event_type", env.EventType),
		attribute.Int64("menu.position", int64(env.Position)),
	)
	defer span.End()
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (p *Producer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// EnvelopeMessage encodes env as a kafka message keyed by location.
func EnvelopeMessage(topic string, env events.Envelope) (kafka.Message, error) {
	value, err := sonic.Marshal(env)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode envelope: %w", err)
	}
	return kafka.Message{
		Topic: topic,
		Key:   []byte(env.LocationID.String()),
		Value: value,
		Time:  env.OccurredAt,
		Headers: []kafka.Header{
			{Key: events.HeaderEventType, Value: []byte(env.EventType)},
			{Key: events.HeaderStreamKey, Value: []byte(env.StreamKey)},
			{Key: events.HeaderPosition, Value: []byte(strconv.FormatUint(env.Position, 10))},
		},
	}, nil
}

// DecodeEnvelope is the inverse of EnvelopeMessage.
func DecodeEnvelope(msg kafka.Message) (events.Envelope, error) {
	var env events.Envelope
	if err := sonic.Unmarshal(msg.Value, &env); err != nil {
		return events.Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.EventType == "" {
		env.EventType = Header(msg, events.HeaderEventType)
	}
	return env, nil
}

func Header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func NewConsumer(cfg config.Config, topic string, groupID string) (*kafka.Reader, error) {
	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if topic == "" {
		topic = cfg.KafkaEventsTopic
	}
	if topic == "" {
		topic = events.TopicMenuEvents
	}
	if groupID == "" {
		groupID = cfg.KafkaGroupID
	}
	if groupID == "" {
		return nil, errors.New("KAFKA_CONSUMER_GROUP is required")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		GroupID:  groupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})
	return reader, nil
}
