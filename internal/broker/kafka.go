package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"cardora-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Producer struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}

	return &Producer{writer: writer, logger: util.GetLogger()}
}

// PublishEvent publishes an event to Kafka. Events sharing a key keep their order.
func (p *Producer) PublishEvent(ctx context.Context, key string, event interface{}) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: eventBytes,
		Time:  time.Now(),
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	p.logger.Debug("Published event",
		zap.String("topic", p.writer.Topic),
		zap.String("key", key),
		zap.String("type", fmt.Sprintf("%T", event)))
	return nil
}

// Forward writes msg to the producer's topic unchanged, adding headers that
// name its origin and the error that stopped it.
func (p *Producer) Forward(ctx context.Context, msg kafka.Message, cause error) error {
	headers := append([]kafka.Header(nil), msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: "x-source-topic", Value: []byte(msg.Topic)},
		kafka.Header{Key: "x-source-partition", Value: []byte(strconv.Itoa(msg.Partition))},
		kafka.Header{Key: "x-source-offset", Value: []byte(strconv.FormatInt(msg.Offset, 10))},
		kafka.Header{Key: "x-error", Value: []byte(cause.Error())},
	)

	out := kafka.Message{
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
		Time:    time.Now(),
	}
	if err := p.writer.WriteMessages(ctx, out); err != nil {
		return fmt.Errorf("failed to forward message to %s: %w", p.writer.Topic, err)
	}
	return nil
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

const (
	handlerMaxAttempts  = 5
	handlerRetryBackoff = 500 * time.Millisecond
)

// DeadLetterWriter receives messages whose handler kept failing
type DeadLetterWriter interface {
	Forward(ctx context.Context, msg kafka.Message, cause error) error
}

// Consumer represents a Kafka consumer
type Consumer struct {
	reader      *kafka.Reader
	topic       string
	maxAttempts int
	backoff     time.Duration
	deadLetters DeadLetterWriter
	logger      *zap.Logger
}

// NewConsumer creates a new Kafka consumer. Messages that still fail after
// the handler's retries go to deadLetters.
func NewConsumer(brokers []string, topic, groupID string, deadLetters DeadLetterWriter) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		StartOffset:    kafka.FirstOffset,
	})

	return &Consumer{
		reader:      reader,
		topic:       topic,
		maxAttempts: handlerMaxAttempts,
		backoff:     handlerRetryBackoff,
		deadLetters: deadLetters,
		logger:      util.GetLogger(),
	}
}

// Close closes the consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// MessageHandler is a function type for handling messages
type MessageHandler func(ctx context.Context, msg kafka.Message) error

// StartConsuming fetches messages until ctx is cancelled. Each message is
// handled to completion before the next fetch, and its offset is committed
// only once it was handled or moved to the dead-letter topic.
func (c *Consumer) StartConsuming(ctx context.Context, handler MessageHandler) error {
	c.logger.Info("Starting Kafka consumer", zap.String("topic", c.topic))

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.logger.Info("Consumer context cancelled, stopping", zap.String("topic", c.topic))
				return ctx.Err()
			}
			c.logger.Error("Error fetching message", zap.String("topic", c.topic), zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		if err := c.process(ctx, msg, handler); err != nil {
			c.logger.Info("Consumer context cancelled, stopping",
				zap.String("topic", c.topic),
				zap.Int64("uncommitted_offset", msg.Offset))
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("Error committing message", zap.Error(err))
		}
	}
}

// process retries handler with exponential backoff. Once attempts run out
// the message is forwarded to the dead-letter writer, which is retried until
// it succeeds. A non-nil error means ctx ended and msg must not be committed.
func (c *Consumer) process(ctx context.Context, msg kafka.Message, handler MessageHandler) error {
	var err error
	delay := c.backoff
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err = handler(ctx, msg); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("Error handling message",
			zap.String("topic", c.topic),
			zap.Int64("offset", msg.Offset),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if attempt == c.maxAttempts {
			break
		}
		if werr := sleepContext(ctx, delay); werr != nil {
			return werr
		}
		delay *= 2
	}

	util.KafkaDeadLetteredTotal.WithLabelValues(c.topic).Inc()
	if c.deadLetters == nil {
		c.logger.Error("Dropping message after handler retries",
			zap.String("topic", c.topic),
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
		return nil
	}

	for {
		ferr := c.deadLetters.Forward(ctx, msg, err)
		if ferr == nil {
			c.logger.Error("Moved message to dead-letter topic",
				zap.String("topic", c.topic),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
			return nil
		}
		c.logger.Error("Failed to forward message to dead-letter topic",
			zap.String("topic", c.topic),
			zap.Int64("offset", msg.Offset),
			zap.Error(ferr))
		if werr := sleepContext(ctx, c.backoff); werr != nil {
			return werr
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
