package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"mercator-hq/filegate/pkg/config"
)

// kafkaReader is the part of *kafka.Reader the source uses.
type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Handler applies one decoded override.
type Handler interface {
	Apply(ctx context.Context, o Override) (Result, error)
}

// KafkaSource consumes JSON overrides from a topic. Messages are
// committed after they are handled, including ones that fail to decode
// or validate, so a bad message cannot stall the partition.
type KafkaSource struct {
	reader  kafkaReader
	handler Handler
	logger  *slog.Logger
}

// NewKafkaSource creates a consumer-group reader for cfg.
func NewKafkaSource(cfg config.KafkaConfig, handler Handler) (*KafkaSource, error) {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, b := range cfg.Brokers {
		if trimmed := strings.TrimSpace(b); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("kafka topic required")
	}
	if strings.TrimSpace(cfg.GroupID) == "" {
		return nil, errors.New("kafka group id required")
	}
	if handler == nil {
		return nil, errors.New("override handler required")
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})
	return newKafkaSource(r, handler), nil
}

func newKafkaSource(r kafkaReader, handler Handler) *KafkaSource {
	return &KafkaSource{
		reader:  r,
		handler: handler,
		logger:  slog.Default().With("component", "feedback.kafka"),
	}
}

// Run consumes until ctx ends or the reader fails. It returns nil on
// context cancellation.
func (s *KafkaSource) Run(ctx context.Context) error {
	s.logger.Info("feedback consumer started")
	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Info("feedback consumer stopped")
				return nil
			}
			return fmt.Errorf("fetch feedback message: %w", err)
		}

		s.handle(ctx, msg)

		if err := s.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit feedback message: %w", err)
		}
	}
}

func (s *KafkaSource) handle(ctx context.Context, msg kafka.Message) {
	logger := s.logger.With("partition", msg.Partition, "offset", msg.Offset)

	var o Override
	if err := json.Unmarshal(msg.Value, &o); err != nil {
		logger.Warn("discarding undecodable override", "error", err)
		return
	}
	if _, err := s.handler.Apply(ctx, o); err != nil {
		logger.Error("failed to apply override", "content_hash", o.ContentHash, "error", err)
	}
}

// Close closes the reader.
func (s *KafkaSource) Close() error {
	if s == nil || s.reader == nil {
		return nil
	}
	return s.reader.Close()
}
