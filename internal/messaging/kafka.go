package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/lernia/lernia/internal/config"
	"github.com/lernia/lernia/internal/services"
	"github.com/lernia/lernia/internal/validation"
	"github.com/lernia/lernia/pkg/models"
)

const (
	consumerGroup = "lernia-recommendation-engine"
	maxAttempts   = 3
	retryBackoff  = time.Second
)

// Consumer ingests interaction events and resource updates from kafka and
// feeds them to the engine. Messages failing validation or processing after
// retries land on the topic's dead letter queue with the failure attached.
type Consumer struct {
	cfg       *config.KafkaConfig
	engine    *services.RecommendationEngine
	validator *validation.EventValidator
	logger    *logrus.Logger

	readers []*kafka.Reader
	dlq     *kafka.Writer
	wg      sync.WaitGroup
}

func NewConsumer(cfg *config.KafkaConfig, engine *services.RecommendationEngine, validator *validation.EventValidator, logger *logrus.Logger) *Consumer {
	return &Consumer{
		cfg:       cfg,
		engine:    engine,
		validator: validator,
		logger:    logger,
		dlq: &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers...),
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// Start launches one consume loop per topic. Loops run until the context is
// cancelled.
func (c *Consumer) Start(ctx context.Context) {
	c.consume(ctx, c.cfg.Topics.InteractionEvents, c.handleInteraction)
	c.consume(ctx, c.cfg.Topics.ResourceUpdates, c.handleResourceUpdate)
}

// Stop waits for the consume loops to drain and closes the connections.
func (c *Consumer) Stop() error {
	c.wg.Wait()
	for _, r := range c.readers {
		if err := r.Close(); err != nil {
			c.logger.WithError(err).Warn("Failed to close kafka reader")
		}
	}
	return c.dlq.Close()
}

func (c *Consumer) consume(ctx context.Context, topic string, handle func(context.Context, []byte) error) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     c.cfg.Brokers,
		GroupID:     consumerGroup,
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.LastOffset,
	})
	c.readers = append(c.readers, reader)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.logger.WithField("topic", topic).Info("Kafka consumer started")

		for {
			msg, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				c.logger.WithError(err).WithField("topic", topic).Warn("Kafka read failed")
				continue
			}
			c.process(ctx, topic, msg, handle)
		}
	}()
}

// process retries transient failures with backoff and dead-letters the
// message when they persist. Validation failures skip the retries, they can
// never succeed.
func (c *Consumer) process(ctx context.Context, topic string, msg kafka.Message, handle func(context.Context, []byte) error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = handle(ctx, msg.Value)
		if lastErr == nil {
			return
		}
		if isPermanent(lastErr) {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(retryBackoff * time.Duration(attempt)):
		}
	}

	c.logger.WithError(lastErr).WithFields(logrus.Fields{
		"topic":     topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
	}).Error("Message processing failed, sending to dead letter queue")

	c.deadLetter(ctx, topic, msg, lastErr)
}

func isPermanent(err error) bool {
	return errors.Is(err, models.ErrInvalidInput)
}

func (c *Consumer) deadLetter(ctx context.Context, topic string, msg kafka.Message, cause error) {
	dlqMsg := kafka.Message{
		Topic: topic + "-dlq",
		Key:   msg.Key,
		Value: msg.Value,
		Headers: []kafka.Header{
			{Key: "error", Value: []byte(cause.Error())},
			{Key: "failed_at", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		},
	}
	if err := c.dlq.WriteMessages(ctx, dlqMsg); err != nil {
		c.logger.WithError(err).Error("Dead letter write failed, message dropped")
	}
}

type interactionEvent struct {
	UserID     string `json:"user_id"`
	ResourceID string `json:"resource_id"`
	Kind       string `json:"kind"`
	Rating     *int   `json:"rating,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
}

func (c *Consumer) handleInteraction(ctx context.Context, payload []byte) error {
	if err := c.validator.ValidateInteractionEvent(payload); err != nil {
		return err
	}

	var event interactionEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}

	interaction, err := event.toInteraction()
	if err != nil {
		return err
	}
	return c.engine.RecordInteraction(ctx, interaction)
}

func (e *interactionEvent) toInteraction() (*models.Interaction, error) {
	interaction := &models.Interaction{
		Kind:   models.InteractionKind(e.Kind),
		Rating: e.Rating,
	}

	var err error
	if interaction.UserID, err = parseUUID("user_id", e.UserID); err != nil {
		return nil, err
	}
	if interaction.ResourceID, err = parseUUID("resource_id", e.ResourceID); err != nil {
		return nil, err
	}
	if e.CreatedAt != "" {
		if interaction.CreatedAt, err = time.Parse(time.RFC3339, e.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: bad created_at: %v", models.ErrInvalidInput, err)
		}
	}
	return interaction, nil
}

func (c *Consumer) handleResourceUpdate(ctx context.Context, payload []byte) error {
	if err := c.validator.ValidateResourceUpdate(payload); err != nil {
		return err
	}

	var update models.ResourceUpdate
	if err := json.Unmarshal(payload, &update); err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}

	c.engine.HandleResourceUpdate(ctx, &update)
	return nil
}

func parseUUID(field, value string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad %s: %v", models.ErrInvalidInput, field, err)
	}
	return id, nil
}
