package render

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// AMQPPublisher sends jobs to a durable queue, one JSON message per job.
type AMQPPublisher struct {
	channel *amqp.Channel
	queue   string
	logger  *zap.Logger
}

func NewAMQPPublisher(conn *amqp.Connection, queue string, logger *zap.Logger) (*AMQPPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("render publisher: open channel: %w", err)
	}
	// durable, not auto-deleted, not exclusive
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("render publisher: declare queue %q: %w", queue, err)
	}
	logger.Info("render publisher ready", zap.String("queue", queue))
	return &AMQPPublisher{channel: ch, queue: queue, logger: logger.Named("render_publisher")}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, jobs []Job) error {
	if p.channel == nil {
		return errors.New("render publisher: channel not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	for _, j := range jobs {
		body, err := json.Marshal(j)
		if err != nil {
			return fmt.Errorf("render publisher: marshal job %s: %w", j.ID, err)
		}
		err = p.channel.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    j.ID,
			Timestamp:    time.Now(),
			Body:         body,
		})
		if err != nil {
			p.logger.Error("publish failed",
				zap.String("lesson_id", j.LessonID),
				zap.String("media_key", j.MediaKey),
				zap.Error(err))
			return fmt.Errorf("render publisher: publish %s: %w", j.MediaKey, err)
		}
	}
	p.logger.Debug("jobs published", zap.Int("count", len(jobs)))
	return nil
}

func (p *AMQPPublisher) Close() error {
	if p.channel == nil {
		return nil
	}
	return p.channel.Close()
}

// LogPublisher only logs jobs. It stands in when no broker is configured.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.Named("render_publisher")}
}

func (p *LogPublisher) Publish(_ context.Context, jobs []Job) error {
	for _, j := range jobs {
		p.logger.Info("render job",
			zap.String("lesson_id", j.LessonID),
			zap.String("list", j.ListKey),
			zap.Int("segment", j.SegmentNumber),
			zap.String("media_key", j.MediaKey),
			zap.Int("lines", len(j.Lines)))
	}
	return nil
}
