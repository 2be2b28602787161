// Package queue carries job ids to workers over RabbitMQ and broadcasts
// progress updates on a topic exchange.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/keagan/cutforge/internal/config"
	"github.com/keagan/cutforge/internal/jobs"
)

// Message is the body of a job delivery.
type Message struct {
	JobID string    `json:"job_id"`
	Kind  jobs.Kind `json:"kind"`
}

// Broker owns one AMQP connection. Publishing shares a channel guarded by
// a mutex; every consumer gets a channel of its own.
type Broker struct {
	cfg    config.AMQPConfig
	logger zerolog.Logger
	conn   *amqp.Connection

	mu    sync.Mutex
	pubCh *amqp.Channel
}

// Dial connects and declares the job queues and progress exchange.
func Dial(cfg config.AMQPConfig, logger zerolog.Logger) (*Broker, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	for _, q := range []string{cfg.HeavyQueue, cfg.LightQueue} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to declare queue %s: %w", q, err)
		}
	}
	if err := ch.ExchangeDeclare(cfg.ProgressExchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", cfg.ProgressExchange, err)
	}

	return &Broker{
		cfg:    cfg,
		logger: logger.With().Str("component", "queue").Logger(),
		conn:   conn,
		pubCh:  ch,
	}, nil
}

// QueueName maps a queue class to its declared name.
func QueueName(cfg config.AMQPConfig, q jobs.Queue) string {
	if q == jobs.QueueLight {
		return cfg.LightQueue
	}
	return cfg.HeavyQueue
}

// Enqueue routes the job to the queue for its kind.
func (b *Broker) Enqueue(ctx context.Context, job *jobs.Job) error {
	body, err := json.Marshal(Message{JobID: job.ID, Kind: job.Kind})
	if err != nil {
		return err
	}
	queue := QueueName(b.cfg, jobs.QueueFor(job.Kind))
	err = b.publish(ctx, "", queue, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", job.ID, err)
	}
	b.logger.Debug().Str("job_id", job.ID).Str("queue", queue).Msg("job enqueued")
	return nil
}

// Publish broadcasts an update with the channel as routing key.
func (b *Broker) Publish(ctx context.Context, channel string, u jobs.Update) error {
	body, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return b.publish(ctx, b.cfg.ProgressExchange, channel, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now(),
		Body:        body,
	})
}

func (b *Broker) publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pubCh.PublishWithContext(ctx, exchange, key, false, false, msg)
}

// Consume starts delivering from q with a prefetch of one. The channel
// closes when ctx is done or the connection drops.
func (b *Broker) Consume(ctx context.Context, q jobs.Queue) (<-chan Delivery, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to set qos: %w", err)
	}
	msgs, err := ch.Consume(QueueName(b.cfg, q), "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to consume: %w", err)
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- amqpDelivery(d):
				case <-ctx.Done():
					_ = d.Nack(false, true)
					return
				}
			}
		}
	}()
	return out, nil
}

// Close shuts the connection down.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pubCh != nil {
		_ = b.pubCh.Close()
	}
	return b.conn.Close()
}

// Delivery is one received message.
type Delivery struct {
	Body []byte
	ack  func() error
	nack func(requeue bool) error
}

// NewDelivery builds a delivery from callbacks.
func NewDelivery(body []byte, ack func() error, nack func(requeue bool) error) Delivery {
	return Delivery{Body: body, ack: ack, nack: nack}
}

func amqpDelivery(d amqp.Delivery) Delivery {
	return Delivery{
		Body: d.Body,
		ack:  func() error { return d.Ack(false) },
		nack: func(requeue bool) error { return d.Nack(false, requeue) },
	}
}

// Ack confirms the message.
func (d Delivery) Ack() error { return d.ack() }

// Nack rejects the message, optionally putting it back on the queue.
func (d Delivery) Nack(requeue bool) error { return d.nack(requeue) }
