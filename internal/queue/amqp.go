package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/ksandoe/quizmaker/internal/jobs"
	"github.com/ksandoe/quizmaker/internal/pipeline"
	"github.com/ksandoe/quizmaker/internal/worker"
)

// Dial connects to RabbitMQ, retrying with exponential backoff for up to
// maxWait.
func Dial(ctx context.Context, url string, maxWait time.Duration, log *logrus.Entry) (*amqp.Connection, error) {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = maxWait

	conn, err := backoff.RetryNotifyWithData(func() (*amqp.Connection, error) {
		return amqp.Dial(url)
	}, backoff.WithContext(policy, ctx), func(err error, next time.Duration) {
		log.WithError(err).WithField("retry_in", next.String()).Warn("RabbitMQ not reachable yet")
	})
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	log.Info("Connected to RabbitMQ")
	return conn, nil
}

func declare(ch *amqp.Channel, queue string) error {
	_, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	return err
}

// AMQPPublisher publishes persistent JSON messages to a durable queue.
type AMQPPublisher struct {
	mu    sync.Mutex
	ch    *amqp.Channel
	queue string
	log   *logrus.Entry
}

// NewAMQPPublisher opens a channel on conn and declares queue.
func NewAMQPPublisher(conn *amqp.Connection, queue string, log *logrus.Entry) (*AMQPPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open publish channel: %w", err)
	}
	if err := declare(ch, queue); err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return &AMQPPublisher{ch: ch, queue: queue, log: log}, nil
}

// Publish sends req. Channels are not safe for concurrent publishing, hence
// the mutex.
func (p *AMQPPublisher) Publish(ctx context.Context, req pipeline.Request) error {
	body, err := Encode(req)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", p.queue, err)
	}
	p.log.WithField("video_id", req.VideoID).Info("Sent message for video")
	return nil
}

// Close closes the channel.
func (p *AMQPPublisher) Close() error {
	return p.ch.Close()
}

// AMQPConsumer feeds deliveries into the worker pool and acks each one after
// its pipeline run returns.
type AMQPConsumer struct {
	conn     *amqp.Connection
	queue    string
	prefetch int
	pool     Submitter
	runner   jobs.Runner
	log      *logrus.Entry

	// RetryDelay is how long to hold a delivery back when the pool is full.
	RetryDelay time.Duration
}

// NewAMQPConsumer creates an AMQPConsumer.
func NewAMQPConsumer(conn *amqp.Connection, queue string, prefetch int, pool Submitter, runner jobs.Runner, log *logrus.Entry) *AMQPConsumer {
	return &AMQPConsumer{
		conn:       conn,
		queue:      queue,
		prefetch:   prefetch,
		pool:       pool,
		runner:     runner,
		log:        log,
		RetryDelay: time.Second,
	}
}

// Run consumes until ctx is cancelled or the channel closes.
func (c *AMQPConsumer) Run(ctx context.Context) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}
	defer ch.Close()

	if err := declare(ch, c.queue); err != nil {
		return fmt.Errorf("declare queue %s: %w", c.queue, err)
	}
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}
	msgs, err := ch.Consume(
		c.queue,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	c.log.WithField("queue", c.queue).Info("Waiting for messages")
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.handle(ctx, d)
		}
	}
}

func (c *AMQPConsumer) handle(ctx context.Context, d amqp.Delivery) {
	req, err := Decode(d.Body)
	if err != nil {
		c.log.WithError(err).Error("Dropping undecodable message")
		if nerr := d.Nack(false, false); nerr != nil {
			c.log.WithError(nerr).Error("Failed to nack message")
		}
		return
	}

	log := c.log.WithField("video_id", req.VideoID)
	jobID := d.MessageId
	if jobID == "" {
		jobID = fmt.Sprintf("delivery-%d", d.DeliveryTag)
	}

	job := jobs.NewProcessVideoJob(jobID, req, c.runner, func(error) {
		// The run already recorded its outcome on the video row.
		if err := d.Ack(false); err != nil {
			log.WithError(err).Error("Failed to ack message")
		}
	}, c.log)

	if err := c.pool.Submit(job); err != nil {
		if errors.Is(err, worker.ErrQueueFull) {
			log.Warn("Worker pool full, requeueing message")
			select {
			case <-time.After(c.RetryDelay):
			case <-ctx.Done():
			}
		} else {
			log.WithError(err).Error("Could not submit job, requeueing message")
		}
		if nerr := d.Nack(false, true); nerr != nil {
			log.WithError(nerr).Error("Failed to nack message")
		}
	}
}
