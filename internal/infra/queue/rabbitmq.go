package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"tg-track-bot/internal/domain"
	"tg-track-bot/internal/infra/metrics"
)

// AMQPRefreshQueue реализует очередь задач обновления поверх RabbitMQ.
type AMQPRefreshQueue struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	queue      string
	deliveries <-chan amqp.Delivery
}

var _ domain.RefreshQueue = (*AMQPRefreshQueue)(nil)

// NewAMQPRefreshQueue подключается к RabbitMQ и объявляет durable-очередь.
func NewAMQPRefreshQueue(amqpURL, queue string) (*AMQPRefreshQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &AMQPRefreshQueue{conn: conn, channel: channel, queue: queue}, nil
}

// Enqueue публикует задачу в очередь.
func (q *AMQPRefreshQueue) Enqueue(ctx context.Context, task domain.RefreshTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	start := time.Now()
	err = q.channel.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         payload,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish task: %w", err)
	}
	return nil
}

// Pop блокирующе читает задачу из очереди и подтверждает доставку.
func (q *AMQPRefreshQueue) Pop(ctx context.Context) (domain.RefreshTask, error) {
	if q.deliveries == nil {
		deliveries, err := q.channel.Consume(q.queue, "", false, false, false, false, nil)
		if err != nil {
			return domain.RefreshTask{}, fmt.Errorf("consume queue: %w", err)
		}
		q.deliveries = deliveries
	}
	select {
	case <-ctx.Done():
		return domain.RefreshTask{}, ctx.Err()
	case delivery, ok := <-q.deliveries:
		if !ok {
			return domain.RefreshTask{}, errors.New("amqp queue: channel closed")
		}
		var task domain.RefreshTask
		if err := json.Unmarshal(delivery.Body, &task); err != nil {
			_ = delivery.Nack(false, false)
			return domain.RefreshTask{}, fmt.Errorf("decode task: %w", err)
		}
		if err := delivery.Ack(false); err != nil {
			return domain.RefreshTask{}, fmt.Errorf("ack task: %w", err)
		}
		return task, nil
	}
}

// Close освобождает подключение.
func (q *AMQPRefreshQueue) Close() error {
	if err := q.channel.Close(); err != nil {
		_ = q.conn.Close()
		return err
	}
	return q.conn.Close()
}
