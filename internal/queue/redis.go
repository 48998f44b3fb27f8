package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"clearpoint-monitor/internal/monitoring"
)

// DefaultQueueName is the Redis list notifications are pushed to
const DefaultQueueName = "clearpoint:notifications"

// Config holds Redis connection settings for the notification queue
type Config struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	PoolSize  int    `mapstructure:"pool_size"`
	QueueName string `mapstructure:"queue_name"`
	// MaxLength caps the list; older entries are trimmed. Zero means unbounded.
	MaxLength int64 `mapstructure:"max_length"`
}

// Message is the envelope pushed to the queue
type Message struct {
	ID           string                  `json:"id"`
	Type         string                  `json:"type"`
	Notification monitoring.Notification `json:"notification"`
	Timestamp    time.Time               `json:"timestamp"`
	Retries      int                     `json:"retries"`
}

// RedisNotifier hands notifications to downstream delivery workers through a
// Redis list
type RedisNotifier struct {
	client *redis.Client
	config Config
	logger *logrus.Entry
}

// NewRedisNotifier connects to Redis and verifies the connection
func NewRedisNotifier(ctx context.Context, config Config, logger *logrus.Entry) (*RedisNotifier, error) {
	if config.QueueName == "" {
		config.QueueName = DefaultQueueName
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisNotifier{
		client: client,
		config: config,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (q *RedisNotifier) Close() error {
	if q.client == nil {
		return nil
	}
	return q.client.Close()
}

// Send implements monitoring.Notifier
func (q *RedisNotifier) Send(ctx context.Context, n monitoring.Notification) error {
	message := Message{
		ID:           uuid.NewString(),
		Type:         string(n.Kind),
		Notification: n,
		Timestamp:    time.Now().UTC(),
	}
	return q.publish(ctx, q.config.QueueName, message)
}

func (q *RedisNotifier) publish(ctx context.Context, queueName string, message Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.LPush(ctx, queueName, data)
	if q.config.MaxLength > 0 {
		pipe.LTrim(ctx, queueName, 0, q.config.MaxLength-1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", queueName, err)
	}

	q.logger.WithFields(logrus.Fields{
		"queue":      queueName,
		"message_id": message.ID,
		"type":       message.Type,
		"device_id":  message.Notification.DeviceID,
	}).Debug("Notification queued")
	return nil
}

// Receive pops the oldest message, waiting up to timeout. It returns nil when
// the queue stays empty.
func (q *RedisNotifier) Receive(ctx context.Context, timeout time.Duration) (*Message, error) {
	result, err := q.client.BRPop(ctx, timeout, q.config.QueueName).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to receive message: %w", err)
	}
	if len(result) < 2 {
		return nil, nil
	}

	var message Message
	if err := json.Unmarshal([]byte(result[1]), &message); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	return &message, nil
}

// Requeue puts a message back for another attempt, or moves it to the dead
// letter list once maxRetries is reached
func (q *RedisNotifier) Requeue(ctx context.Context, message Message, maxRetries int) error {
	message.Retries++
	if message.Retries < maxRetries {
		return q.publish(ctx, q.config.QueueName, message)
	}

	q.logger.WithFields(logrus.Fields{
		"message_id": message.ID,
		"retries":    message.Retries,
	}).Warn("Moving notification to dead letter queue")
	return q.publish(ctx, q.DeadLetterQueue(), message)
}

// DeadLetterQueue returns the name of the dead letter list
func (q *RedisNotifier) DeadLetterQueue() string {
	return q.config.QueueName + ":dlq"
}

// QueueLength returns the number of queued notifications
func (q *RedisNotifier) QueueLength(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.config.QueueName).Result()
}

// Health checks the Redis connection health
func (q *RedisNotifier) Health(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}
