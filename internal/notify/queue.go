package notify

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/rabbitmq/amqp091-go"
)

// publisher is the part of *amqp091.Channel the queue notifier uses.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

type QueueNotifier struct {
	channel publisher
	queue   string
}

func NewQueueNotifier(ch publisher, queue string) *QueueNotifier {
	return &QueueNotifier{channel: ch, queue: queue}
}

func (n *QueueNotifier) SendOTP(ctx context.Context, msg OTPMessage) error {
	if msg.Email == "" && msg.Phone == "" {
		return ErrNoRecipient
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	publishing := amqp091.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp091.Persistent,
		Headers: amqp091.Table{
			"message_type":     "JSON",
			"requeue_strategy": "DROP",
		},
	}

	if err := n.channel.PublishWithContext(ctx, "", n.queue, false, false, publishing); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}
