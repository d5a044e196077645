package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/hackgods/hms-appointments/internal/config"
)

var ErrNoRecipient = errors.New("owner has no contact address")

// OTPMessage carries an EMR access code to a pet owner.
type OTPMessage struct {
	AppointmentID     string    `json:"appointment_id"`
	AppointmentNumber string    `json:"appointment_number"`
	PetName           string    `json:"pet_name"`
	OwnerName         string    `json:"owner_name"`
	Email             string    `json:"email,omitempty"`
	Phone             string    `json:"phone,omitempty"`
	EntityName        string    `json:"entity_name"`
	Date              string    `json:"appointment_date"`
	Time              string    `json:"appointment_time"`
	Code              string    `json:"code"`
	ExpiresAt         time.Time `json:"expires_at"`
}

type Notifier interface {
	SendOTP(ctx context.Context, msg OTPMessage) error
}

// New builds the notifier selected by cfg.NotifyDriver. The returned close
// func releases the underlying connection, if any.
func New(cfg config.Config, log *zap.Logger) (Notifier, func() error, error) {
	switch cfg.NotifyDriver {
	case config.NotifyAMQP:
		conn, err := amqp091.Dial(cfg.AMQPURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect rabbitmq: %w", err)
		}
		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("open rabbitmq channel: %w", err)
		}
		if _, err := ch.QueueDeclare(cfg.NotifyQueue, true, false, false, false, nil); err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("declare queue %s: %w", cfg.NotifyQueue, err)
		}
		log.Info("otp notifications via rabbitmq", zap.String("queue", cfg.NotifyQueue))
		return NewQueueNotifier(ch, cfg.NotifyQueue), conn.Close, nil
	case config.NotifySMTP:
		log.Info("otp notifications via smtp", zap.String("host", cfg.SMTP.Host))
		return NewMailNotifier(cfg.SMTP), func() error { return nil }, nil
	default:
		return NewLogNotifier(log), func() error { return nil }, nil
	}
}

// maskCode keeps the last two digits only.
func maskCode(code string) string {
	if len(code) <= 2 {
		return "**"
	}
	masked := make([]byte, len(code))
	for i := range masked {
		if i < len(code)-2 {
			masked[i] = '*'
		} else {
			masked[i] = code[i]
		}
	}
	return string(masked)
}
