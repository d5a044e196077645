package notify

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/gomail.v2"

	"github.com/hackgods/hms-appointments/internal/config"
)

type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

type MailNotifier struct {
	from   string
	sender mailSender
}

func NewMailNotifier(cfg config.SMTPConfig) *MailNotifier {
	return &MailNotifier{
		from:   cfg.From,
		sender: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

func (n *MailNotifier) SendOTP(ctx context.Context, msg OTPMessage) error {
	to := strings.TrimSpace(msg.Email)
	if to == "" {
		return ErrNoRecipient
	}

	m := buildOTPMail(n.from, to, msg)

	done := make(chan error, 1)
	go func() {
		done <- n.sender.DialAndSend(m)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send otp mail: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func buildOTPMail(from, to string, msg OTPMessage) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", fmt.Sprintf("EMR access code for %s", msg.PetName))
	m.SetBody("text/plain", fmt.Sprintf(
		"Hello %s,\n\nYour code to share %s's medical record for appointment %s at %s on %s %s is %s.\nIt expires at %s.\n",
		msg.OwnerName, msg.PetName, msg.AppointmentNumber, msg.EntityName, msg.Date, msg.Time,
		msg.Code, msg.ExpiresAt.Format("2006-01-02 15:04 MST"),
	))
	return m
}
