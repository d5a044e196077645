package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier only writes the dispatch to the log. Used in development.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) SendOTP(_ context.Context, msg OTPMessage) error {
	n.log.Info("emr otp dispatched",
		zap.String("appointment_id", msg.AppointmentID),
		zap.String("appointment_number", msg.AppointmentNumber),
		zap.String("owner", msg.OwnerName),
		zap.String("code", maskCode(msg.Code)),
		zap.Time("expires_at", msg.ExpiresAt),
	)
	return nil
}
