package notify

import (
	"context"

	"github.com/rs/zerolog"

	"umuhanda-backend/internal/domain/ports/adapter"
)

// LogSender stands in for an unconfigured provider and only logs what would be sent.
type LogSender struct {
	log *zerolog.Logger
}

var (
	_ adapter.EmailSender = (*LogSender)(nil)
	_ adapter.SMSSender   = smsLog{}
)

func NewLogSender(logger *zerolog.Logger) *LogSender {
	l := logger.With().Str("component", "notify.log").Logger()
	return &LogSender{log: &l}
}

// Send implements adapter.EmailSender.
func (s *LogSender) Send(ctx context.Context, msg adapter.EmailMessage) error {
	s.log.Info().Str("to", msg.To).Str("subject", msg.Subject).Msg("email not sent: provider not configured")
	return nil
}

// SMS returns an adapter.SMSSender view of the same logger.
func (s *LogSender) SMS() adapter.SMSSender { return smsLog{s.log} }

type smsLog struct{ log *zerolog.Logger }

func (s smsLog) Send(ctx context.Context, phone, message string) error {
	s.log.Info().Str("phone", phone).Int("len", len(message)).Msg("sms not sent: provider not configured")
	return nil
}
