package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"umuhanda-backend/internal/domain/model"
	"umuhanda-backend/internal/domain/ports/adapter"
	"umuhanda-backend/internal/infra/metrics"
	"umuhanda-backend/internal/infra/worker"
)

// MaxEmailRetries is the number of retries after the first failed e-mail attempt.
const MaxEmailRetries = 3

// Compile-time check
var _ NotificationUseCase = (*notificationUC)(nil)

// TaskRunner accepts background work; *worker.Pool satisfies it.
type TaskRunner interface {
	Submit(task worker.Task) error
}

// Translator renders localized copy; *i18n.Bundle satisfies it.
type Translator interface {
	T(lang, key string, args ...interface{}) string
}

type NoticeKind string

const (
	NoticePaymentSucceeded NoticeKind = "payment_succeeded"
	NoticePaymentFailed    NoticeKind = "payment_failed"
)

// PaymentNotice describes who to tell about which payment outcome.
type PaymentNotice struct {
	Kind     NoticeKind
	Type     model.TransactionType
	Language model.Language
	Names    string
	Email    string
	Phone    string
}

// NotificationUseCase is the best-effort SMS/e-mail dispatcher. The Notify*
// methods queue delivery and return immediately; they never fail the caller.
type NotificationUseCase interface {
	SendSMS(ctx context.Context, phone, message string) bool
	SendEmail(ctx context.Context, msg adapter.EmailMessage) bool

	NotifyPayment(ctx context.Context, n PaymentNotice)
	NotifyWelcome(ctx context.Context, u *model.User, lang model.Language)
	NotifyResetCode(ctx context.Context, u *model.User, code string, ttl time.Duration, lang model.Language)
}

type notificationUC struct {
	email      adapter.EmailSender
	sms        adapter.SMSSender
	runner     TaskRunner
	tr         Translator
	retryDelay time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
	log        *zerolog.Logger
}

func NewNotificationUseCase(email adapter.EmailSender, sms adapter.SMSSender, runner TaskRunner, tr Translator, retryDelay time.Duration, logger *zerolog.Logger) *notificationUC {
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	l := logger.With().Str("component", "notifications").Logger()
	return &notificationUC{
		email:      email,
		sms:        sms,
		runner:     runner,
		tr:         tr,
		retryDelay: retryDelay,
		sleep:      sleepCtx,
		log:        &l,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SendSMS makes a single delivery attempt.
func (n *notificationUC) SendSMS(ctx context.Context, phone, message string) bool {
	if phone == "" {
		metrics.IncNotification("sms", "skipped")
		return false
	}
	if err := n.sms.Send(ctx, phone, message); err != nil {
		metrics.IncNotification("sms", "failed")
		n.log.Warn().Err(err).Msg("sms delivery failed")
		return false
	}
	metrics.IncNotification("sms", "sent")
	return true
}

// SendEmail tries once and then retries up to MaxEmailRetries times, waiting
// retryDelay × attempt between tries.
func (n *notificationUC) SendEmail(ctx context.Context, msg adapter.EmailMessage) bool {
	if msg.To == "" {
		metrics.IncNotification("email", "skipped")
		return false
	}
	for attempt := 0; ; attempt++ {
		err := n.email.Send(ctx, msg)
		if err == nil {
			metrics.IncNotification("email", "sent")
			return true
		}
		if attempt >= MaxEmailRetries {
			metrics.IncNotification("email", "failed")
			n.log.Error().Err(err).Str("subject", msg.Subject).Int("attempts", attempt+1).Msg("email delivery failed")
			return false
		}
		metrics.IncNotification("email", "retry")
		n.log.Warn().Err(err).Int("attempt", attempt+1).Msg("email delivery failed, retrying")
		if err := n.sleep(ctx, n.retryDelay*time.Duration(attempt+1)); err != nil {
			metrics.IncNotification("email", "failed")
			return false
		}
	}
}

func (n *notificationUC) NotifyPayment(ctx context.Context, p PaymentNotice) {
	lang := string(p.Language)
	var subjectKey, smsKey, emailKey string
	switch {
	case p.Kind == NoticePaymentFailed:
		subjectKey, smsKey, emailKey = "payment_failed_subject", "payment_failed_sms", "payment_failed_email"
	case p.Type == model.TransactionGazette:
		subjectKey, smsKey, emailKey = "gazette_success_subject", "gazette_success_sms", "gazette_success_email"
	default:
		subjectKey, smsKey, emailKey = "payment_success_subject", "payment_success_sms", "payment_success_email"
	}
	n.dispatch(
		p.Phone, n.tr.T(lang, smsKey, p.Names),
		adapter.EmailMessage{To: p.Email, Subject: n.tr.T(lang, subjectKey), HTML: n.tr.T(lang, emailKey, p.Names)},
		string(p.Kind),
	)
}

func (n *notificationUC) NotifyWelcome(ctx context.Context, u *model.User, lang model.Language) {
	l := string(lang)
	n.dispatch(
		u.PhoneNumber, n.tr.T(l, "welcome_sms", u.Names),
		adapter.EmailMessage{To: u.Email, Subject: n.tr.T(l, "welcome_subject"), HTML: n.tr.T(l, "welcome_email", u.Names)},
		"welcome",
	)
}

func (n *notificationUC) NotifyResetCode(ctx context.Context, u *model.User, code string, ttl time.Duration, lang model.Language) {
	l := string(lang)
	mins := int(ttl.Minutes())
	n.dispatch(
		u.PhoneNumber, n.tr.T(l, "reset_sms", code, mins),
		adapter.EmailMessage{To: u.Email, Subject: n.tr.T(l, "reset_subject"), HTML: n.tr.T(l, "reset_email", code, mins)},
		"reset_code",
	)
}

// dispatch queues one SMS and one e-mail as independent tasks. The tasks run
// on the runner's context, not the request's, so they outlive the response.
func (n *notificationUC) dispatch(phone, smsText string, mail adapter.EmailMessage, kind string) {
	if phone != "" {
		if err := n.runner.Submit(func(ctx context.Context) error {
			n.SendSMS(ctx, phone, smsText)
			return nil
		}); err != nil {
			metrics.IncNotification("sms", "skipped")
			n.log.Warn().Err(err).Str("kind", kind).Msg("could not queue sms")
		}
	}
	if mail.To != "" {
		if err := n.runner.Submit(func(ctx context.Context) error {
			n.SendEmail(ctx, mail)
			return nil
		}); err != nil {
			metrics.IncNotification("email", "skipped")
			n.log.Warn().Err(err).Str("kind", kind).Msg("could not queue email")
		}
	}
}
