package adapter

import "context"

// EmailMessage is an HTML e-mail.
type EmailMessage struct {
	To      string
	Subject string
	HTML    string
}

// EmailSender delivers one message, once.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// SMSSender delivers one text message, once.
type SMSSender interface {
	Send(ctx context.Context, phoneNumber, message string) error
}
