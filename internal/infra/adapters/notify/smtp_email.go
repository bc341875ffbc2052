package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"umuhanda-backend/internal/domain/ports/adapter"
)

var _ adapter.EmailSender = (*SMTPSender)(nil)

// SMTPSender delivers HTML mail. Port 465 uses implicit TLS; other ports
// go through smtp.SendMail which upgrades with STARTTLS when offered.
type SMTPSender struct {
	host     string
	port     int
	user     string
	password string
	from     string
	timeout  time.Duration
}

func NewSMTPSender(host string, port int, user, password, from string) (*SMTPSender, error) {
	if host == "" {
		return nil, errors.New("smtp host empty")
	}
	if from == "" {
		from = user
	}
	return &SMTPSender{host: host, port: port, user: user, password: password, from: from, timeout: 15 * time.Second}, nil
}

func (s *SMTPSender) Send(ctx context.Context, msg adapter.EmailMessage) error {
	if strings.TrimSpace(msg.To) == "" {
		return errors.New("email recipient empty")
	}
	raw := buildMessage(s.from, msg)
	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	var auth smtp.Auth
	if s.user != "" {
		auth = smtp.PlainAuth("", s.user, s.password, s.host)
	}

	done := make(chan error, 1)
	go func() {
		if s.port == 465 {
			done <- s.sendTLS(addr, auth, msg.To, raw)
			return
		}
		done <- smtp.SendMail(addr, auth, s.from, []string{msg.To}, raw)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send to %s: %w", msg.To, err)
		}
		return nil
	}
}

func (s *SMTPSender) sendTLS(addr string, auth smtp.Auth, to string, raw []byte) error {
	dialer := &net.Dialer{Timeout: s.timeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: s.host})
	if err != nil {
		return err
	}
	c, err := smtp.NewClient(conn, s.host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()
	if auth != nil {
		if err := c.Auth(auth); err != nil {
			return err
		}
	}
	if err := c.Mail(s.from); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(raw); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func buildMessage(from string, msg adapter.EmailMessage) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + msg.Subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTML)
	return []byte(b.String())
}
