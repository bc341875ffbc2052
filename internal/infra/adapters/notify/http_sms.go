package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"umuhanda-backend/internal/domain/ports/adapter"
)

var _ adapter.SMSSender = (*HTTPSMSSender)(nil)

// HTTPSMSSender posts messages to a bulk-SMS HTTP provider.
type HTTPSMSSender struct {
	baseURL string
	apiKey  string
	sender  string
	client  *http.Client
}

func NewHTTPSMSSender(baseURL, apiKey, sender string) (*HTTPSMSSender, error) {
	if baseURL == "" {
		return nil, errors.New("sms base url empty")
	}
	return &HTTPSMSSender{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		sender:  sender,
		client:  &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (s *HTTPSMSSender) Send(ctx context.Context, phone, message string) error {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return errors.New("sms recipient empty")
	}
	b, _ := json.Marshal(map[string]any{
		"recipients": []string{phone},
		"message":    message,
		"sender":     s.sender,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/messages", bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("sms http %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}
