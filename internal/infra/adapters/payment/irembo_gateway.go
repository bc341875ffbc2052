package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"umuhanda-backend/internal/domain"
	"umuhanda-backend/internal/domain/model"
	"umuhanda-backend/internal/domain/ports/adapter"
	"umuhanda-backend/internal/infra/metrics"
)

var _ adapter.InvoiceGateway = (*IremboPayGateway)(nil)

const (
	iremboAPIVersion = "2"
	tokenSkew        = 60 * time.Second
	defaultTokenTTL  = time.Hour
)

// IremboPayGateway implements adapter.InvoiceGateway against the IremboPay v2 REST API.
type IremboPayGateway struct {
	baseURL        string
	authURL        string
	clientID       string
	secretKey      string
	paymentAccount string
	client         *http.Client
	now            func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

type IremboPayOptions struct {
	BaseURL        string
	AuthURL        string
	ClientID       string
	SecretKey      string
	PaymentAccount string
	Timeout        time.Duration
}

func NewIremboPayGateway(opts IremboPayOptions) (*IremboPayGateway, error) {
	if opts.SecretKey == "" {
		return nil, errors.New("irembopay secret key empty")
	}
	if _, err := url.ParseRequestURI(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid irembopay base url: %w", err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	account := opts.PaymentAccount
	if account == "" {
		account = opts.ClientID
	}
	return &IremboPayGateway{
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		authURL:        opts.AuthURL,
		clientID:       opts.ClientID,
		secretKey:      opts.SecretKey,
		paymentAccount: account,
		client:         &http.Client{Timeout: opts.Timeout},
		now:            time.Now,
	}, nil
}

func (g *IremboPayGateway) Name() string { return "irembopay" }

// Authenticate returns a cached bearer token, fetching a new one when the cached
// token is within a minute of expiry. Without an auth url it returns "" and
// requests are authorized by the secret key header alone.
func (g *IremboPayGateway) Authenticate(ctx context.Context) (string, error) {
	if g.authURL == "" {
		return "", nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.token != "" && g.now().Add(tokenSkew).Before(g.expiresAt) {
		metrics.IncCacheRequest("gateway_token", "hit")
		return g.token, nil
	}
	metrics.IncCacheRequest("gateway_token", "miss")

	start := time.Now()
	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	err := g.do(ctx, http.MethodPost, g.authURL, "", map[string]string{
		"client_id":     g.clientID,
		"client_secret": g.secretKey,
	}, &out)
	metrics.ObserveGateway(g.Name(), "authenticate", err, time.Since(start))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrGatewayAuth, err)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", domain.ErrGatewayAuth)
	}
	ttl := defaultTokenTTL
	if out.ExpiresIn > 0 {
		ttl = time.Duration(out.ExpiresIn) * time.Second
	}
	g.token = out.AccessToken
	g.expiresAt = g.now().Add(ttl)
	return g.token, nil
}

type iremboCustomer struct {
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Name        string `json:"name,omitempty"`
}

type iremboItem struct {
	Code       string `json:"code"`
	Quantity   int    `json:"quantity"`
	UnitAmount int64  `json:"unitAmount"`
}

type iremboInvoiceRequest struct {
	TransactionID            string         `json:"transactionId"`
	PaymentAccountIdentifier string         `json:"paymentAccountIdentifier"`
	Customer                 iremboCustomer `json:"customer"`
	PaymentItems             []iremboItem   `json:"paymentItems"`
	Description              string         `json:"description"`
	ExpiryAt                 string         `json:"expiryAt"`
	Language                 string         `json:"language"`
}

type iremboInvoice struct {
	InvoiceNumber  string  `json:"invoiceNumber"`
	TransactionID  string  `json:"transactionId"`
	PaymentLinkURL string  `json:"paymentLinkUrl"`
	PaymentStatus  string  `json:"paymentStatus"`
	Amount         float64 `json:"amount"`
	Currency       string  `json:"currency"`
	ExpiryAt       string  `json:"expiryAt"`
	Customer       struct {
		Email       string `json:"email"`
		PhoneNumber string `json:"phoneNumber"`
		FullName    string `json:"fullName"`
		Name        string `json:"name"`
	} `json:"customer"`
}

type iremboEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// CreateInvoice posts a new invoice and returns its number and payment link.
func (g *IremboPayGateway) CreateInvoice(ctx context.Context, req adapter.CreateInvoiceRequest) (*adapter.CreatedInvoice, error) {
	start := time.Now()
	inv, err := g.createInvoice(ctx, req)
	metrics.ObserveGateway(g.Name(), "create_invoice", err, time.Since(start))
	if err != nil {
		return nil, err
	}
	return &adapter.CreatedInvoice{InvoiceNumber: inv.InvoiceNumber, PaymentLinkURL: inv.PaymentLinkURL}, nil
}

func (g *IremboPayGateway) createInvoice(ctx context.Context, req adapter.CreateInvoiceRequest) (*iremboInvoice, error) {
	token, err := g.Authenticate(ctx)
	if err != nil {
		return nil, err
	}
	body := iremboInvoiceRequest{
		TransactionID:            req.TransactionID,
		PaymentAccountIdentifier: g.paymentAccount,
		Customer: iremboCustomer{
			Email:       req.Customer.Email,
			PhoneNumber: req.Customer.PhoneNumber,
			Name:        req.Customer.FullName,
		},
		Description: req.Description,
		ExpiryAt:    req.ExpiryAt.UTC().Format(time.RFC3339),
		Language:    string(req.Language),
	}
	for _, it := range req.Items {
		body.PaymentItems = append(body.PaymentItems, iremboItem(it))
	}

	var env iremboEnvelope
	if err := g.do(ctx, http.MethodPost, g.baseURL+"/payments/invoices", token, body, &env); err != nil {
		return nil, err
	}
	var inv iremboInvoice
	if err := json.Unmarshal(env.Data, &inv); err != nil {
		return nil, fmt.Errorf("%w: decode invoice: %v", domain.ErrGateway, err)
	}
	if inv.InvoiceNumber == "" {
		return nil, fmt.Errorf("%w: invoice number missing in response", domain.ErrGateway)
	}
	return &inv, nil
}

// GetInvoice fetches an invoice by invoice number or transaction id.
func (g *IremboPayGateway) GetInvoice(ctx context.Context, ref string) (*model.Invoice, error) {
	if strings.TrimSpace(ref) == "" {
		return nil, fmt.Errorf("%w: empty invoice reference", domain.ErrInvalidArgument)
	}
	start := time.Now()
	inv, err := g.getInvoice(ctx, ref)
	metrics.ObserveGateway(g.Name(), "get_invoice", err, time.Since(start))
	return inv, err
}

func (g *IremboPayGateway) getInvoice(ctx context.Context, ref string) (*model.Invoice, error) {
	token, err := g.Authenticate(ctx)
	if err != nil {
		return nil, err
	}
	var env iremboEnvelope
	if err := g.do(ctx, http.MethodGet, g.baseURL+"/payments/invoices/"+url.PathEscape(ref), token, nil, &env); err != nil {
		return nil, err
	}
	if !env.Success && strings.Contains(strings.ToLower(env.Message), "not found") {
		return nil, domain.ErrInvoiceNotFound
	}
	var raw iremboInvoice
	if err := json.Unmarshal(env.Data, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode invoice: %v", domain.ErrGateway, err)
	}
	if raw.InvoiceNumber == "" && raw.TransactionID == "" {
		return nil, domain.ErrInvoiceNotFound
	}
	return toInvoice(raw), nil
}

func toInvoice(raw iremboInvoice) *model.Invoice {
	name := raw.Customer.FullName
	if name == "" {
		name = raw.Customer.Name
	}
	inv := &model.Invoice{
		InvoiceNumber:  raw.InvoiceNumber,
		TransactionID:  raw.TransactionID,
		PaymentLinkURL: raw.PaymentLinkURL,
		Status:         model.InvoiceStatus(strings.ToUpper(raw.PaymentStatus)),
		Amount:         int64(raw.Amount),
		Currency:       raw.Currency,
		Customer: model.Customer{
			Email:       model.NormalizeEmail(raw.Customer.Email),
			PhoneNumber: raw.Customer.PhoneNumber,
			FullName:    name,
		},
	}
	if t, err := time.Parse(time.RFC3339, raw.ExpiryAt); err == nil {
		inv.ExpiryAt = &t
	}
	return inv
}

// do sends one request and decodes a 2xx JSON body into out. 404 maps to
// ErrInvoiceNotFound; any other failure wraps ErrGateway.
func (g *IremboPayGateway) do(ctx context.Context, method, endpoint, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%w: encode request: %v", domain.ErrGateway, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", domain.ErrGateway, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("irembopay-secretKey", g.secretKey)
	req.Header.Set("X-API-Version", iremboAPIVersion)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrGateway, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.ErrInvoiceNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: http %d: %s", domain.ErrGateway, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", domain.ErrGateway, err)
	}
	return nil
}
