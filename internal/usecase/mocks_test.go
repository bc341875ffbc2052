//go:build !integration

package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"umuhanda-backend/internal/domain"
	"umuhanda-backend/internal/domain/model"
	"umuhanda-backend/internal/domain/ports/adapter"
	"umuhanda-backend/internal/domain/ports/repository"
	"umuhanda-backend/internal/infra/worker"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// ---- users ----

type memUserRepo struct {
	mu    sync.RWMutex
	store map[string]*model.User
}

func newMemUserRepo() *memUserRepo { return &memUserRepo{store: map[string]*model.User{}} }

func (m *memUserRepo) put(u *model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.store[u.ID] = &cp
}

func (m *memUserRepo) get(id string) *model.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.store[id]
	if !ok {
		return nil
	}
	cp := *u
	return &cp
}

func (m *memUserRepo) Create(ctx context.Context, tx repository.Tx, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[u.ID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *u
	m.store[u.ID] = &cp
	return nil
}

func (m *memUserRepo) Update(ctx context.Context, tx repository.Tx, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[u.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *u
	m.store[u.ID] = &cp
	return nil
}

func (m *memUserRepo) find(match func(*model.User) bool) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.store {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	return m.find(func(u *model.User) bool { return u.ID == id })
}

func (m *memUserRepo) FindByEmail(ctx context.Context, tx repository.Tx, email string) (*model.User, error) {
	email = model.NormalizeEmail(email)
	return m.find(func(u *model.User) bool { return email != "" && u.Email == email })
}

func (m *memUserRepo) FindByPhone(ctx context.Context, tx repository.Tx, phone string) (*model.User, error) {
	return m.find(func(u *model.User) bool { return u.PhoneNumber == phone })
}

func (m *memUserRepo) FindByEmailOrPhone(ctx context.Context, tx repository.Tx, identifier string) (*model.User, error) {
	email := model.NormalizeEmail(identifier)
	return m.find(func(u *model.User) bool {
		return (email != "" && u.Email == email) || u.PhoneNumber == identifier
	})
}

func (m *memUserRepo) UpdatePassword(ctx context.Context, tx repository.Tx, id, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (m *memUserRepo) SetSubscribed(ctx context.Context, tx repository.Tx, id string, subscribed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.IsSubscribed = subscribed
	return nil
}

func (m *memUserRepo) AllowGazetteDownload(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.store[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if u.AllowedToDownloadGazette {
		return false, nil
	}
	u.AllowedToDownloadGazette = true
	return true, nil
}

// ---- catalog ----

type memSubscriptionRepo struct {
	mu    sync.RWMutex
	store map[string]*model.Subscription
}

func newMemSubscriptionRepo() *memSubscriptionRepo {
	return &memSubscriptionRepo{store: map[string]*model.Subscription{}}
}

func (m *memSubscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.store[s.ID] = &cp
	return nil
}

func (m *memSubscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSubscriptionRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.Subscription, 0, len(m.store))
	for _, s := range m.store {
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price.LessThan(out[j].Price) })
	return out, nil
}

// ---- grants ----

type memGrantRepo struct {
	mu    sync.Mutex
	store map[string]*model.UserSubscription
	subs  *memSubscriptionRepo
}

func newMemGrantRepo(subs *memSubscriptionRepo) *memGrantRepo {
	return &memGrantRepo{store: map[string]*model.UserSubscription{}, subs: subs}
}

func (m *memGrantRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.store)
}

func (m *memGrantRepo) withSub(g *model.UserSubscription) *model.UserSubscription {
	cp := *g
	if s, err := m.subs.FindByID(context.Background(), nil, g.SubscriptionID); err == nil {
		cp.Subscription = s
	}
	return &cp
}

func (m *memGrantRepo) Create(ctx context.Context, tx repository.Tx, g *model.UserSubscription) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g.TransactionID != nil {
		for _, e := range m.store {
			if e.TransactionID != nil && *e.TransactionID == *g.TransactionID {
				return false, nil
			}
		}
	}
	cp := *g
	cp.Subscription = nil
	m.store[g.ID] = &cp
	return true, nil
}

func (m *memGrantRepo) FindByTransactionID(ctx context.Context, tx repository.Tx, transactionID string) (*model.UserSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.store {
		if g.TransactionID != nil && *g.TransactionID == transactionID {
			return m.withSub(g), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memGrantRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.UserSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return m.withSub(g), nil
}

func (m *memGrantRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.UserSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.UserSubscription
	for _, g := range m.store {
		if g.UserID == userID {
			out = append(out, m.withSub(g))
		}
	}
	return out, nil
}

func (m *memGrantRepo) ListActiveByUser(ctx context.Context, tx repository.Tx, userID string, now time.Time) ([]*model.UserSubscription, error) {
	all, _ := m.ListByUser(ctx, tx, userID)
	var out []*model.UserSubscription
	for _, g := range all {
		if g.IsActive(now) {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *memGrantRepo) DecrementAttempts(ctx context.Context, tx repository.Tx, id string) (*model.UserSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if g.AttemptsLeft <= 0 {
		return nil, domain.ErrNoAttemptsLeft
	}
	g.AttemptsLeft--
	return m.withSub(g), nil
}

func (m *memGrantRepo) ExpireDue(ctx context.Context, tx repository.Tx, now time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, g := range m.store {
		if g.Status == model.GrantStatusActive && !now.Before(g.ExpiresAt) {
			g.Status = model.GrantStatusExpired
			if !seen[g.UserID] {
				seen[g.UserID] = true
				out = append(out, g.UserID)
			}
		}
	}
	return out, nil
}

func (m *memGrantRepo) Extend(ctx context.Context, tx repository.Tx, id string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	g.ExpiresAt = expiresAt
	g.Status = model.GrantStatusActive
	return nil
}

func (m *memGrantRepo) CountActiveByUser(ctx context.Context, tx repository.Tx, userID string, now time.Time) (int, error) {
	active, _ := m.ListActiveByUser(ctx, tx, userID, now)
	return len(active), nil
}

// ---- payments ----

type memPaymentRepo struct {
	mu      sync.Mutex
	store   map[string]*model.PaymentTransaction
	saveErr error
}

func newMemPaymentRepo() *memPaymentRepo {
	return &memPaymentRepo{store: map[string]*model.PaymentTransaction{}}
}

func (m *memPaymentRepo) get(id string) *model.PaymentTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

func (m *memPaymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.PaymentTransaction) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.store[p.TransactionID] = &cp
	return nil
}

func (m *memPaymentRepo) Record(ctx context.Context, tx repository.Tx, p *model.PaymentTransaction) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[p.TransactionID]; ok {
		return false, nil
	}
	cp := *p
	m.store[p.TransactionID] = &cp
	return true, nil
}

func (m *memPaymentRepo) FindByTransactionID(ctx context.Context, tx repository.Tx, transactionID string) (*model.PaymentTransaction, error) {
	if p := m.get(transactionID); p != nil {
		return p, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memPaymentRepo) FindByInvoiceNumber(ctx context.Context, tx repository.Tx, invoiceNumber string) (*model.PaymentTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.store {
		if p.InvoiceNumber == invoiceNumber {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memPaymentRepo) UpdateStatusIfOpen(ctx context.Context, tx repository.Tx, transactionID string, status model.PaymentStatus, from []model.PaymentStatus, paidAt *time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[transactionID]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if p.Status == f {
			p.Status = status
			p.PaidAt = paidAt
			return true, nil
		}
	}
	return false, nil
}

func (m *memPaymentRepo) ListInitiatedOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.PaymentTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.PaymentTransaction
	for _, p := range m.store {
		if p.Status == model.PaymentStatusInitiated && p.CreatedAt.Before(olderThan) {
			cp := *p
			out = append(out, &cp)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---- tx manager ----

// mockTxManager serializes transactions, which is enough for the in-memory repos.
type mockTxManager struct {
	mu sync.Mutex
}

func (m *mockTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, nil)
}

// ---- gateway ----

type mockGateway struct {
	mu       sync.Mutex
	invoices map[string]*model.Invoice
	created  []adapter.CreateInvoiceRequest
	getCalls int
	getErr   error
	createFn func(req adapter.CreateInvoiceRequest) (*adapter.CreatedInvoice, error)
}

func newMockGateway() *mockGateway {
	return &mockGateway{invoices: map[string]*model.Invoice{}}
}

func (g *mockGateway) addInvoice(inv *model.Invoice) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cp := *inv
	g.invoices[inv.InvoiceNumber] = &cp
}

func (g *mockGateway) Name() string { return "mock" }

func (g *mockGateway) Authenticate(ctx context.Context) (string, error) { return "token", nil }

func (g *mockGateway) CreateInvoice(ctx context.Context, req adapter.CreateInvoiceRequest) (*adapter.CreatedInvoice, error) {
	g.mu.Lock()
	g.created = append(g.created, req)
	n := len(g.created)
	fn := g.createFn
	g.mu.Unlock()
	if fn != nil {
		return fn(req)
	}
	var amount int64
	for _, it := range req.Items {
		amount += it.UnitAmount * int64(it.Quantity)
	}
	num := fmt.Sprintf("INV-%03d", n)
	g.addInvoice(&model.Invoice{
		InvoiceNumber:  num,
		TransactionID:  req.TransactionID,
		PaymentLinkURL: "https://pay.example/" + num,
		Status:         model.InvoiceStatusNew,
		Amount:         amount,
		Currency:       "RWF",
		Customer:       req.Customer,
	})
	return &adapter.CreatedInvoice{InvoiceNumber: num, PaymentLinkURL: "https://pay.example/" + num}, nil
}

func (g *mockGateway) GetInvoice(ctx context.Context, ref string) (*model.Invoice, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.getCalls++
	if g.getErr != nil {
		return nil, g.getErr
	}
	for _, inv := range g.invoices {
		if inv.InvoiceNumber == ref || inv.TransactionID == ref {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, domain.ErrInvoiceNotFound
}

func (g *mockGateway) setStatus(invoiceNumber string, s model.InvoiceStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.invoices[invoiceNumber].Status = s
}

// ---- notifications ----

type recordingNotifier struct {
	mu       sync.Mutex
	payments []PaymentNotice
	welcomed []string
	codes    []string
}

func (r *recordingNotifier) SendSMS(ctx context.Context, phone, message string) bool { return true }
func (r *recordingNotifier) SendEmail(ctx context.Context, msg adapter.EmailMessage) bool {
	return true
}

func (r *recordingNotifier) NotifyPayment(ctx context.Context, n PaymentNotice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments = append(r.payments, n)
}

func (r *recordingNotifier) NotifyWelcome(ctx context.Context, u *model.User, lang model.Language) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.welcomed = append(r.welcomed, u.ID)
}

func (r *recordingNotifier) NotifyResetCode(ctx context.Context, u *model.User, code string, ttl time.Duration, lang model.Language) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes = append(r.codes, code)
}

func (r *recordingNotifier) paymentCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payments)
}

// syncRunner runs tasks inline.
type syncRunner struct {
	err error
}

func (s *syncRunner) Submit(task worker.Task) error {
	if s.err != nil {
		return s.err
	}
	return task(context.Background())
}

type echoTranslator struct{}

func (echoTranslator) T(lang, key string, args ...interface{}) string {
	if len(args) == 0 {
		return lang + ":" + key
	}
	return lang + ":" + key + ":" + fmt.Sprint(args...)
}

type mockEmailSender struct {
	mu    sync.Mutex
	calls []adapter.EmailMessage
	fails int // number of leading calls that fail; -1 fails forever
}

func (m *mockEmailSender) Send(ctx context.Context, msg adapter.EmailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, msg)
	if m.fails < 0 || len(m.calls) <= m.fails {
		return errors.New("smtp: connection refused")
	}
	return nil
}

type mockSMSSender struct {
	mu   sync.Mutex
	sent []string
	fail bool
}

func (m *mockSMSSender) Send(ctx context.Context, phone, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, phone+"|"+message)
	if m.fail {
		return errors.New("sms provider down")
	}
	return nil
}

// ---- redis-backed ports ----

type memResetStore struct {
	mu       sync.Mutex
	codes    map[string]string
	failures map[string]int
}

func newMemResetStore() *memResetStore {
	return &memResetStore{codes: map[string]string{}, failures: map[string]int{}}
}

func (m *memResetStore) Put(ctx context.Context, userID, code string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[userID] = code
	delete(m.failures, userID)
	return nil
}

func (m *memResetStore) RecordFailure(ctx context.Context, userID string, ttl time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[userID]++
	return m.failures[userID], nil
}

func (m *memResetStore) Get(ctx context.Context, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.codes[userID]
	if !ok {
		return "", domain.ErrNotFound
	}
	return c, nil
}

func (m *memResetStore) Delete(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.codes, userID)
	delete(m.failures, userID)
	return nil
}

type countingLimiter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *countingLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	c.counts[strings.ToLower(key)]++
	return c.counts[strings.ToLower(key)] <= limit, nil
}

type fakeTokens struct{}

func (fakeTokens) Issue(userID, email string) (string, error) { return "tok-" + userID, nil }
