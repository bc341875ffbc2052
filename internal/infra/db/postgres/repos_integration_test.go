//go:build integration

package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/shopspring/decimal"

	"umuhanda-backend/internal/domain"
	"umuhanda-backend/internal/domain/model"
	"umuhanda-backend/internal/domain/ports/repository"
)

func seedUserAndPlan(t *testing.T) (*model.User, *model.Subscription) {
	t.Helper()
	ctx := context.Background()
	cleanup(t)
	user, err := model.NewUser("Aline Uwase", "Aline@Example.rw", "0788000001", "hash")
	if err != nil {
		t.Fatalf("NewUser: %v", err)
	}
	if err := NewUserRepo(testPool).Create(ctx, nil, user); err != nil {
		t.Fatalf("failed to save user: %v", err)
	}
	sub, _ := model.NewSubscription("Monthly", decimal.RequireFromString("5000.50"), 10, 30)
	if err := NewSubscriptionRepo(testPool).Save(ctx, nil, sub); err != nil {
		t.Fatalf("failed to save subscription: %v", err)
	}
	return user, sub
}

func TestUserRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewUserRepo(testPool)
	user, _ := seedUserAndPlan(t)

	t.Run("should find by email case-insensitively and by phone", func(t *testing.T) {
		byEmail, err := repo.FindByEmail(ctx, nil, " ALINE@example.rw")
		if err != nil || byEmail.ID != user.ID {
			t.Fatalf("FindByEmail: %v %v", byEmail, err)
		}
		byIdent, err := repo.FindByEmailOrPhone(ctx, nil, "0788000001")
		if err != nil || byIdent.ID != user.ID {
			t.Fatalf("FindByEmailOrPhone: %v %v", byIdent, err)
		}
	})

	t.Run("should reject duplicate emails", func(t *testing.T) {
		dup, _ := model.NewUser("Other", "aline@example.rw", "0788000002", "hash")
		if err := repo.Create(ctx, nil, dup); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}
	})

	t.Run("gazette flag reports the first change only", func(t *testing.T) {
		changed, err := repo.AllowGazetteDownload(ctx, nil, user.ID)
		if err != nil || !changed {
			t.Fatalf("first call: %v %v", changed, err)
		}
		changed, err = repo.AllowGazetteDownload(ctx, nil, user.ID)
		if err != nil || changed {
			t.Fatalf("second call: %v %v", changed, err)
		}
	})
}

func TestGrantRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewGrantRepo(testPool)
	user, sub := seedUserAndPlan(t)
	now := time.Now().UTC().Truncate(time.Second)

	t.Run("create is idempotent per transaction id under concurrency", func(t *testing.T) {
		var wg sync.WaitGroup
		results := make(chan bool, 5)
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				g, _ := model.NewUserSubscription(user.ID, sub, "TX-subscription-s"+sub.ID+"-EN-1", model.LanguageEN, now)
				created, err := repo.Create(ctx, nil, g)
				if err != nil {
					t.Errorf("Create: %v", err)
				}
				results <- created
			}()
		}
		wg.Wait()
		close(results)
		n := 0
		for c := range results {
			if c {
				n++
			}
		}
		if n != 1 {
			t.Fatalf("expected exactly one grant to be created, got %d", n)
		}
		list, _ := repo.ListByUser(ctx, nil, user.ID)
		if len(list) != 1 || !list[0].Subscription.Price.Equal(decimal.RequireFromString("5000.5")) {
			t.Fatalf("unexpected grants %+v", list)
		}
	})

	t.Run("decrement stops at zero", func(t *testing.T) {
		g, _ := repo.FindByTransactionID(ctx, nil, "TX-subscription-s"+sub.ID+"-EN-1")
		for i := 0; i < 10; i++ {
			if _, err := repo.DecrementAttempts(ctx, nil, g.ID); err != nil {
				t.Fatalf("decrement %d: %v", i, err)
			}
		}
		if _, err := repo.DecrementAttempts(ctx, nil, g.ID); !errors.Is(err, domain.ErrNoAttemptsLeft) {
			t.Fatalf("expected ErrNoAttemptsLeft, got %v", err)
		}
	})

	t.Run("expire due returns affected users", func(t *testing.T) {
		users, err := repo.ExpireDue(ctx, nil, now.Add(31*24*time.Hour))
		if err != nil || len(users) != 1 || users[0] != user.ID {
			t.Fatalf("ExpireDue: %v %v", users, err)
		}
		n, _ := repo.CountActiveByUser(ctx, nil, user.ID, now)
		if n != 0 {
			t.Fatalf("expected no active grants, got %d", n)
		}
	})

	t.Run("extend reactivates an expired grant", func(t *testing.T) {
		g, _ := repo.FindByTransactionID(ctx, nil, "TX-subscription-s"+sub.ID+"-EN-1")
		until := now.Add(7 * 24 * time.Hour)
		if err := repo.Extend(ctx, nil, g.ID, until); err != nil {
			t.Fatalf("Extend: %v", err)
		}
		got, _ := repo.FindByID(ctx, nil, g.ID)
		if got.Status != model.GrantStatusActive || !got.ExpiresAt.Equal(until) {
			t.Fatalf("unexpected grant %+v", got)
		}
		if err := repo.Extend(ctx, nil, "00000000-0000-0000-0000-000000000000", until); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("manual grants coexist without a transaction id", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			g, _ := model.NewManualGrant(user.ID, sub, model.LanguageRW, now)
			created, err := repo.Create(ctx, nil, g)
			if err != nil || !created {
				t.Fatalf("manual grant %d: %v %v", i, created, err)
			}
		}
	})
}

func TestPaymentRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewPaymentRepo(testPool)
	tm := NewTxManager(testPool)
	user, sub := seedUserAndPlan(t)

	p := &model.PaymentTransaction{
		TransactionID:  "TX-subscription-s" + sub.ID + "-RW-1700000000000",
		UserID:         user.ID,
		Type:           model.TransactionSubscription,
		SubscriptionID: sub.ID,
		Language:       model.LanguageRW,
		InvoiceNumber:  "880100",
		Amount:         5000,
		Currency:       "RWF",
		Status:         model.PaymentStatusInitiated,
		CreatedAt:      time.Now().Add(-time.Hour),
		UpdatedAt:      time.Now().Add(-time.Hour),
	}

	t.Run("should save and find a payment", func(t *testing.T) {
		if err := repo.Save(ctx, nil, p); err != nil {
			t.Fatalf("Save: %v", err)
		}
		got, err := repo.FindByInvoiceNumber(ctx, nil, "880100")
		if err != nil || got.TransactionID != p.TransactionID || got.SubscriptionID != sub.ID {
			t.Fatalf("FindByInvoiceNumber: %+v %v", got, err)
		}
		pending, err := repo.ListInitiatedOlderThan(ctx, nil, time.Now().Add(-10*time.Minute), 10)
		if err != nil || len(pending) != 1 {
			t.Fatalf("ListInitiatedOlderThan: %v %v", pending, err)
		}
	})

	t.Run("status transition happens once inside a transaction", func(t *testing.T) {
		paidAt := time.Now()
		open := []model.PaymentStatus{model.PaymentStatusInitiated, model.PaymentStatusFailed}
		err := tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			ok, err := repo.UpdateStatusIfOpen(ctx, tx, p.TransactionID, model.PaymentStatusPaid, open, &paidAt)
			if err != nil || !ok {
				t.Fatalf("first transition: %v %v", ok, err)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("WithTx: %v", err)
		}
		ok, err := repo.UpdateStatusIfOpen(ctx, nil, p.TransactionID, model.PaymentStatusPaid, open, &paidAt)
		if err != nil || ok {
			t.Fatalf("second transition should be a no-op: %v %v", ok, err)
		}
	})

	t.Run("record inserts a transaction id once", func(t *testing.T) {
		now := time.Now()
		gz := &model.PaymentTransaction{
			TransactionID: "TX-gazette-s0-EN-1700000000000",
			UserID:        user.ID,
			Type:          model.TransactionGazette,
			Language:      model.LanguageEN,
			InvoiceNumber: "880101",
			Amount:        1500,
			Currency:      "RWF",
			Status:        model.PaymentStatusPaid,
			CreatedAt:     now,
			UpdatedAt:     now,
			PaidAt:        &now,
		}
		created, err := repo.Record(ctx, nil, gz)
		if err != nil || !created {
			t.Fatalf("first record: %v %v", created, err)
		}
		created, err = repo.Record(ctx, nil, gz)
		if err != nil || created {
			t.Fatalf("second record should be a no-op: %v %v", created, err)
		}
	})

	t.Run("a failed callback rolls back", func(t *testing.T) {
		boom := errors.New("boom")
		err := tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			if _, err := NewUserRepo(testPool).AllowGazetteDownload(ctx, tx, user.ID); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		u, _ := NewUserRepo(testPool).FindByID(ctx, nil, user.ID)
		if u.AllowedToDownloadGazette {
			t.Fatal("expected gazette flag to be rolled back")
		}
	})
}
