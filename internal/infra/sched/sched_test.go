//go:build !integration

package sched

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"umuhanda-backend/internal/domain"
	"umuhanda-backend/internal/usecase"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

type fakePaymentUC struct {
	usecase.PaymentUseCase
	cutoff time.Time
	limit  int
}

func (f *fakePaymentUC) ReconcilePending(ctx context.Context, olderThan time.Time, limit int) (int, error) {
	f.cutoff, f.limit = olderThan, limit
	return 1, nil
}

type fakeSubUC struct {
	usecase.SubscriptionUseCase
	calls int
	err   error
}

func (f *fakeSubUC) ExpireDue(ctx context.Context) (int, error) {
	f.calls++
	return 0, f.err
}

type countingJob struct {
	mu   sync.Mutex
	runs int
}

func (j *countingJob) Name() string { return "counting" }
func (j *countingJob) Run(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.runs++
	return nil
}

type fakeLocker struct {
	held     bool
	err      error
	unlocked []string
}

func (l *fakeLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if l.err != nil {
		return "", l.err
	}
	if l.held {
		return "", domain.ErrLockNotAcquired
	}
	return "tok", nil
}

func (l *fakeLocker) Unlock(ctx context.Context, key, token string) error {
	l.unlocked = append(l.unlocked, key)
	return nil
}

func TestPaymentReconciler(t *testing.T) {
	uc := &fakePaymentUC{}
	w := NewPaymentReconciler(uc, 15*time.Minute, newTestLogger())
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !uc.cutoff.Equal(now.Add(-15 * time.Minute)) {
		t.Errorf("unexpected cutoff %v", uc.cutoff)
	}
	if uc.limit != reconcileBatch {
		t.Errorf("expected batch %d, got %d", reconcileBatch, uc.limit)
	}
}

func TestExpiryWorker(t *testing.T) {
	uc := &fakeSubUC{err: domain.ErrOperationFailed}
	w := NewExpiryWorker(uc, newTestLogger())
	if err := w.Run(context.Background()); !errors.Is(err, domain.ErrOperationFailed) {
		t.Fatalf("expected error to surface, got %v", err)
	}
	if uc.calls != 1 {
		t.Errorf("expected one sweep, got %d", uc.calls)
	}
}

func TestScheduler_RunOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("should run and release the lock", func(t *testing.T) {
		locker := &fakeLocker{}
		s := NewScheduler(locker, newTestLogger())
		job := &countingJob{}
		s.runOnce(ctx, job, time.Second)
		if job.runs != 1 {
			t.Errorf("expected 1 run, got %d", job.runs)
		}
		if len(locker.unlocked) != 1 || locker.unlocked[0] != "lock:job:counting" {
			t.Errorf("expected unlock of job key, got %v", locker.unlocked)
		}
	})

	t.Run("should skip while another replica holds the lock", func(t *testing.T) {
		s := NewScheduler(&fakeLocker{held: true}, newTestLogger())
		job := &countingJob{}
		s.runOnce(ctx, job, time.Second)
		if job.runs != 0 {
			t.Errorf("expected skip, got %d runs", job.runs)
		}
	})

	t.Run("should skip when the lock backend fails", func(t *testing.T) {
		s := NewScheduler(&fakeLocker{err: errors.New("redis down")}, newTestLogger())
		job := &countingJob{}
		s.runOnce(ctx, job, time.Second)
		if job.runs != 0 {
			t.Errorf("expected skip, got %d runs", job.runs)
		}
	})

	t.Run("should run without a locker", func(t *testing.T) {
		s := NewScheduler(nil, newTestLogger())
		job := &countingJob{}
		s.runOnce(ctx, job, time.Second)
		if job.runs != 1 {
			t.Errorf("expected 1 run, got %d", job.runs)
		}
	})

	t.Run("should reject bad specs", func(t *testing.T) {
		s := NewScheduler(nil, newTestLogger())
		if err := s.Add("not a spec", &countingJob{}, time.Second); err == nil {
			t.Error("expected error")
		}
	})
}
