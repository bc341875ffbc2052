package sched

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"umuhanda-backend/internal/domain"
	"umuhanda-backend/internal/domain/ports/repository"
)

// Job is one periodic unit of work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler runs jobs on cron specs. When a Locker is set, each run first
// takes a lock named after the job so only one replica executes it.
type Scheduler struct {
	cron   *cron.Cron
	locker repository.Locker
	log    *zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler(locker repository.Locker, logger *zerolog.Logger) *Scheduler {
	l := logger.With().Str("component", "scheduler").Logger()
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		locker: locker,
		log:    &l,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add registers job under spec ("@every 5m", "0 * * * *", ...). Each run is
// bounded by timeout.
func (s *Scheduler) Add(spec string, job Job, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = time.Minute
	}
	_, err := s.cron.AddFunc(spec, func() { s.runOnce(s.ctx, job, timeout) })
	if err != nil {
		return err
	}
	s.log.Info().Str("job", job.Name()).Str("spec", spec).Msg("job scheduled")
	return nil
}

func (s *Scheduler) runOnce(parent context.Context, job Job, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	log := s.log.With().Str("job", job.Name()).Logger()

	if s.locker != nil {
		key := "lock:job:" + job.Name()
		token, err := s.locker.TryLock(ctx, key, timeout)
		if errors.Is(err, domain.ErrLockNotAcquired) {
			log.Debug().Msg("job running elsewhere; skipped")
			return
		}
		if err != nil {
			log.Warn().Err(err).Msg("job lock unavailable; skipped")
			return
		}
		defer func() {
			if err := s.locker.Unlock(context.Background(), key, token); err != nil {
				log.Warn().Err(err).Msg("job unlock failed")
			}
		}()
	}

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		log.Error().Err(err).Dur("duration", time.Since(start)).Msg("job failed")
		return
	}
	log.Debug().Dur("duration", time.Since(start)).Msg("job finished")
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}
