// Package scheduler drives the periodic half of sync: a cron tick that
// enqueues a sync-history job for every eligible account, and a slower
// tick that renews provider push-notification registrations before they
// lapse. PAUSED accounts are excluded here; a manual sync can still reach
// them through the API.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mailsync/internal/gmail"
	"mailsync/internal/model"
	"mailsync/internal/queue"
	"mailsync/pkg/metrics"
)

// AccountSource is the account read/write surface the scheduler needs.
type AccountSource interface {
	ListScheduled(ctx context.Context) ([]model.Account, error)
	ListWatchExpiring(ctx context.Context, before time.Time) ([]model.Account, error)
	UpdateWatch(ctx context.Context, id string, expiry time.Time) error
}

// TokenSource supplies a valid access token per account.
type TokenSource interface {
	FreshAccessToken(ctx context.Context, accountID string) (string, error)
}

// Watcher registers push notifications with the provider.
type Watcher interface {
	Watch(ctx context.Context, token, topicName string) (*gmail.WatchResult, error)
}

type Scheduler struct {
	accounts  AccountSource
	dispatch  queue.Queue
	tokens    TokenSource
	watcher   Watcher
	pushTopic string
	logger    *zap.Logger
	cron      *cron.Cron
}

func New(
	accounts AccountSource,
	dispatch queue.Queue,
	tokens TokenSource,
	watcher Watcher,
	pushTopic string,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		accounts:  accounts,
		dispatch:  dispatch,
		tokens:    tokens,
		watcher:   watcher,
		pushTopic: pushTopic,
		logger:    logger,
		cron:      cron.New(),
	}
}

// Start registers the cron entries and begins ticking. schedule is a cron
// spec (e.g. "@every 5m") for the sync sweep; watch renewal runs hourly.
func (s *Scheduler) Start(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, s.sweep); err != nil {
		return err
	}
	if s.watcher != nil && s.pushTopic != "" {
		if _, err := s.cron.AddFunc("@hourly", s.renewWatches); err != nil {
			return err
		}
	}
	s.cron.Start()
	s.logger.Info("Scheduler started", zap.String("schedule", schedule))
	return nil
}

// Stop halts ticking and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// sweep enqueues one sync-history job per eligible account. Enqueueing is
// cheap; the passes themselves run on workers, each serialized per account
// by the engine.
func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	accounts, err := s.accounts.ListScheduled(ctx)
	if err != nil {
		s.logger.Error("Failed to list accounts for scheduled sync", zap.Error(err))
		return
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, acct := range accounts {
		acct := acct
		g.Go(func() error {
			payload := queue.SyncHistoryPayload{
				AccountID: acct.ID,
				Trigger:   model.TriggerScheduled,
			}
			err := s.dispatch.Add(ctx, queue.JobSyncHistory, payload, queue.EnqueueOptions{
				Priority: queue.PrioritySyncHistory,
				Attempts: queue.DefaultAttempts,
			})
			if err != nil {
				s.logger.Error("Failed to enqueue scheduled sync",
					zap.String("account_id", acct.ID),
					zap.Error(err),
				)
				return nil // keep sweeping the rest
			}
			metrics.IncrementJobPublished(queue.JobSyncHistory)
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("Scheduled sync sweep complete", zap.Int("accounts", len(accounts)))
}

// renewWatches re-registers push notifications for accounts whose watch
// expires within the next day. The provider expires registrations after
// roughly a week, so hourly renewal leaves plenty of slack.
func (s *Scheduler) renewWatches() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	accounts, err := s.accounts.ListWatchExpiring(ctx, time.Now().Add(24*time.Hour))
	if err != nil {
		s.logger.Error("Failed to list accounts for watch renewal", zap.Error(err))
		return
	}

	for _, acct := range accounts {
		token, err := s.tokens.FreshAccessToken(ctx, acct.ID)
		if err != nil {
			s.logger.Warn("Skipping watch renewal, no token",
				zap.String("account_id", acct.ID),
				zap.Error(err),
			)
			continue
		}

		res, err := s.watcher.Watch(ctx, token, s.pushTopic)
		if err != nil {
			s.logger.Error("Watch renewal failed",
				zap.String("account_id", acct.ID),
				zap.Error(err),
			)
			continue
		}

		expiry := time.UnixMilli(res.Expiration)
		if err := s.accounts.UpdateWatch(ctx, acct.ID, expiry); err != nil {
			s.logger.Error("Failed to persist watch expiry",
				zap.String("account_id", acct.ID),
				zap.Error(err),
			)
			continue
		}

		s.logger.Info("Watch renewed",
			zap.String("account_id", acct.ID),
			zap.Time("expiry", expiry),
		)
	}
}
