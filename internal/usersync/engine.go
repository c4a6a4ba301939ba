package usersync

import (
	"context"
	"fmt"
	"time"

	"github.com/maxiofs/headerauth/internal/idp"
	"github.com/maxiofs/headerauth/internal/repository"
	"github.com/sirupsen/logrus"
)

// Engine runs the bounded optimistic retry loop around a sync handler
type Engine struct {
	handler  Handler
	provider idp.Provider
	repo     repository.Repository
	recorder Recorder
	logger   *logrus.Logger
}

// EngineOptions holds the collaborators of an Engine
type EngineOptions struct {
	Handler    Handler
	Provider   idp.Provider
	Repository repository.Repository
	Recorder   Recorder // optional
	Logger     *logrus.Logger
}

// NewEngine creates a sync engine
func NewEngine(opts EngineOptions) *Engine {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Engine{
		handler:  opts.Handler,
		provider: opts.Provider,
		repo:     opts.Repository,
		recorder: opts.Recorder,
		logger:   opts.Logger,
	}
}

// Sync reconciles identity into the repository. Existing records are left
// untouched; new ones are created inside a transaction that is retried on
// commit failure at most MaxSyncAttempts times. Failures are returned in the
// Outcome, never as a separate error.
func (e *Engine) Sync(ctx context.Context, identity *idp.ExternalIdentity) Outcome {
	start := time.Now()
	outcome := e.sync(ctx, identity)
	e.report(identity, outcome, time.Since(start))
	return outcome
}

func (e *Engine) sync(ctx context.Context, identity *idp.ExternalIdentity) Outcome {
	if identity == nil || identity.ID == "" {
		return Outcome{Status: StatusFailed, Err: ErrInvalidIdentity}
	}

	existing, err := e.handler.FindIdentity(ctx, e.repo, identity.ID)
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"user_id": identity.ID,
			"error":   err,
		}).Warn("Existing identity lookup failed, attempting sync")
	} else if existing != nil {
		return Outcome{Status: StatusUnchanged}
	}

	var lastErr error
	for attempt := 1; attempt <= MaxSyncAttempts; attempt++ {
		status, retry, err := e.attempt(ctx, identity)
		if err == nil {
			return Outcome{Status: status, Attempts: attempt}
		}
		if !retry {
			return Outcome{Status: StatusFailed, Attempts: attempt, Err: err}
		}

		lastErr = err
		e.logger.WithFields(logrus.Fields{
			"user_id": identity.ID,
			"attempt": attempt,
			"error":   err,
		}).Debug("Sync commit failed, retrying with a fresh transaction")
	}

	return Outcome{
		Status:   StatusFailed,
		Attempts: MaxSyncAttempts,
		Err:      fmt.Errorf("%w: %w", ErrAttemptsExhausted, lastErr),
	}
}

// attempt runs one transaction. retry reports whether a failure may be
// retried on a fresh transaction; only begin and commit failures qualify.
func (e *Engine) attempt(ctx context.Context, identity *idp.ExternalIdentity) (status Status, retry bool, err error) {
	txn, err := e.repo.Begin(ctx)
	if err != nil {
		return StatusFailed, true, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer txn.Discard()

	sc, err := e.handler.CreateContext(e.provider, txn)
	if err != nil {
		return StatusFailed, false, fmt.Errorf("failed to create sync context: %w", err)
	}
	defer func() {
		if cerr := sc.Close(); cerr != nil {
			e.logger.WithError(cerr).Warn("Failed to close sync context")
		}
	}()

	status, err = sc.Sync(ctx, identity)
	if err != nil {
		return StatusFailed, false, fmt.Errorf("failed to apply identity: %w", err)
	}

	if err := txn.Commit(ctx); err != nil {
		return StatusFailed, true, fmt.Errorf("failed to commit sync: %w", err)
	}
	return status, false, nil
}

func (e *Engine) report(identity *idp.ExternalIdentity, outcome Outcome, duration time.Duration) {
	if e.recorder != nil {
		e.recorder.RecordSync(string(outcome.Status), outcome.Attempts, duration)
	}

	fields := logrus.Fields{
		"status":   outcome.Status,
		"attempts": outcome.Attempts,
		"duration": duration.String(),
	}
	if identity != nil {
		fields["user_id"] = identity.ID
	}

	if outcome.Status == StatusFailed {
		fields["error"] = outcome.Err
		e.logger.WithFields(fields).Warn("Identity sync failed")
		return
	}
	e.logger.WithFields(fields).Info("Identity synced")
}
