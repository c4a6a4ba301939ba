package login

import (
	"context"
	"errors"

	"github.com/maxiofs/headerauth/internal/idp"
	"github.com/maxiofs/headerauth/internal/repository"
	"github.com/maxiofs/headerauth/internal/usersync"
	"github.com/sirupsen/logrus"
)

// StepResult is what a chain step reports
type StepResult struct {
	Outcome   Outcome
	Committed bool
	Principal *Principal
	Sync      *usersync.Outcome
}

// Step is one link of the authentication chain
type Step interface {
	Name() string
	Run(ctx context.Context, cred any, shared *SharedState) StepResult
}

// ChainResult summarizes a chain run
type ChainResult struct {
	// Principal is set when some step committed
	Principal *Principal
	// Outcome is the first non-deferred outcome, or Deferred
	Outcome Outcome
	Sync    *usersync.Outcome
	Shared  *SharedState
}

// Authenticated reports whether the chain produced a principal
func (r *ChainResult) Authenticated() bool {
	return r.Principal != nil
}

// Chain runs steps in order until one commits
type Chain struct {
	steps  []Step
	logger *logrus.Logger
}

// NewChain creates a chain
func NewChain(logger *logrus.Logger, steps ...Step) *Chain {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Chain{steps: steps, logger: logger}
}

// Authenticate runs every step with a fresh shared state
func (c *Chain) Authenticate(ctx context.Context, cred any) *ChainResult {
	res := &ChainResult{Outcome: Deferred(), Shared: &SharedState{}}

	for _, step := range c.steps {
		sr := step.Run(ctx, cred, res.Shared)

		if sr.Sync != nil {
			res.Sync = sr.Sync
		}
		if res.Outcome.Kind == OutcomeDeferred && sr.Outcome.Kind != OutcomeDeferred {
			res.Outcome = sr.Outcome
		}

		c.logger.WithFields(logrus.Fields{
			"step":      step.Name(),
			"outcome":   sr.Outcome.String(),
			"committed": sr.Committed,
		}).Debug("Authentication step finished")

		if sr.Committed {
			res.Principal = sr.Principal
			return res
		}
	}
	return res
}

// ModuleStep adapts Module to the chain
type ModuleStep struct {
	Module *Module
}

// Name implements Step
func (s ModuleStep) Name() string {
	return "header"
}

// Run implements Step
func (s ModuleStep) Run(ctx context.Context, cred any, shared *SharedState) StepResult {
	res := s.Module.Login(ctx, cred, shared)
	return StepResult{
		Outcome:   res.Outcome,
		Committed: s.Module.Commit(),
		Sync:      res.Sync,
	}
}

// PreAuthStep completes authentication for logins staged as pre-authenticated
type PreAuthStep struct {
	repo     repository.Repository
	provider idp.Provider
	logger   *logrus.Logger
}

// NewPreAuthStep creates the step. repo and provider are used to describe
// the principal and may be nil.
func NewPreAuthStep(repo repository.Repository, provider idp.Provider, logger *logrus.Logger) *PreAuthStep {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &PreAuthStep{repo: repo, provider: provider, logger: logger}
}

// Name implements Step
func (s *PreAuthStep) Name() string {
	return "pre-authenticated"
}

// Run implements Step. A missing record does not block authentication: the
// sync that should have created it may have failed.
func (s *PreAuthStep) Run(ctx context.Context, cred any, shared *SharedState) StepResult {
	if !shared.Staged() {
		return StepResult{Outcome: Deferred()}
	}

	userID := shared.PreAuthLogin.UserID
	principal := &Principal{UserID: userID, PrincipalName: userID}

	if s.provider != nil {
		if identity, err := s.provider.GetUser(ctx, userID); err == nil && identity != nil {
			principal.PrincipalName = identity.PrincipalName
		}
	}

	if s.repo != nil {
		rec, err := s.repo.FindUser(ctx, userID)
		switch {
		case err == nil:
			principal.Record = rec
			principal.PrincipalName = rec.PrincipalName
		case !errors.Is(err, repository.ErrUserNotFound):
			s.logger.WithFields(logrus.Fields{
				"user_id": userID,
				"error":   err,
			}).Warn("Failed to load user record for pre-authenticated login")
		}
	}

	return StepResult{
		Outcome:   PreAuthenticated(userID),
		Committed: true,
		Principal: principal,
	}
}
