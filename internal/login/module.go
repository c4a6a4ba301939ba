package login

import (
	"context"
	"strings"

	"github.com/maxiofs/headerauth/internal/headerauth"
	"github.com/maxiofs/headerauth/internal/idp"
	"github.com/maxiofs/headerauth/internal/repository"
	"github.com/maxiofs/headerauth/internal/usersync"
	"github.com/sirupsen/logrus"
)

// ProviderLookup resolves identity providers by name
type ProviderLookup interface {
	GetProvider(name string) (idp.Provider, bool)
}

// SyncHandlerLookup resolves sync handlers by name
type SyncHandlerLookup interface {
	GetSyncHandler(name string) (usersync.Handler, bool)
}

// Options holds the collaborators of a Module
type Options struct {
	ProviderName    string
	SyncHandlerName string
	Providers       ProviderLookup
	Handlers        SyncHandlerLookup
	Repository      repository.Repository
	Recorder        usersync.Recorder
	Logger          *logrus.Logger
}

// Module stages pre-authenticated logins for header credentials and syncs
// the asserted identity. It never completes authentication itself.
type Module struct {
	provider idp.Provider
	engine   *usersync.Engine
	logger   *logrus.Logger
}

// NewModule resolves collaborators. If any cannot be resolved the module is
// returned inert: it logs once here and defers every login.
func NewModule(opts Options) *Module {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	m := &Module{logger: opts.Logger}

	fields := logrus.Fields{
		"idp":          opts.ProviderName,
		"sync_handler": opts.SyncHandlerName,
	}

	if opts.Providers == nil || opts.Handlers == nil || opts.Repository == nil {
		m.logger.WithFields(fields).Error("Header login module is missing collaborators, staying inactive")
		return m
	}

	provider, ok := opts.Providers.GetProvider(opts.ProviderName)
	if !ok {
		m.logger.WithFields(fields).Error("Identity provider not found, header login module staying inactive")
		return m
	}

	handler, ok := opts.Handlers.GetSyncHandler(opts.SyncHandlerName)
	if !ok {
		m.logger.WithFields(fields).Error("Sync handler not found, header login module staying inactive")
		return m
	}

	m.provider = provider
	m.engine = usersync.NewEngine(usersync.EngineOptions{
		Handler:    handler,
		Provider:   provider,
		Repository: opts.Repository,
		Recorder:   opts.Recorder,
		Logger:     opts.Logger,
	})

	m.logger.WithFields(fields).Info("Header login module initialized")
	return m
}

// Inert reports whether the module failed to resolve its collaborators
func (m *Module) Inert() bool {
	return m.engine == nil
}

// Login examines cred. Header credentials with a user id stage the three
// shared-state entries and trigger a best-effort sync; the outcome is
// PreAuthenticated even when the sync fails.
func (m *Module) Login(ctx context.Context, cred any, shared *SharedState) Result {
	res := Result{Outcome: Deferred(), Trace: []State{StateIdle}}
	if m.Inert() {
		res.Trace = append(res.Trace, StateDone)
		return res
	}

	res.Trace = append(res.Trace, StateCredentialPresented)

	vc, ok := cred.(*headerauth.ValidatedCredential)
	if !ok || vc == nil {
		res.Trace = append(res.Trace, StateDone)
		return res
	}

	if strings.TrimSpace(vc.UserID) == "" {
		m.logger.Warn("Header credential carries no user id")
		res.Outcome = Rejected(headerauth.ReasonBadUsername)
		res.Trace = append(res.Trace, StateRejected, StateDone)
		return res
	}

	if shared != nil {
		shared.PreAuthLogin = &PreAuthenticatedLogin{UserID: vc.UserID}
		shared.Credentials = &SimpleCredentials{UserID: vc.UserID, Password: []byte{}}
		shared.LoginName = vc.UserID
	}
	res.Trace = append(res.Trace, StateAccepted)

	synced := m.sync(ctx, vc)
	res.Sync = &synced
	res.Trace = append(res.Trace, StateSyncAttempted, StateDone)
	res.Outcome = PreAuthenticated(vc.UserID)
	return res
}

func (m *Module) sync(ctx context.Context, vc *headerauth.ValidatedCredential) usersync.Outcome {
	identity, err := m.provider.Authenticate(ctx, vc)
	if err != nil {
		m.logger.WithFields(logrus.Fields{
			"user_id": vc.UserID,
			"error":   err,
		}).Warn("Identity provider could not project header credential")
		return usersync.Outcome{Status: usersync.StatusFailed, Err: err}
	}
	return m.engine.Sync(ctx, identity)
}

// Commit always reports false: authentication is completed by a later step
// that recognizes the staged pre-authenticated login.
func (m *Module) Commit() bool {
	return false
}
