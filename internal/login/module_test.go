package login

import (
	"context"
	"errors"
	"testing"

	"github.com/maxiofs/headerauth/internal/headerauth"
	"github.com/maxiofs/headerauth/internal/idp"
	"github.com/maxiofs/headerauth/internal/repository"
	"github.com/maxiofs/headerauth/internal/usersync"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func setupTestModule(t *testing.T) (*Module, repository.Repository, func()) {
	repo, err := repository.NewBadgerRepository(repository.BadgerOptions{InMemory: true, Logger: quietLogger()})
	require.NoError(t, err)

	providers := idp.NewManager()
	providers.Register(idp.NewHeaderProvider(""))

	m := NewModule(Options{
		ProviderName:    idp.HeaderProviderName,
		SyncHandlerName: usersync.DefaultHandlerName,
		Providers:       providers,
		Handlers:        usersync.NewManager(),
		Repository:      repo,
		Logger:          quietLogger(),
	})
	require.False(t, m.Inert())

	return m, repo, func() { repo.Close() }
}

func TestModule_StagesPreAuthenticatedLogin(t *testing.T) {
	m, repo, cleanup := setupTestModule(t)
	defer cleanup()
	ctx := context.Background()

	shared := &SharedState{}
	cred := headerauth.NewValidatedCredential("alice@example.com", map[string]string{"OIDC_CLAIM_department": "eng"})

	res := m.Login(ctx, cred, shared)

	assert.Equal(t, PreAuthenticated("alice@example.com"), res.Outcome)
	assert.Equal(t, []State{
		StateIdle, StateCredentialPresented, StateAccepted, StateSyncAttempted, StateDone,
	}, res.Trace)

	require.True(t, shared.Staged())
	assert.Equal(t, "alice@example.com", shared.PreAuthLogin.UserID)
	assert.Equal(t, "alice@example.com", shared.Credentials.UserID)
	assert.Empty(t, shared.Credentials.Password)
	assert.Equal(t, "alice@example.com", shared.LoginName)

	require.NotNil(t, res.Sync)
	assert.Equal(t, usersync.StatusCreated, res.Sync.Status)

	rec, err := repo.FindUser(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "eng", rec.Attributes["OIDC_CLAIM_department"])

	assert.False(t, m.Commit())

	again := m.Login(ctx, cred, &SharedState{})
	assert.Equal(t, usersync.StatusUnchanged, again.Sync.Status)
}

func TestModule_DefersForeignCredentials(t *testing.T) {
	m, _, cleanup := setupTestModule(t)
	defer cleanup()

	shared := &SharedState{}
	res := m.Login(context.Background(), &SimpleCredentials{UserID: "bob"}, shared)

	assert.Equal(t, OutcomeDeferred, res.Outcome.Kind)
	assert.Equal(t, []State{StateIdle, StateCredentialPresented, StateDone}, res.Trace)
	assert.Nil(t, res.Sync)
	assert.Equal(t, SharedState{}, *shared)
}

func TestModule_RejectsBlankUserID(t *testing.T) {
	m, _, cleanup := setupTestModule(t)
	defer cleanup()

	shared := &SharedState{}
	res := m.Login(context.Background(), headerauth.NewValidatedCredential("  ", nil), shared)

	assert.Equal(t, Rejected(headerauth.ReasonBadUsername), res.Outcome)
	assert.Equal(t, []State{StateIdle, StateCredentialPresented, StateRejected, StateDone}, res.Trace)
	assert.False(t, shared.Staged())
	assert.Empty(t, shared.LoginName)
}

// unavailableRepo fails every write transaction
type unavailableRepo struct{}

func (unavailableRepo) FindUser(ctx context.Context, userID string) (*repository.UserRecord, error) {
	return nil, repository.ErrUserNotFound
}

func (unavailableRepo) Begin(ctx context.Context) (repository.Txn, error) {
	return nil, errors.New("repository unavailable")
}

func (unavailableRepo) Close() error { return nil }

func TestModule_SyncFailureStillPreAuthenticates(t *testing.T) {
	repo := unavailableRepo{}

	providers := idp.NewManager()
	providers.Register(idp.NewHeaderProvider(""))

	m := NewModule(Options{
		ProviderName:    idp.HeaderProviderName,
		SyncHandlerName: usersync.DefaultHandlerName,
		Providers:       providers,
		Handlers:        usersync.NewManager(),
		Repository:      repo,
		Logger:          quietLogger(),
	})

	shared := &SharedState{}
	res := m.Login(context.Background(), headerauth.NewValidatedCredential("carol@example.com", nil), shared)

	assert.Equal(t, OutcomePreAuthenticated, res.Outcome.Kind)
	require.NotNil(t, res.Sync)
	assert.Equal(t, usersync.StatusFailed, res.Sync.Status)
	assert.Equal(t, usersync.MaxSyncAttempts, res.Sync.Attempts)
	assert.True(t, shared.Staged())
}

func TestModule_InertWhenCollaboratorsMissing(t *testing.T) {
	repo, err := repository.NewBadgerRepository(repository.BadgerOptions{InMemory: true, Logger: quietLogger()})
	require.NoError(t, err)
	defer repo.Close()

	tests := []struct {
		name string
		opts Options
	}{
		{
			name: "unknown provider",
			opts: Options{
				ProviderName:    "missing",
				SyncHandlerName: usersync.DefaultHandlerName,
				Providers:       idp.NewManager(),
				Handlers:        usersync.NewManager(),
				Repository:      repo,
			},
		},
		{
			name: "unknown sync handler",
			opts: Options{
				ProviderName:    idp.HeaderProviderName,
				SyncHandlerName: "missing",
				Providers: func() *idp.Manager {
					m := idp.NewManager()
					m.Register(idp.NewHeaderProvider(""))
					return m
				}(),
				Handlers:   usersync.NewManager(),
				Repository: repo,
			},
		},
		{
			name: "no lookups",
			opts: Options{Repository: repo},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Logger = quietLogger()
			m := NewModule(tt.opts)
			assert.True(t, m.Inert())

			shared := &SharedState{}
			res := m.Login(context.Background(), headerauth.NewValidatedCredential("dave@example.com", nil), shared)
			assert.Equal(t, OutcomeDeferred, res.Outcome.Kind)
			assert.False(t, shared.Staged())
		})
	}
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "deferred", Deferred().String())
	assert.Equal(t, "pre-authenticated(alice)", PreAuthenticated("alice").String())
	assert.Equal(t, "rejected(bad-secret)", Rejected(headerauth.ReasonBadSecret).String())
}
