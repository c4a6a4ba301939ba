package headerauth

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSnapshot_Defaults(t *testing.T) {
	snap, err := NewSnapshot(Settings{})
	require.NoError(t, err)

	assert.Equal(t, DefaultRemoteUserHeader, snap.RemoteUserHeader())
	assert.Equal(t, SharedSecretHeader, snap.SharedSecretHeader())
	assert.Equal(t, "", snap.LoginCookie())
	assert.True(t, snap.UsernamePattern().MatchString("alice@example.com"))
	assert.True(t, snap.ProfileHeaderPattern().MatchString("OIDC_CLAIM_email"))
}

func TestNewSnapshot_InvalidPatterns(t *testing.T) {
	settings := DefaultSettings()
	settings.UsernameWhitelist = "([a-z"
	_, err := NewSnapshot(settings)
	assert.Error(t, err)

	settings = DefaultSettings()
	settings.ProfileHeaderWhitelist = "*bad"
	_, err = NewSnapshot(settings)
	assert.Error(t, err)
}

func TestSnapshotHolder_Swap(t *testing.T) {
	first, err := NewSnapshot(DefaultSettings())
	require.NoError(t, err)

	settings := DefaultSettings()
	settings.RemoteUserHeader = "X-Forwarded-User"
	second, err := NewSnapshot(settings)
	require.NoError(t, err)

	holder := NewSnapshotHolder(first)
	assert.Same(t, first, holder.Load())

	holder.Store(nil)
	assert.Same(t, first, holder.Load(), "nil must not replace the active snapshot")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := holder.Load()
			assert.NotNil(t, s)
			assert.Contains(t, []string{DefaultRemoteUserHeader, "X-Forwarded-User"}, s.RemoteUserHeader())
		}()
	}
	holder.Store(second)
	wg.Wait()

	assert.Same(t, second, holder.Load())
}
