package headerauth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_DropCredentials(t *testing.T) {
	snap, err := NewSnapshot(DefaultSettings())
	require.NoError(t, err)
	h := NewHandler(NewSnapshotHolder(snap))

	rec := httptest.NewRecorder()
	h.DropCredentials(rec, httptest.NewRequest(http.MethodPost, "/logout", nil))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, DefaultLoginCookie, cookies[0].Name)
	assert.Equal(t, "", cookies[0].Value)
	assert.Equal(t, "/", cookies[0].Path)
	assert.Contains(t, rec.Header().Get("Set-Cookie"), "Max-Age=0")
}

func TestHandler_DropCredentialsWithoutCookie(t *testing.T) {
	settings := DefaultSettings()
	settings.LoginCookie = ""
	snap, err := NewSnapshot(settings)
	require.NoError(t, err)
	h := NewHandler(NewSnapshotHolder(snap))

	rec := httptest.NewRecorder()
	h.DropCredentials(rec, httptest.NewRequest(http.MethodPost, "/logout", nil))

	assert.Empty(t, rec.Header().Get("Set-Cookie"))
}

func TestHandler_NeverChallenges(t *testing.T) {
	snap, err := NewSnapshot(DefaultSettings())
	require.NoError(t, err)
	h := NewHandler(NewSnapshotHolder(snap))

	rec := httptest.NewRecorder()
	assert.False(t, h.RequestCredentials(rec, httptest.NewRequest(http.MethodGet, "/", nil)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header())
}

func TestHandler_ExtractUsesActiveSnapshot(t *testing.T) {
	settings := DefaultSettings()
	settings.SharedSecret = "old"
	first, err := NewSnapshot(settings)
	require.NoError(t, err)

	holder := NewSnapshotHolder(first)
	h := NewHandler(holder)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("REMOTE_USER", "alice@example.com")
	req.Header.Set(SharedSecretHeader, "new")

	_, err = h.ExtractCredentials(req)
	assert.ErrorIs(t, err, ErrBadSecret)

	settings.SharedSecret = "new"
	second, err := NewSnapshot(settings)
	require.NoError(t, err)
	holder.Store(second)

	cred, err := h.ExtractCredentials(req)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", cred.UserID)

	h.AuthenticationFailed(req, errors.New("boom"))
}
