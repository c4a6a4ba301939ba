package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCommand(t *testing.T, args ...string) *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("config", "", "")
	cmd.Flags().String("listen", ":8080", "")
	cmd.Flags().String("data-dir", "./data", "")
	cmd.Flags().String("log-level", "info", "")
	cmd.Flags().String("storage-backend", "badger", "")
	require.NoError(t, cmd.Flags().Parse(args))
	return cmd
}

func writeConfigFile(t *testing.T, dir, body string) string {
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestSetDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	assert.Equal(t, ":8080", v.GetString("listen"))
	assert.Equal(t, "./data", v.GetString("data_dir"))
	assert.Equal(t, "info", v.GetString("log_level"))
}

func TestSetDefaults_HeaderAuth(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	assert.Equal(t, "", v.GetString("header_auth.shared_secret"))
	assert.False(t, v.GetBool("header_auth.allow_empty_shared_secret"))
	assert.Equal(t, "REMOTE_USER", v.GetString("header_auth.remote_user_header"))
	assert.Equal(t, "^[A-Za-z0-9+_.-]+@(.+)$", v.GetString("header_auth.username_whitelist"))
	assert.Equal(t, "^OIDC_CLAIM_(.+)$", v.GetString("header_auth.user_profile_header_whitelist"))
	assert.Equal(t, "mod_auth_openidc_session", v.GetString("header_auth.login_cookie"))
}

func TestSetDefaults_SyncStorageMetrics(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	assert.Equal(t, "default", v.GetString("sync.handler_name"))
	assert.Equal(t, "HeaderExternalIdentityProvider", v.GetString("sync.idp_name"))
	assert.Equal(t, "badger", v.GetString("storage.backend"))
	assert.True(t, v.GetBool("metrics.enable"))
	assert.Equal(t, "/metrics", v.GetString("metrics.path"))
}

func TestLoad_FlagsOverrideDefaults(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "data")
	cmd := newTestCommand(t, "--data-dir", dataDir, "--listen", ":9090", "--storage-backend", "sqlite")

	cfg, err := Load(cmd)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, dataDir, cfg.DataDir)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.DirExists(t, dataDir)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, `
data_dir: `+filepath.Join(dir, "data")+`
header_auth:
  shared_secret: s3cr3t
  remote_user_header: X-Remote-User
  login_cookie: ""
storage:
  backend: pebble
metrics:
  enable: false
`)

	cfg, err := Load(newTestCommand(t, "--config", path))
	require.NoError(t, err)

	assert.Equal(t, "s3cr3t", cfg.HeaderAuth.SharedSecret)
	assert.Equal(t, "X-Remote-User", cfg.HeaderAuth.RemoteUserHeader)
	assert.Equal(t, "", cfg.HeaderAuth.LoginCookie)
	assert.Equal(t, "pebble", cfg.Storage.Backend)
	assert.False(t, cfg.Metrics.Enable)

	snap, err := cfg.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "X-Remote-User", snap.RemoteUserHeader())
	assert.Equal(t, "", snap.LoginCookie())
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	t.Setenv("HEADERAUTH_HEADER_AUTH_SHARED_SECRET", "from-env")

	cfg, err := Load(newTestCommand(t, "--data-dir", t.TempDir()))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.HeaderAuth.SharedSecret)
}

func TestLoad_InvalidBackend(t *testing.T) {
	_, err := Load(newTestCommand(t, "--data-dir", t.TempDir(), "--storage-backend", "mysql"))
	require.Error(t, err)

	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "Backend", verrs[0].Field())
}

func TestLoad_InvalidPattern(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, `
data_dir: `+dir+`
header_auth:
  username_whitelist: "([a-z"
`)

	_, err := Load(newTestCommand(t, "--config", path))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Listen:   ":8080",
			DataDir:  t.TempDir(),
			LogLevel: "info",
			HeaderAuth: HeaderAuthConfig{
				RemoteUserHeader: "REMOTE_USER",
			},
			Sync:    SyncConfig{HandlerName: "default", IDPName: "HeaderExternalIdentityProvider"},
			Storage: StorageConfig{Backend: "badger"},
			Metrics: MetricsConfig{Enable: true, Path: "/metrics"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "loud" }, wantErr: true},
		{name: "missing remote user header", mutate: func(c *Config) { c.HeaderAuth.RemoteUserHeader = "" }, wantErr: true},
		{name: "missing sync handler", mutate: func(c *Config) { c.Sync.HandlerName = "" }, wantErr: true},
		{name: "missing idp", mutate: func(c *Config) { c.Sync.IDPName = "" }, wantErr: true},
		{name: "relative metrics path", mutate: func(c *Config) { c.Metrics.Path = "metrics" }, wantErr: true},
		{name: "bad profile pattern", mutate: func(c *Config) { c.HeaderAuth.UserProfileHeaderWhitelist = "(" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := validate(cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoader_Reload(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "data_dir: "+dir+"\nheader_auth:\n  shared_secret: one\n")

	l, err := NewLoader(newTestCommand(t, "--config", path))
	require.NoError(t, err)
	assert.Equal(t, "one", l.Config().HeaderAuth.SharedSecret)

	writeConfigFile(t, dir, "data_dir: "+dir+"\nheader_auth:\n  shared_secret: two\n")
	require.NoError(t, l.v.ReadInConfig())

	cfg, err := l.reload()
	require.NoError(t, err)
	assert.Equal(t, "two", cfg.HeaderAuth.SharedSecret)
	assert.Equal(t, "two", l.Config().HeaderAuth.SharedSecret)

	writeConfigFile(t, dir, "data_dir: "+dir+"\nstorage:\n  backend: nope\n")
	require.NoError(t, l.v.ReadInConfig())

	_, err = l.reload()
	assert.Error(t, err)
	assert.Equal(t, "two", l.Config().HeaderAuth.SharedSecret, "invalid change keeps previous config")
}

func TestLoader_WatchWithoutFile(t *testing.T) {
	l, err := NewLoader(newTestCommand(t, "--data-dir", t.TempDir()))
	require.NoError(t, err)

	called := false
	l.Watch(func(*Config, error) { called = true })
	assert.False(t, called)
}

func TestLoad_LoggingTargets(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, `
data_dir: `+dir+`
logging:
  targets:
    - name: siem
      type: syslog
      level: warn
      protocol: tcp
      host: 127.0.0.1
      port: 514
    - name: collector
      type: http
      url: https://logs.example.com/ingest
      batch_size: 50
`)

	cfg, err := Load(newTestCommand(t, "--config", path))
	require.NoError(t, err)
	require.Len(t, cfg.Logging.Targets, 2)
	assert.Equal(t, "syslog", cfg.Logging.Targets[0].Type)
	assert.Equal(t, 514, cfg.Logging.Targets[0].Port)
	assert.Equal(t, "https://logs.example.com/ingest", cfg.Logging.Targets[1].URL)
	assert.Equal(t, 50, cfg.Logging.Targets[1].BatchSize)
}

func TestValidate_LoggingTargets(t *testing.T) {
	base := func() *Config {
		return &Config{
			Listen:     ":8080",
			DataDir:    t.TempDir(),
			LogLevel:   "info",
			HeaderAuth: HeaderAuthConfig{RemoteUserHeader: "REMOTE_USER"},
			Sync:       SyncConfig{HandlerName: "default", IDPName: "HeaderExternalIdentityProvider"},
			Storage:    StorageConfig{Backend: "badger"},
		}
	}

	cfg := base()
	cfg.Logging.Targets = []LogTargetConfig{{Name: "a", Type: "kafka"}}
	assert.Error(t, validate(cfg))

	cfg = base()
	cfg.Logging.Targets = []LogTargetConfig{{Name: "a", Type: "syslog"}}
	assert.Error(t, validate(cfg), "syslog target needs a host")

	cfg = base()
	cfg.Logging.Targets = []LogTargetConfig{{Name: "a", Type: "http"}}
	assert.Error(t, validate(cfg))

	cfg = base()
	cfg.Logging.Targets = []LogTargetConfig{{Name: "a", Type: "syslog", Host: "localhost", Port: 514}}
	assert.NoError(t, validate(cfg))
}
