package logging

import (
	"bufio"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/maxiofs/headerauth/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryOutput collects entries in memory
type memoryOutput struct {
	mu      sync.Mutex
	entries []*LogEntry
	closed  bool
}

func (m *memoryOutput) Write(entry *LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memoryOutput) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *memoryOutput) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func startSyslogServer(t *testing.T) (host string, port int, lines <-chan string) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	out := make(chan string, 16)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			out <- scanner.Text()
		}
	}()

	h, p, err := net.SplitHostPort(listener.Addr().String())
	require.NoError(t, err)
	portNum, err := strconv.Atoi(p)
	require.NoError(t, err)
	return h, portNum, out
}

func TestSyslogOutput_Write(t *testing.T) {
	host, port, lines := startSyslogServer(t)

	output, err := NewSyslogOutput("tcp", host, port, "headerauth")
	require.NoError(t, err)
	defer output.Close()

	require.NoError(t, output.Write(&LogEntry{
		Timestamp: time.Now(),
		Level:     "warning",
		Message:   "Header authentication failed",
		Fields:    map[string]interface{}{"reason": "bad-secret"},
	}))

	select {
	case line := <-lines:
		// authpriv (10) * 8 + warning (4)
		assert.True(t, strings.HasPrefix(line, "<84>"), line)
		assert.Contains(t, line, "headerauth[")
		assert.Contains(t, line, `"reason":"bad-secret"`)
	case <-time.After(5 * time.Second):
		t.Fatal("no syslog message received")
	}
}

func TestSyslogOutput_RequiresHost(t *testing.T) {
	_, err := NewSyslogOutput("tcp", "", 514, "")
	assert.ErrorIs(t, err, ErrSyslogHostNotConfigured)
}

func TestSyslogOutput_WriteAfterClose(t *testing.T) {
	host, port, _ := startSyslogServer(t)

	output, err := NewSyslogOutput("tcp", host, port, "")
	require.NoError(t, err)
	require.NoError(t, output.Close())
	require.NoError(t, output.Close())

	assert.Error(t, output.Write(&LogEntry{Timestamp: time.Now(), Level: "info"}))
}

func TestSeverityFor(t *testing.T) {
	assert.Equal(t, severityDebug, severityFor("debug"))
	assert.Equal(t, severityInfo, severityFor("info"))
	assert.Equal(t, severityWarning, severityFor("warn"))
	assert.Equal(t, severityError, severityFor("error"))
	assert.Equal(t, severityCritical, severityFor("panic"))
	assert.Equal(t, severityInfo, severityFor("unknown"))
}

func TestHTTPOutput_BatchAndFlush(t *testing.T) {
	var mu sync.Mutex
	var received []*LogEntry
	batches := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token123", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		var entries []*LogEntry
		if json.Unmarshal(body, &entries) == nil {
			mu.Lock()
			received = append(received, entries...)
			batches++
			mu.Unlock()
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	output := NewHTTPOutput(server.URL, "token123", 2, time.Hour)

	require.NoError(t, output.Write(&LogEntry{Timestamp: time.Now(), Level: "info", Message: "one"}))
	require.NoError(t, output.Write(&LogEntry{Timestamp: time.Now(), Level: "info", Message: "two"}))
	require.NoError(t, output.Write(&LogEntry{Timestamp: time.Now(), Level: "info", Message: "three"}))

	// Close flushes the partial batch
	require.NoError(t, output.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, batches)
	require.Len(t, received, 3)
	assert.Equal(t, "three", received[2].Message)
}

func TestHTTPOutput_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	output := NewHTTPOutput(server.URL, "", 1, time.Hour)
	defer output.Close()

	err := output.Write(&LogEntry{Timestamp: time.Now(), Level: "error"})
	assert.Error(t, err)
}

func TestDispatchHook_FiltersByLevel(t *testing.T) {
	warnOnly := &memoryOutput{}
	everything := &memoryOutput{}

	hook := NewDispatchHook()
	hook.update([]target{
		{name: "warn", output: warnOnly, level: logrus.WarnLevel},
		{name: "all", output: everything, level: logrus.DebugLevel},
	})

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.DebugLevel)
	logger.AddHook(hook)

	logger.Debug("debug")
	logger.Info("info")
	logger.WithError(assert.AnError).Warn("warn")

	assert.Eventually(t, func() bool { return everything.count() == 3 }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return warnOnly.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	warnOnly.mu.Lock()
	defer warnOnly.mu.Unlock()
	assert.Equal(t, assert.AnError.Error(), warnOnly.entries[0].Fields["error"])
}

func TestManager_Configure(t *testing.T) {
	host, port, lines := startSyslogServer(t)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	m := NewManager(logger)
	defer m.Close()

	m.Configure([]config.LogTargetConfig{
		{Name: "siem", Type: TargetTypeSyslog, Protocol: "tcp", Host: host, Port: port, Level: "warn"},
		{Name: "broken", Type: "kafka"},
	})
	assert.Equal(t, 1, m.ActiveOutputs())

	logger.WithField("reason", "bad-username").Warn("Header authentication failed")

	// The failed "broken" target is reported at error level first
	timeout := time.After(5 * time.Second)
	for found := false; !found; {
		select {
		case line := <-lines:
			found = strings.Contains(line, "Header authentication failed")
		case <-timeout:
			t.Fatal("no syslog message received")
		}
	}

	m.Configure(nil)
	assert.Equal(t, 0, m.ActiveOutputs())
}

func TestNewOutput_Errors(t *testing.T) {
	_, err := NewOutput(config.LogTargetConfig{Type: "kafka"})
	assert.ErrorIs(t, err, ErrInvalidOutputType)

	_, err = NewOutput(config.LogTargetConfig{Type: TargetTypeHTTP})
	assert.ErrorIs(t, err, ErrHTTPURLNotConfigured)
}
