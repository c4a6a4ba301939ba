package logging

import (
	"fmt"
	"sync"
	"time"

	"github.com/maxiofs/headerauth/internal/config"
	"github.com/sirupsen/logrus"
)

// Target types
const (
	TargetTypeSyslog = "syslog"
	TargetTypeHTTP   = "http"
)

// Manager owns the forwarding outputs built from logging.targets
type Manager struct {
	logger  *logrus.Logger
	hook    *DispatchHook
	outputs map[string]Output
	mu      sync.Mutex
}

// NewManager installs a dispatch hook on logger
func NewManager(logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	hook := NewDispatchHook()
	logger.AddHook(hook)

	return &Manager{
		logger:  logger,
		hook:    hook,
		outputs: make(map[string]Output),
	}
}

// Configure replaces all outputs. A target that fails to start is logged
// and skipped; the remaining targets are still installed.
func (m *Manager) Configure(targets []config.LogTargetConfig) {
	m.mu.Lock()
	old := m.outputs
	m.outputs = make(map[string]Output, len(targets))

	active := make([]target, 0, len(targets))
	var failed []error
	for _, cfg := range targets {
		output, err := NewOutput(cfg)
		if err != nil {
			failed = append(failed, fmt.Errorf("target %s: %w", cfg.Name, err))
			continue
		}

		level, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			level = logrus.InfoLevel
		}

		m.outputs[cfg.Name] = output
		active = append(active, target{name: cfg.Name, output: output, level: level})
	}
	m.hook.update(active)
	m.mu.Unlock()

	// Outside the lock: these log through the hook
	for name, output := range old {
		output.Close()
		m.logger.WithField("target", name).Debug("Log target closed")
	}
	for _, err := range failed {
		m.logger.WithError(err).Error("Failed to configure log target")
	}
	for _, t := range active {
		m.logger.WithFields(logrus.Fields{
			"target": t.name,
			"level":  t.level.String(),
		}).Info("Log target configured")
	}
}

// ActiveOutputs returns the number of installed outputs
func (m *Manager) ActiveOutputs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.outputs)
}

// Close removes and closes all outputs
func (m *Manager) Close() {
	m.mu.Lock()
	old := m.outputs
	m.outputs = make(map[string]Output)
	m.hook.update(nil)
	m.mu.Unlock()

	for _, output := range old {
		output.Close()
	}
}

// NewOutput builds an output from its configuration
func NewOutput(cfg config.LogTargetConfig) (Output, error) {
	switch cfg.Type {
	case TargetTypeSyslog:
		return NewSyslogOutput(cfg.Protocol, cfg.Host, cfg.Port, cfg.Tag)
	case TargetTypeHTTP:
		if cfg.URL == "" {
			return nil, ErrHTTPURLNotConfigured
		}
		return NewHTTPOutput(cfg.URL, cfg.AuthToken, cfg.BatchSize, time.Duration(cfg.FlushInterval)*time.Second), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidOutputType, cfg.Type)
	}
}
