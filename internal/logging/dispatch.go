package logging

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// DispatchHook forwards entries to the current set of outputs. The set is
// swapped atomically so Fire never takes a lock; logrus has no RemoveHook,
// so one hook is installed for the lifetime of the logger.
type DispatchHook struct {
	snapshot atomic.Pointer[[]target]
}

type target struct {
	name   string
	output Output
	level  logrus.Level
}

// NewDispatchHook creates a hook with no outputs
func NewDispatchHook() *DispatchHook {
	h := &DispatchHook{}
	empty := make([]target, 0)
	h.snapshot.Store(&empty)
	return h
}

func (h *DispatchHook) update(targets []target) {
	h.snapshot.Store(&targets)
}

// Levels implements logrus.Hook
func (h *DispatchHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire implements logrus.Hook. Writes happen asynchronously and their
// errors are dropped; logging them would recurse into this hook.
func (h *DispatchHook) Fire(entry *logrus.Entry) error {
	targets := *h.snapshot.Load()
	if len(targets) == 0 {
		return nil
	}

	logEntry := &LogEntry{
		Timestamp: entry.Time,
		Level:     entry.Level.String(),
		Message:   entry.Message,
		Fields:    make(map[string]interface{}, len(entry.Data)),
	}
	for k, v := range entry.Data {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		logEntry.Fields[k] = v
	}

	for _, t := range targets {
		// logrus levels grow more verbose as they increase
		if entry.Level > t.level {
			continue
		}
		out := t.output
		go func() {
			_ = out.Write(logEntry)
		}()
	}
	return nil
}
