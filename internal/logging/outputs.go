package logging

import (
	"time"
)

// Output is a log forwarding destination
type Output interface {
	Write(entry *LogEntry) error
	Close() error
}

// LogEntry is the forwarded form of a logrus entry
type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}
