package logging

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
)

// SyslogOutput sends entries to a syslog server over TCP or UDP using the
// RFC 3164 framing. Authentication events go to the auth facility.
type SyslogOutput struct {
	conn     net.Conn
	protocol string
	addr     string
	tag      string
	mu       sync.Mutex
}

// Syslog severity levels
const (
	severityCritical = 2
	severityError    = 3
	severityWarning  = 4
	severityInfo     = 6
	severityDebug    = 7
)

// LOG_AUTHPRIV
const facilityAuthPriv = 10

// NewSyslogOutput connects to a syslog server
func NewSyslogOutput(protocol, host string, port int, tag string) (*SyslogOutput, error) {
	if host == "" {
		return nil, ErrSyslogHostNotConfigured
	}
	if protocol == "" {
		protocol = "udp"
	}
	if tag == "" {
		tag = "headerauth"
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := net.Dial(protocol, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to syslog: %w", err)
	}

	return &SyslogOutput{
		conn:     conn,
		protocol: protocol,
		addr:     addr,
		tag:      tag,
	}, nil
}

// Write sends one entry, reconnecting once if the connection broke
func (s *SyslogOutput) Write(entry *LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return fmt.Errorf("syslog connection is closed")
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry: %w", err)
	}

	priority := facilityAuthPriv*8 + severityFor(entry.Level)
	message := []byte(fmt.Sprintf("<%d>%s %s[%d]: %s\n",
		priority,
		entry.Timestamp.Format("Jan _2 15:04:05"),
		s.tag,
		os.Getpid(),
		data,
	))

	if _, err = s.conn.Write(message); err == nil {
		return nil
	}

	s.conn.Close()
	conn, reconnectErr := net.Dial(s.protocol, s.addr)
	if reconnectErr != nil {
		s.conn = nil
		return fmt.Errorf("failed to write to syslog and reconnect failed: %w", err)
	}
	s.conn = conn

	if _, err = s.conn.Write(message); err != nil {
		return fmt.Errorf("failed to write to syslog after reconnect: %w", err)
	}
	return nil
}

// Close closes the syslog connection
func (s *SyslogOutput) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

func severityFor(level string) int {
	switch level {
	case "trace", "debug":
		return severityDebug
	case "warn", "warning":
		return severityWarning
	case "error":
		return severityError
	case "fatal", "panic":
		return severityCritical
	default:
		return severityInfo
	}
}
