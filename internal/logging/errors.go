package logging

import "errors"

var (
	// ErrInvalidOutputType is returned for target types other than syslog and http
	ErrInvalidOutputType = errors.New("invalid output type")

	// ErrSyslogHostNotConfigured is returned when a syslog target has no host
	ErrSyslogHostNotConfigured = errors.New("syslog host not configured")

	// ErrHTTPURLNotConfigured is returned when an http target has no URL
	ErrHTTPURLNotConfigured = errors.New("HTTP URL not configured")
)
