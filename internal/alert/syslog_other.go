//go:build windows || plan9

package alert

import "errors"

// SyslogSink is unavailable on this platform.
type SyslogSink struct{}

func NewSyslogSink(tag string) (*SyslogSink, error) {
	return nil, errors.New("syslog is not supported on this platform")
}

func (s *SyslogSink) Raise(e Event) {}

func (s *SyslogSink) Close() error { return nil }
