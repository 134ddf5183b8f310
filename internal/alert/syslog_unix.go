//go:build !windows && !plan9

package alert

import (
	"fmt"
	"log/syslog"
)

// SyslogSink forwards alerts to the local syslog daemon under a tag, the
// equivalent of `logger -t monit`.
type SyslogSink struct {
	w *syslog.Writer
}

// NewSyslogSink dials the local syslog with the given tag.
func NewSyslogSink(tag string) (*SyslogSink, error) {
	if tag == "" {
		tag = "monit"
	}
	w, err := syslog.New(syslog.LOG_DAEMON|syslog.LOG_INFO, tag)
	if err != nil {
		return nil, fmt.Errorf("connect syslog: %w", err)
	}
	return &SyslogSink{w: w}, nil
}

func (s *SyslogSink) Raise(e Event) {
	line := e.Line()
	switch e.Severity {
	case Crit:
		_ = s.w.Crit(line)
	case Alert:
		_ = s.w.Alert(line)
	case Notif:
		_ = s.w.Notice(line)
	default:
		_ = s.w.Info(line)
	}
}

func (s *SyslogSink) Close() error { return s.w.Close() }
