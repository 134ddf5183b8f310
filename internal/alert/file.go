package alert

import (
	"fmt"
	"io"
	"sync"
)

// TimeLayout matches the timestamps of the legacy alert log.
const TimeLayout = "2006-01-02 15:04:05,000"

// WriterSink appends "<time> <line>" records to w, usually a rotating
// alert file. Write errors are dropped.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Raise(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = fmt.Fprintf(s.w, "%s %s\n", e.Time.Format(TimeLayout), e.Line())
}
