package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Sink delivers a decoded notification.  Email composition lives outside
// this service; the bundled FileSink writes an outbox line instead.
type Sink interface {
	Deliver(ctx context.Context, ev BookingConfirmedEvent) error
}

// FileSink appends one line per event to a log file, creating the
// directory on first use.
type FileSink struct {
	Path string
	mu   sync.Mutex
}

// NewFileSink returns a sink writing to dir/notifications.log.
func NewFileSink(dir string) *FileSink {
	return &FileSink{Path: filepath.Join(dir, "notifications.log")}
}

func (s *FileSink) Deliver(_ context.Context, ev BookingConfirmedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(s.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(ev.LogLine()); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// handleMessage decodes a broker payload and hands it to the sink.
func handleMessage(ctx context.Context, sink Sink, body []byte) error {
	var ev BookingConfirmedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.BookingID == "" {
		return fmt.Errorf("event without booking_id")
	}
	return sink.Deliver(ctx, ev)
}
