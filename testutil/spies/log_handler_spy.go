package spies

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// LogHandlerSpy is a slog.Handler implementation that captures log records for testing.
type LogHandlerSpy struct {
	records     []slog.Record
	mu          sync.Mutex
	logToStdout bool
}

// NewLogHandlerSpy creates a new LogHandlerSpy.
// Switchable to log to stdout, which can be useful for debugging tests by seeing the actual log output.
func NewLogHandlerSpy(logToStdout bool) *LogHandlerSpy {
	return &LogHandlerSpy{
		records:     make([]slog.Record, 0),
		logToStdout: logToStdout,
	}
}

// NewLogger returns a *slog.Logger writing into a fresh spy.
func NewLogger() (*slog.Logger, *LogHandlerSpy) {
	spy := NewLogHandlerSpy(false)
	return slog.New(spy), spy
}

func (s *LogHandlerSpy) Handle(ctx context.Context, record slog.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, record.Clone())

	if s.logToStdout {
		_ = slog.NewJSONHandler(os.Stdout, nil).Handle(ctx, record)
	}

	return nil
}

func (s *LogHandlerSpy) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

func (s *LogHandlerSpy) WithAttrs(_ []slog.Attr) slog.Handler {
	return s
}

func (s *LogHandlerSpy) WithGroup(_ string) slog.Handler {
	return s
}

func (s *LogHandlerSpy) GetRecordCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.records)
}

// GetRecords returns a copy of all captured log records.
func (s *LogHandlerSpy) GetRecords() []slog.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]slog.Record, len(s.records))
	copy(records, s.records)

	return records
}

func (s *LogHandlerSpy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = s.records[:0]
}

// HasLog starts a matcher for records of level whose message contains message.
func (s *LogHandlerSpy) HasLog(level slog.Level, message string) *LogRecordMatcher {
	return &LogRecordMatcher{spy: s, level: level, message: message}
}

// LogRecordMatcher narrows down the records a LogHandlerSpy captured.
type LogRecordMatcher struct {
	spy     *LogHandlerSpy
	level   slog.Level
	message string
	checks  []func(attrs map[string]slog.Value) bool
}

// WithAttribute requires the attribute key to be present.
func (m *LogRecordMatcher) WithAttribute(key string) *LogRecordMatcher {
	m.checks = append(m.checks, func(attrs map[string]slog.Value) bool {
		_, ok := attrs[key]
		return ok
	})

	return m
}

// WithAttributeValue requires the attribute key to render as value.
func (m *LogRecordMatcher) WithAttributeValue(key, value string) *LogRecordMatcher {
	m.checks = append(m.checks, func(attrs map[string]slog.Value) bool {
		v, ok := attrs[key]
		return ok && v.String() == value
	})

	return m
}

// Count returns the number of matching records.
func (m *LogRecordMatcher) Count() int {
	count := 0

	for _, record := range m.spy.GetRecords() {
		if record.Level != m.level || !strings.Contains(record.Message, m.message) {
			continue
		}

		attrs := make(map[string]slog.Value)
		record.Attrs(func(a slog.Attr) bool {
			attrs[a.Key] = a.Value
			return true
		})

		matched := true
		for _, check := range m.checks {
			if !check(attrs) {
				matched = false
				break
			}
		}

		if matched {
			count++
		}
	}

	return count
}

// Assert reports whether at least one record matches.
func (m *LogRecordMatcher) Assert() bool {
	return m.Count() > 0
}
