package trace

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSSink publishes trace records as JSON to
// <prefix>.<thread_id>.<level>. Publishes are plain core NATS: at most
// once, no acknowledgement, which matches the fire-and-forget contract.
type NATSSink struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSSink connects to NATS and returns a sink.
func NewNATSSink(url, prefix string) (*NATSSink, error) {
	nc, err := nats.Connect(url,
		nats.Name("engine-trace"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to trace sink: %w", err)
	}
	if prefix == "" {
		prefix = "trace"
	}
	return &NATSSink{nc: nc, prefix: prefix}, nil
}

// Record publishes one record.
func (s *NATSSink) Record(threadID string, level int, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal trace record: %w", err)
	}
	subject := fmt.Sprintf("%s.%s.%d", s.prefix, threadID, level)
	return s.nc.Publish(subject, data)
}

// Close flushes pending publishes and closes the connection.
func (s *NATSSink) Close() {
	if s.nc != nil {
		_ = s.nc.Flush()
		s.nc.Close()
	}
}

// MemorySink collects records in memory for tests and inspection.
type MemorySink struct {
	mu      sync.Mutex
	records []Record
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Record appends the record.
func (s *MemorySink) Record(threadID string, level int, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// Records returns a copy of all collected records.
func (s *MemorySink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// ByThread returns records for one thread and level, in arrival order.
func (s *MemorySink) ByThread(threadID string, level int) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, r := range s.records {
		if r.ThreadID == threadID && r.Level == level {
			out = append(out, r)
		}
	}
	return out
}
