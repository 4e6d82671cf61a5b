// Package history remembers recent generations: a bounded in-memory log for
// the session view, and an optional Postgres table for durable usage
// accounting across sessions.
package history

import (
	"sync"
	"time"
)

// Record is one completed (or failed) generation.
type Record struct {
	RequestID     string
	Type          string
	Provider      string
	Model         string
	Status        string
	PromptPreview string
	Tokens        int
	Duration      time.Duration
	CreatedAt     time.Time
}

// Memory keeps the newest records up to a fixed limit.
type Memory struct {
	mu      sync.Mutex
	limit   int
	records []Record
}

func NewMemory(limit int) *Memory {
	if limit <= 0 {
		limit = 100
	}
	return &Memory{limit: limit}
}

// Add appends a record, evicting the oldest once the limit is reached.
func (m *Memory) Add(r Record) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	if len(m.records) > m.limit {
		m.records = m.records[len(m.records)-m.limit:]
	}
}

// Recent returns up to n records, newest first. n <= 0 returns all.
func (m *Memory) Recent(n int) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n <= 0 || n > len(m.records) {
		n = len(m.records)
	}
	out := make([]Record, n)
	for i := 0; i < n; i++ {
		out[i] = m.records[len(m.records)-1-i]
	}
	return out
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = nil
}
