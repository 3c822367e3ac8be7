package admin

import (
	"sync"
	"time"
)

// DefaultUpdateHistory is how many cache updates /statusz remembers.
const DefaultUpdateHistory = 100

// UpdateRecord is one finished cache update.
type UpdateRecord struct {
	Time        time.Time `json:"time"`
	Status      string    `json:"status"`
	LatencySecs float64   `json:"latency_secs"`
	Error       string    `json:"error,omitempty"`
}

// CaptureStore keeps the last n update records, oldest first.
type CaptureStore struct {
	mu   sync.Mutex
	recs []UpdateRecord
	n    int
}

// NewCaptureStore returns a store holding up to n records; n <= 0 means
// DefaultUpdateHistory.
func NewCaptureStore(n int) *CaptureStore {
	if n <= 0 {
		n = DefaultUpdateHistory
	}
	return &CaptureStore{n: n, recs: make([]UpdateRecord, 0, n)}
}

// Add appends r, dropping the oldest record once the store is full.
func (c *CaptureStore) Add(r UpdateRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.recs) == c.n {
		copy(c.recs, c.recs[1:])
		c.recs = c.recs[:c.n-1]
	}
	c.recs = append(c.recs, r)
}

// List returns a copy of the stored records.
func (c *CaptureStore) List() []UpdateRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]UpdateRecord(nil), c.recs...)
}

// Clear drops every record.
func (c *CaptureStore) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recs = c.recs[:0]
}
