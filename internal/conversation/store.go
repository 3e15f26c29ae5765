package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vinayprograms/agentkit/logging"
)

// Thread pairs a State with the lock that serializes turns on it.
type Thread struct {
	mu         sync.Mutex
	state      *State
	lastActive time.Time
}

// ThreadStore keeps live threads in memory with a TTL. Expired threads
// are dropped lazily on access and periodically by the sweeper, so a
// returning user after the TTL simply starts a fresh thread under a
// new ID.
type ThreadStore struct {
	mu      sync.Mutex
	threads map[string]*Thread
	ttl     time.Duration
	logger  *logging.Logger
}

func NewThreadStore(ttl time.Duration) *ThreadStore {
	return &ThreadStore{
		threads: make(map[string]*Thread),
		ttl:     ttl,
		logger:  logging.New().WithComponent("threads"),
	}
}

// Acquire returns the locked thread for the ID, creating a fresh one
// when the ID is empty, unknown, or expired. Callers must Release.
func (ts *ThreadStore) Acquire(threadID string, customerID, campaignerID int64) *Thread {
	ts.mu.Lock()
	th, ok := ts.threads[threadID]
	if ok && time.Since(th.lastActive) > ts.ttl {
		// A thread whose lock is held has a turn in flight; it stays
		// live even past the TTL so the turn and this caller keep
		// seeing the same State.
		if th.mu.TryLock() {
			th.mu.Unlock()
			delete(ts.threads, threadID)
			ok = false
		}
	}
	if !ok {
		id := threadID
		if id == "" {
			id = uuid.NewString()
		}
		th = &Thread{state: &State{
			ThreadID:     id,
			CustomerID:   customerID,
			CampaignerID: campaignerID,
		}}
		ts.threads[id] = th
	}
	th.lastActive = time.Now()
	ts.mu.Unlock()

	th.mu.Lock()
	return th
}

// Release unlocks a thread acquired with Acquire.
func (ts *ThreadStore) Release(th *Thread) {
	th.mu.Unlock()
}

// Len reports the number of live threads.
func (ts *ThreadStore) Len() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.threads)
}

// StartSweeper evicts expired threads on an interval until ctx is
// cancelled.
func (ts *ThreadStore) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ts.sweep()
			}
		}
	}()
}

func (ts *ThreadStore) sweep() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	var evicted int
	for id, th := range ts.threads {
		if time.Since(th.lastActive) > ts.ttl && th.mu.TryLock() {
			th.mu.Unlock()
			delete(ts.threads, id)
			evicted++
		}
	}
	if evicted > 0 {
		ts.logger.Debug("swept expired threads", map[string]interface{}{
			"evicted": evicted,
			"live":    len(ts.threads),
		})
	}
}
