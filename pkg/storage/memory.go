package storage

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// MemoryStore keeps the latest snapshot per site in process memory. It is
// safe for concurrent use.
//
// A store with a retention period hides snapshots whose GeneratedAt is older
// than the retention and sweeps them in the background until Stop.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]Snapshot
	retention time.Duration
	now       func() time.Time

	cancel   context.CancelFunc
	stopOnce sync.Once
	swept    chan struct{}
}

var (
	_ Store  = (*MemoryStore)(nil)
	_ Lister = (*MemoryStore)(nil)
)

// NewMemoryStore creates an in-memory store whose snapshots never expire.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[string]Snapshot),
		now:       time.Now,
	}
}

// NewMemoryStoreWithTTL creates an in-memory store that drops snapshots
// older than ttl. Expired snapshots are swept every sweepEvery (one minute
// if <= 0). Call Stop when done.
func NewMemoryStoreWithTTL(ttl, sweepEvery time.Duration) (*MemoryStore, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("memory store ttl must be positive, got %v", ttl)
	}
	if sweepEvery <= 0 {
		sweepEvery = time.Minute
	}

	s := NewMemoryStore()
	s.retention = ttl

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.swept = make(chan struct{})
	go s.sweepLoop(ctx, sweepEvery)

	return s, nil
}

// Stop ends background sweeping and waits for it to finish. It may be called
// more than once and is a no-op on stores without a TTL.
func (s *MemoryStore) Stop() {
	if s.cancel == nil {
		return
	}
	s.stopOnce.Do(func() {
		s.cancel()
		<-s.swept
	})
}

func (s *MemoryStore) sweepLoop(ctx context.Context, every time.Duration) {
	defer close(s.swept)

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep deletes expired snapshots and returns how many it removed.
func (s *MemoryStore) sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for site, snap := range s.snapshots {
		if s.expired(snap) {
			delete(s.snapshots, site)
			removed++
		}
	}
	return removed
}

func (s *MemoryStore) expired(snap Snapshot) bool {
	return s.retention > 0 && s.now().Sub(snap.GeneratedAt) > s.retention
}

// Put replaces the snapshot stored for snapshot.Site.
func (s *MemoryStore) Put(ctx context.Context, snapshot Snapshot) error {
	if err := validateSite(snapshot.Site); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.snapshots[snapshot.Site] = snapshot
	s.mu.Unlock()
	return nil
}

// GetLatest returns the snapshot stored for site. An expired snapshot reads
// as missing even before it is swept.
func (s *MemoryStore) GetLatest(ctx context.Context, site string) (Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, false, err
	}

	s.mu.RLock()
	snap, ok := s.snapshots[site]
	s.mu.RUnlock()
	if !ok || s.expired(snap) {
		return Snapshot{}, false, nil
	}
	return snap, true, nil
}

// Sites returns the sites holding an unexpired snapshot.
func (s *MemoryStore) Sites(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sites := make([]string, 0, len(s.snapshots))
	for site, snap := range s.snapshots {
		if !s.expired(snap) {
			sites = append(sites, site)
		}
	}
	slices.Sort(sites)
	return sites, nil
}
