package cache

import (
	"container/list"
	"sync"
	"time"
)

// Tier is one bounded in-process cache level. It enforces both an
// entry-count and an estimated-byte bound, expires entries by TTL, and
// frees space according to its configured eviction policy.
//
// Tier is safe for concurrent use.
type Tier struct {
	mu      sync.Mutex
	cfg     TierConfig
	weights AdaptiveWeights

	entries map[string]*list.Element
	// order tracks recency; front is most recently accessed.
	order *list.List
	bytes int64

	stats counters

	// now is replaceable in tests.
	now func() time.Time
}

// NewTier creates a Tier from the given configuration. An empty policy
// selects PolicyLRU; zero adaptive weights select the defaults.
func NewTier(cfg TierConfig) (*Tier, error) {
	if cfg.Policy == "" {
		cfg.Policy = PolicyLRU
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}
	weights := cfg.Weights
	if weights == (AdaptiveWeights{}) {
		weights = DefaultAdaptiveWeights()
	}
	return &Tier{
		cfg:     cfg,
		weights: weights,
		entries: make(map[string]*list.Element),
		order:   list.New(),
		now:     time.Now,
	}, nil
}

// Get returns the cached value for key. A hit updates the entry's
// recency and hit counter. Expired entries are removed lazily and
// reported as misses.
func (t *Tier) Get(key string) (any, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	elem, ok := t.entries[key]
	if !ok {
		t.stats.misses.Add(1)
		return nil, false
	}

	e := elem.Value.(*entry)
	if t.expired(e) {
		t.removeLocked(elem)
		t.stats.misses.Add(1)
		return nil, false
	}

	e.hits++
	e.lastAccess = t.now()
	t.order.MoveToFront(elem)
	t.stats.hits.Add(1)
	return e.value, true
}

// Set stores a value, estimating its size with EstimateSize.
func (t *Tier) Set(key string, value any) error {
	return t.SetWithSize(key, value, EstimateSize(value))
}

// SetWithSize stores a value with an explicit size estimate, evicting
// as many entries as needed to admit it. A value larger than the tier's
// byte capacity is rejected with ErrTooLarge.
func (t *Tier) SetWithSize(key string, value any, size int64) error {
	if t.cfg.MaxBytes > 0 && size > t.cfg.MaxBytes {
		return ErrTooLarge
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if elem, ok := t.entries[key]; ok {
		e := elem.Value.(*entry)
		t.bytes += size - e.size
		e.value = value
		e.size = size
		e.insertedAt = now
		e.lastAccess = now
		t.order.MoveToFront(elem)
		t.evictLocked(-1)
		return nil
	}

	// Make room for the incoming entry before inserting it, so the
	// new entry can never be its own eviction victim.
	t.evictLocked(size)

	e := &entry{
		key:        key,
		value:      value,
		size:       size,
		insertedAt: now,
		lastAccess: now,
	}
	t.entries[key] = t.order.PushFront(e)
	t.bytes += size
	return nil
}

// Delete removes an entry if present.
func (t *Tier) Delete(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if elem, ok := t.entries[key]; ok {
		t.removeLocked(elem)
	}
}

// Len returns the current entry count.
func (t *Tier) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Stats returns a snapshot of the tier's counters and occupancy.
func (t *Tier) Stats() TierStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TierStats{
		Hits:      t.stats.hits.Load(),
		Misses:    t.stats.misses.Load(),
		Evictions: t.stats.evictions.Load(),
		Entries:   len(t.entries),
		Bytes:     t.bytes,
	}
}

func (t *Tier) expired(e *entry) bool {
	return t.cfg.TTL > 0 && t.now().Sub(e.insertedAt) > t.cfg.TTL
}

func (t *Tier) removeLocked(elem *list.Element) {
	e := elem.Value.(*entry)
	t.order.Remove(elem)
	delete(t.entries, e.key)
	t.bytes -= e.size
}

// evictLocked frees space so that one more entry of incomingSize fits
// within both bounds, evicting as many entries as that takes. Expired
// entries go first regardless of policy. Pass incomingSize -1 after a
// replacement, when no new entry is pending and only broken bounds
// need repair.
func (t *Tier) evictLocked(incomingSize int64) {
	pending := 1
	if incomingSize < 0 {
		pending = 0
		incomingSize = 0
	}
	needsRoom := func() bool {
		if t.cfg.MaxEntries > 0 && len(t.entries)+pending > t.cfg.MaxEntries {
			return true
		}
		if t.cfg.MaxBytes > 0 && t.bytes+incomingSize > t.cfg.MaxBytes {
			return true
		}
		return false
	}

	for needsRoom() && len(t.entries) > 0 {
		if elem := t.findExpiredLocked(); elem != nil {
			t.removeLocked(elem)
			t.stats.evictions.Add(1)
			continue
		}

		var victim *list.Element
		switch t.cfg.Policy {
		case PolicyLFU:
			victim = t.lfuVictimLocked()
		case PolicyAdaptive:
			victim = t.adaptiveVictimLocked()
		default:
			victim = t.order.Back()
		}
		if victim == nil {
			return
		}
		t.removeLocked(victim)
		t.stats.evictions.Add(1)
	}
}

func (t *Tier) findExpiredLocked() *list.Element {
	if t.cfg.TTL <= 0 {
		return nil
	}
	for elem := t.order.Back(); elem != nil; elem = elem.Prev() {
		if t.expired(elem.Value.(*entry)) {
			return elem
		}
	}
	return nil
}

// lfuVictimLocked returns the entry with the fewest hits, breaking
// ties toward the least recently accessed.
func (t *Tier) lfuVictimLocked() *list.Element {
	var victim *list.Element
	for elem := t.order.Back(); elem != nil; elem = elem.Prev() {
		e := elem.Value.(*entry)
		if victim == nil {
			victim = elem
			continue
		}
		v := victim.Value.(*entry)
		if e.hits < v.hits || (e.hits == v.hits && e.lastAccess.Before(v.lastAccess)) {
			victim = elem
		}
	}
	return victim
}

// adaptiveVictimLocked scores every entry by the configured blend of
// recency, frequency, and freshness (each normalized to [0, 1] across
// the current population) and returns the lowest-scored entry.
func (t *Tier) adaptiveVictimLocked() *list.Element {
	var (
		minAccess, maxAccess time.Time
		minInsert, maxInsert time.Time
		maxHits              int64
		first                = true
	)
	for elem := t.order.Front(); elem != nil; elem = elem.Next() {
		e := elem.Value.(*entry)
		if first {
			minAccess, maxAccess = e.lastAccess, e.lastAccess
			minInsert, maxInsert = e.insertedAt, e.insertedAt
			maxHits = e.hits
			first = false
			continue
		}
		if e.lastAccess.Before(minAccess) {
			minAccess = e.lastAccess
		}
		if e.lastAccess.After(maxAccess) {
			maxAccess = e.lastAccess
		}
		if e.insertedAt.Before(minInsert) {
			minInsert = e.insertedAt
		}
		if e.insertedAt.After(maxInsert) {
			maxInsert = e.insertedAt
		}
		if e.hits > maxHits {
			maxHits = e.hits
		}
	}

	accessRange := maxAccess.Sub(minAccess)
	insertRange := maxInsert.Sub(minInsert)

	var victim *list.Element
	victimScore := 0.0
	for elem := t.order.Front(); elem != nil; elem = elem.Next() {
		e := elem.Value.(*entry)

		recency := 1.0
		if accessRange > 0 {
			recency = float64(e.lastAccess.Sub(minAccess)) / float64(accessRange)
		}
		frequency := 0.0
		if maxHits > 0 {
			frequency = float64(e.hits) / float64(maxHits)
		}
		freshness := 1.0
		if insertRange > 0 {
			freshness = float64(e.insertedAt.Sub(minInsert)) / float64(insertRange)
		}

		score := t.weights.Recency*recency + t.weights.Frequency*frequency + t.weights.Freshness*freshness
		if victim == nil || score < victimScore {
			victim = elem
			victimScore = score
		}
	}
	return victim
}
