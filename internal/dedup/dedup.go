// Package dedup maintains a persistent fixed-capacity ring of message
// identities so a message is forwarded at most once, even across power
// loss. The ring lives in the key-value store as one string key per slot
// plus an integer cursor; the oldest entry is overwritten first.
package dedup

import (
	"fmt"
	"log"

	"sms-gateway/internal/store"
)

// Store keys within the namespace.
const (
	keyCursor    = "ring_idx"
	keySlotFmt   = "id_%d"
	Namespace    = "sms_dedup"
	DefaultRingN = 5
)

// Store is the deduplication ring. All mutation happens synchronously on
// the calling goroutine; the host loop is single-threaded.
type Store struct {
	kv       store.KV
	capacity int
	ids      []string
	cursor   int
	count    int
	logger   *log.Logger
}

// Open loads the ring from the key-value store. Missing keys mean a fresh
// ring (empty slots, cursor 0). An unreadable store is a hard error: the
// gateway cannot guarantee duplicate suppression without it and must not
// start ingesting.
func Open(kv store.KV, capacity int, logger *log.Logger) (*Store, error) {
	if capacity <= 0 {
		capacity = DefaultRingN
	}

	s := &Store{
		kv:       kv,
		capacity: capacity,
		ids:      make([]string, capacity),
		logger:   logger,
	}

	cursor, err := kv.GetInt(keyCursor)
	if err != nil {
		return nil, fmt.Errorf("dedup store unavailable: %v", err)
	}
	// A corrupt stored cursor must still land inside the ring; Go's %
	// keeps the sign of a negative dividend.
	s.cursor = ((cursor % capacity) + capacity) % capacity

	for i := 0; i < capacity; i++ {
		id, err := kv.GetString(fmt.Sprintf(keySlotFmt, i))
		if err != nil {
			return nil, fmt.Errorf("dedup store unavailable: %v", err)
		}
		s.ids[i] = id
		if id != "" {
			s.count++
		}
	}

	logger.Printf("[SMS] dedup ring loaded: %d stored IDs, cursor %d", s.count, s.cursor)
	return s, nil
}

// IsDuplicate reports whether id matches any occupied slot.
func (s *Store) IsDuplicate(id string) bool {
	for i, stored := range s.ids {
		if stored != "" && stored == id {
			s.logger.Printf("[SMS] duplicate detected: %s (slot %d)", id, i)
			return true
		}
	}
	return false
}

// Insert writes id at the cursor, advances the cursor modulo capacity and
// persists the whole ring before returning. A nil return guarantees the
// record survives power loss. The slots and the cursor are separate keys,
// so a crash mid-save can leave a partially updated ring; the window is
// bounded to one insert. A write failure is returned, not retried.
func (s *Store) Insert(id string) error {
	slot := s.cursor
	s.ids[slot] = id
	s.cursor = (s.cursor + 1) % s.capacity
	if s.count < s.capacity {
		s.count++
	}

	if err := s.save(); err != nil {
		return fmt.Errorf("failed to persist dedup ring: %v", err)
	}

	s.logger.Printf("[SMS] persisted ID %s (slot %d, total %d)", id, slot, s.count)
	return nil
}

// OccupiedCount returns the number of occupied slots, for diagnostics.
func (s *Store) OccupiedCount() int {
	return s.count
}

func (s *Store) save() error {
	if err := s.kv.PutInt(keyCursor, s.cursor); err != nil {
		return err
	}
	for i, id := range s.ids {
		if err := s.kv.PutString(fmt.Sprintf(keySlotFmt, i), id); err != nil {
			return err
		}
	}
	return nil
}
