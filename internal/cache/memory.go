package cache

import (
	"container/list"
	"sync"
	"time"
)

type memoryEntry struct {
	hash      string
	entry     Entry
	expiresAt time.Time
}

// memoryStore is an LRU map with per-entry TTL. Expired entries are dropped
// lazily on read and swept when an insert needs room.
type memoryStore struct {
	mu         sync.Mutex
	maxEntries int
	ttl        time.Duration
	order      *list.List // front = most recent
	items      map[string]*list.Element
}

func newMemoryStore(maxEntries int, ttl time.Duration) *memoryStore {
	if maxEntries <= 0 {
		maxEntries = 500
	}
	return &memoryStore{
		maxEntries: maxEntries,
		ttl:        ttl,
		order:      list.New(),
		items:      make(map[string]*list.Element),
	}
}

func (s *memoryStore) get(hash string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[hash]
	if !ok {
		return Entry{}, false
	}
	me := el.Value.(*memoryEntry)
	if time.Now().After(me.expiresAt) {
		s.order.Remove(el)
		delete(s.items, hash)
		return Entry{}, false
	}
	s.order.MoveToFront(el)
	return me.entry, true
}

func (s *memoryStore) put(hash string, entry Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.items[hash]; ok {
		me := el.Value.(*memoryEntry)
		me.entry = entry
		me.expiresAt = time.Now().Add(s.ttl)
		s.order.MoveToFront(el)
		return
	}

	for s.order.Len() >= s.maxEntries {
		oldest := s.order.Back()
		if oldest == nil {
			break
		}
		s.order.Remove(oldest)
		delete(s.items, oldest.Value.(*memoryEntry).hash)
	}

	el := s.order.PushFront(&memoryEntry{
		hash:      hash,
		entry:     entry,
		expiresAt: time.Now().Add(s.ttl),
	})
	s.items[hash] = el
}

func (s *memoryStore) delete(hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.items[hash]; ok {
		s.order.Remove(el)
		delete(s.items, hash)
	}
}

func (s *memoryStore) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order.Init()
	s.items = make(map[string]*list.Element)
}

func (s *memoryStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}
