package content

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps pages in maps.
type MemoryStore struct {
	mu      sync.RWMutex
	pages   map[string]Page
	sources map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pages:   make(map[string]Page),
		sources: make(map[string]string),
	}
}

func (s *MemoryStore) Page(_ context.Context, title string) (Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pages[NormalizeTitle(title)]
	if !ok {
		return Page{}, fmt.Errorf("%w: %s", ErrNotFound, title)
	}
	return p, nil
}

func (s *MemoryStore) Source(_ context.Context, id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.sources[id]
	if !ok {
		return "", fmt.Errorf("%w: id %s", ErrNotFound, id)
	}
	return src, nil
}

func (s *MemoryStore) Put(_ context.Context, title, text string) (Page, error) {
	p := NewPage(title, text)
	s.mu.Lock()
	s.pages[p.Title] = p
	s.sources[p.ID] = text
	s.mu.Unlock()
	return p, nil
}

// Titles lists the stored titles in order.
func (s *MemoryStore) Titles() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	titles := make([]string, 0, len(s.pages))
	for t := range s.pages {
		titles = append(titles, t)
	}
	sort.Strings(titles)
	return titles
}
