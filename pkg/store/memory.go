package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"echoclicker/internal/models"
)

type MemoryStore struct {
	mu      sync.RWMutex
	scripts map[string]models.Script
	nextID  uint
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{scripts: make(map[string]models.Script), now: time.Now}
}

func (s *MemoryStore) Save(ctx context.Context, name, text string) (models.Script, error) {
	if err := validateName(name); err != nil {
		return models.Script{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	script, ok := s.scripts[name]
	if !ok {
		s.nextID++
		script = models.Script{Name: name}
		script.ID = s.nextID
		script.CreatedAt = now
	}
	script.Text = text
	script.UpdatedAt = now
	s.scripts[name] = script
	return script, nil
}

func (s *MemoryStore) Load(ctx context.Context, name string) (models.Script, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	script, ok := s.scripts[name]
	if !ok {
		return models.Script{}, notFound(name)
	}
	return script, nil
}

func (s *MemoryStore) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.scripts[name]; !ok {
		return notFound(name)
	}
	delete(s.scripts, name)
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]models.Script, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]models.Script, 0, len(s.scripts))
	for _, script := range s.scripts {
		list = append(list, script)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

func (s *MemoryStore) Close() error { return nil }
