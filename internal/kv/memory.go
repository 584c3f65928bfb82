package kv

import (
	"context"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/disgoorg/snowflake/v2"
)

// MemoryStore is a process-local Store used in tests and as a fallback when
// no persistence backend is configured. Documents are kept as serialized
// JSON so Load/Save round-trips behave identically to the real backends.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[snowflake.ID]map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[snowflake.ID]map[string][]byte),
	}
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context, guildID snowflake.ID, key string, out any) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	guild, ok := s.data[guildID]
	if !ok {
		return false, nil
	}

	raw, ok := guild[key]
	if !ok {
		return false, nil
	}

	if err := sonic.Unmarshal(raw, out); err != nil {
		return false, err
	}

	return true, nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, guildID snowflake.ID, key string, value any) error {
	raw, err := sonic.Marshal(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	guild, ok := s.data[guildID]
	if !ok {
		guild = make(map[string][]byte)
		s.data[guildID] = guild
	}

	guild[key] = raw

	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, guildID snowflake.ID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if guild, ok := s.data[guildID]; ok {
		delete(guild, key)
	}

	return nil
}

// Keys implements Store.
func (s *MemoryStore) Keys(_ context.Context, guildID snowflake.ID, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string

	for key := range s.data[guildID] {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}

	return keys, nil
}
