// Package memory provides an in-memory audit trail repository for tests and
// demos.
package memory

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jmcleod/ironshield/internal/util"
	"github.com/jmcleod/ironshield/storage"
)

// Store implements storage.Repository in process memory.
type Store struct {
	mu      sync.RWMutex
	records map[string][]byte
}

var _ storage.Repository = (*Store)(nil)

// NewRepository returns an empty in-memory Repository.
func NewRepository() *Store {
	return &Store{records: make(map[string][]byte)}
}

func key(recordType, recordID string) string {
	return recordType + ":" + recordID
}

func (s *Store) Put(recordType, recordID string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key(recordType, recordID)] = util.CopyBytes(data)
	return nil
}

func (s *Store) Get(recordType, recordID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.records[key(recordType, recordID)]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", recordType, recordID, storage.ErrNotFound)
	}
	return util.CopyBytes(data), nil
}

func (s *Store) List(recordType string) ([]string, error) {
	prefix := recordType + ":"
	s.mu.RLock()
	var ids []string
	for k := range s.records {
		if strings.HasPrefix(k, prefix) {
			ids = append(ids, k[len(prefix):])
		}
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) Delete(recordType, recordID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(recordType, recordID)
	if _, ok := s.records[k]; !ok {
		return fmt.Errorf("%s/%s: %w", recordType, recordID, storage.ErrNotFound)
	}
	delete(s.records, k)
	return nil
}
