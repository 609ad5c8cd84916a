// Package json persists active layout indices in a small JSON file.
package json

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

type LayoutStore struct {
	layouts map[string]int
	file    *os.File
	lock    sync.Mutex
}

func NewLayoutStore(filename string) (*LayoutStore, error) {
	fileExists := true
	_, err := os.Stat(filename)
	if os.IsNotExist(err) {
		fileExists = false
	}

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	store := &LayoutStore{
		layouts: make(map[string]int),
		file:    file,
	}

	if fileExists {
		if err := store.load(); err != nil {
			return nil, fmt.Errorf("load: %w", err)
		}
	}

	return store, nil
}

func (s *LayoutStore) Close() error {
	return s.file.Close()
}

func (s *LayoutStore) load() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	_, err := s.file.Seek(0, 0)
	if err != nil {
		return fmt.Errorf("seek to start of file: %w", err)
	}

	dec := json.NewDecoder(s.file)
	err = dec.Decode(&s.layouts)
	if err != nil {
		return fmt.Errorf("decode json: %w", err)
	}

	return nil
}

// save rewrites the whole file. The active layout changes rarely
// enough that there is no point batching writes.
func (s *LayoutStore) save() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	_, err := s.file.Seek(0, 0)
	if err != nil {
		return fmt.Errorf("seek to start of file: %w", err)
	}

	err = s.file.Truncate(0)
	if err != nil {
		return fmt.Errorf("truncate file: %w", err)
	}

	enc := json.NewEncoder(s.file)
	err = enc.Encode(s.layouts)
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}

	return nil
}

func (s *LayoutStore) ActiveLayout(fingerprint string) (int, bool, error) {
	s.lock.Lock()
	idx, ok := s.layouts[fingerprint]
	s.lock.Unlock()
	return idx, ok, nil
}

func (s *LayoutStore) SetActiveLayout(fingerprint string, idx int) error {
	s.lock.Lock()
	s.layouts[fingerprint] = idx
	s.lock.Unlock()

	if err := s.save(); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return nil
}
