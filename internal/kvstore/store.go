// Package kvstore persists small string values by key
package kvstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store is a string key-value capability
type Store interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

// File keeps all keys in one JSON document on disk
type File struct {
	filePath string
	data     map[string]string
	mu       sync.RWMutex
}

// NewFile opens the store at filePath. A missing file is an empty store; it
// is created on the first Set.
func NewFile(filePath string) (*File, error) {
	f := &File{
		filePath: filePath,
		data:     make(map[string]string),
	}

	if err := f.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load store: %w", err)
		}
	}

	return f, nil
}

// Get returns the value for key
func (f *File) Get(key string) (string, bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	v, ok := f.data[key]
	return v, ok, nil
}

// Set stores value under key and writes the file
func (f *File) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev, existed := f.data[key]
	f.data[key] = value

	if err := f.save(); err != nil {
		if existed {
			f.data[key] = prev
		} else {
			delete(f.data, key)
		}
		return fmt.Errorf("failed to save store: %w", err)
	}
	return nil
}

func (f *File) load() error {
	data, err := os.ReadFile(f.filePath)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, &f.data)
}

func (f *File) save() error {
	data, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(f.filePath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	tmp := f.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, f.filePath)
}

// Memory is an in-process Store
type Memory struct {
	data map[string]string
	mu   sync.RWMutex
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

// Get returns the value for key
func (m *Memory) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	return v, ok, nil
}

// Set stores value under key
func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = value
	return nil
}
