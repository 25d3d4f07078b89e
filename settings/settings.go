// Package settings persists the last confirmed HC-06 configuration.
//
// The store holds exactly one record, id 1. It is created with factory
// defaults on first Load and is only ever replaced wholesale by Save, which
// callers invoke after the device has confirmed a change.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"i4.energy/across/hc06ctl/hc06"
)

// RecordID is the key of the single device record.
const RecordID = 1

const fileVersion = 1

type document struct {
	Version int                          `json:"version"`
	Records map[string]hc06.DeviceConfig `json:"records"`
}

// FileStore keeps the device record in a JSON file.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore returns a store backed by path. The file and its directory
// are created on first Load.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file.
func (s *FileStore) Path() string {
	return s.path
}

// Load returns the device record, writing factory defaults if the file or
// the record does not exist yet.
func (s *FileStore) Load(ctx context.Context) (hc06.DeviceConfig, error) {
	if err := ctx.Err(); err != nil {
		return hc06.DeviceConfig{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return hc06.DeviceConfig{}, err
	}
	key := strconv.Itoa(RecordID)
	if cfg, ok := doc.Records[key]; ok {
		return cfg, nil
	}

	cfg := hc06.DefaultDeviceConfig()
	doc.Records[key] = cfg
	if err := s.write(doc); err != nil {
		return hc06.DeviceConfig{}, err
	}
	return cfg, nil
}

// Save replaces the device record.
func (s *FileStore) Save(ctx context.Context, cfg hc06.DeviceConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	doc.Records[strconv.Itoa(RecordID)] = cfg
	return s.write(doc)
}

func (s *FileStore) read() (document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return document{Version: fileVersion, Records: map[string]hc06.DeviceConfig{}}, nil
		}
		return document{}, fmt.Errorf("read settings file: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return document{}, fmt.Errorf("parse settings file %s: %w", s.path, err)
	}
	if doc.Records == nil {
		doc.Records = map[string]hc06.DeviceConfig{}
	}
	if doc.Version == 0 {
		doc.Version = fileVersion
	}
	return doc, nil
}

func (s *FileStore) write(doc document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create settings directory: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temporary settings file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temporary settings file: %w", err)
	}
	return nil
}

// MemoryStore keeps the record in memory. Used for dry runs and tests.
type MemoryStore struct {
	mu    sync.Mutex
	cfg   hc06.DeviceConfig
	saved bool
	saves int
}

// NewMemoryStore returns an empty store; Load yields factory defaults.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(ctx context.Context) (hc06.DeviceConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.saved {
		s.cfg = hc06.DefaultDeviceConfig()
		s.saved = true
	}
	return s.cfg, nil
}

func (s *MemoryStore) Save(ctx context.Context, cfg hc06.DeviceConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.saved = true
	s.saves++
	return nil
}

// Saves returns the number of successful Save calls.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
