package registry

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Record is one persisted registration, keyed by device address in
// the registrations file.
type Record struct {
	UUID   string `yaml:"uuid"`
	Family string `yaml:"family"`
	Name   string `yaml:"name,omitempty"`
}

// Store reads and writes the registrations file. Writes go through a
// temp file and rename so a crash never truncates the registrations.
type Store struct {
	path string
}

// NewStore points at the registrations file; the file may not exist
// yet.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads all registrations. A missing file is an empty set.
func (s *Store) Load() (map[string]Record, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading registrations: %w", err)
	}
	records := map[string]Record{}
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parsing registrations: %w", err)
	}
	return records, nil
}

// Save replaces the registrations file.
func (s *Store) Save(records map[string]Record) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("creating registrations dir: %w", err)
	}
	data, err := yaml.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshaling registrations: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing registrations: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing registrations: %w", err)
	}
	return nil
}
