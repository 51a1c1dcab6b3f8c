package i18n

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Preferences is a small JSON key/value file, the session runtime's local storage.
// An empty path keeps values in memory only.
type Preferences struct {
	path string

	mu     sync.Mutex
	values map[string]string
	loaded bool
}

// NewPreferences returns preferences persisted at path.
func NewPreferences(path string) *Preferences {
	return &Preferences{path: path}
}

// Get returns the value for key and whether it is set.
func (p *Preferences) Get(key string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.loadLocked(); err != nil {
		return "", false, err
	}
	v, ok := p.values[key]
	return v, ok, nil
}

// Set stores key and rewrites the file.
func (p *Preferences) Set(key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.loadLocked(); err != nil {
		return err
	}
	p.values[key] = value
	return p.saveLocked()
}

func (p *Preferences) loadLocked() error {
	if p.loaded {
		return nil
	}
	p.values = map[string]string{}
	p.loaded = true
	if p.path == "" {
		return nil
	}

	data, err := os.ReadFile(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read preferences: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &p.values); err != nil {
		return fmt.Errorf("parse preferences %s: %w", p.path, err)
	}
	return nil
}

func (p *Preferences) saveLocked() error {
	if p.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(p.values, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("create preferences dir: %w", err)
	}

	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}
	return os.Rename(tmp, p.path)
}
