package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// pendingFile is the local list of items waiting on processing. It
// satisfies gate.PendingCache.
type pendingFile struct {
	path string
	mu   sync.Mutex
	err  error
}

func newPendingFile(path string) *pendingFile {
	return &pendingFile{path: path}
}

func (p *pendingFile) load() (map[string]string, error) {
	items := map[string]string{}
	raw, err := os.ReadFile(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return items, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read pending list: %w", err)
	}
	if len(raw) == 0 {
		return items, nil
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode pending list: %w", err)
	}
	return items, nil
}

func (p *pendingFile) save(items map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("create pending dir: %w", err)
	}
	raw, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return err
	}
	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write pending list: %w", err)
	}
	return os.Rename(tmp, p.path)
}

// Remember records id with a short note, usually the uploaded file name.
func (p *pendingFile) Remember(id, note string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	items, err := p.load()
	if err != nil {
		return err
	}
	items[id] = note
	return p.save(items)
}

func (p *pendingFile) Forget(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	items, err := p.load()
	if err != nil {
		p.err = err
		return
	}
	if _, ok := items[id]; !ok {
		return
	}
	delete(items, id)
	p.err = p.save(items)
}

// Err returns the last error Forget swallowed.
func (p *pendingFile) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

type pendingEntry struct {
	ID   string
	Note string
}

func (p *pendingFile) List() ([]pendingEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	items, err := p.load()
	if err != nil {
		return nil, err
	}
	out := make([]pendingEntry, 0, len(items))
	for id, note := range items {
		out = append(out, pendingEntry{ID: id, Note: note})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
