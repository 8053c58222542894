// Package filestore persists the simulated ledger, trade history, decision
// log and audit trail as JSON documents in a local directory, so one-shot
// cycles keep their state without a database. Every write replaces its
// document through a temporary file and a rename.
package filestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

// Document names under the data directory.
const (
	FileLedger    = "portfolio_state.json"
	FileTrades    = "trade_history.json"
	FileDecisions = "agent_decision_log.json"
	FileAudit     = "audit_log.json"
)

// Client owns the data directory. Stores created from the same client
// share its per-document locks.
type Client struct {
	dir  string
	mu   sync.Mutex
	docs map[string]*sync.Mutex
}

// New creates dir when missing.
func New(dir string) (*Client, error) {
	if dir == "" {
		return nil, errors.New("filestore: empty directory")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("filestore: create %s: %w", dir, err)
	}
	return &Client{dir: dir, docs: map[string]*sync.Mutex{}}, nil
}

// Dir returns the data directory.
func (c *Client) Dir() string { return c.dir }

func (c *Client) lock(name string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.docs[name]
	if !ok {
		m = &sync.Mutex{}
		c.docs[name] = m
	}
	return m
}

// document is one JSON file holding a value of type T.
type document[T any] struct {
	mu   *sync.Mutex
	path string
}

func newDocument[T any](c *Client, name string) document[T] {
	return document[T]{mu: c.lock(name), path: filepath.Join(c.dir, name)}
}

// read decodes the file. found is false when it does not exist yet.
func (d document[T]) read() (v T, found bool, err error) {
	data, err := os.ReadFile(d.path)
	if errors.Is(err, fs.ErrNotExist) {
		return v, false, nil
	}
	if err != nil {
		return v, false, fmt.Errorf("filestore: read %s: %w", filepath.Base(d.path), err)
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, false, fmt.Errorf("filestore: decode %s: %w", filepath.Base(d.path), err)
	}
	return v, true, nil
}

// write replaces the file atomically.
func (d document[T]) write(v T) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("filestore: encode %s: %w", filepath.Base(d.path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(d.path), filepath.Base(d.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("filestore: temp file: %w", err)
	}
	name := tmp.Name()
	defer os.Remove(name) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("filestore: write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("filestore: sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("filestore: close %s: %w", name, err)
	}
	if err := os.Rename(name, d.path); err != nil {
		return fmt.Errorf("filestore: replace %s: %w", filepath.Base(d.path), err)
	}
	return nil
}

// view runs fn on the stored value under the document lock.
func (d document[T]) view(fn func(v T, found bool) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, found, err := d.read()
	if err != nil {
		return err
	}
	return fn(v, found)
}

// update lets fn modify the stored value and writes it back when fn
// reports a change.
func (d document[T]) update(fn func(v *T, found bool) (bool, error)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, found, err := d.read()
	if err != nil {
		return err
	}
	changed, err := fn(&v, found)
	if err != nil || !changed {
		return err
	}
	return d.write(v)
}

func inRange(t time.Time, opts domain.ListOpts) bool {
	if opts.Since != nil && t.Before(*opts.Since) {
		return false
	}
	if opts.Until != nil && t.After(*opts.Until) {
		return false
	}
	return true
}

func paginate[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return items[:0]
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	return items
}
