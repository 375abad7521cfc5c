// Package cachestore provides the partitioned request/response cache backing
// the fetch router. Each partition is a named Pebble store under a shared root
// directory; partitions are versioned as a unit and evicted wholesale on a
// version bump.
package cachestore

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/pebble"
)

// ContentClass names one of the four cached content classes.
type ContentClass string

const (
	ClassStatic  ContentClass = "static"
	ClassDynamic ContentClass = "dynamic"
	ClassAPI     ContentClass = "api"
	ClassImages  ContentClass = "images"
)

// PartitionName builds the on-disk partition name for a version prefix and
// content class, e.g. "v2-static".
func PartitionName(versionPrefix string, class ContentClass) string {
	return fmt.Sprintf("%s-%s", versionPrefix, class)
}

// Option configures optional behaviour for the Store.
type Option func(*Store)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *log.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Store manages cache partitions under a root directory. The zero value is not
// usable; construct with New.
type Store struct {
	root   string
	logger *log.Logger

	mu         sync.Mutex
	partitions map[string]*Partition
}

// New constructs a Store rooted at dir. Partition databases are opened lazily
// by Open.
func New(dir string, opts ...Option) *Store {
	s := &Store{
		root:       dir,
		logger:     log.New(log.Writer(), "[cachestore] ", log.LstdFlags),
		partitions: make(map[string]*Partition),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open returns the handle for the named partition, creating it if absent.
// Opening an already-open partition returns the same handle.
func (s *Store) Open(name string) (*Partition, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("cachestore: empty partition name")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.partitions[name]; ok {
		return p, nil
	}

	db, err := pebble.Open(filepath.Join(s.root, name), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("cachestore: open partition %s: %w", name, err)
	}

	p := &Partition{name: name, db: db}
	s.partitions[name] = p
	return p, nil
}

// List returns the names of every partition present on disk, opened or not,
// in sorted order.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("cachestore: list partitions: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// DeleteAllExcept removes every partition whose name does not start with the
// given version prefix. It is the sole eviction mechanism: stale caches are
// dropped wholesale at activation rather than entry by entry.
func (s *Store) DeleteAllExcept(versionPrefix string) error {
	if strings.TrimSpace(versionPrefix) == "" {
		return errors.New("cachestore: empty version prefix")
	}

	names, err := s.List()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range names {
		if strings.HasPrefix(name, versionPrefix+"-") {
			continue
		}
		if p, ok := s.partitions[name]; ok {
			if err := p.db.Close(); err != nil {
				s.logger.Printf("close stale partition %s: %v", name, err)
			}
			delete(s.partitions, name)
		}
		if err := os.RemoveAll(filepath.Join(s.root, name)); err != nil {
			return fmt.Errorf("cachestore: delete partition %s: %w", name, err)
		}
		s.logger.Printf("evicted stale partition %s", name)
	}
	return nil
}

// Close flushes and closes every open partition.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for name, p := range s.partitions {
		if err := p.db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("cachestore: close partition %s: %w", name, err)
		}
		delete(s.partitions, name)
	}
	return firstErr
}

// Partition is a single named key/value cache. At most one payload exists per
// key; Put overwrites unconditionally.
type Partition struct {
	name string
	db   *pebble.DB
}

// Name returns the partition name.
func (p *Partition) Name() string {
	return p.name
}

// Match looks up the exact key and returns the cached payload. The second
// return value reports whether an entry was found.
func (p *Partition) Match(key string) ([]byte, bool, error) {
	data, closer, err := p.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cachestore: get %s/%s: %w", p.name, key, err)
	}
	defer closer.Close()

	payload := make([]byte, len(data))
	copy(payload, data)
	return payload, true, nil
}

// Put stores the payload under key, replacing any previous payload. A later
// network response always wins over an earlier one for the same key.
func (p *Partition) Put(key string, payload []byte) error {
	if err := p.db.Set([]byte(key), payload, pebble.Sync); err != nil {
		return fmt.Errorf("cachestore: set %s/%s: %w", p.name, key, err)
	}
	return nil
}
