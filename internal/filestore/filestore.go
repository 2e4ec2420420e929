// Package filestore keeps project selections in YAML files, one per
// project, for the indicatorctl CLI. Every read and write holds an
// advisory lock on a sibling lock file so concurrent CLI runs do not
// interleave.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/indicators/internal/core"
)

// ErrLocked is returned when the lock of a state file is not acquired in
// time.
var ErrLocked = errors.New("state file locked")

const (
	// DefaultLockTimeout bounds how long a call waits for the lock.
	DefaultLockTimeout = 5 * time.Second
	lockRetryDelay     = 100 * time.Millisecond
	// MaxEvents is the number of events kept per project file.
	MaxEvents = 500
)

// document is the on-disk layout of one project.
type document struct {
	Sectors []string                     `yaml:"sectors,omitempty"`
	Layers  map[string]core.SelectionMap `yaml:"layers,omitempty"`
	Events  []core.SelectionEvent        `yaml:"events,omitempty"`
}

// Store is a core.SelectionStore over a directory of YAML files.
type Store struct {
	dir         string
	lockTimeout time.Duration
}

// New creates a store in dir, creating the directory if needed.
func New(dir string, lockTimeout time.Duration) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &Store{dir: dir, lockTimeout: lockTimeout}, nil
}

// Path returns the state file of a project.
func (s *Store) Path(projectID uuid.UUID) string {
	return filepath.Join(s.dir, projectID.String()+".yaml")
}

func (s *Store) lock(ctx context.Context, projectID uuid.UUID) (func(), error) {
	lockPath := s.Path(projectID) + ".lock"
	l := flock.New(lockPath)

	ctx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	locked, err := l.TryLockContext(ctx, lockRetryDelay)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("lock %s: %w", lockPath, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, lockPath)
	}
	return func() { _ = l.Unlock() }, nil
}

func (s *Store) read(projectID uuid.UUID) (*document, error) {
	doc := &document{Layers: make(map[string]core.SelectionMap)}

	data, err := os.ReadFile(s.Path(projectID))
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}
	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("decode state %s: %w", s.Path(projectID), err)
	}
	if doc.Layers == nil {
		doc.Layers = make(map[string]core.SelectionMap)
	}
	return doc, nil
}

// write replaces the state file through a temporary file and rename.
func (s *Store) write(projectID uuid.UUID, doc *document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, projectID.String()+".*.tmp")
	if err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path(projectID)); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

// update runs fn on the project's document under the lock and writes the
// result back.
func (s *Store) update(ctx context.Context, projectID uuid.UUID, fn func(doc *document)) error {
	unlock, err := s.lock(ctx, projectID)
	if err != nil {
		return err
	}
	defer unlock()

	doc, err := s.read(projectID)
	if err != nil {
		return err
	}
	fn(doc)
	return s.write(projectID, doc)
}

func (s *Store) LoadProject(ctx context.Context, projectID uuid.UUID) (core.ProjectState, error) {
	unlock, err := s.lock(ctx, projectID)
	if err != nil {
		return core.ProjectState{}, err
	}
	defer unlock()

	doc, err := s.read(projectID)
	if err != nil {
		return core.ProjectState{}, err
	}
	return core.ProjectState{Sectors: doc.Sectors, Layers: doc.Layers}, nil
}

func (s *Store) SaveSectors(ctx context.Context, projectID uuid.UUID, sectorIDs []string) error {
	return s.update(ctx, projectID, func(doc *document) {
		doc.Sectors = slices.Clone(sectorIDs)
	})
}

func (s *Store) SaveSelection(ctx context.Context, projectID uuid.UUID, layer string, selection core.SelectionMap) error {
	return s.update(ctx, projectID, func(doc *document) {
		doc.Layers[layer] = selection
	})
}

// RecordEvent appends event, dropping the oldest beyond MaxEvents.
func (s *Store) RecordEvent(ctx context.Context, event core.SelectionEvent) error {
	return s.update(ctx, event.ProjectID, func(doc *document) {
		doc.Events = append(doc.Events, event)
		if over := len(doc.Events) - MaxEvents; over > 0 {
			doc.Events = doc.Events[over:]
		}
	})
}

func (s *Store) ListEvents(ctx context.Context, projectID uuid.UUID, limit int) ([]core.SelectionEvent, error) {
	unlock, err := s.lock(ctx, projectID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	doc, err := s.read(projectID)
	if err != nil {
		return nil, err
	}
	out := make([]core.SelectionEvent, 0, min(limit, len(doc.Events)))
	for i := len(doc.Events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, doc.Events[i])
	}
	return out, nil
}

var _ core.SelectionStore = (*Store)(nil)
