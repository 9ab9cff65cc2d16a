package scheduler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Store persists one JSON file per task under Dir, filename = task UUID
// (spec.md §4.6).
type Store struct {
	Dir string
}

// NewStore creates a Store rooted at dir. The directory is created lazily
// on the first Save call.
func NewStore(dir string) *Store {
	return &Store{Dir: dir}
}

func (s *Store) path(id uuid.UUID) string {
	return filepath.Join(s.Dir, id.String()+".json")
}

// Save persists t. Tasks with Persist==false are not written (spec.md
// §4.6: "a task's persisted state survives daemon restart only if
// persist = true").
func (s *Store) Save(t *Task) error {
	if !t.Persist {
		return nil
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("scheduler: create store dir: %w", err)
	}

	w, err := t.marshalWire()
	if err != nil {
		return err
	}
	buf, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return fmt.Errorf("scheduler: marshal task %s: %w", t.TaskID, err)
	}

	if err := os.WriteFile(s.path(t.TaskID), buf, 0o644); err != nil {
		return fmt.Errorf("scheduler: write task %s: %w", t.TaskID, err)
	}
	return nil
}

// Remove deletes a persisted task file, if any.
func (s *Store) Remove(id uuid.UUID) error {
	err := os.Remove(s.path(id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("scheduler: remove task %s: %w", id, err)
	}
	return nil
}

// RemoveAll deletes every persisted task file.
func (s *Store) RemoveAll() error {
	entries, err := os.ReadDir(s.Dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("scheduler: read store dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		if err := os.Remove(filepath.Join(s.Dir, e.Name())); err != nil {
			return fmt.Errorf("scheduler: remove %s: %w", e.Name(), err)
		}
	}
	return nil
}

// Load reads every persisted task file from Dir. Filenames that parse as
// a plain integer (legacy task IDs predating the UUID addressing scheme)
// are migrated to a deterministic UUID derived from their client ID and
// legacy integer, matching legacyTaskUUID, and rewritten under their new
// name.
func (s *Store) Load() ([]*Task, error) {
	entries, err := os.ReadDir(s.Dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scheduler: read store dir: %w", err)
	}

	var tasks []*Task
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		task, migrated, err := s.loadFile(e.Name())
		if err != nil {
			return nil, err
		}
		if migrated {
			if err := s.Save(task); err != nil {
				return nil, err
			}
			if err := os.Remove(filepath.Join(s.Dir, e.Name())); err != nil {
				return nil, fmt.Errorf("scheduler: remove legacy task file %s: %w", e.Name(), err)
			}
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (s *Store) loadFile(name string) (task *Task, migrated bool, err error) {
	buf, err := os.ReadFile(filepath.Join(s.Dir, name))
	if err != nil {
		return nil, false, fmt.Errorf("scheduler: read %s: %w", name, err)
	}

	var w wireTask
	if err := json.Unmarshal(buf, &w); err != nil {
		return nil, false, fmt.Errorf("scheduler: parse %s: %w", name, err)
	}

	stem := strings.TrimSuffix(name, ".json")
	if legacyID, err := strconv.Atoi(stem); err == nil {
		w.TaskID = legacyTaskUUID(w.ClientID, legacyID).String()
		migrated = true
	}

	task, err = unmarshalWire(w)
	if err != nil {
		return nil, false, err
	}
	return task, migrated, nil
}
