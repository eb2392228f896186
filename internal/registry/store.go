package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// ErrNotFound is returned when a task id has no registry record.
var ErrNotFound = errors.New("task not found in registry")

// CorruptionError reports a registry document that could not be parsed or
// failed schema validation. Corruption is always surfaced to the operator;
// the store never discards or resets a damaged registry on its own.
type CorruptionError struct {
	Path   string
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *CorruptionError) Error() string {
	return fmt.Sprintf("registry %s is corrupt: %s", e.Path, e.Reason)
}

// Unwrap returns the underlying cause, if any.
func (e *CorruptionError) Unwrap() error { return e.Err }

// Store provides load/save/atomic-update access to one registry file. It is
// the only path to the document: no module-level singleton, both the
// scheduler and the watchdog receive a Store explicitly.
type Store struct {
	path      string
	namespace string
}

// NewStore returns a Store for the registry document at path. An empty
// namespace falls back to DefaultNamespace.
func NewStore(path, namespace string) *Store {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Store{path: path, namespace: namespace}
}

// Path returns the registry file location.
func (s *Store) Path() string { return s.path }

// Namespace returns the namespace prefix applied to task ids.
func (s *Store) Namespace() string { return s.namespace }

// Key returns the namespaced registry key for a task id. Ids that already
// carry a namespace separator pass through unchanged.
func (s *Store) Key(taskID string) string {
	if strings.Contains(taskID, ":") {
		return taskID
	}
	return NamespacedID(s.namespace, taskID)
}

// Load reads the registry document. A missing file yields an empty document;
// malformed JSON or schema-invalid records yield a CorruptionError.
func (s *Store) Load() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewDocument(), nil
		}
		return nil, fmt.Errorf("reading registry: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &CorruptionError{Path: s.path, Reason: "malformed JSON", Err: err}
	}
	if doc.Version != SchemaVersion {
		return nil, &CorruptionError{
			Path:   s.path,
			Reason: fmt.Sprintf("unsupported schema version %d", doc.Version),
		}
	}
	if doc.Tasks == nil {
		doc.Tasks = make(map[string]ProcessRecord)
	}
	for id, rec := range doc.Tasks {
		if err := rec.Validate(); err != nil {
			return nil, &CorruptionError{
				Path:   s.path,
				Reason: fmt.Sprintf("record %s: %v", id, err),
				Err:    err,
			}
		}
	}
	return &doc, nil
}

// Save atomically writes the document: temp file in the registry directory,
// fsync, rename. Registry files are private to the owner (0600).
func (s *Store) Save(doc *Document) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("creating registry directory: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling registry: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".tmp-registry-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("renaming into place: %w", err)
	}
	return nil
}

// Update runs fn against a freshly loaded document and saves the result,
// all under an exclusive advisory lock on a sibling .lock file. The re-read
// under the lock picks up writes from other processes since our last load.
func (s *Store) Update(fn func(*Document) error) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("creating registry directory: %w", err)
	}

	lock, err := os.OpenFile(s.lockPath(), os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("opening registry lock: %w", err)
	}
	defer lock.Close()

	if err := unix.Flock(int(lock.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("acquiring registry lock: %w", err)
	}
	defer unix.Flock(int(lock.Fd()), unix.LOCK_UN)

	doc, err := s.Load()
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	return s.Save(doc)
}

func (s *Store) lockPath() string {
	return s.path + ".lock"
}

// ----- Record operations -----

// Register persists a new record under the namespaced task id. Re-registering
// an existing id overwrites it: at-least-once spawn semantics are acceptable.
func (s *Store) Register(taskID string, rec ProcessRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("refusing to register invalid record for %s: %w", taskID, err)
	}
	return s.Update(func(doc *Document) error {
		doc.Tasks[s.Key(taskID)] = rec
		return nil
	})
}

// Get returns the record for a task id.
func (s *Store) Get(taskID string) (ProcessRecord, error) {
	doc, err := s.Load()
	if err != nil {
		return ProcessRecord{}, err
	}
	rec, ok := doc.Tasks[s.Key(taskID)]
	if !ok {
		return ProcessRecord{}, fmt.Errorf("%w: %s", ErrNotFound, s.Key(taskID))
	}
	return rec, nil
}

// MarkCompleted transitions a record to completed. Terminal.
func (s *Store) MarkCompleted(taskID string) error {
	return s.transition(taskID, StatusCompleted)
}

// MarkFailed transitions a record to failed. Terminal.
func (s *Store) MarkFailed(taskID string) error {
	return s.transition(taskID, StatusFailed)
}

func (s *Store) transition(taskID string, to Status) error {
	key := s.Key(taskID)
	return s.Update(func(doc *Document) error {
		rec, ok := doc.Tasks[key]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		now := time.Now().UTC()
		rec.Status = to
		rec.CompletedAt = &now
		doc.Tasks[key] = rec
		return nil
	})
}

// Cleanup removes terminal records older than the cutoff and returns the
// removed keys, sorted. It is operator-triggered only; nothing in the
// scheduler or watchdog calls it automatically.
func (s *Store) Cleanup(olderThan time.Duration) ([]string, error) {
	var removed []string
	err := s.Update(func(doc *Document) error {
		cutoff := time.Now().UTC().Add(-olderThan)
		for id, rec := range doc.Tasks {
			if !rec.Status.IsTerminal() {
				continue
			}
			stamp := rec.StartedAt
			if rec.CompletedAt != nil {
				stamp = *rec.CompletedAt
			}
			if stamp.Before(cutoff) {
				delete(doc.Tasks, id)
				removed = append(removed, id)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(removed)
	return removed, nil
}

// ----- Path validation -----

// forbiddenPrefixes are system directories a registry file may never live in.
var forbiddenPrefixes = []string{"/etc", "/root", "/sys", "/proc", "/boot", "/dev"}

// ValidatePath checks a user-supplied registry path: no parent-directory
// references, no system directories, and the resolved location must sit
// inside the current working directory. Returns the absolute path.
func ValidatePath(path string) (string, error) {
	if strings.Contains(path, "..") {
		return "", fmt.Errorf("registry path must not contain parent directory references")
	}

	abs := path
	if !filepath.IsAbs(abs) {
		cwd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		abs = filepath.Join(cwd, abs)
	}

	// Resolve symlinks where the file already exists; for a file yet to be
	// created, the parent directory must exist.
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		parent := filepath.Dir(abs)
		if _, statErr := os.Stat(parent); statErr != nil {
			return "", fmt.Errorf("registry path parent directory does not exist: %s", parent)
		}
		resolved = abs
	}

	for _, prefix := range forbiddenPrefixes {
		if strings.HasPrefix(resolved, prefix) {
			return "", fmt.Errorf("registry path must not be in system directory %s", prefix)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	if resolvedCwd, err := filepath.EvalSymlinks(cwd); err == nil {
		cwd = resolvedCwd
	}
	if !strings.HasPrefix(resolved, cwd+string(filepath.Separator)) && resolved != cwd {
		return "", fmt.Errorf("registry path must be within the working directory %s", cwd)
	}

	return resolved, nil
}
