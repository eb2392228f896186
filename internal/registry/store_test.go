package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "process_registry.json"), "swell")
}

func nativeRecord(pid int) ProcessRecord {
	return ProcessRecord{
		Mode:      ModeNative,
		Command:   "worker --task",
		Role:      "developer",
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
		Native:    &NativeInfo{PID: pid, PGID: pid, StartTime: "Mon Aug 24 10:00:00 2026"},
	}
}

func containerRecord(id string) ProcessRecord {
	return ProcessRecord{
		Mode:      ModeContainer,
		Command:   "worker --task",
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
		Container: &ContainerInfo{
			ID:     id,
			Name:   "swell-" + id,
			Limits: Limits{Memory: "512m", CPU: "1.0"},
		},
	}
}

func TestLoad_MissingFileIsEmptyDocument(t *testing.T) {
	s := newTestStore(t)

	doc, err := s.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if doc.Version != SchemaVersion {
		t.Errorf("Version = %d, want %d", doc.Version, SchemaVersion)
	}
	if len(doc.Tasks) != 0 {
		t.Errorf("Tasks = %v, want empty", doc.Tasks)
	}
}

func TestRegisterAndGet(t *testing.T) {
	s := newTestStore(t)

	if err := s.Register("T001", nativeRecord(1234)); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	rec, err := s.Get("T001")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if rec.Native == nil || rec.Native.PID != 1234 {
		t.Errorf("record = %+v, want pid 1234", rec)
	}

	// The on-disk key is namespaced.
	doc, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := doc.Tasks["swell:T001"]; !ok {
		t.Errorf("keys = %v, want swell:T001", doc.Tasks)
	}
}

func TestRegister_OverwritesExisting(t *testing.T) {
	s := newTestStore(t)

	if err := s.Register("T001", nativeRecord(1000)); err != nil {
		t.Fatal(err)
	}
	if err := s.Register("T001", nativeRecord(2000)); err != nil {
		t.Fatal(err)
	}

	rec, err := s.Get("T001")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Native.PID != 2000 {
		t.Errorf("pid = %d, want 2000 after re-register", rec.Native.PID)
	}
}

func TestRegister_RejectsInvalidRecord(t *testing.T) {
	s := newTestStore(t)

	bad := nativeRecord(1234)
	bad.Native = nil
	if err := s.Register("T001", bad); err == nil {
		t.Error("expected error for native record without native info")
	}

	mixed := nativeRecord(1234)
	mixed.Container = &ContainerInfo{ID: "abc"}
	if err := s.Register("T002", mixed); err == nil {
		t.Error("expected error for record with both variants")
	}
}

func TestMarkCompleted_IsTerminal(t *testing.T) {
	s := newTestStore(t)

	if err := s.Register("T001", nativeRecord(1234)); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkCompleted("T001"); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}

	rec, err := s.Get("T001")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != StatusCompleted {
		t.Errorf("status = %s, want completed", rec.Status)
	}
	if rec.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}

	if err := s.MarkFailed("T999"); !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkFailed on unknown id = %v, want ErrNotFound", err)
	}
}

func TestLoad_CorruptJSONIsReported(t *testing.T) {
	s := newTestStore(t)
	if err := os.WriteFile(s.Path(), []byte("{broken"), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := s.Load()
	var cerr *CorruptionError
	if !errors.As(err, &cerr) {
		t.Fatalf("error = %v, want *CorruptionError", err)
	}

	// Corruption must never be silently reset: the file stays untouched.
	data, readErr := os.ReadFile(s.Path())
	if readErr != nil || string(data) != "{broken" {
		t.Errorf("corrupt registry was modified: %q, %v", data, readErr)
	}
}

func TestLoad_SchemaInvalidRecordIsCorruption(t *testing.T) {
	s := newTestStore(t)
	doc := `{"version": 1, "tasks": {"swell:T001": {"mode": "native", "status": "running", "started_at": "2026-01-01T00:00:00Z"}}}`
	if err := os.WriteFile(s.Path(), []byte(doc), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := s.Load()
	var cerr *CorruptionError
	if !errors.As(err, &cerr) {
		t.Fatalf("error = %v, want *CorruptionError for missing native info", err)
	}
}

func TestLoad_UnsupportedVersionIsCorruption(t *testing.T) {
	s := newTestStore(t)
	if err := os.WriteFile(s.Path(), []byte(`{"version": 99, "tasks": {}}`), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := s.Load()
	var cerr *CorruptionError
	if !errors.As(err, &cerr) {
		t.Fatalf("error = %v, want *CorruptionError for version 99", err)
	}
}

func TestSave_FileModeIsPrivate(t *testing.T) {
	s := newTestStore(t)
	if err := s.Register("T001", containerRecord("abc123")); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("registry mode = %o, want 0600", perm)
	}
}

func TestUpdate_SeesConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	a := NewStore(path, "swell")
	b := NewStore(path, "swell")

	if err := a.Register("T001", nativeRecord(1)); err != nil {
		t.Fatal(err)
	}
	if err := b.Register("T002", nativeRecord(2)); err != nil {
		t.Fatal(err)
	}

	doc, err := a.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Tasks) != 2 {
		t.Errorf("tasks = %v, want both registrations preserved", doc.Tasks)
	}
}

func TestCleanup_RemovesOnlyOldTerminalRecords(t *testing.T) {
	s := newTestStore(t)

	old := time.Now().UTC().Add(-72 * time.Hour)
	oldDone := nativeRecord(1)
	oldDone.Status = StatusCompleted
	oldDone.StartedAt = old.Add(-time.Hour)
	oldDone.CompletedAt = &old

	oldRunning := nativeRecord(2)
	oldRunning.StartedAt = old

	fresh := nativeRecord(3)
	fresh.Status = StatusFailed
	now := time.Now().UTC()
	fresh.CompletedAt = &now

	for id, rec := range map[string]ProcessRecord{
		"T001": oldDone, "T002": oldRunning, "T003": fresh,
	} {
		if err := s.Register(id, rec); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := s.Cleanup(24 * time.Hour)
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if len(removed) != 1 || removed[0] != "swell:T001" {
		t.Errorf("removed = %v, want [swell:T001]", removed)
	}

	if _, err := s.Get("T002"); err != nil {
		t.Error("running record must survive cleanup regardless of age")
	}
	if _, err := s.Get("T003"); err != nil {
		t.Error("recent terminal record must survive cleanup")
	}
}

func TestNamespacedKeys(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "r.json"), "ci")

	if got := s.Key("T007"); got != "ci:T007" {
		t.Errorf("Key = %q, want ci:T007", got)
	}
	if got := s.Key("other:T007"); got != "other:T007" {
		t.Errorf("pre-namespaced key changed: %q", got)
	}

	ns, id := SplitID("ci:T007")
	if ns != "ci" || id != "T007" {
		t.Errorf("SplitID = %q, %q", ns, id)
	}
	ns, id = SplitID("T007")
	if ns != DefaultNamespace || id != "T007" {
		t.Errorf("SplitID without namespace = %q, %q", ns, id)
	}
}

func TestValidatePath(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	if _, err := ValidatePath("../outside.json"); err == nil {
		t.Error("parent references must be rejected")
	}
	if _, err := ValidatePath("/etc/registry.json"); err == nil {
		t.Error("system directories must be rejected")
	}
	if _, err := ValidatePath("/somewhere/else/registry.json"); err == nil {
		t.Error("paths outside the working directory must be rejected")
	}

	got, err := ValidatePath("registry.json")
	if err != nil {
		t.Fatalf("relative path in cwd rejected: %v", err)
	}
	if filepath.Base(got) != "registry.json" {
		t.Errorf("resolved path = %q", got)
	}
}
