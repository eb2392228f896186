package plan

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/swell-sh/swell/internal/task"
)

func samplePlan(t *testing.T) *ExecutionPlan {
	t.Helper()
	tasks := []task.Task{
		{ID: "T001", Description: "first", FileLocks: []string{"a.py"}},
		{ID: "T002", Description: "second", FileLocks: []string{"a.py"}},
	}
	p, err := NewPlanner("phase-1").Plan(tasks)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	return p
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "execution_plan.json")

	p := samplePlan(t)
	if err := Save(p, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.PlanID != p.PlanID || loaded.PhaseID != p.PhaseID {
		t.Errorf("identity fields changed: %+v vs %+v", loaded, p)
	}
	if len(loaded.Waves) != len(p.Waves) {
		t.Fatalf("wave count = %d, want %d", len(loaded.Waves), len(p.Waves))
	}
	for i := range p.Waves {
		if !reflect.DeepEqual(loaded.Waves[i].TaskIDs(), p.Waves[i].TaskIDs()) {
			t.Errorf("wave %d tasks differ", i+1)
		}
	}
}

func TestSave_CreatesParentDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".swell", "execution_plan.json")

	if err := Save(samplePlan(t), path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("plan file missing: %v", err)
	}
}

func TestSave_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.json")

	if err := Save(samplePlan(t), path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Errorf("leftover temp file: %s", e.Name())
		}
	}
}

func TestLoad_RejectsMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed plan")
	}
}

func TestLoad_RejectsDuplicateTaskAcrossWaves(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.json")

	doc := `{
  "plan_id": "p",
  "phase_id": "default",
  "created_at": "2026-01-01T00:00:00Z",
  "waves": [
    {"wave_id": 1, "strategy": "SEQUENTIAL", "tasks": [{"id": "T001", "role": "developer"}], "rationale": "", "checkpoint": true},
    {"wave_id": 2, "strategy": "SEQUENTIAL", "tasks": [{"id": "T001", "role": "developer"}], "rationale": "", "checkpoint": true}
  ]
}`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "T001") {
		t.Errorf("expected duplicate-task error naming T001, got %v", err)
	}
}
