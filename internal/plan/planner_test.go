package plan

import (
	"errors"
	"reflect"
	"testing"

	"github.com/swell-sh/swell/internal/task"
)

func TestBuildGraph_MergesExplicitAndImplicit(t *testing.T) {
	tasks := []task.Task{
		{ID: "T001", FileLocks: []string{"a.py"}},
		{ID: "T002", FileLocks: []string{"b.py"}, DependsOn: []string{"T001"}},
		{ID: "T003", FileLocks: []string{"a.py", "c.py"}},
	}

	g := BuildGraph(tasks)

	if got := g.DependenciesOf("T002"); !reflect.DeepEqual(got, []string{"T001"}) {
		t.Errorf("T002 deps = %v, want [T001]", got)
	}
	// T003 shares a.py with the earlier-declared T001.
	if got := g.DependenciesOf("T003"); !reflect.DeepEqual(got, []string{"T001"}) {
		t.Errorf("T003 deps = %v, want [T001]", got)
	}
	if got := g.DependenciesOf("T001"); len(got) != 0 {
		t.Errorf("T001 deps = %v, want none", got)
	}
	if g.EdgeCount() != 2 {
		t.Errorf("EdgeCount = %d, want 2", g.EdgeCount())
	}
}

func TestBuildGraph_ImplicitEdgeFollowsDocumentOrder(t *testing.T) {
	tasks := []task.Task{
		{ID: "T001", FileLocks: []string{"x.py"}},
		{ID: "T002", FileLocks: []string{"x.py"}},
		{ID: "T003", FileLocks: []string{"x.py"}},
	}

	g := BuildGraph(tasks)

	if got := g.DependenciesOf("T003"); !reflect.DeepEqual(got, []string{"T001", "T002"}) {
		t.Errorf("T003 deps = %v, want [T001 T002]", got)
	}
	if got := g.DependenciesOf("T001"); len(got) != 0 {
		t.Errorf("earliest lock holder should have no deps, got %v", got)
	}
}

func TestPlan_EveryTaskExactlyOnce(t *testing.T) {
	tasks := []task.Task{
		{ID: "T001", FileLocks: []string{"a.py"}},
		{ID: "T002", FileLocks: []string{"b.py"}, DependsOn: []string{"T001"}},
		{ID: "T003", FileLocks: []string{"c.py"}},
		{ID: "T004", FileLocks: []string{"a.py"}},
	}

	p, err := NewPlanner("test").Plan(tasks)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("plan invalid: %v", err)
	}
	if p.TaskCount() != len(tasks) {
		t.Errorf("TaskCount = %d, want %d", p.TaskCount(), len(tasks))
	}
}

func TestPlan_DependenciesRequireEarlierWave(t *testing.T) {
	// T002 depends on T001; even though T001 is placed during the same
	// pass, T002 must wait for the next wave.
	tasks := []task.Task{
		{ID: "T001", FileLocks: []string{"a.py"}},
		{ID: "T002", FileLocks: []string{"b.py"}, DependsOn: []string{"T001"}},
	}

	p, err := NewPlanner("test").Plan(tasks)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(p.Waves) != 2 {
		t.Fatalf("got %d waves, want 2", len(p.Waves))
	}
	if !reflect.DeepEqual(p.Waves[0].TaskIDs(), []string{"T001"}) {
		t.Errorf("wave 1 = %v, want [T001]", p.Waves[0].TaskIDs())
	}
	if !reflect.DeepEqual(p.Waves[1].TaskIDs(), []string{"T002"}) {
		t.Errorf("wave 2 = %v, want [T002]", p.Waves[1].TaskIDs())
	}
}

func TestPlan_SharedLockNeverCoOccurs(t *testing.T) {
	tasks := []task.Task{
		{ID: "T001", FileLocks: []string{"x.py"}},
		{ID: "T002", FileLocks: []string{"x.py"}},
		{ID: "T003", FileLocks: []string{"y.py"}},
	}

	p, err := NewPlanner("test").Plan(tasks)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	waveOf := make(map[string]int)
	for _, w := range p.Waves {
		locks := make(map[string]string)
		for _, tk := range w.Tasks {
			waveOf[tk.ID] = w.ID
			for _, f := range tk.FileLocks {
				if prev, ok := locks[f]; ok {
					t.Errorf("wave %d: %s and %s both lock %s", w.ID, prev, tk.ID, f)
				}
				locks[f] = tk.ID
			}
		}
	}
	if waveOf["T002"] <= waveOf["T001"] {
		t.Errorf("later-declared T002 (wave %d) must follow T001 (wave %d)",
			waveOf["T002"], waveOf["T001"])
	}
}

func TestPlan_CycleFailsWithStuckIDs(t *testing.T) {
	tasks := []task.Task{
		{ID: "T001", DependsOn: []string{"T002"}},
		{ID: "T002", DependsOn: []string{"T001"}},
	}

	p, err := NewPlanner("test").Plan(tasks)
	if p != nil {
		t.Error("no plan should be produced on a cycle")
	}

	var perr *PlanningError
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v, want *PlanningError", err)
	}
	if !reflect.DeepEqual(perr.Stuck, []string{"T001", "T002"}) {
		t.Errorf("Stuck = %v, want [T001 T002]", perr.Stuck)
	}
}

func TestPlan_UnknownDependencyIsStuck(t *testing.T) {
	tasks := []task.Task{
		{ID: "T001", DependsOn: []string{"T099"}},
	}

	_, err := NewPlanner("test").Plan(tasks)
	var perr *PlanningError
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v, want *PlanningError", err)
	}
	if !reflect.DeepEqual(perr.Stuck, []string{"T001"}) {
		t.Errorf("Stuck = %v, want [T001]", perr.Stuck)
	}
}

func TestPlan_StrategyReflectsWaveSize(t *testing.T) {
	tasks := []task.Task{
		{ID: "T001", FileLocks: []string{"a.py"}},
		{ID: "T002", FileLocks: []string{"b.py"}},
		{ID: "T003", FileLocks: []string{"a.py"}},
	}

	p, err := NewPlanner("test").Plan(tasks)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(p.Waves) != 2 {
		t.Fatalf("got %d waves, want 2", len(p.Waves))
	}
	if p.Waves[0].Strategy != StrategyParallel {
		t.Errorf("wave 1 strategy = %s, want PARALLEL", p.Waves[0].Strategy)
	}
	if p.Waves[1].Strategy != StrategySequential {
		t.Errorf("wave 2 strategy = %s, want SEQUENTIAL", p.Waves[1].Strategy)
	}
}

func TestPlan_Deterministic(t *testing.T) {
	tasks := []task.Task{
		{ID: "T001", FileLocks: []string{"a.py"}},
		{ID: "T002", FileLocks: []string{"a.py", "b.py"}},
		{ID: "T003", FileLocks: []string{"c.py"}, DependsOn: []string{"T001"}},
		{ID: "T004", FileLocks: []string{"b.py"}},
	}

	first, err := NewPlanner("test").Plan(tasks)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := NewPlanner("test").Plan(tasks)
		if err != nil {
			t.Fatalf("Plan failed on repeat: %v", err)
		}
		if len(again.Waves) != len(first.Waves) {
			t.Fatalf("wave count changed between runs")
		}
		for w := range first.Waves {
			if !reflect.DeepEqual(again.Waves[w].TaskIDs(), first.Waves[w].TaskIDs()) {
				t.Errorf("wave %d membership changed: %v vs %v",
					w+1, again.Waves[w].TaskIDs(), first.Waves[w].TaskIDs())
			}
		}
	}
}
