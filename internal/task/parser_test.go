package task

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestParse_AssignsIDsInDocumentOrder(t *testing.T) {
	content := `- [ ] Create auth module in auth.py
- [x] Write tests in test_auth.py
- [ ] Update docs
`
	tasks, err := Parse(content)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("got %d tasks, want 3", len(tasks))
	}

	wantIDs := []string{"T001", "T002", "T003"}
	for i, want := range wantIDs {
		if tasks[i].ID != want {
			t.Errorf("task %d ID = %q, want %q", i, tasks[i].ID, want)
		}
	}
	if tasks[0].Completed || !tasks[1].Completed || tasks[2].Completed {
		t.Errorf("completion flags wrong: %v %v %v",
			tasks[0].Completed, tasks[1].Completed, tasks[2].Completed)
	}
}

func TestParse_ExtractsFileLocks(t *testing.T) {
	tests := []struct {
		name        string
		description string
		want        []string
	}{
		{
			name:        "backtick wrapped",
			description: "- [ ] Refactor `src/component.tsx` for clarity",
			want:        []string{"src/component.tsx"},
		},
		{
			name:        "bare path",
			description: "- [ ] Add logging to handlers/api.py module",
			want:        []string{"handlers/api.py"},
		},
		{
			name:        "duplicates collapse and sort",
			description: "- [ ] Edit `b.py` and a.py, then touch b.py again",
			want:        []string{"a.py", "b.py"},
		},
		{
			name:        "no files",
			description: "- [ ] Review the design",
			want:        nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tasks, err := Parse(tt.description + "\n")
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			got := tasks[0].FileLocks
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("FileLocks = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParse_ExtractsDependencies(t *testing.T) {
	tests := []struct {
		name        string
		description string
		want        []string
	}{
		{
			name:        "after clause",
			description: "- [ ] Wire login flow after T001",
			want:        []string{"T001"},
		},
		{
			name:        "depends on clause case insensitive",
			description: "- [ ] Ship release, DEPENDS ON T002 and after T005",
			want:        []string{"T002", "T005"},
		},
		{
			name:        "short id ignored",
			description: "- [ ] Something after T12",
			want:        nil,
		},
		{
			name:        "plain mention ignored",
			description: "- [ ] Mirror what T003 did",
			want:        nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tasks, err := Parse(tt.description + "\n")
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			got := tasks[0].DependsOn
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DependsOn = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParse_MetadataLines(t *testing.T) {
	content := `- [ ] Implement payment capture in pay.go
  - **Rules**: no-secrets, api-stability
  - **Role**: backend

- [ ] Plain task with no metadata
`
	tasks, err := Parse(content)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("got %d tasks, want 2", len(tasks))
	}

	if want := []string{"no-secrets", "api-stability"}; !reflect.DeepEqual(tasks[0].Rules, want) {
		t.Errorf("Rules = %v, want %v", tasks[0].Rules, want)
	}
	if tasks[0].Role != "backend" {
		t.Errorf("Role = %q, want backend", tasks[0].Role)
	}
	if tasks[1].Role != DefaultRole {
		t.Errorf("default Role = %q, want %q", tasks[1].Role, DefaultRole)
	}
	if len(tasks[1].Rules) != 0 {
		t.Errorf("Rules = %v, want none", tasks[1].Rules)
	}
}

func TestParse_BlankLineEndsBlock(t *testing.T) {
	content := `- [ ] First task touching one.py

  - **Role**: orphan-metadata-belongs-to-nobody

- [ ] Second task touching two.py
`
	tasks, err := Parse(content)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("got %d tasks, want 2", len(tasks))
	}
	if tasks[0].Role != DefaultRole {
		t.Errorf("metadata after blank line leaked into task: Role = %q", tasks[0].Role)
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.md")
	content := "- [ ] Build the parser in parser.go\n- [ ] Test it after T001 in parser_test.go\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	tasks, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("got %d tasks, want 2", len(tasks))
	}
	if !reflect.DeepEqual(tasks[1].DependsOn, []string{"T001"}) {
		t.Errorf("DependsOn = %v, want [T001]", tasks[1].DependsOn)
	}

	if _, err := ParseFile(filepath.Join(dir, "missing.md")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSharesLockWith(t *testing.T) {
	a := Task{FileLocks: []string{"a.py", "x.py"}}
	b := Task{FileLocks: []string{"x.py"}}
	c := Task{FileLocks: []string{"c.py"}}

	if !a.SharesLockWith(&b) {
		t.Error("a and b share x.py")
	}
	if a.SharesLockWith(&c) {
		t.Error("a and c share nothing")
	}
}
