package task

import (
	"fmt"
	"os"
	"regexp"
	"slices"
	"sort"
	"strings"
)

// ----- Parsing patterns -----

var (
	// backtickPathPattern matches backtick-wrapped file paths: `src/app.ts`
	backtickPathPattern = regexp.MustCompile("`([^`]+\\.[a-zA-Z]+)`")

	// barePathPattern matches plain file paths: auth.py, path/to/file.ts
	barePathPattern = regexp.MustCompile(`\b([\w/.-]+\.[a-zA-Z]{2,4})\b`)

	// dependencyPattern matches "after T123" or "depends on T456",
	// case-insensitively. Anything else is not a dependency declaration.
	dependencyPattern = regexp.MustCompile(`(?i)\b(?:after|depends on)\s+T(\d{3})\b`)

	// rulesPattern matches a "- **Rules**: a, b" metadata line.
	rulesPattern = regexp.MustCompile(`- \*\*Rules\*\*: (.+)`)

	// rolePattern matches a "- **Role**: name" metadata line.
	rolePattern = regexp.MustCompile(`- \*\*Role\*\*: (.+)`)
)

// ParseFile reads and parses the task list at path.
func ParseFile(path string) ([]Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading task list: %w", err)
	}
	return Parse(string(data))
}

// Parse parses a markdown task list into tasks in document order.
//
// A line starting "- [ ]" or "- [x]" begins a task block. Metadata lines
// ("- **Rules**:", "- **Role**:") within the block attach to the task. A
// blank line or the next task line closes the block; other lines are
// ignored. IDs are assigned sequentially as T001, T002, ...
func Parse(content string) ([]Task, error) {
	var tasks []Task
	var block []string

	flush := func() {
		if len(block) == 0 {
			return
		}
		tasks = append(tasks, buildTask(block, len(tasks)+1))
		block = nil
	}

	for _, line := range strings.Split(content, "\n") {
		switch {
		case strings.HasPrefix(line, "- [ ]") || strings.HasPrefix(line, "- [x]"):
			flush()
			block = []string{line}
		case len(block) > 0 && isMetadataLine(line):
			block = append(block, line)
		case len(block) > 0 && strings.TrimSpace(line) == "":
			flush()
		}
	}
	flush()

	return tasks, nil
}

func isMetadataLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "- **Rules**:") ||
		strings.HasPrefix(trimmed, "- **Role**:")
}

func buildTask(block []string, ordinal int) Task {
	first := block[0]
	completed := strings.Contains(first, "[x]")

	description := first
	if idx := strings.Index(first, "]"); idx >= 0 {
		description = strings.TrimSpace(first[idx+1:])
	}

	full := strings.Join(block, "\n")

	t := Task{
		ID:          fmt.Sprintf("T%03d", ordinal),
		Description: description,
		FileLocks:   extractFileReferences(description),
		DependsOn:   extractDependencies(description),
		Role:        DefaultRole,
		Completed:   completed,
	}

	if m := rulesPattern.FindStringSubmatch(full); m != nil {
		for _, r := range strings.Split(m[1], ",") {
			if r = strings.TrimSpace(r); r != "" {
				t.Rules = append(t.Rules, r)
			}
		}
	}
	if m := rolePattern.FindStringSubmatch(full); m != nil {
		if role := strings.TrimSpace(m[1]); role != "" {
			t.Role = role
		}
	}

	return t
}

// extractFileReferences pulls file paths out of a task description.
// Both backtick-wrapped and bare paths count; the result is deduplicated
// and sorted so lock comparisons are order-independent.
func extractFileReferences(description string) []string {
	seen := make(map[string]struct{})

	for _, m := range backtickPathPattern.FindAllStringSubmatch(description, -1) {
		seen[m[1]] = struct{}{}
	}
	for _, m := range barePathPattern.FindAllStringSubmatch(description, -1) {
		seen[m[1]] = struct{}{}
	}

	files := make([]string, 0, len(seen))
	for f := range seen {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// extractDependencies pulls explicit task dependencies out of a description.
func extractDependencies(description string) []string {
	var deps []string
	for _, m := range dependencyPattern.FindAllStringSubmatch(description, -1) {
		id := "T" + m[1]
		if !slices.Contains(deps, id) {
			deps = append(deps, id)
		}
	}
	return deps
}
