// Package gitops wraps the narrow slice of version control the checkpoint
// protocol needs: a changed-file listing and one atomic stage-and-commit
// operation. Everything runs through the git CLI.
package gitops

import (
	"fmt"
	"os/exec"
	"strings"
)

// CommandExecutor abstracts command execution for testability.
type CommandExecutor interface {
	// Run executes a command in dir and returns combined output.
	Run(dir string, name string, args ...string) ([]byte, error)
}

// CLICommandExecutor executes commands using os/exec.
type CLICommandExecutor struct{}

// Run executes a command and returns combined output.
func (e *CLICommandExecutor) Run(dir string, name string, args ...string) ([]byte, error) {
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// Git performs repository operations in one working tree.
type Git struct {
	repoDir  string
	executor CommandExecutor
}

// New returns a Git rooted at repoDir.
func New(repoDir string) *Git {
	return &Git{repoDir: repoDir, executor: &CLICommandExecutor{}}
}

// NewWithExecutor returns a Git with a custom executor, for tests.
func NewWithExecutor(repoDir string, executor CommandExecutor) *Git {
	return &Git{repoDir: repoDir, executor: executor}
}

// CommitAll stages and commits all changes as one operation. Nothing to
// commit is not an error: a wave may legitimately leave the tree clean.
func (g *Git) CommitAll(message string) error {
	out, err := g.executor.Run(g.repoDir, "git", "add", "-A")
	if err != nil {
		return fmt.Errorf("staging changes: %w (%s)", err, strings.TrimSpace(string(out)))
	}

	out, err = g.executor.Run(g.repoDir, "git", "commit", "-m", message)
	if err != nil {
		if strings.Contains(string(out), "nothing to commit") {
			return nil
		}
		return fmt.Errorf("committing changes: %w (%s)", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// ChangedFiles lists paths that differ from HEAD, including untracked files.
// This is the file set the policy validator inspects at checkpoint time.
func (g *Git) ChangedFiles() ([]string, error) {
	out, err := g.executor.Run(g.repoDir, "git", "diff", "--name-only", "HEAD")
	if err != nil {
		return nil, fmt.Errorf("listing changed files: %w (%s)", err, strings.TrimSpace(string(out)))
	}
	files := splitLines(string(out))

	out, err = g.executor.Run(g.repoDir, "git", "ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil, fmt.Errorf("listing untracked files: %w (%s)", err, strings.TrimSpace(string(out)))
	}
	for _, f := range splitLines(string(out)) {
		if !contains(files, f) {
			files = append(files, f)
		}
	}
	return files, nil
}

// HasUncommittedChanges reports whether the tree is dirty.
func (g *Git) HasUncommittedChanges() (bool, error) {
	out, err := g.executor.Run(g.repoDir, "git", "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("checking status: %w (%s)", err, strings.TrimSpace(string(out)))
	}
	return len(strings.TrimSpace(string(out))) > 0, nil
}

func splitLines(s string) []string {
	var lines []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
