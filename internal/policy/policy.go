// Package policy implements the checkpoint-time rule validator: given the
// files a wave touched, it reports every organizational-standard violation
// as a structured (file, line, rule, message) record. Rules live in a YAML
// document; each rule targets files by glob pattern and either forbids or
// requires a regular expression.
package policy

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"
)

// Violation is one rule breach in one file.
type Violation struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// String renders the violation for logs and halt messages.
func (v Violation) String() string {
	return fmt.Sprintf("%s:%d: [%s] %s", v.File, v.Line, v.Rule, v.Message)
}

// ruleSpec is the YAML shape of one rule.
type ruleSpec struct {
	ID      string   `yaml:"id"`
	Paths   []string `yaml:"paths"`
	Forbid  string   `yaml:"forbid,omitempty"`
	Require string   `yaml:"require,omitempty"`
	Message string   `yaml:"message,omitempty"`
}

type rulesFile struct {
	Rules []ruleSpec `yaml:"rules"`
}

// rule is a compiled, ready-to-apply rule.
type rule struct {
	id      string
	globs   []glob.Glob
	forbid  *regexp.Regexp
	require *regexp.Regexp
	message string
}

func (r *rule) applies(path string) bool {
	for _, g := range r.globs {
		if g.Match(path) {
			return true
		}
	}
	return false
}

// Validator checks file contents against a compiled rule set.
type Validator struct {
	rules []rule
}

// LoadValidator reads and compiles a YAML rules file. An empty path yields a
// validator with no rules, which reports nothing.
func LoadValidator(path string) (*Validator, error) {
	if path == "" {
		return &Validator{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Validator{}, nil
		}
		return nil, fmt.Errorf("reading policy rules: %w", err)
	}
	return ParseRules(data)
}

// ParseRules compiles a YAML rules document.
func ParseRules(data []byte) (*Validator, error) {
	var doc rulesFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing policy rules: %w", err)
	}

	v := &Validator{}
	for i, spec := range doc.Rules {
		if spec.ID == "" {
			return nil, fmt.Errorf("rule %d has no id", i)
		}
		if (spec.Forbid == "") == (spec.Require == "") {
			return nil, fmt.Errorf("rule %s must set exactly one of forbid or require", spec.ID)
		}

		r := rule{id: spec.ID, message: spec.Message}
		if len(spec.Paths) == 0 {
			spec.Paths = []string{"**"}
		}
		for _, p := range spec.Paths {
			g, err := glob.Compile(p, '/')
			if err != nil {
				return nil, fmt.Errorf("rule %s has invalid path pattern %q: %w", spec.ID, p, err)
			}
			r.globs = append(r.globs, g)
		}
		if spec.Forbid != "" {
			re, err := regexp.Compile(spec.Forbid)
			if err != nil {
				return nil, fmt.Errorf("rule %s has invalid forbid pattern: %w", spec.ID, err)
			}
			r.forbid = re
		}
		if spec.Require != "" {
			re, err := regexp.Compile(spec.Require)
			if err != nil {
				return nil, fmt.Errorf("rule %s has invalid require pattern: %w", spec.ID, err)
			}
			r.require = re
		}
		v.rules = append(v.rules, r)
	}
	return v, nil
}

// RuleCount returns the number of compiled rules.
func (v *Validator) RuleCount() int { return len(v.rules) }

// ValidateFiles checks every listed file against the rule set and returns
// all violations. Files that no longer exist on disk are skipped: a deleted
// file has no content to validate.
func (v *Validator) ValidateFiles(paths []string) ([]Violation, error) {
	var violations []Violation
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("reading %s for validation: %w", path, err)
		}
		violations = append(violations, v.validateContent(path, string(data))...)
	}
	return violations, nil
}

func (v *Validator) validateContent(path, content string) []Violation {
	var violations []Violation
	lines := strings.Split(content, "\n")

	for _, r := range v.rules {
		if !r.applies(path) {
			continue
		}

		if r.forbid != nil {
			for i, line := range lines {
				if r.forbid.MatchString(line) {
					violations = append(violations, Violation{
						File:    path,
						Line:    i + 1,
						Rule:    r.id,
						Message: messageOr(r.message, "forbidden pattern found"),
					})
				}
			}
		}

		if r.require != nil {
			found := false
			for _, line := range lines {
				if r.require.MatchString(line) {
					found = true
					break
				}
			}
			if !found {
				violations = append(violations, Violation{
					File:    path,
					Line:    1,
					Rule:    r.id,
					Message: messageOr(r.message, "required pattern missing"),
				})
			}
		}
	}
	return violations
}

func messageOr(msg, fallback string) string {
	if msg != "" {
		return msg
	}
	return fallback
}
