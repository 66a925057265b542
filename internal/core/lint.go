package core

import (
	"fmt"

	"github.com/gammazero/toposort"
	"github.com/valter-silva-au/agent-task-flow/pkg/models"
)

// LintIssue is one structural problem found across the task graph.
type LintIssue struct {
	TaskID string
	Rule   string
	Detail string
}

func (i LintIssue) String() string {
	if i.TaskID == "" {
		return i.Rule + ": " + i.Detail
	}
	return i.TaskID + " " + i.Rule + ": " + i.Detail
}

// Lint validates the whole task graph: dependency acyclicity and
// existence, the DONE-implies-commit invariant, document completeness, and
// field validity. Per-write operations never check the graph globally, so
// this is where cross-task violations surface.
func (l *Lifecycle) Lint() ([]LintIssue, error) {
	tasks, err := l.backend.ListTasks()
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*models.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	var issues []LintIssue
	for _, t := range tasks {
		issues = append(issues, l.lintTask(t, byID)...)
	}
	issues = append(issues, lintCycles(tasks, byID)...)
	return issues, nil
}

func (l *Lifecycle) lintTask(t *models.Task, byID map[string]*models.Task) []LintIssue {
	var issues []LintIssue

	if !models.ValidStatuses[t.Status] {
		issues = append(issues, LintIssue{t.ID, "status", fmt.Sprintf("unknown status %q", t.Status)})
	}
	if t.Priority != "" && !models.ValidPriorities[t.Priority] {
		issues = append(issues, LintIssue{t.ID, "priority", fmt.Sprintf("unknown priority %q", t.Priority)})
	}

	if t.Status == models.StatusDone {
		if t.Commit == nil || t.Commit.Hash == "" || t.Commit.Message == "" {
			issues = append(issues, LintIssue{t.ID, "commit", "DONE task must record a commit hash and message"})
		}
	}

	if t.DocVersion != models.DocVersion {
		issues = append(issues, LintIssue{t.ID, "doc_version", fmt.Sprintf("expected %d, got %d", models.DocVersion, t.DocVersion)})
	}

	for _, name := range l.cfg.RequiredSections {
		if _, ok := ExtractSection(t.Doc, name); !ok {
			issues = append(issues, LintIssue{t.ID, "sections", fmt.Sprintf("missing required section %q", name)})
		}
	}

	for _, dep := range t.DependsOn {
		if _, ok := byID[dep]; !ok {
			issues = append(issues, LintIssue{t.ID, "depends_on", fmt.Sprintf("dependency %s does not exist", dep)})
		}
		if dep == t.ID {
			issues = append(issues, LintIssue{t.ID, "depends_on", "task depends on itself"})
		}
	}

	return issues
}

// lintCycles runs a topological sort over the dependency edges; a sort
// failure means the graph has a cycle.
func lintCycles(tasks []*models.Task, byID map[string]*models.Task) []LintIssue {
	var edges []toposort.Edge
	for _, t := range tasks {
		if len(t.DependsOn) == 0 {
			edges = append(edges, toposort.Edge{nil, t.ID})
			continue
		}
		for _, dep := range t.DependsOn {
			if _, ok := byID[dep]; !ok {
				continue // reported by lintTask
			}
			edges = append(edges, toposort.Edge{dep, t.ID})
		}
	}

	if _, err := toposort.Toposort(edges); err != nil {
		return []LintIssue{{Rule: "cycle", Detail: fmt.Sprintf("dependency graph contains a cycle: %v", err)}}
	}
	return nil
}
