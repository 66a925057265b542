package core

import (
	"strings"

	"github.com/valter-silva-au/agent-task-flow/pkg/models"
)

// PlanSet overwrites the task's Plan section and resets plan approval to
// pending: a changed plan invalidates any earlier decision.
func (l *Lifecycle) PlanSet(id, text, author string) (*models.Task, error) {
	if strings.TrimSpace(text) == "" {
		return nil, Usagef("a non-empty plan is required")
	}
	author = firstNonEmpty(author, fallbackAuthor)

	_, updated, err := l.store.Update(id, func(t *models.Task) error {
		t.Doc = SetSection(t.Doc, SectionPlan, text)
		t.PlanApproval = models.PlanApproval{
			State:     models.ApprovalPending,
			UpdatedAt: l.timestamp(),
			UpdatedBy: author,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.logEvent("task.plan_set", "set plan for task "+id, map[string]any{"id": id, "author": author})
	return updated, nil
}

// PlanApprove marks the task's plan approved. The Plan section must exist
// and be non-empty at decision time.
func (l *Lifecycle) PlanApprove(id, author, note string) (*models.Task, error) {
	return l.decidePlan(id, author, note, models.ApprovalApproved)
}

// PlanReject marks the task's plan rejected. A non-blank note explaining
// the rejection is required.
func (l *Lifecycle) PlanReject(id, author, note string) (*models.Task, error) {
	if strings.TrimSpace(note) == "" {
		return nil, Usagef("rejecting a plan requires a note")
	}
	return l.decidePlan(id, author, note, models.ApprovalRejected)
}

func (l *Lifecycle) decidePlan(id, author, note string, state models.ApprovalState) (*models.Task, error) {
	author = firstNonEmpty(author, fallbackAuthor)

	task, err := l.store.Get(id)
	if err != nil {
		return nil, err
	}
	if !SectionFilled(task.Doc, SectionPlan) {
		return nil, Validationf("task %s has no %q section to decide on", id, SectionPlan)
	}

	_, updated, err := l.store.Update(id, func(t *models.Task) error {
		t.PlanApproval = models.PlanApproval{
			State:     state,
			UpdatedAt: l.timestamp(),
			UpdatedBy: author,
			Note:      note,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	event := "task.plan_approved"
	if state == models.ApprovalRejected {
		event = "task.plan_rejected"
	}
	l.logEvent(event, "plan decision for task "+id, map[string]any{
		"id": id, "state": string(state), "author": author,
	})
	return updated, nil
}
