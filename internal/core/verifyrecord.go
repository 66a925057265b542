package core

import (
	"fmt"
	"strings"

	"github.com/valter-silva-au/agent-task-flow/pkg/models"
)

// RecordVerification appends a timestamped, author-attributed entry to the
// results block of the task's Verification section and updates the
// verification sub-state. A rework outcome additionally resets the task to
// DOING and clears the recorded commit, forcing a re-finish after fixes;
// an ok outcome leaves the status untouched (finish is a separate step).
func (l *Lifecycle) RecordVerification(id string, state models.VerifyState, author, note string) (*models.Task, error) {
	if state != models.VerifyOK && state != models.VerifyNeedsRework {
		return nil, Usagef("verification outcome must be ok or rework, got %q", state)
	}
	author = firstNonEmpty(author, fallbackAuthor)
	at := l.timestamp()

	entry := fmt.Sprintf("- [%s] %s %s", verifyLabel(state), at, author)
	if strings.TrimSpace(note) != "" {
		entry += ": " + strings.TrimSpace(note)
	}

	var from models.Status
	_, updated, err := l.store.Update(id, func(t *models.Task) error {
		from = t.Status
		t.Doc = AppendVerificationEntry(t.Doc, entry)
		t.Verification = models.Verification{
			State:     state,
			UpdatedAt: at,
			UpdatedBy: author,
			Note:      note,
		}
		t.Events = append(t.Events, models.Event{
			Type:   models.EventVerify,
			At:     at,
			Author: author,
			State:  string(state),
			Note:   note,
		})
		if state == models.VerifyNeedsRework {
			if t.Status != models.StatusDoing {
				t.Events = append(t.Events, l.statusEvent(author, t.Status, models.StatusDoing))
				t.Status = models.StatusDoing
			}
			t.Commit = nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logEvent("task.verify_recorded", "recorded verification for task "+id, map[string]any{
		"id": id, "state": string(state), "from": string(from), "author": author,
	})
	return updated, nil
}

// RecordIntegration appends engine-produced verification transcript entries
// to the task's Verification results block. Entries are written whether or
// not they passed; the results block is the human-readable ledger.
func (l *Lifecycle) RecordIntegration(id string, entries []models.VerificationEntry) (*models.Task, error) {
	if len(entries) == 0 {
		return l.store.Get(id)
	}

	_, updated, err := l.store.Update(id, func(t *models.Task) error {
		for _, entry := range entries {
			label := "ok"
			if !entry.OK {
				label = "fail"
			}
			line := fmt.Sprintf("- [%s] %s %s: %s", label, entry.At, entry.SHA, entry.Command)
			t.Doc = AppendVerificationEntry(t.Doc, line)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.logEvent("task.integration_recorded", "recorded integration verification for task "+id, map[string]any{
		"id": id, "entries": len(entries),
	})
	return updated, nil
}

// verifyLabel is the short form written into the results block.
func verifyLabel(state models.VerifyState) string {
	if state == models.VerifyOK {
		return "ok"
	}
	return "rework"
}
