package models

// Status represents the current lifecycle state of a task.
type Status string

const (
	StatusTodo    Status = "TODO"
	StatusDoing   Status = "DOING"
	StatusDone    Status = "DONE"
	StatusBlocked Status = "BLOCKED"
)

// ValidStatuses is the set of allowed Status values.
var ValidStatuses = map[Status]bool{
	StatusTodo:    true,
	StatusDoing:   true,
	StatusDone:    true,
	StatusBlocked: true,
}

// Priority represents the urgency level of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityMed    Priority = "med"
	PriorityHigh   Priority = "high"
)

// ValidPriorities is the set of allowed Priority values.
var ValidPriorities = map[Priority]bool{
	PriorityLow:    true,
	PriorityNormal: true,
	PriorityMed:    true,
	PriorityHigh:   true,
}

// ApprovalState is the state of the plan-approval sub-state machine.
type ApprovalState string

const (
	ApprovalPending  ApprovalState = "pending"
	ApprovalApproved ApprovalState = "approved"
	ApprovalRejected ApprovalState = "rejected"
)

// VerifyState is the state of the verification sub-state machine.
type VerifyState string

const (
	VerifyPending     VerifyState = "pending"
	VerifyOK          VerifyState = "ok"
	VerifyNeedsRework VerifyState = "needs_rework"
)

// PlanApproval records whether a task's plan has been approved, and by whom.
type PlanApproval struct {
	State     ApprovalState `yaml:"state"`
	UpdatedAt string        `yaml:"updated_at,omitempty"`
	UpdatedBy string        `yaml:"updated_by,omitempty"`
	Note      string        `yaml:"note,omitempty"`
}

// Verification records the outcome of the most recent verification pass.
type Verification struct {
	State     VerifyState `yaml:"state"`
	UpdatedAt string      `yaml:"updated_at,omitempty"`
	UpdatedBy string      `yaml:"updated_by,omitempty"`
	Note      string      `yaml:"note,omitempty"`
}

// Commit is the recorded implementation commit for a finished task.
// It is cleared whenever verification regresses to needs_rework.
type Commit struct {
	Hash    string `yaml:"hash"`
	Message string `yaml:"message"`
}

// Comment is a single author-attributed note on a task.
type Comment struct {
	Author string `yaml:"author"`
	Body   string `yaml:"body"`
}

// Event types appearing in the task audit log.
const (
	EventStatus  = "status"
	EventComment = "comment"
	EventVerify  = "verify"
)

// Event is one entry in a task's append-only audit log.
type Event struct {
	Type   string `yaml:"type"`
	At     string `yaml:"at"`
	Author string `yaml:"author,omitempty"`
	From   string `yaml:"from,omitempty"`
	To     string `yaml:"to,omitempty"`
	State  string `yaml:"state,omitempty"`
	Note   string `yaml:"note,omitempty"`
	Body   string `yaml:"body,omitempty"`
}

// DocVersion is the document schema version stamped on every write.
const DocVersion = 2

// Task is the unit of trackable work. The struct is the typed view over the
// task record's frontmatter; unknown frontmatter keys are preserved by the
// codec, not by this struct. The markdown document body travels separately
// as Doc.
type Task struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Description string `yaml:"description,omitempty"`

	Status   Status   `yaml:"status"`
	Priority Priority `yaml:"priority,omitempty"`
	Owner    string   `yaml:"owner,omitempty"`

	Tags      []string `yaml:"tags,omitempty"`
	DependsOn []string `yaml:"depends_on,omitempty"`
	Verify    []string `yaml:"verify,omitempty"`

	Comments []Comment `yaml:"comments,omitempty"`
	Events   []Event   `yaml:"events,omitempty"`

	PlanApproval PlanApproval `yaml:"plan_approval"`
	Verification Verification `yaml:"verification"`

	Commit *Commit `yaml:"commit,omitempty"`

	DocVersion   int    `yaml:"doc_version,omitempty"`
	DocUpdatedAt string `yaml:"doc_updated_at,omitempty"`
	DocUpdatedBy string `yaml:"doc_updated_by,omitempty"`

	// Doc is the markdown body of the task record. It is not part of the
	// frontmatter; the codec carries it separately.
	Doc string `yaml:"-"`
}

// HasTag reports whether the task carries the given tag.
func (t *Task) HasTag(tag string) bool {
	for _, have := range t.Tags {
		if have == tag {
			return true
		}
	}
	return false
}

// LastCommentAuthor returns the author of the most recent comment, or "".
func (t *Task) LastCommentAuthor() string {
	if len(t.Comments) == 0 {
		return ""
	}
	return t.Comments[len(t.Comments)-1].Author
}

// Clone returns a deep copy of the task. The store hands clones to mutation
// callbacks so a failed update cannot corrupt the cached record.
func (t *Task) Clone() *Task {
	dup := *t
	dup.Tags = append([]string(nil), t.Tags...)
	dup.DependsOn = append([]string(nil), t.DependsOn...)
	dup.Verify = append([]string(nil), t.Verify...)
	dup.Comments = append([]Comment(nil), t.Comments...)
	dup.Events = append([]Event(nil), t.Events...)
	if t.Commit != nil {
		c := *t.Commit
		dup.Commit = &c
	}
	return &dup
}
