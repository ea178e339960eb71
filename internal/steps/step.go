// Package steps models the build instructions extracted from a model response
// and the parser that recovers them from loosely structured markup.
package steps

// Kind identifies what a step asks the builder to do.
type Kind string

const (
	KindCreateFile   Kind = "create_file"
	KindRunShell     Kind = "run_shell"
	KindCreateFolder Kind = "create_folder"
)

// Status is the lifecycle tag owned by the orchestrator. The parser never sets it.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
)

// Step is one atomic build instruction.
type Step struct {
	ID          int    `json:"id"`
	Kind        Kind   `json:"kind"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Path        string `json:"path,omitempty"`
	Content     string `json:"content,omitempty"`
	Status      Status `json:"status,omitempty"`
}

// TargetsPath reports whether the step addresses a tree path.
func (s Step) TargetsPath() bool {
	return s.Kind == KindCreateFile || s.Kind == KindCreateFolder
}

// Pending returns a copy of list with every step marked pending.
func Pending(list []Step) []Step {
	out := make([]Step, len(list))
	for i, s := range list {
		s.Status = StatusPending
		out[i] = s
	}
	return out
}

// Number assigns consecutive display ids starting at first.
func Number(list []Step, first int) {
	for i := range list {
		list[i].ID = first + i
	}
}
