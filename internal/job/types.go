package job

import "time"

// Status is the lifecycle state of a document job. Transitions are monotonic
// along queued -> processing -> {completed | error}; the two terminal states
// never transition again.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Terminal reports whether no further transitions can occur.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Valid reports whether s is one of the four known states.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusCompleted, StatusError:
		return true
	}
	return false
}

// Job is one submitted document and its processing record. The ID is
// client-supplied and doubles as the idempotency key.
type Job struct {
	ID           string    `json:"id"`
	Status       Status    `json:"status"`
	Text         string    `json:"text,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Filename     string    `json:"filename,omitempty"`
	SourceRef    string    `json:"source_ref,omitempty"`
	SourceHash   string    `json:"source_hash,omitempty"`
	WordCount    int       `json:"word_count,omitempty"`
	CharCount    int       `json:"char_count,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SubmitOutcome is the dispatcher's answer to a submission. Both fresh and
// duplicate submissions are accepted; Duplicate tells them apart.
type SubmitOutcome struct {
	ID        string `json:"id"`
	Status    Status `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// Result is the client-facing view of a job. Text is present only when the
// job completed; ErrorMessage only when it errored.
type Result struct {
	ID           string `json:"id"`
	Status       Status `json:"status"`
	Text         string `json:"text,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}
