package api

import "time"

// JobStatus represents the backend lifecycle of a conversion job.
type JobStatus string

const (
	// JobProcessing is the initial status assigned at submission.
	JobProcessing JobStatus = "processing"
	// JobAnalyzing is reported while the backend extracts questions.
	JobAnalyzing JobStatus = "analyzing"
	// JobCreatingForm is reported while the backend builds the form.
	JobCreatingForm JobStatus = "creating_form"
	// JobCompleted is a terminal status; a FormRecord now exists.
	JobCompleted JobStatus = "completed"
	// JobFailed is a terminal status; ErrorMessage explains why.
	JobFailed JobStatus = "failed"
)

// Terminal reports whether no further transitions can follow. Any status
// other than completed or failed counts as in-flight, so the client keeps
// observing interim statuses it has never seen before.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Session identifies the authenticated caller.
type Session struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Picture   string    `json:"picture,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversionJob is the backend's view of one document conversion.
type ConversionJob struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	Status       JobStatus `json:"status"`
	Progress     int       `json:"progress"`
	ErrorMessage string    `json:"error_message,omitempty"`
	FormID       string    `json:"form_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// FormRecord is a completed artifact in the user's collection.
type FormRecord struct {
	ID               string    `json:"id"`
	FormID           string    `json:"form_id"`
	FormTitle        string    `json:"form_title"`
	FormURL          string    `json:"form_url"`
	OriginalFilename string    `json:"original_filename"`
	QuestionsCount   int       `json:"questions_count"`
	CreatedAt        time.Time `json:"created_at"`
}
