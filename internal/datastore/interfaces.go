// interfaces.go: The code in this file defines the session store interface
package datastore

import (
	"time"

	"github.com/tphakala/transcriptor-go/internal/errors"
)

// Sentinel errors returned by store implementations. Callers match them
// with errors.Is.
var (
	ErrNotFound      = errors.NewStd("session not found")
	ErrAlreadyExists = errors.NewStd("session already exists")
)

// SessionUpdate carries a partial update merged into an existing session.
// Nil fields are left untouched.
type SessionUpdate struct {
	Status             *string
	ErrorMessage       *string
	TranscriptionJobID *string
	AudioExtracted     *bool
	ExtractedFormat    *string
	Result             *TranscriptionResult
	DetectedCodes      []DetectionRecord
	DetectionRanAt     *time.Time
	DetectionFailed    *bool
	ExpectedCodeCount  *int
}

// ListFilter narrows List results. Zero values mean no filtering.
type ListFilter struct {
	Status string
	Limit  int
}

// Interface defines the session store used by the processor and the API.
type Interface interface {
	Open() error
	Close() error

	Create(session *Session) error
	Get(id string) (*Session, error)
	Update(id string, update *SessionUpdate) (*Session, error)
	List(filter *ListFilter) ([]Session, error)
	Delete(id string) (bool, error)
	Summary() (*SessionSummary, error)
}

// New creates a store for the given database directory.
func New(dataPath string, debug bool) Interface {
	return &SQLiteStore{dataPath: dataPath, debug: debug}
}
