package document

import "fmt"

// ProcessingStatus is the document lifecycle state.
type ProcessingStatus string

// Lifecycle states in forward order. Failed is reachable from any non-terminal state.
const (
	StatusPending    ProcessingStatus = "pending"
	StatusUploaded   ProcessingStatus = "uploaded"
	StatusExtracting ProcessingStatus = "extracting"
	StatusProcessing ProcessingStatus = "processing"
	StatusChunking   ProcessingStatus = "chunking"
	StatusIndexing   ProcessingStatus = "indexing"
	StatusReady      ProcessingStatus = "ready"
	StatusFailed     ProcessingStatus = "failed"
)

var pipeline = []ProcessingStatus{
	StatusPending,
	StatusUploaded,
	StatusExtracting,
	StatusProcessing,
	StatusChunking,
	StatusIndexing,
	StatusReady,
}

// ParseStatus parses a stored status value.
func ParseStatus(s string) (ProcessingStatus, error) {
	st := ProcessingStatus(s)
	if st == StatusFailed || st.position() >= 0 {
		return st, nil
	}
	return "", fmt.Errorf("unknown processing status %q", s)
}

func (s ProcessingStatus) position() int {
	for i, p := range pipeline {
		if p == s {
			return i
		}
	}
	return -1
}

// IsValid reports whether s is a known status.
func (s ProcessingStatus) IsValid() bool {
	return s == StatusFailed || s.position() >= 0
}

// IsTerminal reports whether no further transitions are allowed.
func (s ProcessingStatus) IsTerminal() bool {
	return s == StatusReady || s == StatusFailed
}

// Next returns the immediate successor in the pipeline.
func (s ProcessingStatus) Next() (ProcessingStatus, bool) {
	pos := s.position()
	if pos < 0 || pos == len(pipeline)-1 {
		return "", false
	}
	return pipeline[pos+1], true
}

// CanTransition reports whether s may move to next.
// Only the immediate successor or failed are allowed, and never out of a terminal state.
func (s ProcessingStatus) CanTransition(next ProcessingStatus) bool {
	if s.IsTerminal() || !s.IsValid() {
		return false
	}
	if next == StatusFailed {
		return true
	}
	succ, ok := s.Next()
	return ok && succ == next
}

func (s ProcessingStatus) String() string { return string(s) }
