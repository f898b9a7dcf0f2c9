package domain

import "fmt"

// FileStatus is the processing state of a FileRecord.
type FileStatus string

// Record states. Transitions only move forward:
//
//	uploading -> uploaded -> processing -> completed
//
// and any non-terminal state may move to failure.
const (
	FileStatusUploading  FileStatus = "uploading"
	FileStatusUploaded   FileStatus = "uploaded"
	FileStatusProcessing FileStatus = "processing"
	FileStatusCompleted  FileStatus = "completed"
	FileStatusFailure    FileStatus = "failure"
)

var nextStatus = map[FileStatus]FileStatus{
	FileStatusUploading:  FileStatusUploaded,
	FileStatusUploaded:   FileStatusProcessing,
	FileStatusProcessing: FileStatusCompleted,
}

// ParseFileStatus converts s into a FileStatus.
func ParseFileStatus(s string) (FileStatus, error) {
	st := FileStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidFileStatus, s)
	}
	return st, nil
}

// Valid reports whether s is a known status.
func (s FileStatus) Valid() bool {
	switch s {
	case FileStatusUploading, FileStatusUploaded, FileStatusProcessing,
		FileStatusCompleted, FileStatusFailure:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions are possible from s.
func (s FileStatus) IsTerminal() bool {
	return s == FileStatusCompleted || s == FileStatusFailure
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s FileStatus) CanTransitionTo(next FileStatus) bool {
	if !s.Valid() || !next.Valid() || s.IsTerminal() {
		return false
	}
	if next == FileStatusFailure {
		return true
	}
	return nextStatus[s] == next
}
