package models

// SessionStatus represents the status of a decode session.
type SessionStatus string

const (
	SessionStatusPending  SessionStatus = "pending"
	SessionStatusDecoding SessionStatus = "decoding"
	SessionStatusComplete SessionStatus = "complete"
	SessionStatusError    SessionStatus = "error"
)

// DecodeSession represents one annotation file decode session.
type DecodeSession struct {
	ID               string        `json:"id"`
	FileID           string        `json:"fileId"`
	Status           SessionStatus `json:"status"`
	UnitMode         string        `json:"unitMode"`
	CoordFormat      CoordFormat   `json:"coordformat,omitempty"`
	AnnotationCount  int           `json:"annotationCount,omitempty"`
	SkippedCount     int           `json:"skippedCount,omitempty"`
	ProcessingTimeMs int64         `json:"processingTimeMs,omitempty"`
	StartTime        int64         `json:"startTime,omitempty"` // Unix ms
	EndTime          int64         `json:"endTime,omitempty"`   // Unix ms
	Errors           []DecodeError `json:"errors,omitempty"`
	FatalError       string        `json:"fatalError,omitempty"`
}

// NewDecodeSession creates a new DecodeSession in pending status.
func NewDecodeSession(id, fileID, unitMode string) *DecodeSession {
	return &DecodeSession{
		ID:       id,
		FileID:   fileID,
		Status:   SessionStatusPending,
		UnitMode: unitMode,
		Errors:   make([]DecodeError, 0),
	}
}
