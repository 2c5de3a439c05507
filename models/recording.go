package models

import (
	"fmt"
	"time"
)

// ============================================================
// RECORDING ARTIFACT
// ============================================================

// Artifact is the sealed result of one recording session.
type Artifact struct {
	SessionID string
	MIMEType  string
	Filename  string
	Data      []byte
	Chunks    int
	CreatedAt time.Time
	Duration  time.Duration
}

func (a *Artifact) Size() int {
	if a == nil {
		return 0
	}
	return len(a.Data)
}

func (a *Artifact) String() string {
	if a == nil {
		return "nil"
	}
	return fmt.Sprintf("Artifact{%s, %s, %d bytes in %d chunks, %v}",
		a.Filename, a.MIMEType, len(a.Data), a.Chunks, a.Duration.Round(time.Millisecond))
}
