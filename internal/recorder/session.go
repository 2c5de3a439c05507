package recorder

import (
	"errors"
	"sync"
	"time"

	"face-tracking-recorder/models"

	"github.com/google/uuid"
)

var errSessionSealed = errors.New("session already sealed")

// ============================================================
// RECORDING SESSION
// ============================================================

// Session is an append-only list of encoded chunks. Chunks keep the order
// in which Append was called.
type Session struct {
	ID        string
	MIMEType  string
	StartedAt time.Time

	mu     sync.Mutex
	chunks [][]byte
	size   int
	sealed bool
}

func NewSession(mimeType string, now time.Time) *Session {
	return &Session{
		ID:        uuid.NewString(),
		MIMEType:  mimeType,
		StartedAt: now,
	}
}

// Append stores a copy of chunk. Empty chunks are ignored.
func (s *Session) Append(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	buf := make([]byte, len(chunk))
	copy(buf, chunk)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed {
		return errSessionSealed
	}
	s.chunks = append(s.chunks, buf)
	s.size += len(buf)
	return nil
}

// Len returns the number of chunks and bytes collected so far.
func (s *Session) Len() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks), s.size
}

// Seal concatenates the chunks into one artifact. Later Appends fail.
func (s *Session) Seal(filename string, now time.Time) *models.Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sealed = true
	data := make([]byte, 0, s.size)
	for _, c := range s.chunks {
		data = append(data, c...)
	}

	return &models.Artifact{
		SessionID: s.ID,
		MIMEType:  s.MIMEType,
		Filename:  filename,
		Data:      data,
		Chunks:    len(s.chunks),
		CreatedAt: now,
		Duration:  now.Sub(s.StartedAt),
	}
}
