package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/eventual2pc/internal/codec"
)

// Stream identifies one entity's record stream.
type Stream struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func (s Stream) String() string {
	return s.Type + "/" + s.ID
}

// Validate rejects streams with an empty part or a slash in the type.
func (s Stream) Validate() error {
	if s.Type == "" || s.ID == "" {
		return fmt.Errorf("invalid stream %q: type and id are required", s.String())
	}
	if strings.Contains(s.Type, "/") {
		return fmt.Errorf("invalid stream %q: type may not contain '/'", s.String())
	}
	return nil
}

// ParseStream parses "type/id".
func ParseStream(s string) (Stream, error) {
	typ, id, ok := strings.Cut(s, "/")
	if !ok {
		return Stream{}, fmt.Errorf("invalid stream %q: expected type/id", s)
	}
	st := Stream{Type: typ, ID: id}
	return st, st.Validate()
}

// StoredRecord is one persisted record with its log position.
type StoredRecord struct {
	Seq           int64
	Stream        Stream
	Version       int64
	Envelope      codec.Envelope
	SchemaVersion string
}

// ErrVersionConflict matches any *VersionConflictError via errors.Is.
var ErrVersionConflict = errors.New("version conflict")

// VersionConflictError reports that a stream moved on since it was read.
type VersionConflictError struct {
	Stream   Stream
	Expected int64
	Actual   int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict on %s: expected %d, actual %d", e.Stream, e.Expected, e.Actual)
}

// Is makes errors.Is(err, ErrVersionConflict) work.
func (e *VersionConflictError) Is(target error) bool {
	return target == ErrVersionConflict
}
