package saga

import (
	"golang.org/x/text/unicode/norm"
)

// ParticipantInfo identifies one participant. Two infos are equal when their
// ParticipantIDs are equal.
type ParticipantInfo struct {
	ParticipantID string `json:"participant_id"`
}

// NewParticipant returns a ParticipantInfo with an NFC-normalized id.
func NewParticipant(id string) ParticipantInfo {
	return ParticipantInfo{ParticipantID: norm.NFC.String(id)}
}

// Participants builds a list of infos from ids, preserving order.
func Participants(ids ...string) []ParticipantInfo {
	out := make([]ParticipantInfo, len(ids))
	for i, id := range ids {
		out[i] = NewParticipant(id)
	}
	return out
}

// Equal reports identity equality.
func (p ParticipantInfo) Equal(other ParticipantInfo) bool {
	return p.ParticipantID == other.ParticipantID
}

// IsZero reports whether p carries no identity.
func (p ParticipantInfo) IsZero() bool {
	return p.ParticipantID == ""
}

func (p ParticipantInfo) String() string {
	return p.ParticipantID
}

// ExistsIn reports whether p is a member of any of the given lists.
func (p ParticipantInfo) ExistsIn(lists ...[]ParticipantInfo) bool {
	for _, list := range lists {
		if IndexOf(list, p) >= 0 {
			return true
		}
	}
	return false
}

// IndexOf returns the position of p in list, or -1.
func IndexOf(list []ParticipantInfo, p ParticipantInfo) int {
	for i, q := range list {
		if q.Equal(p) {
			return i
		}
	}
	return -1
}

// HasDuplicates reports whether any identity appears twice in list.
func HasDuplicates(list []ParticipantInfo) bool {
	seen := make(map[string]struct{}, len(list))
	for _, p := range list {
		if _, ok := seen[p.ParticipantID]; ok {
			return true
		}
		seen[p.ParticipantID] = struct{}{}
	}
	return false
}

// IDs returns the participant ids in order.
func IDs(list []ParticipantInfo) []string {
	out := make([]string, len(list))
	for i, p := range list {
		out[i] = p.ParticipantID
	}
	return out
}

func cloneParticipants(list []ParticipantInfo) []ParticipantInfo {
	if list == nil {
		return nil
	}
	out := make([]ParticipantInfo, len(list))
	copy(out, list)
	return out
}
