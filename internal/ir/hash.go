package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainRecord separates record hashes from any other hash the module
// computes. The version suffix leaves room for a future algorithm change.
const DomainRecord = "eventual2pc/record/v1"

// hashWithDomain returns hex(SHA256(domain || 0x00 || data)).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// RecordHash computes the content hash of a record from its kind and
// canonical payload. The payload must already be canonical JSON.
func RecordHash(kind string, canonicalPayload []byte) string {
	data := make([]byte, 0, len(kind)+1+len(canonicalPayload))
	data = append(data, kind...)
	data = append(data, 0x00)
	data = append(data, canonicalPayload...)
	return hashWithDomain(DomainRecord, data)
}

// ObjectHash hashes an arbitrary object under the record domain.
func ObjectHash(obj IRObject) (string, error) {
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("ObjectHash: %w", err)
	}
	return hashWithDomain(DomainRecord, canonical), nil
}
