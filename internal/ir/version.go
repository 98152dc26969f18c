package ir

const (
	// RecordSchemaVersion is stamped on every persisted record.
	RecordSchemaVersion = "1"

	// Version is the eventual2pc release version.
	Version = "0.1.0"
)
