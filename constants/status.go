package constants

// RecordStatus is the canonical status for stored invoice records.
type RecordStatus string

// Stable values (store these exact strings in DB).
const (
	RecordStatusProcessed RecordStatus = "PROCESSED" // full pipeline succeeded
	RecordStatusFailed    RecordStatus = "FAILED"    // OCR or validation failure
)
