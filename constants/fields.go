package constants

// Field names used as keys in confidence-score and raw-match maps, and as
// column names in the API payload. Store these exact strings.
const (
	FieldAmount  = "amount"
	FieldDueDate = "due_date"
	FieldVendor  = "vendor"
	FieldOverall = "overall"
)

// DefaultCurrency is the only currency the amount parser understands today.
const DefaultCurrency = "USD"

// ExtractedFieldNames lists the three extracted fields in render order.
var ExtractedFieldNames = []string{FieldAmount, FieldDueDate, FieldVendor}
