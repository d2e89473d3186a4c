package logger

// Standard field names for structured logging.
const (
	// Identity
	FieldUserID        = "user_id"
	FieldRecipientID   = "recipient_id"
	FieldApplicationID = "application_id"
	FieldJobID         = "job_id"
	FieldJobGUID       = "job_guid"
	FieldClientID      = "client_id"
	FieldRequestID     = "request_id"

	// Components
	FieldComponent = "component"
	FieldSink      = "sink"

	// Operations
	FieldOperation = "operation"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldOutcome   = "outcome"
	FieldStatus    = "status"
	FieldOldStatus = "old_status"

	// Timing
	FieldDurationMS = "duration_ms"

	// Errors
	FieldError = "error"

	// Counts
	FieldCount = "count"
	FieldTotal = "total"
)
