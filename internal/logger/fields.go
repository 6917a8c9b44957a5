package logger

// Fields is shorthand for a structured-field map.
type Fields map[string]interface{}

// Tracing fields ride in the context and propagate through the call chain.

const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldPath is the absolute file path being processed
	FieldPath = "path"

	// FieldQueueItemID is the scan-queue item ID
	FieldQueueItemID = "queue_item_id"

	// FieldFileID is the file-record ID
	FieldFileID = "file_id"

	// FieldScanRoot is the root directory of a scan walk
	FieldScanRoot = "scan_root"
)

// Metric fields attach to individual entries and feed aggregation.

const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldSize is the data size in bytes
	FieldSize = "size"

	// FieldStatus is the operation status
	FieldStatus = "status"

	// FieldAttempts is the number of processing attempts for a queue item
	FieldAttempts = "attempts"
)
