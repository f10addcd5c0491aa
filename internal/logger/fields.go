package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// ============================================
// Tracing fields (context level)
// Propagated through the call chain
// ============================================

const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldBatchID is the batch generation job ID
	FieldBatchID = "batch_id"

	// FieldItemIndex is the 1-based index of a work item inside its batch
	FieldItemIndex = "item_index"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldCacheKey is a content cache key
	FieldCacheKey = "cache_key"
)

// ============================================
// Metric fields (entry level)
// Used for aggregation and alerting
// ============================================

const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldSize is the data size in bytes
	FieldSize = "size"

	// FieldStatus is the operation status
	FieldStatus = "status"
)
