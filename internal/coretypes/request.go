package coretypes

// ProcessingRequest is a single unit of work submitted to the text
// processor, either standalone or as one item of a BatchRequest.
//
// Invariant: Operation == QA iff Question is non-empty.
// Invariant: Text is non-empty after sanitization.
type ProcessingRequest struct {
	Text      string         `json:"text"`
	Operation Operation      `json:"operation"`
	Options   map[string]any `json:"options,omitempty"`
	Question  string         `json:"question,omitempty"`
	TraceID   string         `json:"trace_id"`
}

// ResponseMetadata carries the envelope fields that accompany a
// ProcessingResponse's result.
type ResponseMetadata struct {
	Cached     bool   `json:"cached"`
	Degraded   bool   `json:"degraded,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	Model      string `json:"model"`
	Tokens     *int   `json:"tokens,omitempty"`
}

// ProcessingResponse is the outcome of running a ProcessingRequest through
// the text processor's request path.
type ProcessingResponse struct {
	Success   bool             `json:"success"`
	Operation Operation        `json:"operation"`
	Result    ResultValue      `json:"result"`
	Metadata  ResponseMetadata `json:"metadata"`
	TraceID   string           `json:"trace_id"`
}

// BatchRequest groups ProcessingRequests that share one batch id for
// tracing and bounded-concurrency fan-out.
type BatchRequest struct {
	BatchID string              `json:"batch_id"`
	Items   []ProcessingRequest `json:"items"`
}

// PerItemResult is Ok(ProcessingResponse) | Err(ErrorKind, message), encoded
// as an optional-field struct rather than an interface so it serializes
// directly to JSON.
type PerItemResult struct {
	OK         *ProcessingResponse `json:"ok,omitempty"`
	ErrorKind  string              `json:"error_kind,omitempty"`
	ErrMessage string              `json:"error_message,omitempty"`
}

// IsOK reports whether this item succeeded.
func (p PerItemResult) IsOK() bool { return p.OK != nil }

// BatchResponse is the aggregate result of processing a BatchRequest.
type BatchResponse struct {
	BatchID   string          `json:"batch_id"`
	Total     int             `json:"total"`
	Completed int             `json:"completed"`
	Failed    int             `json:"failed"`
	Items     []PerItemResult `json:"items"`
}
