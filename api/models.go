package api

// ChatRequest is the body of POST /api/v1/chat.
type ChatRequest struct {
	// UserID is the owner whose memories scope this turn. Required.
	UserID string `json:"user_id"`

	// Message is the user's message text. Required.
	Message string `json:"message"`

	// SessionID optionally groups this turn's record with others from
	// the same conversation.
	SessionID string `json:"session_id,omitempty"`

	// Metadata carries optional caller hints. A "category" or "domain"
	// key naming a known memory category steers retrieval toward that
	// topic; every other pair is stored as a "key=value" tag on the
	// turn's record.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ResponseMetadata describes how a chat turn was processed.
type ResponseMetadata struct {
	ModelUsed             string `json:"model_used"`
	ResponseTimeMs        int64  `json:"response_time_ms"`
	MemoryRetrievalTimeMs int64  `json:"memory_retrieval_time_ms"`

	// Plans maps each executed retrieval plan to its raw hit count.
	Plans map[string]int `json:"plans"`

	// DegradedPlans names retrieval plans that failed; the reply was
	// generated without their results.
	DegradedPlans []string `json:"degraded_plans,omitempty"`

	// WriteFailed reports that the reply could not be recorded; the
	// next turn will not remember this exchange.
	WriteFailed bool `json:"write_failed,omitempty"`
}

// ChatResponse is the body of a successful POST /api/v1/chat.
type ChatResponse struct {
	Response        string           `json:"response"`
	UserID          string           `json:"user_id"`
	SessionID       string           `json:"session_id,omitempty"`
	MemoriesFound   int              `json:"memories_found"`
	MemoriesCreated int              `json:"memories_created"`
	Metadata        ResponseMetadata `json:"metadata"`
}

// PurgeResponse is the body of DELETE /api/v1/memories/{ownerID}.
type PurgeResponse struct {
	UserID  string `json:"user_id"`
	Deleted int    `json:"deleted"`
}

// ErrorResponse is the envelope for every non-2xx JSON response.
type ErrorResponse struct {
	ErrorCode   string   `json:"error_code"`
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// ServiceCheck reports one dependency's health.
type ServiceCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// DetailedHealthResponse is the body of GET /health/detailed.
type DetailedHealthResponse struct {
	Status    string                  `json:"status"`
	Services  map[string]ServiceCheck `json:"services"`
	Timestamp string                  `json:"timestamp"`
}
