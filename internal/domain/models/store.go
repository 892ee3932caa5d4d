package models

import "time"

// IncomingMessage is one turn in a store request, before IDs are
// assigned.
type IncomingMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Timestamp *time.Time     `json:"timestamp,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// StoreConversationRequest asks the service to persist and compress a
// conversation. SessionID ties replays and incremental updates of the
// same conversation together.
type StoreConversationRequest struct {
	ProjectID string            `json:"project_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	Title     string            `json:"title,omitempty"`
	Messages  []IncomingMessage `json:"messages"`
	Metadata  map[string]any    `json:"metadata,omitempty"`
}

// StoreConversationResult reports what was persisted.
type StoreConversationResult struct {
	ConversationID string   `json:"conversation_id"`
	MemoryUnitIDs  []string `json:"memory_unit_ids"`
	MessagesStored int      `json:"messages_stored"`
	// Replayed is set when the exact conversation was already stored
	// and nothing new was written.
	Replayed bool `json:"replayed"`
	// Degraded is set when compression fell back to the mechanical
	// unit.
	Degraded bool `json:"degraded"`
}

// MemoryUsage records one memory unit being injected into a prompt.
type MemoryUsage struct {
	ID           string    `json:"id"`
	MemoryUnitID string    `json:"memory_unit_id"`
	QueryText    string    `json:"query_text,omitempty"`
	Score        float32   `json:"score"`
	Position     int       `json:"position"`
	CreatedAt    time.Time `json:"created_at"`
}

// ServiceStatus is the orchestrator's status report.
type ServiceStatus struct {
	Started             bool           `json:"started"`
	UptimeSeconds       int64          `json:"uptime_seconds"`
	ConversationsStored int64          `json:"conversations_stored"`
	MemoryUnitsCreated  int64          `json:"memory_units_created"`
	Searches            int64          `json:"searches"`
	Injections          int64          `json:"injections"`
	MemoriesInjected    int64          `json:"memories_injected"`
	IndexedVectors      int            `json:"indexed_vectors"`
	ModelUsage          map[string]any `json:"model_usage,omitempty"`
}
