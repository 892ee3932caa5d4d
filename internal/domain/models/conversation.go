package models

import (
	"time"
)

// Conversation status values
const (
	ConversationStatusActive    = "active"
	ConversationStatusCompleted = "completed"
	ConversationStatusArchived  = "archived"
)

// ProjectGlobal is the reserved project tag shared across all projects.
const ProjectGlobal = "global"

// MaxProjectIDLen bounds the project tag length in bytes.
const MaxProjectIDLen = 64

// Conversation is a captured assistant session: an ordered set of messages
// plus aggregate counters maintained by the orchestrator.
type Conversation struct {
	ID             string         `json:"id"`
	ProjectID      string         `json:"project_id"`
	SessionID      string         `json:"session_id,omitempty"`
	Title          string         `json:"title,omitempty"`
	StartedAt      time.Time      `json:"started_at"`
	LastActivityAt time.Time      `json:"last_activity_at"`
	MessageCount   int            `json:"message_count"`
	TokenCount     int            `json:"token_count"`
	Status         string         `json:"status"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

func NewConversation(id, projectID, title string) *Conversation {
	now := time.Now().UTC()
	if projectID == "" {
		projectID = ProjectGlobal
	}
	if len(projectID) > MaxProjectIDLen {
		projectID = projectID[:MaxProjectIDLen]
	}
	return &Conversation{
		ID:             id,
		ProjectID:      projectID,
		Title:          title,
		StartedAt:      now,
		LastActivityAt: now,
		Status:         ConversationStatusActive,
		Metadata:       map[string]any{},
	}
}

func (c *Conversation) IsActive() bool {
	return c.Status == ConversationStatusActive
}

// Touch updates the activity timestamp and aggregate counters after
// messages were appended.
func (c *Conversation) Touch(addedMessages, addedTokens int) {
	c.MessageCount += addedMessages
	c.TokenCount += addedTokens
	c.LastActivityAt = time.Now().UTC()
}
