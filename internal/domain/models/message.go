package models

import (
	"time"
)

// Message types
const (
	MessageTypeHuman     = "human"
	MessageTypeAssistant = "assistant"
	MessageTypeSystem    = "system"
	MessageTypeTool      = "tool"
)

// Message is a single turn inside a conversation. Content may be
// multi-megabyte; the token count is an estimate, not a tokenizer count.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	MessageType    string         `json:"message_type"`
	Content        string         `json:"content"`
	Timestamp      time.Time      `json:"timestamp"`
	TokenCount     int            `json:"token_count"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

func NewMessage(id, conversationID, messageType, content string) *Message {
	return &Message{
		ID:             id,
		ConversationID: conversationID,
		MessageType:    messageType,
		Content:        content,
		Timestamp:      time.Now().UTC(),
	}
}

// ValidMessageType reports whether t is one of the known message types.
func ValidMessageType(t string) bool {
	switch t {
	case MessageTypeHuman, MessageTypeAssistant, MessageTypeSystem, MessageTypeTool:
		return true
	}
	return false
}

// NormalizeRole maps external role names (capture wrapper, OpenAI-style
// payloads) onto message types.
func NormalizeRole(role string) string {
	switch role {
	case "user", "human":
		return MessageTypeHuman
	case "assistant", "ai":
		return MessageTypeAssistant
	case "system":
		return MessageTypeSystem
	case "tool", "function":
		return MessageTypeTool
	}
	return MessageTypeHuman
}
