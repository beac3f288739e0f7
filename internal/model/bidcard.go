package model

import "time"

// CardStatus represents the lifecycle state of a potential bid card.
type CardStatus string

const (
	CardStatusDraft     CardStatus = "draft"
	CardStatusReady     CardStatus = "ready"
	CardStatusConverted CardStatus = "converted"
)

// FieldSource tags who wrote a field value.
type FieldSource string

const (
	SourceAIExtraction FieldSource = "ai_extraction" // automated extraction from conversation turns
	SourceUserEdit     FieldSource = "user_edit"     // direct edit by the homeowner
	SourceBulkMerge    FieldSource = "bulk_merge"    // collected-info merge from an agent
)

// FieldEntry is the current value of a single field plus its provenance.
// Only the latest value is authoritative, but the provenance of the winning
// write is retained for conversion-time auditing.
type FieldEntry struct {
	Value      any         `json:"value"`
	Source     FieldSource `json:"source"`
	Confidence float64     `json:"confidence"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// PotentialBidCard is the mutable draft record assembled across a
// conversation. It is promoted into an OfficialBidCard exactly once.
type PotentialBidCard struct {
	ID                   string                `json:"id"`
	ConversationID       string                `json:"conversation_id"`
	SessionID            string                `json:"session_id,omitempty"`
	UserID               string                `json:"user_id,omitempty"`
	Status               CardStatus            `json:"status"`
	Fields               map[string]FieldEntry `json:"fields"`
	CompletionPercentage int                   `json:"completion_percentage"`
	CreatedAt            time.Time             `json:"created_at"`
	UpdatedAt            time.Time             `json:"updated_at"`
}

// Clone returns a deep copy of the card. Stores hand out clones so callers
// can never mutate persisted state behind the store's back.
func (c *PotentialBidCard) Clone() *PotentialBidCard {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Fields = make(map[string]FieldEntry, len(c.Fields))
	for k, v := range c.Fields {
		cp.Fields[k] = v
	}
	return &cp
}

// Converted reports whether the card has been promoted.
func (c *PotentialBidCard) Converted() bool {
	return c.Status == CardStatusConverted
}
