// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package database

import (
	"time"
)

// RawExperience is a short-term record of a conversation exchange,
// monologue cycle or external fragment, pending consolidation.
type RawExperience struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Kind      string    `gorm:"not null;index" json:"kind"`
	Timestamp time.Time `gorm:"not null;index" json:"timestamp"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Embedding []byte    `gorm:"type:blob" json:"-"`
	Salience  float64   `gorm:"not null" json:"salience"`
	Processed bool      `gorm:"not null;index;default:false" json:"processed"`
	Metadata  string    `gorm:"type:text" json:"metadata"` // JSON metadata
}

// TableName specifies the table name for RawExperience
func (RawExperience) TableName() string {
	return "raw_experiences"
}

// Episode is the durable abstraction of one or more raw experiences.
// Exemplars, temporal neighbours, gap and topics are stored as JSON.
type Episode struct {
	ID             string    `gorm:"primaryKey" json:"id"`
	CreatedAt      time.Time `gorm:"not null" json:"created_at"`
	LastAccessedAt time.Time `gorm:"not null" json:"last_accessed_at"`
	AccessCount    int       `gorm:"not null;default:0" json:"access_count"`
	Summary        string    `gorm:"type:text;not null" json:"summary"`
	Embedding      []byte    `gorm:"type:blob;not null" json:"-"`
	Exemplars      string    `gorm:"type:text" json:"exemplars"`       // JSON array
	TemporalBefore string    `gorm:"type:text" json:"temporal_before"` // JSON id list
	TemporalAfter  string    `gorm:"type:text" json:"temporal_after"`  // JSON id list
	Gap            string    `gorm:"type:text" json:"gap"`             // JSON gap record
	Salience       float64   `gorm:"not null" json:"salience"`
	Confidence     float64   `gorm:"not null" json:"confidence"`
	Topics         string    `gorm:"type:text" json:"topics"` // JSON string list
}

// TableName specifies the table name for Episode
func (Episode) TableName() string {
	return "episodes"
}

// EpisodeLink is a directed weighted edge between two episodes.
// Links are never deleted, only weakened by decay.
type EpisodeLink struct {
	FromID   string  `gorm:"primaryKey" json:"from_id"`
	ToID     string  `gorm:"primaryKey" json:"to_id"`
	Strength float64 `gorm:"not null;default:0.5" json:"strength"`
	Kind     string  `gorm:"not null" json:"kind"`
}

// TableName specifies the table name for EpisodeLink
func (EpisodeLink) TableName() string {
	return "episode_links"
}

// SelfModelRow is the singleton identity record. List- and record-valued
// fields are stored as JSON text.
type SelfModelRow struct {
	ID                uint      `gorm:"primaryKey" json:"id"` // always 1
	Narrative         string    `gorm:"type:text" json:"narrative"`
	Values            string    `gorm:"type:text" json:"values"`       // JSON string list
	Tendencies        string    `gorm:"type:text" json:"tendencies"`   // JSON string list
	Relationship      string    `gorm:"type:text" json:"relationship"` // JSON sub-record
	Strengths         string    `gorm:"type:text" json:"strengths"`
	Limitations       string    `gorm:"type:text" json:"limitations"`
	CurrentFocus      string    `gorm:"type:text" json:"current_focus"`
	UnresolvedThreads string    `gorm:"type:text" json:"unresolved_threads"`
	Anticipations     string    `gorm:"type:text" json:"anticipations"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TableName specifies the table name for SelfModelRow
func (SelfModelRow) TableName() string {
	return "self_model"
}

// MonologueState is the singleton monologue checkpoint, written on shutdown
// and read on wake to decide whether to resume mid-thought.
type MonologueState struct {
	ID          uint      `gorm:"primaryKey" json:"id"` // always 1
	LastBuffer  string    `gorm:"type:text" json:"last_buffer"`
	LastContext string    `gorm:"type:text" json:"last_context"` // JSON snapshot
	Quiescent   bool      `gorm:"not null;default:true" json:"quiescent"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName specifies the table name for MonologueState
func (MonologueState) TableName() string {
	return "monologue_state"
}

// Gap records an inter-conversation silence.
type Gap struct {
	ID              string     `gorm:"primaryKey" json:"id"`
	ConversationID  string     `gorm:"index" json:"conversation_id"`
	StartedAt       time.Time  `gorm:"not null" json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationSeconds *float64   `json:"duration_seconds,omitempty"`
	Significance    string     `gorm:"type:text" json:"significance"`
}

// TableName specifies the table name for Gap
func (Gap) TableName() string {
	return "gaps"
}

// CircuitBreakerEvent is an append-only record of a safety intervention.
type CircuitBreakerEvent struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Timestamp      time.Time `gorm:"not null;index" json:"timestamp"`
	Action         string    `gorm:"not null" json:"action"`
	Reason         string    `gorm:"not null" json:"reason"`
	Severity       string    `gorm:"not null" json:"severity"`
	BufferSnapshot string    `gorm:"type:text" json:"buffer_snapshot"`
	ResponseTaken  string    `gorm:"type:text" json:"response_taken"`
}

// TableName specifies the table name for CircuitBreakerEvent
func (CircuitBreakerEvent) TableName() string {
	return "circuit_breaker_events"
}

// ExperienceKind constants for raw experiences
const (
	ExperienceKindConversation = "conversation"
	ExperienceKindMonologue    = "monologue"
	ExperienceKindExternal     = "external"
)

// ValidExperienceKinds returns all valid raw experience kinds
func ValidExperienceKinds() []string {
	return []string{
		ExperienceKindConversation,
		ExperienceKindMonologue,
		ExperienceKindExternal,
	}
}

// IsValidExperienceKind checks if an experience kind is valid
func IsValidExperienceKind(kind string) bool {
	for _, valid := range ValidExperienceKinds() {
		if kind == valid {
			return true
		}
	}
	return false
}

// LinkKind constants for episode links
const (
	LinkKindCausal    = "causal"
	LinkKindThematic  = "thematic"
	LinkKindTemporal  = "temporal"
	LinkKindEmotional = "emotional"
)

// ValidLinkKinds returns all valid episode link kinds
func ValidLinkKinds() []string {
	return []string{
		LinkKindCausal,
		LinkKindThematic,
		LinkKindTemporal,
		LinkKindEmotional,
	}
}

// IsValidLinkKind checks if a link kind is valid
func IsValidLinkKind(kind string) bool {
	for _, valid := range ValidLinkKinds() {
		if kind == valid {
			return true
		}
	}
	return false
}
