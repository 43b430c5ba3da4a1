// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package ipc

// Request types accepted on the socket
const (
	RequestChat            = "chat"
	RequestStatus          = "status"
	RequestConsolidate     = "consolidate"
	RequestMonologueStream = "monologue_stream"
	RequestMemoryStats     = "memory_stats"
	RequestMemorySearch    = "memory_search"
	RequestShutdown        = "shutdown"
)

// Response types emitted on the socket
const (
	ResponseChatChunk        = "chat_chunk"
	ResponseChatDone         = "chat_done"
	ResponseStatus           = "status"
	ResponseMonologueChunk   = "monologue_chunk"
	ResponseProactiveMessage = "proactive_message"
	ResponseError            = "error"
	ResponseOK               = "ok"
)

// Request is one newline-delimited JSON record from the client. The
// requestId is client-generated; every response to it echoes it back.
type Request struct {
	Type           string `json:"type"`
	RequestID      string `json:"requestId,omitempty"`
	Message        string `json:"message,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Query          string `json:"query,omitempty"`
}

// MemoryStats summarises the memory system for status replies
type MemoryStats struct {
	RawBufferCount int64 `json:"raw_buffer_count"`
	EpisodeCount   int   `json:"episode_count"`
	LinkCount      int   `json:"link_count"`
}

// SearchResult is one memory_search hit
type SearchResult struct {
	ID         string   `json:"id"`
	Summary    string   `json:"summary"`
	Topics     []string `json:"topics,omitempty"`
	Similarity float64  `json:"similarity"`
	Salience   float64  `json:"salience"`
	Score      float64  `json:"score"`
}

// Response is one newline-delimited JSON record to the client
type Response struct {
	Type              string       `json:"type"`
	RequestID         string       `json:"requestId,omitempty"`
	Content           string       `json:"content,omitempty"`
	Message           string       `json:"message,omitempty"`
	UptimeMS          int64        `json:"uptime_ms,omitempty"`
	MonologueState    string       `json:"monologue_state,omitempty"`
	MemoryStats       *MemoryStats `json:"memory_stats,omitempty"`
	LastConsolidation string       `json:"last_consolidation,omitempty"`
	Data              interface{}  `json:"data,omitempty"`
}
