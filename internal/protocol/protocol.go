// Package protocol defines the messages exchanged between the dispatcher and
// the background compute worker.
//
// Requests are {type, id, data} and responses are {type, id, data} or
// {type: "ERROR", id, request, error}. Data always crosses as encoded JSON,
// so the two sides never share memory.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/muchacho/personal-manager/internal/schema"
)

// Type is the message discriminator.
type Type string

// Request types.
const (
	Summarize       Type = "SUMMARIZE"
	AnalyzeAll      Type = "ANALYZE_ALL"
	PrioritizeTodos Type = "PRIORITIZE_TODOS"
	SecurityHealth  Type = "SECURITY_HEALTH"
	DailyBriefing   Type = "DAILY_BRIEFING"
	FindSimilar     Type = "FIND_SIMILAR"
	GetEmbedding    Type = "GET_EMBEDDING"
)

// Response types.
const (
	SummarizeResult  Type = "SUMMARIZE_RESULT"
	AnalyzeResult    Type = "ANALYZE_RESULT"
	PrioritizeResult Type = "PRIORITIZE_RESULT"
	SecurityResult   Type = "SECURITY_RESULT"
	BriefingResult   Type = "BRIEFING_RESULT"
	SimilarResult    Type = "SIMILAR_RESULT"
	EmbeddingResult  Type = "EMBEDDING_RESULT"

	Error Type = "ERROR"
)

var responseFor = map[Type]Type{
	Summarize:       SummarizeResult,
	AnalyzeAll:      AnalyzeResult,
	PrioritizeTodos: PrioritizeResult,
	SecurityHealth:  SecurityResult,
	DailyBriefing:   BriefingResult,
	FindSimilar:     SimilarResult,
	GetEmbedding:    EmbeddingResult,
}

// ResponseType returns the response type paired with a request type.
func ResponseType(request Type) (Type, bool) {
	t, ok := responseFor[request]
	return t, ok
}

// Message is one unit on the wire.
type Message struct {
	Type Type   `json:"type"`
	ID   string `json:"id,omitempty"` // correlation id, echoed by the worker

	Data json.RawMessage `json:"data,omitempty"`

	// Set on ERROR messages only.
	Request Type   `json:"request,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewMessage encodes data into a message of type t.
func NewMessage(t Type, id string, data any) (Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, fmt.Errorf("failed to encode %s payload: %w", t, err)
	}
	return Message{Type: t, ID: id, Data: raw}, nil
}

// NewError builds an ERROR message answering request.
func NewError(request Message, err error) Message {
	return Message{Type: Error, ID: request.ID, Request: request.Type, Error: err.Error()}
}

// Decode unmarshals the message payload into v.
func (m Message) Decode(v any) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("%s message has no data", m.Type)
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", m.Type, err)
	}
	return nil
}

// SummarizeRequest asks for an extractive summary of one note.
type SummarizeRequest struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Sentences int    `json:"sentences,omitempty"` // 0 means the default of 3
}

// SummarizeResponse carries the summary for note ID.
type SummarizeResponse struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
}

// AnalyzeRequest asks for a strategy analysis over notes.
type AnalyzeRequest struct {
	Notes []schema.Note `json:"notes"`
}

// PrioritizeRequest asks for todos scored and sorted. Now anchors due-date
// arithmetic; zero means the worker's clock.
type PrioritizeRequest struct {
	Todos []schema.Todo `json:"todos"`
	Now   time.Time     `json:"now,omitzero"`
}

// SecurityRequest asks for a health report over password values.
type SecurityRequest struct {
	Passwords []schema.Password `json:"passwords"`
}

// BriefingRequest asks for the daily briefing. Today is YYYY-MM-DD; empty
// means the worker's current UTC date.
type BriefingRequest struct {
	Todos []schema.Todo `json:"todos"`
	Notes []schema.Note `json:"notes"`
	Today string        `json:"today,omitempty"`
}

// SimilarRequest asks which of Texts[1:] resemble Texts[0]. IDs is parallel to Texts.
type SimilarRequest struct {
	Texts []string `json:"texts"`
	IDs   []string `json:"ids"`
}

// EmbeddingRequest asks for the embedding of one note.
type EmbeddingRequest struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// EmbeddingResponse carries the embedding for note ID.
type EmbeddingResponse struct {
	ID        string    `json:"id"`
	Embedding []float64 `json:"embedding"`
}
