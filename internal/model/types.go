package model

import "time"

// SearchMode controls whether the orchestrator searches the web,
// answers directly from model knowledge, or lets the model decide.
type SearchMode string

const (
	ModeAuto   SearchMode = "auto"
	ModeSearch SearchMode = "search"
	ModeDirect SearchMode = "direct"
)

// PromptOverrides carries per-request replacements for the built-in
// system prompts and user-prompt templates. Empty fields fall back to
// the configured defaults.
type PromptOverrides struct {
	DecisionSystem   string
	DirectSystem     string
	SearchSystem     string
	DecisionTemplate string
	SearchTemplate   string
}

// Query is the normalized, immutable representation of one research
// request. It is created once at the transport boundary and never
// mutated afterwards.
type Query struct {
	Text         string
	APIKey       string
	Model        string
	SearchMode   SearchMode
	Limit        int
	FetchContent bool
	TimeoutSec   int
	Prompts      PromptOverrides
}

// Result is a single search hit, optionally enriched with fetched page
// content. Content fields are populated under Budget Governor control
// and are read-only afterwards.
type Result struct {
	Title          string   `json:"title"`
	URL            string   `json:"url"`
	Description    string   `json:"description"`
	Score          int      `json:"score"`
	EngineScore    *float64 `json:"engineScore,omitempty"`
	Content        string   `json:"content,omitempty"`
	ContentLength  int      `json:"contentLength,omitempty"`
	Truncated      bool     `json:"truncated,omitempty"`
	OriginalLength int      `json:"originalLength,omitempty"`
	ContentError   string   `json:"contentError,omitempty"`
	FetchTimeMs    int64    `json:"fetchTimeMs,omitempty"`
}

// Link is a compact reference to a source used in a digest.
type Link struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// Digest is the per-query unit of research memory: a short LLM summary
// of one executed search query, two representative links, and the full
// result set the summary was produced from. Digests are appended in
// (Iteration, QueryIndex) order and that order is preserved through
// final synthesis.
type Digest struct {
	SearchQuery string   `json:"searchQuery"`
	Summary     string   `json:"summary"`
	Links       []Link   `json:"links"`
	RawResults  []Result `json:"rawResults"`
	Iteration   int      `json:"iteration"`
	QueryIndex  int      `json:"queryIndex"`
}

// InitialDecision is the outcome of the auto-mode planning call.
// Exactly one of the two variants applies: a direct answer, or a seed
// list of 1-3 search queries.
type InitialDecision struct {
	Response      string
	SearchQueries []string
}

// Direct reports whether the model chose to answer without searching.
func (d InitialDecision) Direct() bool { return len(d.SearchQueries) == 0 }

// ContinuationDecision is produced after each search iteration.
type ContinuationDecision struct {
	Continue    bool
	Reason      string
	NextQueries []string
}

// Usage mirrors the OpenAI-compatible token usage block.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates usage across multiple upstream calls.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// EventType names one entry in the streaming lifecycle protocol.
type EventType string

const (
	EventLog           EventType = "log"
	EventInit          EventType = "init"
	EventStep          EventType = "step"
	EventDecision      EventType = "decision"
	EventSearch        EventType = "search"
	EventSearchResults EventType = "search_results"
	EventContinuation  EventType = "continuation"
	EventFinalResponse EventType = "final_response"
	EventComplete      EventType = "complete"
	EventError         EventType = "error"
)

// StepType names the orchestrator phase a step event announces.
type StepType string

const (
	StepInitialDecision   StepType = "initial_decision"
	StepSearchIteration   StepType = "search_iteration"
	StepContinuationCheck StepType = "continuation_check"
	StepSearchComplete    StepType = "search_complete"
	StepFinalGeneration   StepType = "final_generation"
)

// Event is one entry on the orchestrator's lifecycle stream. No event
// follows a terminal complete or error.
type Event struct {
	Type      EventType `json:"type"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent stamps an event with the current time.
func NewEvent(t EventType, payload any) Event {
	return Event{Type: t, Payload: payload, Timestamp: time.Now().UTC()}
}

// AnswerMode describes how the final answer was produced.
type AnswerMode string

const (
	AnswerDirect      AnswerMode = "direct"
	AnswerSearch      AnswerMode = "search"
	AnswerMultiSearch AnswerMode = "multi-search"
)
