package http

import (
	"time"

	"scout/internal/model"
)

// ResearchRequest is the inbound JSON body. All fields are snake_case
// at the boundary; the handler normalizes into model.Query.
type ResearchRequest struct {
	Query        string `json:"query" validate:"required"`
	APIKey       string `json:"api_key" validate:"required"`
	AccessSecret string `json:"access_secret"`
	Model        string `json:"model"`
	SearchMode   string `json:"search_mode" validate:"omitempty,oneof=auto search direct"`
	Limit        *int   `json:"limit" validate:"omitempty,min=1,max=20"`
	Content      *bool  `json:"content"`
	Timeout      *int   `json:"timeout" validate:"omitempty,min=1,max=120"`

	SystemPromptDecision string `json:"system_prompt_decision"`
	SystemPromptDirect   string `json:"system_prompt_direct"`
	SystemPromptSearch   string `json:"system_prompt_search"`
	DecisionTemplate     string `json:"decision_template"`
	SearchTemplate       string `json:"search_template"`

	GoogleToken string `json:"google_token"`
}

// ErrorResponse is the uniform failure envelope. Detail carries the
// original error text only when the debug flag is set.
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	ErrorType string `json:"errorType"`
	Detail    string `json:"detail,omitempty"`
}

// LLMResponseInfo summarizes the upstream LLM work for one request.
type LLMResponseInfo struct {
	Model              string      `json:"model"`
	Usage              model.Usage `json:"usage"`
	ProcessingTime     int64       `json:"processingTime"`
	SearchIterations   int         `json:"searchIterations"`
	TotalSearchQueries int         `json:"totalSearchQueries"`
}

// ResearchResponse is the non-streaming success body.
type ResearchResponse struct {
	Success          bool             `json:"success"`
	Query            string           `json:"query"`
	Answer           string           `json:"answer"`
	SearchResults    []model.Result   `json:"searchResults"`
	SearchSummaries  []string         `json:"searchSummaries"`
	Links            []model.Link     `json:"links"`
	LLMResponse      LLMResponseInfo  `json:"llmResponse"`
	ProcessingTimeMs int64            `json:"processingTimeMs"`
	Timestamp        time.Time        `json:"timestamp"`
	Mode             model.AnswerMode `json:"mode"`
}
