package http

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"scout/internal/config"
	"scout/internal/llm"
	"scout/internal/metrics"
	"scout/internal/model"
	"scout/internal/orchestrator"
)

var validate = validator.New()

func researchHandler(c *fiber.Ctx) error {
	cfg := c.Locals("config").(*config.Config)
	logger := c.Locals("logger").(*slog.Logger)
	run := c.Locals("research").(researchRunner)
	verifier, _ := c.Locals("verifier").(tokenVerifier)
	debug := cfg.Server.Debug

	req, err := parseResearchBody(c.Body())
	if err != nil {
		return fail(c, fiber.StatusBadRequest, ErrTypeInvalidInput, "Bad request, malformed JSON", err, debug)
	}
	req.Query = strings.TrimSpace(req.Query)

	if err := validate.Struct(req); err != nil {
		return fail(c, fiber.StatusBadRequest, ErrTypeInvalidInput, validationMessage(err), err, debug)
	}
	if req.DecisionTemplate != "" {
		if err := llm.ValidateTemplate(req.DecisionTemplate, false); err != nil {
			return fail(c, fiber.StatusBadRequest, ErrTypeInvalidInput, "Invalid decision_template: "+err.Error(), err, debug)
		}
	}
	if req.SearchTemplate != "" {
		if err := llm.ValidateTemplate(req.SearchTemplate, true); err != nil {
			return fail(c, fiber.StatusBadRequest, ErrTypeInvalidInput, "Invalid search_template: "+err.Error(), err, debug)
		}
	}
	if req.Model != "" {
		if _, _, err := llm.ParseModel(req.Model); err != nil {
			return fail(c, fiber.StatusBadRequest, ErrTypeInvalidInput, "Invalid model: "+err.Error(), err, debug)
		}
	}

	if err := authorize(c.Context(), cfg, verifier, req); err != nil {
		return fail(c, fiber.StatusUnauthorized, ErrTypeUnauthorized, "Unauthorized", err, debug)
	}

	q := normalizeQuery(cfg, req)

	if wantsStream(c) {
		return streamResearch(c, q, run, logger)
	}

	start := time.Now()
	out, err := run(c.Context(), q, nil)
	if err != nil {
		status, errType, message := mapError(err)
		logger.Error("research failed", "request_id", c.Locals("request_id"), "errorType", errType, "error", err)
		return fail(c, status, errType, message, err, debug)
	}

	metrics.RecordResearch(string(out.Mode), false)
	logger.Info("research complete",
		"request_id", c.Locals("request_id"),
		"mode", out.Mode,
		"iterations", out.Iterations,
		"queries", out.TotalQueries,
		"results", out.TotalResults,
		"processing_ms", out.ProcessingTimeMs,
	)

	return c.JSON(buildResponse(q, out, time.Since(start).Milliseconds()))
}

// parseResearchBody decodes the request body, accepting a base64
// wrapping applied by some enclosing runtimes.
func parseResearchBody(body []byte) (*ResearchRequest, error) {
	raw := strings.TrimSpace(string(body))
	if raw == "" {
		return nil, errors.New("empty body")
	}
	if !strings.HasPrefix(raw, "{") {
		decoded, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, errors.New("body is neither JSON nor base64-encoded JSON")
		}
		raw = string(decoded)
	}

	var req ResearchRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// validationMessage flattens the first validator failure into a client
// message that never echoes field values.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		f := verrs[0]
		switch f.Tag() {
		case "required":
			return "Missing required field '" + snakeField(f.Field()) + "'"
		case "oneof":
			return "Field '" + snakeField(f.Field()) + "' must be one of: " + f.Param()
		default:
			return "Field '" + snakeField(f.Field()) + "' is invalid"
		}
	}
	return "Invalid request"
}

func snakeField(name string) string {
	switch name {
	case "Query":
		return "query"
	case "APIKey":
		return "api_key"
	case "SearchMode":
		return "search_mode"
	case "Limit":
		return "limit"
	case "Timeout":
		return "timeout"
	default:
		return strings.ToLower(name)
	}
}

// normalizeQuery applies configured defaults and produces the immutable
// query the orchestrator works from.
func normalizeQuery(cfg *config.Config, req *ResearchRequest) model.Query {
	mode := model.SearchMode(req.SearchMode)
	if mode == "" {
		mode = model.ModeAuto
	}

	limit := cfg.Search.DefaultLimit
	if req.Limit != nil && *req.Limit > 0 {
		limit = *req.Limit
	}

	timeoutSec := cfg.Scraper.TimeoutSec
	if req.Timeout != nil && *req.Timeout > 0 {
		timeoutSec = *req.Timeout
	}

	modelStr := req.Model
	if modelStr == "" {
		modelStr = cfg.LLM.DefaultModel
	}

	// The content flag is a hint only; the orchestrator still fetches
	// page text whenever synthesis needs it.
	fetchContent := true
	if req.Content != nil {
		fetchContent = *req.Content
	}

	// Per-request overrides win; configured prompts replace the
	// built-ins for everything else.
	prompts := model.PromptOverrides{
		DecisionSystem:   req.SystemPromptDecision,
		DirectSystem:     req.SystemPromptDirect,
		SearchSystem:     req.SystemPromptSearch,
		DecisionTemplate: req.DecisionTemplate,
		SearchTemplate:   req.SearchTemplate,
	}
	if prompts.DecisionSystem == "" {
		prompts.DecisionSystem = cfg.Prompts.DecisionSystem
	}
	if prompts.DirectSystem == "" {
		prompts.DirectSystem = cfg.Prompts.DirectSystem
	}
	if prompts.SearchSystem == "" {
		prompts.SearchSystem = cfg.Prompts.SearchSystem
	}

	return model.Query{
		Text:         req.Query,
		APIKey:       req.APIKey,
		Model:        modelStr,
		SearchMode:   mode,
		Limit:        limit,
		FetchContent: fetchContent,
		TimeoutSec:   timeoutSec,
		Prompts:      prompts,
	}
}

func wantsStream(c *fiber.Ctx) bool {
	if strings.Contains(c.Get("Accept"), "text/event-stream") {
		return true
	}
	return c.Query("stream") == "true"
}

// maxResponseLinks caps the deduplicated link list in the response.
const maxResponseLinks = 10

func buildResponse(q model.Query, out *orchestrator.Outcome, elapsedMs int64) ResearchResponse {
	results := out.AllResults()
	links := out.Links(maxResponseLinks)
	summaries := out.Summaries()

	// Search outcomes serialize empty arrays even when nothing was
	// found; a direct answer serializes the fields as null.
	if out.Mode != model.AnswerDirect {
		if results == nil {
			results = []model.Result{}
		}
		if links == nil {
			links = []model.Link{}
		}
		if summaries == nil {
			summaries = []string{}
		}
	} else {
		summaries = nil
	}

	return ResearchResponse{
		Success:         true,
		Query:           q.Text,
		Answer:          out.Answer,
		SearchResults:   results,
		SearchSummaries: summaries,
		Links:           links,
		LLMResponse: LLMResponseInfo{
			Model:              q.Model,
			Usage:              out.Usage,
			ProcessingTime:     out.ProcessingTimeMs,
			SearchIterations:   out.Iterations,
			TotalSearchQueries: out.TotalQueries,
		},
		ProcessingTimeMs: elapsedMs,
		Timestamp:        time.Now().UTC(),
		Mode:             out.Mode,
	}
}
