package llm

import (
	"context"
	"strings"

	"scout/internal/metrics"
	"scout/internal/model"
)

// CallOpts carries the per-request credential and model selection
// shared by every call site.
type CallOpts struct {
	APIKey string
	Model  string
}

// Service exposes the research call sites on top of a chat transport:
// initial decision, per-query digest, continuation decision, final
// synthesis, direct answering, and content pre-summarization.
type Service struct {
	chat       Chatter
	cheapModel string
}

// NewService constructs the call-site layer. cheapModel is used for
// pre-summarization of oversized page content; empty means reuse the
// request model.
func NewService(chat Chatter, cheapModel string) *Service {
	return &Service{chat: chat, cheapModel: cheapModel}
}

func zeroTemp() *float64 {
	t := 0.0
	return &t
}

// record counts one upstream call for the metrics export. Unparseable
// model strings are attributed to the default provider.
func record(modelStr, callSite string, err error) {
	provider, _, perr := ParseModel(modelStr)
	if perr != nil {
		provider = ProviderGroq
	}
	metrics.RecordLLMCall(string(provider), callSite, err == nil)
}

// DecideInitial runs the auto-mode planning call. The output is always
// usable: parse failures degrade to searching the original question.
func (s *Service) DecideInitial(ctx context.Context, opts CallOpts, question string, ov model.PromptOverrides) (model.InitialDecision, model.Usage, error) {
	system := DefaultDecisionSystem
	if ov.DecisionSystem != "" {
		system = ov.DecisionSystem
	}
	template := DefaultDecisionTemplate
	if ov.DecisionTemplate != "" {
		template = ov.DecisionTemplate
	}

	result, err := s.chat.Chat(ctx, opts.APIKey, ChatRequest{
		Model: opts.Model,
		Messages: []Message{
			{Role: "system", Content: system},
			{Role: "user", Content: RenderTemplate(template, question, "")},
		},
		Temperature: zeroTemp(),
	})
	record(opts.Model, "decision", err)
	if err != nil {
		return model.InitialDecision{}, model.Usage{}, err
	}
	return ParseInitialDecision(result.Content, question), result.Usage, nil
}

// DigestResults summarizes one query's top results in 2-4 sentences.
func (s *Service) DigestResults(ctx context.Context, opts CallOpts, question, searchQuery string, results []model.Result) (string, model.Usage, error) {
	result, err := s.chat.Chat(ctx, opts.APIKey, ChatRequest{
		Model: opts.Model,
		Messages: []Message{
			{Role: "system", Content: digestSystem},
			{Role: "user", Content: digestPrompt(question, searchQuery, results)},
		},
	})
	record(opts.Model, "digest", err)
	if err != nil {
		return "", model.Usage{}, err
	}
	return strings.TrimSpace(result.Content), result.Usage, nil
}

// DecideContinuation asks whether another iteration is warranted.
// Parse failures stop the loop.
func (s *Service) DecideContinuation(ctx context.Context, opts CallOpts, question string, digests []model.Digest, iteration, maxIterations int) (model.ContinuationDecision, model.Usage, error) {
	result, err := s.chat.Chat(ctx, opts.APIKey, ChatRequest{
		Model: opts.Model,
		Messages: []Message{
			{Role: "system", Content: continuationSystem},
			{Role: "user", Content: continuationPrompt(question, digests, iteration, maxIterations)},
		},
		Temperature: zeroTemp(),
	})
	record(opts.Model, "continuation", err)
	if err != nil {
		return model.ContinuationDecision{}, model.Usage{}, err
	}
	return ParseContinuation(result.Content), result.Usage, nil
}

// Synthesize produces the final cited answer from all digests. This is
// the one call site that always retries transient upstream failures.
func (s *Service) Synthesize(ctx context.Context, opts CallOpts, question string, digests []model.Digest, ov model.PromptOverrides) (string, model.Usage, error) {
	system := DefaultSearchSystem
	if ov.SearchSystem != "" {
		system = ov.SearchSystem
	}

	resultCount := 0
	for _, d := range digests {
		resultCount += len(d.RawResults)
	}
	template := synthesisTemplate(ov.SearchTemplate, resultCount)
	searchContext := BuildSearchContext(digests)

	result, err := s.chat.ChatWithRetry(ctx, opts.APIKey, ChatRequest{
		Model: opts.Model,
		Messages: []Message{
			{Role: "system", Content: system},
			{Role: "user", Content: RenderTemplate(template, question, searchContext)},
		},
	})
	record(opts.Model, "synthesis", err)
	if err != nil {
		return "", model.Usage{}, err
	}
	return strings.TrimSpace(result.Content), result.Usage, nil
}

// DirectAnswer answers from model knowledge without any search.
func (s *Service) DirectAnswer(ctx context.Context, opts CallOpts, question string, ov model.PromptOverrides) (string, model.Usage, error) {
	system := DefaultDirectSystem
	if ov.DirectSystem != "" {
		system = ov.DirectSystem
	}

	result, err := s.chat.Chat(ctx, opts.APIKey, ChatRequest{
		Model: opts.Model,
		Messages: []Message{
			{Role: "system", Content: system},
			{Role: "user", Content: question},
		},
	})
	record(opts.Model, "direct", err)
	if err != nil {
		return "", model.Usage{}, err
	}
	return strings.TrimSpace(result.Content), result.Usage, nil
}

// Summarize compresses oversized page content to at most 300 words
// using the cheap model when one is configured.
func (s *Service) Summarize(ctx context.Context, opts CallOpts, question, content string) (string, model.Usage, error) {
	modelStr := s.cheapModel
	if modelStr == "" {
		modelStr = opts.Model
	}

	result, err := s.chat.Chat(ctx, opts.APIKey, ChatRequest{
		Model: modelStr,
		Messages: []Message{
			{Role: "system", Content: summarizeSystem},
			{Role: "user", Content: "Question: " + question + "\n\nContent:\n" + content},
		},
	})
	record(modelStr, "summarize", err)
	if err != nil {
		return "", model.Usage{}, err
	}
	return strings.TrimSpace(result.Content), result.Usage, nil
}
