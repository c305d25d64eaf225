package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Simple Prometheus-style metrics for HTTP requests and the research
// pipeline. This is intentionally minimal and in-memory only.

var (
	mu             sync.RWMutex
	requestsTotal  = make(map[reqKey]int64)
	latencyMsSum   = make(map[latKey]int64)
	latencyMsCount = make(map[latKey]int64)

	researchTotal       = make(map[researchKey]int64)
	searchQueriesTotal  = make(map[string]int64)
	searchResultsTotal  = make(map[string]int64)
	llmCallsTotal       = make(map[llmKey]int64)
	budgetRefusalsTotal = make(map[string]int64)
)

type reqKey struct {
	Method string
	Path   string
	Status int
}

type latKey struct {
	Method string
	Path   string
}

type researchKey struct {
	Mode      string
	Streaming string
}

type llmKey struct {
	Provider string
	CallSite string
	Success  string
}

// RecordRequest increments request counter and records latency.
func RecordRequest(method, path string, status int, latencyMs int64) {
	mu.Lock()
	defer mu.Unlock()

	rk := reqKey{Method: method, Path: path, Status: status}
	requestsTotal[rk]++

	lk := latKey{Method: method, Path: path}
	latencyMsSum[lk] += latencyMs
	latencyMsCount[lk]++
}

// RecordResearch counts one completed research run by answer mode.
func RecordResearch(mode string, streaming bool) {
	mu.Lock()
	defer mu.Unlock()

	s := "false"
	if streaming {
		s = "true"
	}
	researchTotal[researchKey{Mode: mode, Streaming: s}]++
}

// RecordSearch counts one executed search query and the results it
// produced, labelled by engine.
func RecordSearch(engine string, results int) {
	mu.Lock()
	defer mu.Unlock()

	searchQueriesTotal[engine]++
	if results > 0 {
		searchResultsTotal[engine] += int64(results)
	}
}

// RecordLLMCall counts one upstream chat call by provider and call site
// (decision, digest, continuation, synthesis, direct, summarize).
func RecordLLMCall(provider, callSite string, success bool) {
	mu.Lock()
	defer mu.Unlock()

	s := "false"
	if success {
		s = "true"
	}
	llmCallsTotal[llmKey{Provider: provider, CallSite: callSite, Success: s}]++
}

// RecordBudgetRefusal counts one Governor refusal or truncation by
// reason.
func RecordBudgetRefusal(reason string) {
	mu.Lock()
	defer mu.Unlock()
	budgetRefusalsTotal[reason]++
}

// Export returns Prometheus-style metrics text.
func Export() string {
	mu.RLock()
	defer mu.RUnlock()

	var b strings.Builder

	b.WriteString("# HELP scout_http_requests_total Total HTTP requests\n")
	b.WriteString("# TYPE scout_http_requests_total counter\n")

	// Sort keys for stable output
	var reqKeys []reqKey
	for k := range requestsTotal {
		reqKeys = append(reqKeys, k)
	}
	sort.Slice(reqKeys, func(i, j int) bool {
		if reqKeys[i].Method != reqKeys[j].Method {
			return reqKeys[i].Method < reqKeys[j].Method
		}
		if reqKeys[i].Path != reqKeys[j].Path {
			return reqKeys[i].Path < reqKeys[j].Path
		}
		return reqKeys[i].Status < reqKeys[j].Status
	})

	for _, k := range reqKeys {
		v := requestsTotal[k]
		fmt.Fprintf(&b, "scout_http_requests_total{method=\"%s\",path=\"%s\",status=\"%d\"} %d\n",
			k.Method, k.Path, k.Status, v)
	}

	b.WriteString("# HELP scout_http_request_duration_ms_sum Total request duration in milliseconds\n")
	b.WriteString("# TYPE scout_http_request_duration_ms_sum counter\n")
	b.WriteString("# HELP scout_http_request_duration_ms_count Request count for latency metric\n")
	b.WriteString("# TYPE scout_http_request_duration_ms_count counter\n")

	var latKeys []latKey
	for k := range latencyMsSum {
		latKeys = append(latKeys, k)
	}
	sort.Slice(latKeys, func(i, j int) bool {
		if latKeys[i].Method != latKeys[j].Method {
			return latKeys[i].Method < latKeys[j].Method
		}
		return latKeys[i].Path < latKeys[j].Path
	})

	for _, k := range latKeys {
		sum := latencyMsSum[k]
		cnt := latencyMsCount[k]
		fmt.Fprintf(&b, "scout_http_request_duration_ms_sum{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, sum)
		fmt.Fprintf(&b, "scout_http_request_duration_ms_count{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, cnt)
	}

	b.WriteString("# HELP scout_research_requests_total Total research runs by answer mode\n")
	b.WriteString("# TYPE scout_research_requests_total counter\n")

	var resKeys []researchKey
	for k := range researchTotal {
		resKeys = append(resKeys, k)
	}
	sort.Slice(resKeys, func(i, j int) bool {
		if resKeys[i].Mode != resKeys[j].Mode {
			return resKeys[i].Mode < resKeys[j].Mode
		}
		return resKeys[i].Streaming < resKeys[j].Streaming
	})
	for _, k := range resKeys {
		v := researchTotal[k]
		fmt.Fprintf(&b, "scout_research_requests_total{mode=\"%s\",streaming=\"%s\"} %d\n",
			k.Mode, k.Streaming, v)
	}

	b.WriteString("# HELP scout_search_queries_total Total search queries by engine\n")
	b.WriteString("# TYPE scout_search_queries_total counter\n")

	var engines []string
	for e := range searchQueriesTotal {
		engines = append(engines, e)
	}
	sort.Strings(engines)
	for _, e := range engines {
		fmt.Fprintf(&b, "scout_search_queries_total{engine=\"%s\"} %d\n", e, searchQueriesTotal[e])
	}

	b.WriteString("# HELP scout_search_results_total Total search results returned by engine\n")
	b.WriteString("# TYPE scout_search_results_total counter\n")

	engines = engines[:0]
	for e := range searchResultsTotal {
		engines = append(engines, e)
	}
	sort.Strings(engines)
	for _, e := range engines {
		fmt.Fprintf(&b, "scout_search_results_total{engine=\"%s\"} %d\n", e, searchResultsTotal[e])
	}

	b.WriteString("# HELP scout_llm_calls_total Total upstream LLM calls\n")
	b.WriteString("# TYPE scout_llm_calls_total counter\n")

	var llmKeys []llmKey
	for k := range llmCallsTotal {
		llmKeys = append(llmKeys, k)
	}
	sort.Slice(llmKeys, func(i, j int) bool {
		if llmKeys[i].Provider != llmKeys[j].Provider {
			return llmKeys[i].Provider < llmKeys[j].Provider
		}
		if llmKeys[i].CallSite != llmKeys[j].CallSite {
			return llmKeys[i].CallSite < llmKeys[j].CallSite
		}
		return llmKeys[i].Success < llmKeys[j].Success
	})
	for _, k := range llmKeys {
		v := llmCallsTotal[k]
		fmt.Fprintf(&b, "scout_llm_calls_total{provider=\"%s\",call=\"%s\",success=\"%s\"} %d\n",
			k.Provider, k.CallSite, k.Success, v)
	}

	b.WriteString("# HELP scout_budget_refusals_total Content admissions refused or truncated by reason\n")
	b.WriteString("# TYPE scout_budget_refusals_total counter\n")

	var reasons []string
	for r := range budgetRefusalsTotal {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		fmt.Fprintf(&b, "scout_budget_refusals_total{reason=\"%s\"} %d\n", r, budgetRefusalsTotal[r])
	}

	return b.String()
}
