package budget

import (
	"runtime"
	"sync"
)

// Default ceilings reflecting a 128 MB process envelope with a 16 MB
// safety margin, and a 32k-token downstream context.
const (
	DefaultMaxContentBytes = (128 - 16) * 1024 * 1024
	DefaultHeapGuardBytes  = 128 * 1024 * 1024 * 8 / 10
	DefaultMaxTokens       = 32000
	DefaultMaxPerPageChars = 4000

	// Candidates that cannot be admitted with at least this many bytes
	// are rejected outright rather than truncated into uselessness.
	truncationFloorBytes = 500
)

// Truncation markers appended to content that was cut by the governor.
const (
	MarkerTokenOptimized  = "[Content optimized for token efficiency]"
	MarkerMemoryTruncated = "[Content truncated due to memory limits]"
)

// State is a read-only snapshot of the governor's accounting. Both
// byte and token counters are monotone non-decreasing for the life of
// a request.
type State struct {
	TotalContentBytes int `json:"totalContentBytes"`
	MaxContentBytes   int `json:"maxContentBytes"`
	CurrentTokens     int `json:"currentTokens"`
	MaxTokens         int `json:"maxTokens"`
	MaxPerPageChars   int `json:"maxPerPageChars"`
}

// Admission describes the outcome of one AdmitContent call.
type Admission struct {
	Admitted       bool
	Truncated      bool
	Reason         string
	OriginalLength int
	AdmittedLength int
}

// Governor enforces the per-request byte and token ceilings. It is the
// only component that mutates budget state; every fetcher funnels
// candidate content through it. Safe for concurrent use.
type Governor struct {
	mu sync.Mutex

	totalContentBytes int
	maxContentBytes   int
	currentTokens     int
	maxTokens         int
	maxPerPageChars   int
	heapGuard         uint64

	// heapInUse is swappable so tests can simulate memory pressure.
	heapInUse func() uint64
}

// Option customizes a Governor.
type Option func(*Governor)

// WithMaxContentBytes overrides the byte ceiling.
func WithMaxContentBytes(n int) Option {
	return func(g *Governor) { g.maxContentBytes = n }
}

// WithMaxTokens overrides the token ceiling.
func WithMaxTokens(n int) Option {
	return func(g *Governor) { g.maxTokens = n }
}

// WithMaxPerPageChars overrides the per-page content cap.
func WithMaxPerPageChars(n int) Option {
	return func(g *Governor) { g.maxPerPageChars = n }
}

// WithHeapGuard overrides the process heap guard in bytes.
func WithHeapGuard(n uint64) Option {
	return func(g *Governor) { g.heapGuard = n }
}

// WithHeapProbe replaces the process memory signal, used in tests.
func WithHeapProbe(f func() uint64) Option {
	return func(g *Governor) { g.heapInUse = f }
}

// NewGovernor constructs a Governor with the default ceilings.
func NewGovernor(opts ...Option) *Governor {
	g := &Governor{
		maxContentBytes: DefaultMaxContentBytes,
		maxTokens:       DefaultMaxTokens,
		maxPerPageChars: DefaultMaxPerPageChars,
		heapGuard:       DefaultHeapGuardBytes,
		heapInUse:       readHeapInUse,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func readHeapInUse() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapInuse
}

// EstimateTokens approximates the token cost of a string at roughly
// four characters per token, rounding up.
func EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return (len(s) + 3) / 4
}

// MaxPerPageChars returns the per-page cap this governor enforces.
func (g *Governor) MaxPerPageChars() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.maxPerPageChars
}

// Snapshot returns the current budget state.
func (g *Governor) Snapshot() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return State{
		TotalContentBytes: g.totalContentBytes,
		MaxContentBytes:   g.maxContentBytes,
		CurrentTokens:     g.currentTokens,
		MaxTokens:         g.maxTokens,
		MaxPerPageChars:   g.maxPerPageChars,
	}
}

// AdmitContent decides whether candidate page content may enter the
// request context. It returns the admitted portion (possibly truncated,
// possibly empty) and the admission record. Admitted bytes are never
// reverted: accounting is monotone.
func (g *Governor) AdmitContent(content string) (string, Admission) {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := len(content)
	adm := Admission{OriginalLength: n}
	if n == 0 {
		adm.Admitted = true
		return "", adm
	}

	remaining := g.maxContentBytes - g.totalContentBytes
	byteOK := n <= remaining
	heapOK := g.heapInUse()+uint64(n) <= g.heapGuard

	if byteOK && heapOK {
		g.totalContentBytes += n
		adm.Admitted = true
		adm.AdmittedLength = n
		return content, adm
	}

	// Either ceiling would be violated: truncate to half the remaining
	// byte allowance, or reject when even that falls under the floor.
	allowed := remaining / 2
	if allowed > n {
		allowed = n
	}
	if allowed < truncationFloorBytes {
		adm.Reason = "insufficient memory"
		return "", adm
	}

	truncated := content[:allowed]
	g.totalContentBytes += allowed
	adm.Admitted = true
	adm.Truncated = true
	adm.AdmittedLength = allowed
	if byteOK {
		adm.Reason = "heap guard"
	} else {
		adm.Reason = "content byte ceiling"
	}
	return truncated, adm
}

// CanAddContent reports whether the estimated token cost of s still
// fits under the token ceiling.
func (g *Governor) CanAddContent(s string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.currentTokens+EstimateTokens(s) < g.maxTokens
}

// AddContent charges the token budget for s, truncating the string to
// the remaining token allowance when necessary. The returned string is
// what actually entered the context.
func (g *Governor) AddContent(s string) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	est := EstimateTokens(s)
	available := g.maxTokens - g.currentTokens
	if available <= 0 {
		return ""
	}
	if est <= available {
		g.currentTokens += est
		return s
	}

	cut := available * 4
	if cut > len(s) {
		cut = len(s)
	}
	truncated := s[:cut]
	g.currentTokens += EstimateTokens(truncated)
	return truncated
}
