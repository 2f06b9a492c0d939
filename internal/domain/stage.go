package domain

// StageKind identifies one independent analysis stage.
type StageKind string

const (
	StageSentiment   StageKind = "sentiment"
	StageTechnical   StageKind = "technical"
	StageFundamental StageKind = "fundamental"
)

// StageStatus describes how usable a stage result is.
type StageStatus string

const (
	// StatusComplete means the stage produced a full-confidence result.
	StatusComplete StageStatus = "complete"
	// StatusDegraded means the stage produced a usable result from partial
	// data; it contributes with reduced weight.
	StatusDegraded StageStatus = "degraded"
	// StatusMissing means the stage produced no usable result; it is
	// excluded from scoring entirely.
	StatusMissing StageStatus = "missing"
)

// StageResult is the typed partial result of one stage for one symbol.
// Score and Direction are meaningless when Status is Missing.
type StageResult struct {
	Kind      StageKind   `json:"kind"`
	Status    StageStatus `json:"status"`
	Reason    string      `json:"reason,omitempty"` // why Degraded or Missing
	Score     float64     `json:"score"`            // [0,1]
	Direction float64     `json:"direction"`        // [-1,1], signed momentum
	Factors   []string    `json:"factors,omitempty"`
	Risks     []string    `json:"risks,omitempty"`
}

// Usable reports whether the result carries a score.
func (r StageResult) Usable() bool {
	return r.Status != StatusMissing
}

// MissingResult builds a Missing result for a stage that produced nothing.
func MissingResult(kind StageKind, reason string) StageResult {
	return StageResult{Kind: kind, Status: StatusMissing, Reason: reason}
}

// SymbolBundle collects the stage results produced for one symbol within one
// request. It is built incrementally by the coordinator, which owns it
// exclusively until it is handed to the recommendation engine by value.
// Each stage runs at most once per symbol per request, so kinds are unique.
type SymbolBundle struct {
	Symbol  string                    `json:"symbol"`
	Results map[StageKind]StageResult `json:"results"`
}

// NewSymbolBundle creates an empty bundle for a symbol.
func NewSymbolBundle(symbol string) SymbolBundle {
	return SymbolBundle{
		Symbol:  symbol,
		Results: make(map[StageKind]StageResult),
	}
}

// Add records a settled stage result.
func (b *SymbolBundle) Add(result StageResult) {
	b.Results[result.Kind] = result
}

// Get returns the result for a kind, if present.
func (b *SymbolBundle) Get(kind StageKind) (StageResult, bool) {
	r, ok := b.Results[kind]
	return r, ok
}

// UsableCount returns the number of results that carry a score.
func (b *SymbolBundle) UsableCount() int {
	n := 0
	for _, r := range b.Results {
		if r.Usable() {
			n++
		}
	}
	return n
}

// StatusByKind returns the status of every recorded stage, for the
// transparency field on recommendations.
func (b *SymbolBundle) StatusByKind() map[StageKind]StageStatus {
	out := make(map[StageKind]StageStatus, len(b.Results))
	for kind, r := range b.Results {
		out[kind] = r.Status
	}
	return out
}
