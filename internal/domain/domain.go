package domain

import "time"

// SessionStatus tracks a generation request through its lifecycle.
// The pre-generation stages are advanced by external collaborators;
// only the completion aggregator may set StatusComplete.
type SessionStatus string

const (
	SessionDraft              SessionStatus = "draft"
	SessionUnderstandingReady SessionStatus = "understanding_ready"
	SessionPlanReady          SessionStatus = "plan_ready"
	SessionWireframeReady     SessionStatus = "wireframe_ready"
	SessionGenerating         SessionStatus = "generating"
	SessionComplete           SessionStatus = "complete"
)

// Order returns the monotonic rank of a session status. Unknown statuses
// rank below draft so they can never win an advance.
func (s SessionStatus) Order() int {
	switch s {
	case SessionDraft:
		return 1
	case SessionUnderstandingReady:
		return 2
	case SessionPlanReady:
		return 3
	case SessionWireframeReady:
		return 4
	case SessionGenerating:
		return 5
	case SessionComplete:
		return 6
	}
	return 0
}

type VariantStatus string

const (
	VariantPending    VariantStatus = "pending"
	VariantGenerating VariantStatus = "generating"
	VariantComplete   VariantStatus = "complete"
	VariantFailed     VariantStatus = "failed"
)

// CanTransition reports whether a variant may move from one status to
// another. Every status may (re-)enter generating: start-generation is an
// idempotent upsert; retry after failure and regenerating a completed
// variant both go through it.
func CanTransition(from, to VariantStatus) bool {
	switch to {
	case VariantGenerating:
		return from == VariantPending || from == VariantGenerating ||
			from == VariantFailed || from == VariantComplete
	case VariantComplete, VariantFailed:
		return from == VariantGenerating
	case VariantPending:
		return from == ""
	}
	return false
}

// Session is one end-to-end variant-generation request tied to a source screen.
type Session struct {
	ID           string        `json:"id"`
	SourceHTML   string        `json:"sourceHtml"`
	Status       SessionStatus `json:"status"`
	VariantCount int           `json:"variantCount"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// VariantPlan is one proposed modification strategy, immutable once created.
type VariantPlan struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"sessionId"`
	VariantIndex int       `json:"variantIndex"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	KeyChanges   []string  `json:"keyChanges"`
	StyleNotes   string    `json:"styleNotes"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Variant is the generation target for one plan. HTMLPath/HTMLURL point at
// the current artifact; they are only meaningful once the variant has been
// complete at least once.
type Variant struct {
	ID                   string        `json:"id"`
	SessionID            string        `json:"sessionId"`
	PlanID               string        `json:"planId"`
	VariantIndex         int           `json:"variantIndex"`
	HTMLPath             string        `json:"htmlPath,omitempty"`
	HTMLURL              string        `json:"htmlUrl,omitempty"`
	Status               VariantStatus `json:"status"`
	ErrorMessage         string        `json:"errorMessage,omitempty"`
	GenerationModel      string        `json:"generationModel,omitempty"`
	GenerationDurationMs int64         `json:"generationDurationMs,omitempty"`
	IterationCount       int           `json:"iterationCount"`
	CreatedAt            time.Time     `json:"createdAt"`
	UpdatedAt            time.Time     `json:"updatedAt"`
}

// Iteration is an immutable record of one refinement applied to a variant.
// IterationNumber is 1-based and gapless per variant; HTMLBefore is the
// variant's artifact content immediately prior to applying the iteration.
type Iteration struct {
	ID                   string    `json:"id"`
	VariantID            string    `json:"variantId"`
	SessionID            string    `json:"sessionId"`
	VariantIndex         int       `json:"variantIndex"`
	IterationNumber      int       `json:"iterationNumber"`
	Prompt               string    `json:"prompt"`
	HTMLBefore           string    `json:"htmlBefore"`
	HTMLAfter            string    `json:"htmlAfter"`
	GenerationModel      string    `json:"generationModel"`
	GenerationDurationMs int64     `json:"generationDurationMs"`
	CreatedAt            time.Time `json:"createdAt"`
}
