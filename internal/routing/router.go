// Package routing maps story-count milestones to AI reasoning effort and
// selects model configurations per generation kind.
//
// This is a static routing table with one computed input, no state and no
// learning. Feature flags can force every kind down to the cheapest model.
package routing

// Effort is the reasoning-effort tier requested from the model.
type Effort string

const (
	EffortLow    Effort = "low"
	EffortMedium Effort = "medium"
	EffortHigh   Effort = "high"
)

// Kind identifies which generation strategy is asking for a model.
type Kind string

const (
	KindTier1   Kind = "tier1"   // cheap post-save heuristic
	KindTier3   Kind = "tier3"   // deep milestone analysis
	KindWhisper Kind = "whisper" // short nudge prompts
	KindEcho    Kind = "echo"    // follow-up on an answered prompt
)

// Milestone boundaries for reasoning effort.
const (
	mediumMilestone = 10
	highMilestone   = 50
)

// ModelConfig is one row of the routing table.
type ModelConfig struct {
	Model           string `json:"model"`
	ReasoningEffort Effort `json:"reasoning_effort,omitempty"`
}

// CheapModel is the floor every kind degrades to under the force-cheap flag.
const CheapModel = "gpt-4o-mini"

var modelTable = map[Kind]ModelConfig{
	KindTier1:   {Model: "gpt-4o-mini"},
	KindTier3:   {Model: "gpt-5", ReasoningEffort: EffortMedium},
	KindWhisper: {Model: "gpt-4o-mini"},
	KindEcho:    {Model: "gpt-4o"},
}

// Router selects model configurations, honoring feature flags.
type Router struct {
	forceCheap bool
}

// New creates a router. When forceCheap is set every kind routes to the
// cheapest model with no reasoning effort.
func New(forceCheap bool) *Router {
	return &Router{forceCheap: forceCheap}
}

// EffortForMilestone maps a story count to reasoning effort. Pure step
// function: <10 low, 10-49 medium, >=50 high.
func EffortForMilestone(storyCount int) Effort {
	switch {
	case storyCount >= highMilestone:
		return EffortHigh
	case storyCount >= mediumMilestone:
		return EffortMedium
	default:
		return EffortLow
	}
}

// ModelConfig returns the configuration for a generation kind. For tier3
// the reasoning effort is recomputed from the milestone story count.
func (r *Router) ModelConfig(kind Kind, storyCount int) ModelConfig {
	if r.forceCheap {
		return ModelConfig{Model: CheapModel}
	}
	cfg, ok := modelTable[kind]
	if !ok {
		return ModelConfig{Model: CheapModel}
	}
	if kind == KindTier3 {
		cfg.ReasoningEffort = EffortForMilestone(storyCount)
	}
	return cfg
}
