// Package agent provides the agent data model and per-kind decision logic.
// Agents share one capability set — observe, decide, act — and differ only
// in how they decide. Decisions are pure: an agent turns a Perception into
// an Intent, and the engine applies the Intent against the pipeline,
// regulator, and market in a deterministic order.
package agent

// ID is a unique identifier for an agent. IDs are issued sequentially by
// the engine so iteration order is stable and runs are reproducible.
type ID uint64

// Kind tags the agent variant.
type Kind uint8

const (
	KindResearchEntity Kind = iota
	KindCommercialPlayer
	KindRegulatoryBody
	KindMarketParticipant
)

// String returns the config key for a kind.
func (k Kind) String() string {
	switch k {
	case KindResearchEntity:
		return "research_entity"
	case KindCommercialPlayer:
		return "commercial_player"
	case KindRegulatoryBody:
		return "regulatory_body"
	case KindMarketParticipant:
		return "market_participant"
	default:
		return "unknown"
	}
}

// KindFromString parses a config key into a Kind.
func KindFromString(s string) (Kind, bool) {
	switch s {
	case "research_entity":
		return KindResearchEntity, true
	case "commercial_player":
		return KindCommercialPlayer, true
	case "regulatory_body":
		return KindRegulatoryBody, true
	case "market_participant":
		return KindMarketParticipant, true
	default:
		return 0, false
	}
}

// AdoptionProfile shapes a market participant's uptake of products in one
// category: a logistic ceiling, an uptake rate, and price sensitivity.
type AdoptionProfile struct {
	MaxAdoption      float64 `json:"max_adoption"`      // 0–1 ceiling on uptake
	Rate             float64 `json:"rate"`              // logistic steepness
	PriceSensitivity float64 `json:"price_sensitivity"` // 0–1, scales the price term
}

// Agent is one entity in the simulation. Created at initialization or by
// in-run spawning (startup founding); never removed — exit sets the
// terminal Exited flag so historical metrics stay consistent.
type Agent struct {
	ID     ID     `json:"id"`
	Name   string `json:"name"`
	Kind   Kind   `json:"kind"`
	Region string `json:"region"`

	Capital       float64 `json:"capital"`        // $ millions
	Capacity      int     `json:"capacity"`       // max concurrent projects
	RiskTolerance float64 `json:"risk_tolerance"` // 0–1

	// Projects holds ids of non-terminal technologies the agent owns.
	Projects []uint64 `json:"projects,omitempty"`

	// Products holds ids of market products the agent registered.
	Products []uint64 `json:"products,omitempty"`

	// Licensed holds ids of technologies licensed in from other agents.
	Licensed []uint64 `json:"licensed,omitempty"`

	// Adoption is the participant's per-category adoption profile.
	// Nil for non-participant kinds.
	Adoption map[string]AdoptionProfile `json:"adoption,omitempty"`

	CreatedStep int  `json:"created_step"`
	Exited      bool `json:"exited"`
	ExitStep    int  `json:"exit_step,omitempty"`
}

// Active reports whether the agent still participates in the simulation.
func (a *Agent) Active() bool { return !a.Exited }

// Exit marks the agent as terminally exited at the given step.
// Exit is monotonic: once set it is never cleared.
func (a *Agent) Exit(step int) {
	if a.Exited {
		return
	}
	a.Exited = true
	a.ExitStep = step
}

// HoldsTechnology reports whether the agent owns or licenses the technology.
func (a *Agent) HoldsTechnology(tech uint64) bool {
	for _, id := range a.Projects {
		if id == tech {
			return true
		}
	}
	for _, id := range a.Licensed {
		if id == tech {
			return true
		}
	}
	return false
}
