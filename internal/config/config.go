// Package config defines simulation configuration: the time horizon, agent
// population, per-region regulatory timelines, market parameters, and event
// probabilities. Configs load from YAML files or start from the baseline
// defaults and get adjusted by a scenario preset.
package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Agent kind keys used in the agent_population mapping.
const (
	KindResearchEntity    = "research_entity"
	KindCommercialPlayer  = "commercial_player"
	KindRegulatoryBody    = "regulatory_body"
	KindMarketParticipant = "market_participant"
)

// Technology stage keys used in technology_advancement_probabilities.
const (
	StageResearch      = "research"
	StageDevelopment   = "development"
	StagePreCommercial = "pre_commercial"
)

// Event category keys used in event_probabilities.
const (
	EventPolicy     = "policy"
	EventMarket     = "market"
	EventTechnology = "technology"
	EventClimate    = "climate"
)

// Error reports an invalid or missing configuration value. It is fatal and
// raised before any simulation step runs.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
}

// RegionRule holds one region's regulatory timeline parameters.
type RegionRule struct {
	// MinReviewSteps is the minimum number of steps a case spends under
	// review before a decision may be rolled. Reproduces the US-vs-EU
	// asymmetry: US ~4 steps, EU ~8.
	MinReviewSteps int `yaml:"min_review_steps" json:"min_review_steps"`

	// ApprovalByStage maps a case stage to the probability of the favorable
	// transition out of it: "under_review" is the per-step approval
	// probability once the minimum dwell has elapsed, "data_requested" is
	// the probability that supplied data satisfies the reviewer.
	ApprovalByStage map[string]float64 `yaml:"approval_probability_by_stage" json:"approval_probability_by_stage"`

	// DataRequestProbability is the per-step chance a reviewed case is sent
	// back for more data instead of being decided.
	DataRequestProbability float64 `yaml:"data_request_probability" json:"data_request_probability"`

	// DataWindowSteps is how many steps the applicant has to answer a data
	// request before the case times out to Rejected.
	DataWindowSteps int `yaml:"data_window_steps" json:"data_window_steps"`

	// RejectionProbability is the per-step chance an eligible case is
	// rejected outright. Zero by default: undecided cases stay under review.
	RejectionProbability float64 `yaml:"rejection_probability" json:"rejection_probability"`

	// Exempt regions require no case before market registration.
	Exempt bool `yaml:"exempt" json:"exempt"`
}

// ApprovalProbability returns the configured probability for a case stage,
// defaulting to zero when the stage is absent.
func (r RegionRule) ApprovalProbability(stage string) float64 {
	return r.ApprovalByStage[stage]
}

// CategoryParams holds per-category market parameters.
type CategoryParams struct {
	BasePrice  float64 `yaml:"base_price" json:"base_price"`
	Elasticity float64 `yaml:"elasticity" json:"elasticity"`

	// BaseDemand is the demand volume one fully-adopting participant
	// contributes per step at the base price.
	BaseDemand float64 `yaml:"base_demand" json:"base_demand"`
}

// ScheduledEvent declares a deterministic event at a known step.
type ScheduledEvent struct {
	Year        int     `yaml:"year" json:"year"`
	Category    string  `yaml:"category" json:"category"` // policy | market | technology | climate
	Region      string  `yaml:"region,omitempty" json:"region,omitempty"`
	Description string  `yaml:"description" json:"description"`
	Magnitude   float64 `yaml:"magnitude" json:"magnitude"`
}

// Config is the full simulation configuration.
type Config struct {
	Scenario  string `yaml:"scenario" json:"scenario"`
	StartYear int    `yaml:"start_year" json:"start_year"`
	EndYear   int    `yaml:"end_year" json:"end_year"`
	Seed      int64  `yaml:"random_seed" json:"random_seed"`

	Regions         []string       `yaml:"regions" json:"regions"`
	AgentPopulation map[string]int `yaml:"agent_population" json:"agent_population"`

	RegulatoryTimelines  map[string]RegionRule     `yaml:"regulatory_timelines" json:"regulatory_timelines"`
	MarketParameters     map[string]CategoryParams `yaml:"market_parameters" json:"market_parameters"`
	AdvancementProbs     map[string]float64        `yaml:"technology_advancement_probabilities" json:"technology_advancement_probabilities"`
	RegionAdvancementMod map[string]float64        `yaml:"region_advancement_modifiers,omitempty" json:"region_advancement_modifiers,omitempty"`

	// StallThreshold is the number of consecutive failed advancement rolls
	// after which a technology is abandoned.
	StallThreshold int `yaml:"stall_threshold" json:"stall_threshold"`

	// MaxProjectsPerAgent caps concurrent projects per agent.
	MaxProjectsPerAgent int `yaml:"max_projects_per_agent" json:"max_projects_per_agent"`

	// EventProbabilities holds per-step, per-category stochastic event
	// probabilities.
	EventProbabilities map[string]float64 `yaml:"event_probabilities" json:"event_probabilities"`

	// ScheduledEvents are configuration-declared deterministic events.
	ScheduledEvents []ScheduledEvent `yaml:"scheduled_events,omitempty" json:"scheduled_events,omitempty"`

	// MarketGrowthRate is the annual growth applied to base demand.
	MarketGrowthRate float64 `yaml:"market_growth_rate" json:"market_growth_rate"`

	// LicensingRoyaltyRate is the share of licensing fees paid to a
	// technology's originating agent.
	LicensingRoyaltyRate float64 `yaml:"licensing_royalty_rate" json:"licensing_royalty_rate"`
}

// Load reads a YAML config file and validates it.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for missing or invalid values.
func (c Config) Validate() error {
	if c.StartYear <= 0 {
		return &Error{Field: "start_year", Reason: "must be set"}
	}
	if c.EndYear < c.StartYear {
		return &Error{Field: "end_year", Reason: fmt.Sprintf("must be >= start_year (%d)", c.StartYear)}
	}
	if len(c.Regions) == 0 {
		return &Error{Field: "regions", Reason: "at least one region is required"}
	}
	if len(c.AgentPopulation) == 0 {
		return &Error{Field: "agent_population", Reason: "must be set"}
	}
	for kind, count := range c.AgentPopulation {
		switch kind {
		case KindResearchEntity, KindCommercialPlayer, KindRegulatoryBody, KindMarketParticipant:
		default:
			return &Error{Field: "agent_population", Reason: fmt.Sprintf("unknown agent kind %q", kind)}
		}
		if count <= 0 {
			return &Error{Field: "agent_population", Reason: fmt.Sprintf("%s count must be positive, got %d", kind, count)}
		}
	}
	for _, region := range c.Regions {
		if _, ok := c.RegulatoryTimelines[region]; !ok {
			return &Error{Field: "regulatory_timelines", Reason: fmt.Sprintf("missing rules for region %q", region)}
		}
	}
	if len(c.MarketParameters) == 0 {
		return &Error{Field: "market_parameters", Reason: "at least one category is required"}
	}
	for cat, params := range c.MarketParameters {
		if params.BasePrice < 0 {
			return &Error{Field: "market_parameters", Reason: fmt.Sprintf("%s base_price must be >= 0", cat)}
		}
	}
	for stage, p := range c.AdvancementProbs {
		if p < 0 || p > 1 {
			return &Error{Field: "technology_advancement_probabilities", Reason: fmt.Sprintf("%s must be in [0,1], got %g", stage, p)}
		}
	}
	if c.StallThreshold <= 0 {
		return &Error{Field: "stall_threshold", Reason: "must be positive"}
	}
	if c.MaxProjectsPerAgent <= 0 {
		return &Error{Field: "max_projects_per_agent", Reason: "must be positive"}
	}
	return nil
}

// Steps returns the number of simulation steps the horizon covers,
// one step per year inclusive of both endpoints.
func (c Config) Steps() int {
	return c.EndYear - c.StartYear + 1
}

// Categories returns the configured market categories in a stable order.
func (c Config) Categories() []string {
	cats := make([]string, 0, len(c.MarketParameters))
	for cat := range c.MarketParameters {
		cats = append(cats, cat)
	}
	sort.Strings(cats)
	return cats
}
