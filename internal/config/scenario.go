package config

import "fmt"

// Scenario names.
const (
	ScenarioBaseline                = "baseline"
	ScenarioRegulatoryHarmonization = "regulatory_harmonization"
	ScenarioClimateCrisis           = "climate_crisis"
	ScenarioTechBreakthrough        = "tech_breakthrough"
	ScenarioMarketDisruption        = "market_disruption"
)

// Default returns the baseline configuration: a ten-year horizon over three
// regions with US-style and EU-style regulatory timelines.
func Default() Config {
	return Config{
		Scenario:  ScenarioBaseline,
		StartYear: 2025,
		EndYear:   2035,
		Seed:      42,
		Regions:   []string{"usa", "eu", "asia_pacific"},
		AgentPopulation: map[string]int{
			KindResearchEntity:    20,
			KindCommercialPlayer:  15,
			KindRegulatoryBody:    3,
			KindMarketParticipant: 30,
		},
		RegulatoryTimelines: map[string]RegionRule{
			"usa": {
				MinReviewSteps: 4,
				ApprovalByStage: map[string]float64{
					"under_review":   0.8,
					"data_requested": 0.7,
				},
				DataRequestProbability: 0.2,
				DataWindowSteps:        2,
			},
			"eu": {
				MinReviewSteps: 8,
				ApprovalByStage: map[string]float64{
					"under_review":   0.6,
					"data_requested": 0.6,
				},
				DataRequestProbability: 0.35,
				DataWindowSteps:        2,
			},
			"asia_pacific": {
				MinReviewSteps: 5,
				ApprovalByStage: map[string]float64{
					"under_review":   0.7,
					"data_requested": 0.7,
				},
				DataRequestProbability: 0.25,
				DataWindowSteps:        2,
			},
		},
		MarketParameters: map[string]CategoryParams{
			"grain_crops":     {BasePrice: 100, Elasticity: -0.8, BaseDemand: 40},
			"oilseed_crops":   {BasePrice: 110, Elasticity: -0.7, BaseDemand: 30},
			"specialty_crops": {BasePrice: 160, Elasticity: -0.6, BaseDemand: 20},
			"fiber_crops":     {BasePrice: 90, Elasticity: -0.9, BaseDemand: 10},
		},
		AdvancementProbs: map[string]float64{
			StageResearch:      0.25,
			StageDevelopment:   0.30,
			StagePreCommercial: 0.35,
		},
		StallThreshold:      6,
		MaxProjectsPerAgent: 3,
		EventProbabilities: map[string]float64{
			EventPolicy:     0.10,
			EventMarket:     0.12,
			EventTechnology: 0.15,
			EventClimate:    0.08,
		},
		MarketGrowthRate:     0.082,
		LicensingRoyaltyRate: 0.10,
	}
}

// ForScenario returns the baseline config adjusted for a named scenario.
// Adjustments mirror the reference scenario set: harmonized regulation
// shortens EU review, a climate crisis raises demand growth and climate
// shocks, a technology breakthrough lifts advancement odds, and market
// disruption slows growth while raising market shocks.
func ForScenario(name string) (Config, error) {
	cfg := Default()
	cfg.Scenario = name

	switch name {
	case ScenarioBaseline:

	case ScenarioRegulatoryHarmonization:
		eu := cfg.RegulatoryTimelines["eu"]
		eu.MinReviewSteps = 6
		eu.ApprovalByStage = map[string]float64{"under_review": 0.7, "data_requested": 0.7}
		eu.DataRequestProbability = 0.25
		cfg.RegulatoryTimelines["eu"] = eu
		cfg.ScheduledEvents = append(cfg.ScheduledEvents,
			ScheduledEvent{Year: cfg.StartYear + 1, Category: EventPolicy, Region: "eu", Description: "US-EU regulatory cooperation initiative", Magnitude: -0.15},
			ScheduledEvent{Year: cfg.StartYear + 5, Category: EventPolicy, Region: "eu", Description: "product-based regulation adopted", Magnitude: -0.30},
		)

	case ScenarioClimateCrisis:
		cfg.MarketGrowthRate = 0.095
		cfg.EventProbabilities[EventClimate] = 0.30
		cfg.ScheduledEvents = append(cfg.ScheduledEvents,
			ScheduledEvent{Year: cfg.StartYear + 1, Category: EventClimate, Region: "usa", Description: "severe drought across major growing regions", Magnitude: 0.8},
			ScheduledEvent{Year: cfg.StartYear + 3, Category: EventClimate, Description: "extreme heat waves disrupt global production", Magnitude: 0.6},
			ScheduledEvent{Year: cfg.StartYear + 4, Category: EventPolicy, Description: "emergency approval pathways for resilient crops", Magnitude: -0.25},
		)

	case ScenarioTechBreakthrough:
		cfg.AdvancementProbs = map[string]float64{
			StageResearch:      0.40,
			StageDevelopment:   0.45,
			StagePreCommercial: 0.50,
		}
		cfg.EventProbabilities[EventTechnology] = 0.25
		cfg.ScheduledEvents = append(cfg.ScheduledEvents,
			ScheduledEvent{Year: cfg.StartYear + 1, Category: EventTechnology, Description: "revolutionary delivery system breakthrough", Magnitude: 0.9},
			ScheduledEvent{Year: cfg.StartYear + 3, Category: EventTechnology, Description: "AI-accelerated breeding platform", Magnitude: 0.7},
		)

	case ScenarioMarketDisruption:
		cfg.MarketGrowthRate = 0.065
		cfg.EventProbabilities[EventMarket] = 0.25
		cfg.LicensingRoyaltyRate = 0.08
		cfg.ScheduledEvents = append(cfg.ScheduledEvents,
			ScheduledEvent{Year: cfg.StartYear + 1, Category: EventMarket, Description: "major tech company enters the market", Magnitude: 0.5},
			ScheduledEvent{Year: cfg.StartYear + 3, Category: EventMarket, Description: "global trade war hits agricultural markets", Magnitude: 0.7},
		)

	default:
		return Config{}, &Error{Field: "scenario", Reason: fmt.Sprintf("unknown scenario %q", name)}
	}

	return cfg, nil
}
