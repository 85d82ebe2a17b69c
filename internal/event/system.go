// Package event generates the exogenous shocks that perturb a run: policy
// shifts, market shocks, technology breakthroughs, and climate stress.
// Deterministic events come from configuration; stochastic ones are drawn
// per step from the shared seeded stream, so a fixed seed reproduces the
// full event history. Events are applied synchronously within their step
// and never carry over.
package event

import (
	"fmt"
	"sort"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/biosim/internal/config"
	"github.com/talgya/biosim/internal/entropy"
)

// Kind is the event category.
type Kind uint8

const (
	KindPolicy Kind = iota
	KindMarket
	KindTechnology
	KindClimate
)

// allKinds fixes the category draw order so runs are reproducible.
var allKinds = [...]Kind{KindPolicy, KindMarket, KindTechnology, KindClimate}

// String returns the config key for a kind.
func (k Kind) String() string {
	switch k {
	case KindPolicy:
		return config.EventPolicy
	case KindMarket:
		return config.EventMarket
	case KindTechnology:
		return config.EventTechnology
	case KindClimate:
		return config.EventClimate
	default:
		return "unknown"
	}
}

// Payload carries the effect parameters an event applies.
type Payload struct {
	// TimelineDelta adjusts a region's regulatory timeline multiplier.
	TimelineDelta float64 `json:"timeline_delta,omitempty"`
	// AdvancementShift adjusts technology advancement probability.
	AdvancementShift float64 `json:"advancement_shift,omitempty"`
	// ElasticityShock adjusts a category's price elasticity.
	ElasticityShock float64 `json:"elasticity_shock,omitempty"`
	// CapitalShock multiplies affected agents' capital (e.g. 0.85).
	CapitalShock float64 `json:"capital_shock,omitempty"`
	// DemandFactor multiplies market base demand.
	DemandFactor float64 `json:"demand_factor,omitempty"`
	// Severity is the raw magnitude the payload was derived from.
	Severity float64 `json:"severity,omitempty"`
	// SpawnStartup founds a new commercial player when true.
	SpawnStartup bool `json:"spawn_startup,omitempty"`
	// Category targets a market category, empty for all.
	Category string `json:"category,omitempty"`
}

// Event is one shock. Region empty means global scope. Events are consumed
// on application and never retried.
type Event struct {
	ID          uint64  `json:"id"`
	Kind        Kind    `json:"kind"`
	Step        int     `json:"step"`
	Region      string  `json:"region,omitempty"`
	Description string  `json:"description"`
	Payload     Payload `json:"payload"`
}

// System generates and queues events.
type System struct {
	scheduled map[int][]Event
	nextID    uint64

	probs   map[Kind]float64
	regions []string
	cats    []string

	// climate is a smooth noise field over (region, step); high values make
	// climate draws more severe. Seeded from the run seed so climate
	// history is reproducible.
	climate opensimplex.Noise
}

// NewSystem builds an event system from configuration.
func NewSystem(cfg config.Config) *System {
	probs := map[Kind]float64{
		KindPolicy:     cfg.EventProbabilities[config.EventPolicy],
		KindMarket:     cfg.EventProbabilities[config.EventMarket],
		KindTechnology: cfg.EventProbabilities[config.EventTechnology],
		KindClimate:    cfg.EventProbabilities[config.EventClimate],
	}
	s := &System{
		scheduled: make(map[int][]Event),
		nextID:    1,
		probs:     probs,
		regions:   append([]string(nil), cfg.Regions...),
		cats:      cfg.Categories(),
		climate:   opensimplex.NewNormalized(cfg.Seed + 1),
	}

	// Configuration-declared events at known years.
	for _, se := range cfg.ScheduledEvents {
		step := se.Year - cfg.StartYear + 1
		if step < 1 {
			continue
		}
		kind, ok := kindFromString(se.Category)
		if !ok {
			continue
		}
		s.Schedule(Event{
			Kind:        kind,
			Step:        step,
			Region:      se.Region,
			Description: se.Description,
			Payload:     payloadFor(kind, se.Magnitude, ""),
		})
	}
	return s
}

// Schedule inserts a deterministic event at a future step.
func (s *System) Schedule(e Event) {
	if e.ID == 0 {
		e.ID = s.nextID
		s.nextID++
	} else if e.ID >= s.nextID {
		s.nextID = e.ID + 1
	}
	s.scheduled[e.Step] = append(s.scheduled[e.Step], e)
}

// EventsFor pops and returns every event for a step: scheduled events
// first, then fresh stochastic draws. Returned events are removed from the
// queue; application is the caller's job and total for the step.
func (s *System) EventsFor(step int, rng *entropy.Stream) []Event {
	out := append([]Event(nil), s.scheduled[step]...)
	delete(s.scheduled, step)
	out = append(out, s.generateStochastic(step, rng)...)
	return out
}

// generateStochastic draws zero or more events for a step. Draws are
// independent across categories, in fixed category order, all from the
// single shared stream.
func (s *System) generateStochastic(step int, rng *entropy.Stream) []Event {
	var out []Event
	for _, kind := range allKinds {
		if !rng.Bernoulli(s.probs[kind]) {
			continue
		}

		region := ""
		// Policy and climate shocks target one region; market and
		// technology shocks are global.
		if kind == KindPolicy || kind == KindClimate {
			region = s.regions[rng.Intn(len(s.regions))]
		}

		var severity float64
		if kind == KindClimate {
			// Climate severity follows the noise field rather than a flat
			// draw, so stress builds and recedes smoothly over the horizon.
			severity = s.ClimateStress(region, step)
		} else {
			severity = rng.Range(0.2, 1.0)
		}

		category := ""
		if kind == KindMarket && len(s.cats) > 0 {
			category = s.cats[rng.Intn(len(s.cats))]
		}

		e := Event{
			ID:          s.nextID,
			Kind:        kind,
			Step:        step,
			Region:      region,
			Description: describe(kind, region, severity),
			Payload:     payloadFor(kind, severityToMagnitude(kind, severity), category),
		}
		s.nextID++
		out = append(out, e)
	}
	return out
}

// ClimateStress samples the climate noise field for a region and step,
// returning a stress level in [0, 1].
func (s *System) ClimateStress(region string, step int) float64 {
	idx := 0
	for i, r := range s.regions {
		if r == region {
			idx = i
			break
		}
	}
	return s.climate.Eval2(float64(idx)*3.7, float64(step)*0.35)
}

// PendingSchedule returns all queued events in step, then id order, for
// persistence.
func (s *System) PendingSchedule() []Event {
	var out []Event
	for _, evs := range s.scheduled {
		out = append(out, evs...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Step != out[j].Step {
			return out[i].Step < out[j].Step
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// RestoreSystem rebuilds an event system with a persisted pending schedule.
func RestoreSystem(cfg config.Config, pending []Event, nextID uint64) *System {
	s := NewSystem(cfg)
	s.scheduled = make(map[int][]Event)
	for _, e := range pending {
		s.scheduled[e.Step] = append(s.scheduled[e.Step], e)
	}
	if nextID > s.nextID {
		s.nextID = nextID
	}
	return s
}

// NextID exposes the id counter for persistence.
func (s *System) NextID() uint64 { return s.nextID }

// payloadFor maps a kind and signed magnitude onto effect parameters.
func payloadFor(kind Kind, magnitude float64, category string) Payload {
	switch kind {
	case KindPolicy:
		// Positive magnitude stretches review timelines, negative shortens.
		return Payload{TimelineDelta: magnitude, Severity: magnitude}
	case KindMarket:
		return Payload{
			ElasticityShock: -0.3 * magnitude,
			CapitalShock:    1 - 0.2*magnitude,
			Severity:        magnitude,
			Category:        category,
		}
	case KindTechnology:
		return Payload{
			AdvancementShift: 0.05 * magnitude,
			SpawnStartup:     magnitude > 0.6,
			Severity:         magnitude,
		}
	case KindClimate:
		// Climate stress pressures supply and pulls demand toward resilient
		// products while nudging innovation.
		return Payload{
			DemandFactor:     1 + 0.15*magnitude,
			AdvancementShift: 0.02 * magnitude,
			Severity:         magnitude,
		}
	default:
		return Payload{Severity: magnitude}
	}
}

func severityToMagnitude(kind Kind, severity float64) float64 {
	if kind == KindPolicy {
		// Centered: half of policy shocks loosen, half tighten.
		return (severity - 0.6) * 0.5
	}
	return severity
}

func describe(kind Kind, region string, severity float64) string {
	scope := "global"
	if region != "" {
		scope = region
	}
	return fmt.Sprintf("%s shock (%s, severity %.2f)", kind, scope, severity)
}

func kindFromString(s string) (Kind, bool) {
	switch s {
	case config.EventPolicy:
		return KindPolicy, true
	case config.EventMarket:
		return KindMarket, true
	case config.EventTechnology:
		return KindTechnology, true
	case config.EventClimate:
		return KindClimate, true
	default:
		return 0, false
	}
}
