// Package technology models the maturation pipeline. Every technology
// climbs an ordered stage ladder via per-step Bernoulli advancement rolls;
// stalled projects are eventually abandoned, and nothing is ever deleted.
package technology

import (
	"fmt"
	"sort"

	"github.com/talgya/biosim/internal/agent"
	"github.com/talgya/biosim/internal/config"
	"github.com/talgya/biosim/internal/entropy"
)

// Stage is the ordered maturity level of a technology.
type Stage uint8

const (
	StageResearch Stage = iota
	StageDevelopment
	StagePreCommercial
	StageCommercial
	StageAbandoned // terminal, reached only via stall
)

// String returns the config/metrics key for a stage.
func (s Stage) String() string {
	switch s {
	case StageResearch:
		return "research"
	case StageDevelopment:
		return "development"
	case StagePreCommercial:
		return "pre_commercial"
	case StageCommercial:
		return "commercial"
	case StageAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// Terminal reports whether a stage admits no further advancement.
func (s Stage) Terminal() bool {
	return s == StageCommercial || s == StageAbandoned
}

// Technology is one research program. Stage is monotonic non-decreasing;
// the only terminal regression is abandonment.
type Technology struct {
	ID           uint64   `json:"id"`
	Name         string   `json:"name"`
	Owner        agent.ID `json:"owner"`
	Region       string   `json:"region"`
	Category     string   `json:"category"`
	Stage        Stage    `json:"stage"`
	StepsInStage int      `json:"steps_in_stage"`
	Investment   float64  `json:"investment"` // cumulative, $ millions
	CreatedStep  int      `json:"created_step"`
}

// CapacityError reports an agent at its concurrent-project limit.
type CapacityError struct {
	Agent agent.ID
	Limit int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("agent %d at project capacity (%d)", e.Agent, e.Limit)
}

// Transition records one advancement outcome, consumed by the engine for
// case auto-submission and event logging.
type Transition struct {
	Technology uint64
	From       Stage
	To         Stage
}

// Pipeline owns the technology registry and the advancement parameters.
type Pipeline struct {
	techs  map[uint64]*Technology
	order  []uint64 // insertion order, for deterministic iteration
	nextID uint64

	advance   map[Stage]float64  // per-stage advancement probability
	regionMod map[string]float64 // multiplicative region modifier
	shift     float64            // additive shift from technology events

	stallThreshold int
	maxProjects    int

	activeByOwner map[agent.ID]int
}

// NewPipeline builds a pipeline from configuration.
func NewPipeline(cfg config.Config) *Pipeline {
	advance := map[Stage]float64{
		StageResearch:      cfg.AdvancementProbs[config.StageResearch],
		StageDevelopment:   cfg.AdvancementProbs[config.StageDevelopment],
		StagePreCommercial: cfg.AdvancementProbs[config.StagePreCommercial],
	}
	regionMod := make(map[string]float64, len(cfg.Regions))
	for _, r := range cfg.Regions {
		mod := 1.0
		if m, ok := cfg.RegionAdvancementMod[r]; ok {
			mod = m
		}
		regionMod[r] = mod
	}
	return &Pipeline{
		techs:          make(map[uint64]*Technology),
		nextID:         1,
		advance:        advance,
		regionMod:      regionMod,
		stallThreshold: cfg.StallThreshold,
		maxProjects:    cfg.MaxProjectsPerAgent,
		activeByOwner:  make(map[agent.ID]int),
	}
}

// RegisterProject creates a new technology owned by the given agent.
// Fails with CapacityError when the owner is at its concurrent limit.
func (p *Pipeline) RegisterProject(owner *agent.Agent, category, region string, step int) (*Technology, error) {
	limit := p.maxProjects
	if owner.Capacity > 0 {
		limit = owner.Capacity
	}
	if p.activeByOwner[owner.ID] >= limit {
		return nil, &CapacityError{Agent: owner.ID, Limit: limit}
	}

	t := &Technology{
		ID:          p.nextID,
		Name:        fmt.Sprintf("%s-%d", category, p.nextID),
		Owner:       owner.ID,
		Region:      region,
		Category:    category,
		Stage:       StageResearch,
		CreatedStep: step,
	}
	p.nextID++
	p.techs[t.ID] = t
	p.order = append(p.order, t.ID)
	p.activeByOwner[owner.ID]++
	owner.Projects = append(owner.Projects, t.ID)
	return t, nil
}

// Advance rolls one advancement attempt for a single technology. Success
// moves it one stage up and resets the dwell counter; repeated failure past
// the stall threshold abandons it. Returns the transition, if any.
func (p *Pipeline) Advance(t *Technology, rng *entropy.Stream) (Transition, bool) {
	if t.Stage.Terminal() {
		return Transition{}, false
	}

	prob := p.advance[t.Stage]*p.regionModFor(t.Region) + p.shift
	if prob < 0 {
		prob = 0
	}
	if prob > 1 {
		prob = 1
	}

	if rng.Bernoulli(prob) {
		from := t.Stage
		t.Stage++
		t.StepsInStage = 0
		if t.Stage.Terminal() {
			p.activeByOwner[t.Owner]--
		}
		return Transition{Technology: t.ID, From: from, To: t.Stage}, true
	}

	t.StepsInStage++
	if t.StepsInStage >= p.stallThreshold {
		from := t.Stage
		t.Stage = StageAbandoned
		p.activeByOwner[t.Owner]--
		return Transition{Technology: t.ID, From: from, To: StageAbandoned}, true
	}
	return Transition{}, false
}

// AdvanceAll rolls advancement for every non-terminal technology in id
// order and returns the transitions that occurred.
func (p *Pipeline) AdvanceAll(rng *entropy.Stream) []Transition {
	var out []Transition
	for _, id := range p.order {
		t := p.techs[id]
		if tr, ok := p.Advance(t, rng); ok {
			out = append(out, tr)
		}
	}
	return out
}

// Invest adds capital to a technology's cumulative investment.
func (p *Pipeline) Invest(t *Technology, amount float64) {
	t.Investment += amount
}

// ShiftAdvancement applies an additive probability shift from a technology
// event. Shifts accumulate and may be negative.
func (p *Pipeline) ShiftAdvancement(delta float64) {
	p.shift += delta
}

// Get returns a technology by id.
func (p *Pipeline) Get(id uint64) (*Technology, bool) {
	t, ok := p.techs[id]
	return t, ok
}

// All returns all technologies in id order.
func (p *Pipeline) All() []*Technology {
	out := make([]*Technology, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.techs[id])
	}
	return out
}

// ActiveProjects returns how many non-terminal technologies an agent owns.
func (p *Pipeline) ActiveProjects(owner agent.ID) int {
	return p.activeByOwner[owner]
}

// CountByStage aggregates technology counts for metrics.
func (p *Pipeline) CountByStage() map[string]int {
	out := make(map[string]int)
	for _, t := range p.techs {
		out[t.Stage.String()]++
	}
	return out
}

// TotalInvestment returns cumulative investment across all technologies.
func (p *Pipeline) TotalInvestment() float64 {
	var sum float64
	for _, t := range p.techs {
		sum += t.Investment
	}
	return sum
}

// Snapshot returns a copy of all technologies for persistence.
func (p *Pipeline) Snapshot() []Technology {
	out := make([]Technology, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, *p.techs[id])
	}
	return out
}

// RestorePipeline rebuilds a pipeline from configuration and a persisted
// technology snapshot.
func RestorePipeline(cfg config.Config, techs []Technology, shift float64) *Pipeline {
	p := NewPipeline(cfg)
	p.shift = shift
	sort.Slice(techs, func(i, j int) bool { return techs[i].ID < techs[j].ID })
	for i := range techs {
		t := techs[i]
		p.techs[t.ID] = &t
		p.order = append(p.order, t.ID)
		if t.ID >= p.nextID {
			p.nextID = t.ID + 1
		}
		if !t.Stage.Terminal() {
			p.activeByOwner[t.Owner]++
		}
	}
	return p
}

// Shift returns the accumulated advancement shift, for persistence.
func (p *Pipeline) Shift() float64 { return p.shift }

func (p *Pipeline) regionModFor(region string) float64 {
	if m, ok := p.regionMod[region]; ok {
		return m
	}
	return 1.0
}
