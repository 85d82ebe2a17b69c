package sim

import (
	"fmt"

	"github.com/talgya/biosim/internal/agent"
	"github.com/talgya/biosim/internal/config"
	"github.com/talgya/biosim/internal/entropy"
	"github.com/talgya/biosim/internal/event"
	"github.com/talgya/biosim/internal/market"
	"github.com/talgya/biosim/internal/metrics"
	"github.com/talgya/biosim/internal/regulatory"
	"github.com/talgya/biosim/internal/technology"
)

// RunState is the complete persistable state of a run between steps. A run
// restored from it continues exactly as the original would have: the stream
// position pins every future draw.
type RunState struct {
	Config config.Config `json:"config"`

	Step  int   `json:"step"`
	Phase Phase `json:"phase"`

	StreamSeed     int64  `json:"stream_seed"`
	StreamPosition uint64 `json:"stream_position"`

	NextAgentID agent.ID      `json:"next_agent_id"`
	Agents      []agent.Agent `json:"agents"`

	Technologies     []technology.Technology `json:"technologies"`
	AdvancementShift float64                 `json:"advancement_shift"`

	Cases               []regulatory.Case  `json:"cases"`
	TimelineMultipliers map[string]float64 `json:"timeline_multipliers"`

	Products         []market.Product   `json:"products"`
	ElasticityShocks map[string]float64 `json:"elasticity_shocks"`
	DemandScale      float64            `json:"demand_scale"`

	PendingEvents []event.Event `json:"pending_events,omitempty"`
	NextEventID   uint64        `json:"next_event_id"`

	Snapshots []metrics.Snapshot `json:"snapshots"`
}

// State captures the engine between steps. Must not be called mid-step; the
// engine only exposes it from step boundaries, so any caller holding an
// *Engine outside Step is safe.
func (e *Engine) State() RunState {
	agents := make([]agent.Agent, 0, len(e.agents))
	for _, a := range e.agents {
		agents = append(agents, *a)
	}

	cases, mult := e.regulator.Snapshot()
	products, shocks, scale := e.market.Snapshot()

	return RunState{
		Config:              e.cfg,
		Step:                e.step,
		Phase:               e.phase,
		StreamSeed:          e.stream.Seed(),
		StreamPosition:      e.stream.Position(),
		NextAgentID:         e.nextAgentID,
		Agents:              agents,
		Technologies:        e.pipeline.Snapshot(),
		AdvancementShift:    e.pipeline.Shift(),
		Cases:               cases,
		TimelineMultipliers: mult,
		Products:            products,
		ElasticityShocks:    shocks,
		DemandScale:         scale,
		PendingEvents:       e.events.PendingSchedule(),
		NextEventID:         e.events.NextID(),
		Snapshots:           e.series.All(),
	}
}

// Restore rebuilds an engine from a persisted state. The restored engine's
// next Step produces the same result the original engine's would have.
func Restore(state RunState) (*Engine, error) {
	if err := state.Config.Validate(); err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	if state.NextAgentID == 0 {
		return nil, fmt.Errorf("restore: corrupt state: zero next agent id")
	}

	e := &Engine{
		cfg:         state.Config,
		stream:      entropy.Restore(state.StreamSeed, state.StreamPosition),
		agentIndex:  make(map[agent.ID]*agent.Agent, len(state.Agents)),
		nextAgentID: state.NextAgentID,
		pipeline:    technology.RestorePipeline(state.Config, state.Technologies, state.AdvancementShift),
		regulator:   regulatory.RestoreFramework(state.Config, state.Cases, state.TimelineMultipliers),
		market:      market.RestoreMarket(state.Config, state.Products, state.ElasticityShocks, state.DemandScale),
		events:      event.RestoreSystem(state.Config, state.PendingEvents, state.NextEventID),
		series:      metrics.Restore(state.Snapshots),
		categories:  state.Config.Categories(),
		step:        state.Step,
		phase:       state.Phase,
	}
	if e.phase == PhaseUninitialized {
		e.phase = PhaseReady
	}

	for i := range state.Agents {
		a := state.Agents[i]
		e.agents = append(e.agents, &a)
		e.agentIndex[a.ID] = &a
	}
	return e, nil
}
