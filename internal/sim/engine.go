// Package sim ties the world together and runs it step by step. The engine
// owns simulated time, the agent registry, and the fixed per-step order:
// event dispatch, agent decisions and actions, technology advancement,
// regulatory processing, market settlement, metrics snapshot. One step is
// one simulated year.
package sim

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/talgya/biosim/internal/agent"
	"github.com/talgya/biosim/internal/config"
	"github.com/talgya/biosim/internal/entropy"
	"github.com/talgya/biosim/internal/event"
	"github.com/talgya/biosim/internal/market"
	"github.com/talgya/biosim/internal/metrics"
	"github.com/talgya/biosim/internal/regulatory"
	"github.com/talgya/biosim/internal/technology"
)

// Phase is the engine lifecycle state.
type Phase uint8

const (
	PhaseUninitialized Phase = iota
	PhaseReady
	PhaseRunning
	PhaseCompleted
)

// String returns a readable phase name.
func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseReady:
		return "ready"
	case PhaseRunning:
		return "running"
	case PhaseCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// ErrCompleted is returned by Step once the configured end year is reached.
var ErrCompleted = errors.New("simulation completed")

// Engine orchestrates one simulation run.
type Engine struct {
	cfg    config.Config
	stream *entropy.Stream

	agents      []*agent.Agent
	agentIndex  map[agent.ID]*agent.Agent
	nextAgentID agent.ID

	pipeline  *technology.Pipeline
	regulator *regulatory.Framework
	market    *market.Market
	events    *event.System
	series    *metrics.Series

	categories []string

	step  int
	phase Phase

	// Per-step diagnostics, reset at the start of each step.
	skippedActions int
	eventsApplied  int
}

// Annual funding and burn constants, in $ millions.
const (
	researchGrant  = 8.0  // annual grant income per research entity
	projectBurn    = 4.0  // annual spend per active project
	revenueMargin  = 0.5  // share of product revenue credited to the owner
	bankruptcyBar  = 0.5  // commercial players below this exit
	licenseFeeRate = 0.3  // license fee as share of category base price
)

// New validates the configuration and builds a ready engine. All population
// attributes are drawn from the seeded stream, so two engines built from the
// same config are identical.
func New(cfg config.Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:         cfg,
		stream:      entropy.NewStream(cfg.Seed),
		agentIndex:  make(map[agent.ID]*agent.Agent),
		nextAgentID: 1,
		pipeline:    nil,
		regulator:   regulatory.NewFramework(cfg),
		market:      market.NewMarket(cfg),
		events:      event.NewSystem(cfg),
		series:      &metrics.Series{},
		categories:  cfg.Categories(),
		phase:       PhaseReady,
	}
	e.pipeline = technology.NewPipeline(cfg)
	e.populate()

	slog.Info("engine initialized",
		"scenario", cfg.Scenario,
		"agents", len(e.agents),
		"regions", len(cfg.Regions),
		"start_year", cfg.StartYear,
		"end_year", cfg.EndYear,
		"seed", cfg.Seed,
	)
	return e, nil
}

// populate builds the initial agent registry in a fixed kind order so agent
// ids, and therefore the whole run, are reproducible.
func (e *Engine) populate() {
	kinds := []agent.Kind{
		agent.KindResearchEntity,
		agent.KindCommercialPlayer,
		agent.KindRegulatoryBody,
		agent.KindMarketParticipant,
	}
	for _, kind := range kinds {
		count := e.cfg.AgentPopulation[kind.String()]
		for i := 0; i < count; i++ {
			region := e.cfg.Regions[i%len(e.cfg.Regions)]
			e.spawnAgent(kind, region, 0)
		}
	}
}

// spawnAgent creates and registers one agent, drawing its attributes from
// the shared stream.
func (e *Engine) spawnAgent(kind agent.Kind, region string, step int) *agent.Agent {
	a := &agent.Agent{
		ID:          e.nextAgentID,
		Kind:        kind,
		Region:      region,
		Capacity:    e.cfg.MaxProjectsPerAgent,
		CreatedStep: step,
	}
	e.nextAgentID++
	a.Name = fmt.Sprintf("%s-%03d", kind, a.ID)

	switch kind {
	case agent.KindResearchEntity:
		a.Capital = e.stream.Range(30, 120)
		a.RiskTolerance = e.stream.Range(0.3, 0.9)
	case agent.KindCommercialPlayer:
		a.Capital = e.stream.Range(80, 400)
		a.RiskTolerance = e.stream.Range(0.2, 0.8)
	case agent.KindRegulatoryBody:
		a.Capital = 0
		a.RiskTolerance = e.stream.Range(0.1, 0.4)
	case agent.KindMarketParticipant:
		a.Capital = e.stream.Range(5, 50)
		a.RiskTolerance = e.stream.Range(0.2, 0.9)
		a.Adoption = make(map[string]agent.AdoptionProfile, len(e.categories))
		for _, cat := range e.categories {
			a.Adoption[cat] = agent.AdoptionProfile{
				MaxAdoption:      e.stream.Range(0.3, 0.9),
				Rate:             e.stream.Range(1.5, 4.0),
				PriceSensitivity: e.stream.Range(0.4, 1.0),
			}
		}
	}

	e.agents = append(e.agents, a)
	e.agentIndex[a.ID] = a
	return a
}

// Phase returns the current lifecycle phase.
func (e *Engine) Phase() Phase { return e.phase }

// CurrentStep returns the last completed step number (0 before the first).
func (e *Engine) CurrentStep() int { return e.step }

// Year returns the simulated year of a step.
func (e *Engine) Year(step int) int { return e.cfg.StartYear + step - 1 }

// Series returns the snapshot series recorded so far.
func (e *Engine) Series() *metrics.Series { return e.series }

// Config returns the engine's configuration.
func (e *Engine) Config() config.Config { return e.cfg }

// Step executes exactly one unit of simulated time and returns the new
// snapshot. Per-agent domain failures are recorded as skipped actions;
// only cross-cutting invariant violations abort with a HaltError.
func (e *Engine) Step() (metrics.Snapshot, error) {
	switch e.phase {
	case PhaseUninitialized:
		return metrics.Snapshot{}, errors.New("engine not initialized")
	case PhaseCompleted:
		return metrics.Snapshot{}, ErrCompleted
	}
	e.phase = PhaseRunning

	e.step++
	year := e.Year(e.step)
	e.skippedActions = 0
	e.eventsApplied = 0

	// 1. Exogenous events.
	for _, ev := range e.events.EventsFor(e.step, e.stream) {
		e.applyEvent(ev)
	}

	// 2. Agent decisions and actions, in creation order.
	e.fundAgents()
	for _, a := range e.agents {
		if !a.Active() {
			continue
		}
		perception := e.perceive(a)
		intent := agent.Decide(a, perception, e.stream)
		if intent.Kind == agent.IntentNone {
			continue
		}
		if err := e.apply(a, intent); err != nil {
			e.skippedActions++
			slog.Debug("agent action skipped", "agent", a.Name, "error", err)
			continue
		}
		slog.Debug("agent action applied", "agent", a.Name, "detail", intent.Detail)
	}
	e.burnProjects()

	// 3. Technology advancement; reaching pre-commercial files cases in
	// every region that requires review.
	for _, tr := range e.pipeline.AdvanceAll(e.stream) {
		if tr.To != technology.StagePreCommercial {
			continue
		}
		t, _ := e.pipeline.Get(tr.Technology)
		for _, region := range e.cfg.Regions {
			if e.regulator.Exempt(region) {
				continue
			}
			if _, err := e.regulator.Submit(t, region, e.step); err != nil {
				slog.Debug("case submission skipped", "technology", t.ID, "region", region, "error", err)
			}
		}
	}

	// 4. Regulatory processing.
	e.regulator.ProcessAll(e.step, e.stream)

	// 5. Market settlement; owners collect their margin, originators of
	// licensed technologies their royalty.
	sold := e.market.Settle(e.step, e.participants())
	for id, units := range sold {
		p, ok := e.market.Get(id)
		if !ok {
			continue
		}
		margin := units * p.Price / 1e3 * revenueMargin
		if t, ok := e.pipeline.Get(p.Technology); ok && t.Owner != p.Owner {
			royalty := units * p.Price / 1e3 * e.cfg.LicensingRoyaltyRate
			if royalty > margin {
				royalty = margin
			}
			margin -= royalty
			if originator, ok := e.agentIndex[t.Owner]; ok {
				originator.Capital += royalty
			}
		}
		if owner, ok := e.agentIndex[p.Owner]; ok {
			owner.Capital += margin
		}
	}
	e.retireBankrupt()

	// 6. Invariants, then the committed snapshot.
	if err := e.checkInvariants(); err != nil {
		return metrics.Snapshot{}, err
	}
	snap := e.snapshot(year)
	e.series.Append(snap)

	if year >= e.cfg.EndYear {
		e.phase = PhaseCompleted
	}

	slog.Info("step complete",
		"step", e.step,
		"year", year,
		"products", snap.TotalProducts(),
		"events", snap.EventsApplied,
		"skipped", snap.SkippedActions,
	)
	return snap, nil
}

// Run steps until the configured end year and returns the full snapshot
// sequence. On a halt the sequence produced so far is returned with the
// terminal error.
func (e *Engine) Run() ([]metrics.Snapshot, error) {
	for e.phase != PhaseCompleted {
		if _, err := e.Step(); err != nil {
			return e.series.All(), err
		}
	}
	return e.series.All(), nil
}

// RunUntil steps until the given year (inclusive) or the end of the run.
func (e *Engine) RunUntil(year int) ([]metrics.Snapshot, error) {
	for e.phase != PhaseCompleted && e.Year(e.step) < year {
		if _, err := e.Step(); err != nil {
			return e.series.All(), err
		}
	}
	return e.series.All(), nil
}

// fundAgents applies annual income: research grants arrive before agents
// decide so new entities can start their first project.
func (e *Engine) fundAgents() {
	for _, a := range e.agents {
		if a.Active() && a.Kind == agent.KindResearchEntity {
			a.Capital += researchGrant
		}
	}
}

// burnProjects charges each owner for its active projects and records the
// spend as technology investment.
func (e *Engine) burnProjects() {
	for _, t := range e.pipeline.All() {
		if t.Stage.Terminal() {
			continue
		}
		owner, ok := e.agentIndex[t.Owner]
		if !ok || !owner.Active() {
			continue
		}
		spend := projectBurn
		if owner.Capital < spend {
			spend = owner.Capital
		}
		owner.Capital -= spend
		e.pipeline.Invest(t, spend)
	}
}

// retireBankrupt exits commercial players whose capital is exhausted.
// Exit is terminal; the record stays for metrics continuity.
func (e *Engine) retireBankrupt() {
	for _, a := range e.agents {
		if a.Active() && a.Kind == agent.KindCommercialPlayer && a.Capital < bankruptcyBar {
			a.Exit(e.step)
			slog.Info("agent exits", "agent", a.Name, "reason", "bankruptcy", "step", e.step)
		}
	}
}

// participants returns market participants in creation order.
func (e *Engine) participants() []*agent.Agent {
	var out []*agent.Agent
	for _, a := range e.agents {
		if a.Kind == agent.KindMarketParticipant {
			out = append(out, a)
		}
	}
	return out
}

// checkInvariants verifies cross-cutting consistency after a step. Any
// violation is unrecoverable.
func (e *Engine) checkInvariants() error {
	active := 0
	for _, a := range e.agents {
		if a.Active() {
			active++
		}
	}
	if active < 0 || active > len(e.agents) {
		return &HaltError{Step: e.step, Reason: "agent population corrupted"}
	}

	for _, p := range e.market.All() {
		if p.Price < 0 {
			return &HaltError{Step: e.step, Reason: fmt.Sprintf("product %d has negative price", p.ID)}
		}
		if !e.regulator.Approved(p.Technology, p.Region) {
			return &HaltError{Step: e.step, Reason: fmt.Sprintf("product %d sold in %s without approval", p.ID, p.Region)}
		}
	}

	for _, c := range e.regulator.All() {
		t, ok := e.pipeline.Get(c.Technology)
		if !ok {
			return &HaltError{Step: e.step, Reason: fmt.Sprintf("case %d references unknown technology", c.ID)}
		}
		if t.Stage == technology.StageResearch || t.Stage == technology.StageDevelopment {
			return &HaltError{Step: e.step, Reason: fmt.Sprintf("case %d exists for immature technology %d", c.ID, t.ID)}
		}
	}
	return nil
}

// snapshot aggregates committed state into an immutable record.
func (e *Engine) snapshot(year int) metrics.Snapshot {
	agents := make(map[string]metrics.AgentCount)
	for _, a := range e.agents {
		c := agents[a.Kind.String()]
		if a.Active() {
			c.Active++
		} else {
			c.Exited++
		}
		agents[a.Kind.String()] = c
	}

	return metrics.Snapshot{
		Step:                 e.step,
		Year:                 year,
		ProductsByRegion:     e.market.CountByRegion(),
		AvgPriceByCategory:   e.market.AveragePrice(),
		CasesByRegionStatus:  e.regulator.CountByRegionStatus(),
		AgentsByKind:         agents,
		TechnologiesByStage:  e.pipeline.CountByStage(),
		CumulativeInvestment: e.pipeline.TotalInvestment(),
		CumulativeSales:      e.market.TotalSales(),
		EventsApplied:        e.eventsApplied,
		SkippedActions:       e.skippedActions,
	}
}
