package sim

import (
	"log/slog"

	"github.com/talgya/biosim/internal/agent"
	"github.com/talgya/biosim/internal/event"
)

// applyEvent applies one event's payload to the affected components. Events
// are consumed within their step; effects on multipliers and shocks persist
// as component state.
func (e *Engine) applyEvent(ev event.Event) {
	p := ev.Payload

	switch ev.Kind {
	case event.KindPolicy:
		if ev.Region != "" {
			e.regulator.AdjustTimeline(ev.Region, p.TimelineDelta)
		} else {
			for _, region := range e.cfg.Regions {
				e.regulator.AdjustTimeline(region, p.TimelineDelta)
			}
		}

	case event.KindMarket:
		if p.Category != "" {
			e.market.ShockElasticity(p.Category, p.ElasticityShock)
		} else {
			for _, cat := range e.categories {
				e.market.ShockElasticity(cat, p.ElasticityShock)
			}
		}
		if p.CapitalShock > 0 && p.CapitalShock != 1 {
			for _, a := range e.agents {
				if a.Active() && a.Kind == agent.KindCommercialPlayer {
					a.Capital *= p.CapitalShock
				}
			}
		}

	case event.KindTechnology:
		e.pipeline.ShiftAdvancement(p.AdvancementShift)
		if p.SpawnStartup {
			e.spawnStartup()
		}

	case event.KindClimate:
		e.market.ScaleDemand(p.DemandFactor)
		e.pipeline.ShiftAdvancement(p.AdvancementShift)
	}

	e.eventsApplied++
	slog.Info("event applied",
		"step", e.step,
		"kind", ev.Kind.String(),
		"region", ev.Region,
		"description", ev.Description,
	)
}

// spawnStartup founds a new commercial player mid-run, triggered by strong
// technology events. The startup draws its region and attributes from the
// shared stream like any initial agent.
func (e *Engine) spawnStartup() {
	region := e.cfg.Regions[e.stream.Intn(len(e.cfg.Regions))]
	a := e.spawnAgent(agent.KindCommercialPlayer, region, e.step)
	slog.Info("startup founded", "agent", a.Name, "region", region, "step", e.step)
}
