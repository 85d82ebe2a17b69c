// Perception assembly and intent application. Agents see a read-only view
// of committed state and hand back an intent; the engine is the only code
// that mutates the pipeline, regulator, or market on their behalf, in
// deterministic agent order.
package sim

import (
	"fmt"
	"sort"

	"github.com/talgya/biosim/internal/agent"
	"github.com/talgya/biosim/internal/regulatory"
	"github.com/talgya/biosim/internal/technology"
)

// perceive builds the world view for one agent.
func (e *Engine) perceive(a *agent.Agent) agent.Perception {
	p := agent.Perception{
		Step:           e.step,
		Year:           e.Year(e.step),
		ActiveProjects: e.pipeline.ActiveProjects(a.ID),
		Capacity:       a.Capacity,
		Capital:        a.Capital,
		AvgPrice:       e.market.AveragePrice(),
		Categories:     e.categories,
	}

	p.BasePrice = make(map[string]float64, len(e.categories))
	for _, cat := range e.categories {
		p.BasePrice[cat] = e.market.BasePrice(cat)
	}

	switch a.Kind {
	case agent.KindRegulatoryBody:
		p.PolicyDeviation = e.regulator.TimelineMultiplier(a.Region) - 1
		return p
	case agent.KindMarketParticipant:
		return p
	}

	// Research entities and commercial players track their filings.
	held := e.heldTechnologies(a)

	for _, c := range e.regulator.All() {
		if _, ok := held[c.Technology]; !ok {
			continue
		}
		switch c.Status {
		case regulatory.StatusDataRequested:
			p.DataRequests = append(p.DataRequests, c.ID)
		case regulatory.StatusRejected:
			t, ok := e.pipeline.Get(c.Technology)
			if !ok || t.Stage == technology.StageAbandoned {
				continue
			}
			if st, _ := e.regulator.Status(c.Technology, c.Region); st == regulatory.StatusRejected {
				p.RejectedFilings = append(p.RejectedFilings, agent.Filing{
					Technology: c.Technology,
					Region:     c.Region,
				})
			}
		}
	}

	if a.Kind != agent.KindCommercialPlayer {
		return p
	}

	// Sellable approvals the player has not acted on yet.
	for tech := range held {
		t, ok := e.pipeline.Get(tech)
		if !ok || t.Stage < technology.StagePreCommercial || t.Stage == technology.StageAbandoned {
			continue
		}
		for _, region := range e.cfg.Regions {
			if !e.regulator.Approved(t.ID, region) || e.market.HasProduct(t.ID, region) {
				continue
			}
			p.ApprovedUnsold = append(p.ApprovedUnsold, agent.ApprovedTech{
				Technology: t.ID,
				Region:     region,
				Category:   t.Category,
				BasePrice:  e.market.BasePrice(t.Category),
			})
		}
	}
	sortApproved(p.ApprovedUnsold)

	for _, id := range a.Products {
		prod, ok := e.market.Get(id)
		if !ok {
			continue
		}
		p.OwnProducts = append(p.OwnProducts, agent.ProductView{
			Product:   prod.ID,
			Region:    prod.Region,
			Category:  prod.Category,
			Price:     prod.Price,
			BasePrice: e.market.BasePrice(prod.Category),
			Share:     e.market.MarketShare(prod),
		})
	}

	// Research-owned technologies past the research stage are open to
	// licensing, so players acquire programs mid-pipeline and can register
	// the product as soon as approval lands.
	for _, t := range e.pipeline.All() {
		if t.Stage < technology.StageDevelopment || t.Stage == technology.StageAbandoned {
			continue
		}
		if t.Owner == a.ID || a.HoldsTechnology(t.ID) {
			continue
		}
		owner, ok := e.agentIndex[t.Owner]
		if !ok || owner.Kind != agent.KindResearchEntity || !owner.Active() {
			continue
		}
		p.Licensable = append(p.Licensable, agent.LicenseOffer{
			Technology: t.ID,
			Owner:      t.Owner,
			Category:   t.Category,
			Fee:        e.market.BasePrice(t.Category) * licenseFeeRate,
		})
		if len(p.Licensable) >= 3 {
			break
		}
	}

	return p
}

// apply executes one intent. Domain-rule violations come back as errors and
// are recorded by the caller as skipped actions; they never halt the run.
func (e *Engine) apply(a *agent.Agent, intent agent.Intent) error {
	switch intent.Kind {
	case agent.IntentStartProject:
		t, err := e.pipeline.RegisterProject(a, intent.Category, intent.Region, e.step)
		if err != nil {
			return err
		}
		a.Capital -= agent.ProjectCost
		e.pipeline.Invest(t, agent.ProjectCost)
		return nil

	case agent.IntentSubmitCase:
		t, ok := e.pipeline.Get(intent.Technology)
		if !ok {
			return fmt.Errorf("unknown technology %d", intent.Technology)
		}
		_, err := e.regulator.Submit(t, intent.Region, e.step)
		return err

	case agent.IntentProvideData:
		c, ok := e.regulator.Get(intent.Case)
		if !ok {
			return fmt.Errorf("unknown case %d", intent.Case)
		}
		e.regulator.SupplyData(c, e.step, e.stream)
		return nil

	case agent.IntentRegisterProduct:
		_, err := e.market.RegisterProduct(a, intent.Technology, intent.Category, intent.Region, intent.Price, e.regulator, e.step)
		return err

	case agent.IntentSetPrice:
		p, ok := e.market.Get(intent.Product)
		if !ok {
			return fmt.Errorf("unknown product %d", intent.Product)
		}
		if p.Owner != a.ID {
			return fmt.Errorf("product %d not owned by agent %d", p.ID, a.ID)
		}
		return e.market.SetPrice(p, intent.Price)

	case agent.IntentLicense:
		owner, ok := e.agentIndex[intent.Owner]
		if !ok {
			return fmt.Errorf("unknown licensor %d", intent.Owner)
		}
		if a.Capital < intent.Price {
			return fmt.Errorf("insufficient capital for license fee %.1f", intent.Price)
		}
		a.Capital -= intent.Price
		owner.Capital += intent.Price
		a.Licensed = append(a.Licensed, intent.Technology)
		return nil

	case agent.IntentTunePolicy:
		e.regulator.AdjustTimeline(intent.Region, intent.Param)
		return nil

	case agent.IntentAdjustAdoption:
		prof, ok := a.Adoption[intent.Category]
		if !ok {
			return fmt.Errorf("no adoption profile for %s", intent.Category)
		}
		prof.MaxAdoption = clamp(prof.MaxAdoption+intent.Param, 0, 1)
		a.Adoption[intent.Category] = prof
		return nil

	default:
		return nil
	}
}

// heldTechnologies returns the ids an agent owns or licenses.
func (e *Engine) heldTechnologies(a *agent.Agent) map[uint64]struct{} {
	held := make(map[uint64]struct{}, len(a.Projects)+len(a.Licensed))
	for _, id := range a.Projects {
		held[id] = struct{}{}
	}
	for _, id := range a.Licensed {
		held[id] = struct{}{}
	}
	return held
}

// sortApproved orders approvals by technology id then region so the first
// candidate is stable across runs.
func sortApproved(s []agent.ApprovedTech) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].Technology != s[j].Technology {
			return s[i].Technology < s[j].Technology
		}
		return s[i].Region < s[j].Region
	})
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
