// Per-kind decision logic. Each kind biases toward different actions:
// research entities start projects, commercial players commercialize and
// price, regulatory bodies tune review policy, market participants shift
// their adoption behavior.
package agent

import (
	"fmt"

	"github.com/talgya/biosim/internal/entropy"
)

// Perception is the read-only view of world state an agent decides on.
// The engine assembles it from committed prior-phase state; agents never
// touch live components directly.
type Perception struct {
	Step int
	Year int

	ActiveProjects int
	Capacity       int
	Capital        float64

	// ApprovedUnsold lists approved technology/region pairs the agent holds
	// rights to but has not registered a product for.
	ApprovedUnsold []ApprovedTech

	// DataRequests lists case ids awaiting data for the agent's technologies.
	DataRequests []uint64

	// RejectedFilings lists technology/region pairs whose case was rejected
	// and may be resubmitted as a fresh case.
	RejectedFilings []Filing

	// OwnProducts describes the agent's registered products.
	OwnProducts []ProductView

	// Licensable lists in-pipeline technologies other agents offer.
	Licensable []LicenseOffer

	// AvgPrice maps category to the market's current average price.
	AvgPrice map[string]float64

	// BasePrice maps category to the configured base price.
	BasePrice map[string]float64

	// PolicyDeviation is the regulator's region timeline multiplier minus 1.
	PolicyDeviation float64

	// Categories is the stable-ordered category list.
	Categories []string
}

// ApprovedTech is a sellable technology/region pair.
type ApprovedTech struct {
	Technology uint64
	Region     string
	Category   string
	BasePrice  float64
}

// Filing identifies a regulatory filing target.
type Filing struct {
	Technology uint64
	Region     string
}

// ProductView summarizes one of the agent's products.
type ProductView struct {
	Product   uint64
	Region    string
	Category  string
	Price     float64
	BasePrice float64
	Share     float64 // market share within region/category, 0–1
}

// LicenseOffer is a technology available for licensing.
type LicenseOffer struct {
	Technology uint64
	Owner      ID
	Category   string
	Fee        float64
}

// IntentKind enumerates the actions an agent can request.
type IntentKind uint8

const (
	IntentNone IntentKind = iota
	IntentStartProject
	IntentSubmitCase
	IntentProvideData
	IntentRegisterProduct
	IntentSetPrice
	IntentLicense
	IntentTunePolicy
	IntentAdjustAdoption
)

// Intent is what an agent decided to do this step. The engine validates and
// applies it; domain-rule rejections are recorded, not fatal.
type Intent struct {
	Kind       IntentKind
	Technology uint64
	Case       uint64
	Product    uint64
	Owner      ID // counterparty for licensing
	Region     string
	Category   string
	Price      float64
	Param      float64
	Detail     string
}

// Decide routes to the kind-specific decision function.
func Decide(a *Agent, p Perception, rng *entropy.Stream) Intent {
	if a.Exited {
		return Intent{Kind: IntentNone}
	}
	switch a.Kind {
	case KindResearchEntity:
		return decideResearch(a, p, rng)
	case KindCommercialPlayer:
		return decideCommercial(a, p, rng)
	case KindRegulatoryBody:
		return decideRegulator(a, p, rng)
	case KindMarketParticipant:
		return decideParticipant(a, p, rng)
	default:
		return Intent{Kind: IntentNone}
	}
}

// ProjectCost is the capital a new project consumes up front.
const ProjectCost = 20.0

func decideResearch(a *Agent, p Perception, rng *entropy.Stream) Intent {
	// Answering a data request keeps a filing alive; always first priority.
	if len(p.DataRequests) > 0 {
		return Intent{
			Kind:   IntentProvideData,
			Case:   p.DataRequests[0],
			Detail: fmt.Sprintf("%s supplies requested data", a.Name),
		}
	}

	// Resubmit one rejected filing if risk appetite allows.
	if len(p.RejectedFilings) > 0 && rng.Bernoulli(a.RiskTolerance) {
		f := p.RejectedFilings[0]
		return Intent{
			Kind:       IntentSubmitCase,
			Technology: f.Technology,
			Region:     f.Region,
			Detail:     fmt.Sprintf("%s refiles for %s", a.Name, f.Region),
		}
	}

	// Start a new project when there is room and funding. Higher risk
	// tolerance means starting projects even when capital is thin.
	if p.ActiveProjects < p.Capacity && p.Capital >= ProjectCost {
		threshold := 0.3 + 0.6*a.RiskTolerance
		if rng.Bernoulli(threshold) {
			cat := p.Categories[rng.Intn(len(p.Categories))]
			return Intent{
				Kind:     IntentStartProject,
				Category: cat,
				Region:   a.Region,
				Detail:   fmt.Sprintf("%s starts a %s program", a.Name, cat),
			}
		}
	}

	return Intent{Kind: IntentNone}
}

func decideCommercial(a *Agent, p Perception, rng *entropy.Stream) Intent {
	if len(p.DataRequests) > 0 {
		return Intent{
			Kind:   IntentProvideData,
			Case:   p.DataRequests[0],
			Detail: fmt.Sprintf("%s supplies requested data", a.Name),
		}
	}

	// Commercialize approved technologies first: launch at a premium over
	// base price scaled by risk tolerance.
	if len(p.ApprovedUnsold) > 0 {
		t := p.ApprovedUnsold[0]
		premium := 1.0 + 0.1 + 0.3*a.RiskTolerance
		return Intent{
			Kind:       IntentRegisterProduct,
			Technology: t.Technology,
			Region:     t.Region,
			Category:   t.Category,
			Price:      t.BasePrice * premium,
			Detail:     fmt.Sprintf("%s launches in %s", a.Name, t.Region),
		}
	}

	// Reprice a struggling or dominant product.
	for _, prod := range p.OwnProducts {
		if prod.Share < 0.15 && prod.Price > prod.BasePrice*0.8 {
			return Intent{
				Kind:    IntentSetPrice,
				Product: prod.Product,
				Price:   prod.Price * 0.92,
				Detail:  fmt.Sprintf("%s cuts price in %s", a.Name, prod.Region),
			}
		}
		if prod.Share > 0.6 && rng.Bernoulli(a.RiskTolerance) {
			return Intent{
				Kind:    IntentSetPrice,
				Product: prod.Product,
				Price:   prod.Price * 1.05,
				Detail:  fmt.Sprintf("%s raises price in %s", a.Name, prod.Region),
			}
		}
	}

	// License in an external technology when flush.
	if len(p.Licensable) > 0 {
		offer := p.Licensable[0]
		if p.Capital > offer.Fee*2 && rng.Bernoulli(0.2+0.4*a.RiskTolerance) {
			return Intent{
				Kind:       IntentLicense,
				Technology: offer.Technology,
				Owner:      offer.Owner,
				Price:      offer.Fee,
				Detail:     fmt.Sprintf("%s licenses technology %d", a.Name, offer.Technology),
			}
		}
	}

	// Otherwise behave like an R&D shop: fund internal development.
	if p.ActiveProjects < p.Capacity && p.Capital >= ProjectCost {
		if rng.Bernoulli(0.2 + 0.4*a.RiskTolerance) {
			cat := p.Categories[rng.Intn(len(p.Categories))]
			return Intent{
				Kind:     IntentStartProject,
				Category: cat,
				Region:   a.Region,
				Detail:   fmt.Sprintf("%s starts internal %s development", a.Name, cat),
			}
		}
	}

	return Intent{Kind: IntentNone}
}

func decideRegulator(a *Agent, p Perception, rng *entropy.Stream) Intent {
	// Regulators drift their region's review timeline back toward the
	// configured baseline after policy shocks. Magnitude is a fraction of
	// the current deviation, so repeated steps converge.
	if p.PolicyDeviation != 0 {
		return Intent{
			Kind:   IntentTunePolicy,
			Region: a.Region,
			Param:  -p.PolicyDeviation * 0.25,
			Detail: fmt.Sprintf("%s normalizes review timeline", a.Name),
		}
	}
	return Intent{Kind: IntentNone}
}

func decideParticipant(a *Agent, p Perception, rng *entropy.Stream) Intent {
	// Participants respond to prices: when a category's average price runs
	// well above base, uptake appetite erodes; cheap categories attract.
	for _, cat := range p.Categories {
		avg, ok := p.AvgPrice[cat]
		if !ok || avg == 0 {
			continue
		}
		if _, ok := a.Adoption[cat]; !ok {
			continue
		}
		base := p.BasePrice[cat]
		if base == 0 {
			continue
		}
		shift := 0.0
		if avg > base*1.3 {
			shift = -0.02
		} else if avg < base*0.9 {
			shift = 0.02
		}
		if shift != 0 && rng.Bernoulli(0.5) {
			return Intent{
				Kind:     IntentAdjustAdoption,
				Category: cat,
				Param:    shift,
				Detail:   fmt.Sprintf("%s shifts %s adoption", a.Name, cat),
			}
		}
	}
	return Intent{Kind: IntentNone}
}
