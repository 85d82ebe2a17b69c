// Package market keeps the product registry, pricing, and settlement.
// Registration is gated on regulatory approval through the ApprovalChecker
// interface; settlement computes demand from participant adoption curves
// and never silently changes a price.
package market

import (
	"fmt"
	"math"
	"sort"

	"github.com/talgya/biosim/internal/agent"
	"github.com/talgya/biosim/internal/config"
)

// ApprovalChecker answers whether a technology may be sold in a region.
// Satisfied by the regulatory framework.
type ApprovalChecker interface {
	Approved(tech uint64, region string) bool
}

// Product is a registered, sellable offering backed by a technology.
type Product struct {
	ID              uint64   `json:"id"`
	Technology      uint64   `json:"technology"`
	Owner           agent.ID `json:"owner"`
	Region          string   `json:"region"`
	Category        string   `json:"category"`
	Price           float64  `json:"price"`
	CumulativeSales float64  `json:"cumulative_sales"` // units
	Revenue         float64  `json:"revenue"`          // $ millions
	RegisteredStep  int      `json:"registered_step"`
}

// RegulatoryBlockedError reports a registration attempt without approval.
type RegulatoryBlockedError struct {
	Technology uint64
	Region     string
}

func (e *RegulatoryBlockedError) Error() string {
	return fmt.Sprintf("technology %d lacks approval in %s", e.Technology, e.Region)
}

// InvalidPriceError reports a negative price.
type InvalidPriceError struct {
	Price float64
}

func (e *InvalidPriceError) Error() string {
	return fmt.Sprintf("invalid price %.2f: must be >= 0", e.Price)
}

// Market owns all products and the per-category demand parameters.
type Market struct {
	products map[uint64]*Product
	order    []uint64
	nextID   uint64

	params map[string]config.CategoryParams

	// elasticityShock is an additive per-category shock from market events.
	elasticityShock map[string]float64

	// demandScale grows with the configured market growth rate and climate
	// pressure; applied to base demand at settlement.
	demandScale float64

	growthRate float64
}

// NewMarket builds a market from configuration.
func NewMarket(cfg config.Config) *Market {
	return &Market{
		products:        make(map[uint64]*Product),
		nextID:          1,
		params:          cfg.MarketParameters,
		elasticityShock: make(map[string]float64),
		demandScale:     1.0,
		growthRate:      cfg.MarketGrowthRate,
	}
}

// RegisterProduct creates a product for an approved technology/region pair.
func (m *Market) RegisterProduct(owner *agent.Agent, tech uint64, category, region string, price float64, approvals ApprovalChecker, step int) (*Product, error) {
	if !approvals.Approved(tech, region) {
		return nil, &RegulatoryBlockedError{Technology: tech, Region: region}
	}
	if price < 0 {
		return nil, &InvalidPriceError{Price: price}
	}

	p := &Product{
		ID:             m.nextID,
		Technology:     tech,
		Owner:          owner.ID,
		Region:         region,
		Category:       category,
		Price:          price,
		RegisteredStep: step,
	}
	m.nextID++
	m.products[p.ID] = p
	m.order = append(m.order, p.ID)
	owner.Products = append(owner.Products, p.ID)
	return p, nil
}

// SetPrice updates a product's price. A negative price fails with
// InvalidPriceError and leaves the prior price unchanged.
func (m *Market) SetPrice(p *Product, price float64) error {
	if price < 0 {
		return &InvalidPriceError{Price: price}
	}
	p.Price = price
	return nil
}

// Settle computes one step of demand for every product from the registered
// participants' adoption curves and accumulates sales and revenue.
// Settlement never changes prices; only SetPrice and event application do.
func (m *Market) Settle(step int, participants []*agent.Agent) map[uint64]float64 {
	sold := make(map[uint64]float64, len(m.order))

	for _, id := range m.order {
		p := m.products[id]
		params := m.params[p.Category]

		// Competing products in the same region/category split demand.
		competitors := m.countCompetitors(p.Region, p.Category)

		var units float64
		for _, part := range participants {
			if !part.Active() || part.Region != p.Region {
				continue
			}
			prof, ok := part.Adoption[p.Category]
			if !ok {
				continue
			}
			units += m.demandFor(p, params, prof)
		}
		if competitors > 1 {
			units /= float64(competitors)
		}

		p.CumulativeSales += units
		p.Revenue += units * p.Price / 1e3 // price in $, revenue in $ millions
		sold[p.ID] = units
	}

	// Base demand grows each settled step.
	m.demandScale *= 1 + m.growthRate
	return sold
}

// demandFor evaluates one participant's uptake of one product: a logistic
// adoption ceiling damped by a constant-elasticity price term.
func (m *Market) demandFor(p *Product, params config.CategoryParams, prof agent.AdoptionProfile) float64 {
	base := params.BasePrice
	if base <= 0 {
		base = 1
	}
	rel := p.Price / base

	elasticity := params.Elasticity + m.elasticityShock[p.Category]
	priceTerm := math.Pow(rel, elasticity*prof.PriceSensitivity)

	// Logistic uptake in relative price: full at base price, tailing off
	// as the premium grows.
	adoption := prof.MaxAdoption / (1 + math.Exp(prof.Rate*(rel-1)))

	return params.BaseDemand * m.demandScale * adoption * priceTerm
}

// MarketShare returns a product's share of cumulative sales within its
// region and category, in [0, 1].
func (m *Market) MarketShare(p *Product) float64 {
	var total float64
	for _, id := range m.order {
		q := m.products[id]
		if q.Region == p.Region && q.Category == p.Category {
			total += q.CumulativeSales
		}
	}
	if total == 0 {
		return 0
	}
	return p.CumulativeSales / total
}

// AveragePrice returns the mean price per category across all products.
func (m *Market) AveragePrice() map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, id := range m.order {
		p := m.products[id]
		sums[p.Category] += p.Price
		counts[p.Category]++
	}
	out := make(map[string]float64, len(sums))
	for cat, sum := range sums {
		out[cat] = sum / float64(counts[cat])
	}
	return out
}

// CountByRegion aggregates product counts for metrics.
func (m *Market) CountByRegion() map[string]int {
	out := make(map[string]int)
	for _, id := range m.order {
		out[m.products[id].Region]++
	}
	return out
}

// ShockElasticity applies an additive elasticity shock to a category.
func (m *Market) ShockElasticity(category string, delta float64) {
	m.elasticityShock[category] += delta
}

// ScaleDemand multiplies base demand, used by climate events.
func (m *Market) ScaleDemand(factor float64) {
	if factor > 0 {
		m.demandScale *= factor
	}
}

// BasePrice returns the configured base price for a category.
func (m *Market) BasePrice(category string) float64 {
	return m.params[category].BasePrice
}

// Get returns a product by id.
func (m *Market) Get(id uint64) (*Product, bool) {
	p, ok := m.products[id]
	return p, ok
}

// All returns every product in id order.
func (m *Market) All() []*Product {
	out := make([]*Product, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.products[id])
	}
	return out
}

// HasProduct reports whether a technology already has a product in a region.
func (m *Market) HasProduct(tech uint64, region string) bool {
	for _, id := range m.order {
		p := m.products[id]
		if p.Technology == tech && p.Region == region {
			return true
		}
	}
	return false
}

// TotalSales returns cumulative units sold across all products.
func (m *Market) TotalSales() float64 {
	var sum float64
	for _, id := range m.order {
		sum += m.products[id].CumulativeSales
	}
	return sum
}

// Snapshot returns product copies plus shock and scale state.
func (m *Market) Snapshot() ([]Product, map[string]float64, float64) {
	out := make([]Product, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.products[id])
	}
	shocks := make(map[string]float64, len(m.elasticityShock))
	for k, v := range m.elasticityShock {
		shocks[k] = v
	}
	return out, shocks, m.demandScale
}

// RestoreMarket rebuilds a market from a persisted snapshot.
func RestoreMarket(cfg config.Config, products []Product, shocks map[string]float64, demandScale float64) *Market {
	m := NewMarket(cfg)
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	for i := range products {
		p := products[i]
		m.products[p.ID] = &p
		m.order = append(m.order, p.ID)
		if p.ID >= m.nextID {
			m.nextID = p.ID + 1
		}
	}
	for k, v := range shocks {
		m.elasticityShock[k] = v
	}
	if demandScale > 0 {
		m.demandScale = demandScale
	}
	return m
}

func (m *Market) countCompetitors(region, category string) int {
	n := 0
	for _, id := range m.order {
		p := m.products[id]
		if p.Region == region && p.Category == category {
			n++
		}
	}
	return n
}
