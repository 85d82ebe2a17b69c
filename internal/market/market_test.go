package market_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/biosim/internal/agent"
	"github.com/talgya/biosim/internal/config"
	"github.com/talgya/biosim/internal/market"
)

// approvals is a fixed-answer ApprovalChecker for tests.
type approvals map[string]bool

func (a approvals) Approved(tech uint64, region string) bool {
	return a[fmt.Sprintf("%d/%s", tech, region)]
}

func approve(pairs ...string) approvals {
	a := approvals{}
	for _, p := range pairs {
		a[p] = true
	}
	return a
}

func pair(tech uint64, region string) string {
	return fmt.Sprintf("%d/%s", tech, region)
}

func marketConfig() config.Config {
	cfg := config.Default()
	cfg.MarketParameters = map[string]config.CategoryParams{
		"grain_crops": {BasePrice: 100, Elasticity: -0.8, BaseDemand: 40},
	}
	cfg.MarketGrowthRate = 0
	return cfg
}

func participant(region string, max float64) *agent.Agent {
	return &agent.Agent{
		Kind:   agent.KindMarketParticipant,
		Region: region,
		Adoption: map[string]agent.AdoptionProfile{
			"grain_crops": {MaxAdoption: max, Rate: 2, PriceSensitivity: 0.5},
		},
	}
}

func TestRegisterProductRequiresApproval(t *testing.T) {
	m := market.NewMarket(marketConfig())
	owner := &agent.Agent{ID: 1}

	_, err := m.RegisterProduct(owner, 5, "grain_crops", "usa", 100, approvals{}, 1)
	require.Error(t, err)
	var blocked *market.RegulatoryBlockedError
	require.ErrorAs(t, err, &blocked)
	assert.Equal(t, uint64(5), blocked.Technology)
	assert.Empty(t, m.All())
	assert.Empty(t, owner.Products)

	p, err := m.RegisterProduct(owner, 5, "grain_crops", "usa", 100, approve(pair(5, "usa")), 1)
	require.NoError(t, err)
	assert.Equal(t, owner.ID, p.Owner)
	assert.Contains(t, owner.Products, p.ID)
	assert.True(t, m.HasProduct(5, "usa"))
	assert.False(t, m.HasProduct(5, "eu"))
}

func TestRegisterProductRejectsNegativePrice(t *testing.T) {
	m := market.NewMarket(marketConfig())
	owner := &agent.Agent{ID: 1}

	_, err := m.RegisterProduct(owner, 5, "grain_crops", "usa", -1, approve(pair(5, "usa")), 1)
	require.Error(t, err)
	var invalid *market.InvalidPriceError
	require.ErrorAs(t, err, &invalid)
	assert.Empty(t, m.All())
}

func TestSetPricePreservesPriorOnError(t *testing.T) {
	m := market.NewMarket(marketConfig())
	owner := &agent.Agent{ID: 1}
	p, err := m.RegisterProduct(owner, 5, "grain_crops", "usa", 100, approve(pair(5, "usa")), 1)
	require.NoError(t, err)

	require.NoError(t, m.SetPrice(p, 130))
	assert.InDelta(t, 130, p.Price, 1e-9)

	err = m.SetPrice(p, -10)
	require.Error(t, err)
	var invalid *market.InvalidPriceError
	require.ErrorAs(t, err, &invalid)
	assert.InDelta(t, 130, p.Price, 1e-9)

	// Free is a legal price.
	require.NoError(t, m.SetPrice(p, 0))
}

func TestSettleAccumulatesSalesAndRevenue(t *testing.T) {
	m := market.NewMarket(marketConfig())
	owner := &agent.Agent{ID: 1}
	p, err := m.RegisterProduct(owner, 5, "grain_crops", "usa", 100, approve(pair(5, "usa")), 1)
	require.NoError(t, err)

	parts := []*agent.Agent{participant("usa", 0.6), participant("usa", 0.4)}
	sold := m.Settle(1, parts)

	require.Contains(t, sold, p.ID)
	assert.Positive(t, sold[p.ID])
	assert.InDelta(t, sold[p.ID], p.CumulativeSales, 1e-9)
	assert.InDelta(t, sold[p.ID]*100/1e3, p.Revenue, 1e-9)
	assert.InDelta(t, sold[p.ID], m.TotalSales(), 1e-9)
}

func TestSettleIgnoresOtherRegions(t *testing.T) {
	m := market.NewMarket(marketConfig())
	owner := &agent.Agent{ID: 1}
	p, err := m.RegisterProduct(owner, 5, "grain_crops", "usa", 100, approve(pair(5, "usa")), 1)
	require.NoError(t, err)

	sold := m.Settle(1, []*agent.Agent{participant("eu", 0.8)})
	assert.Zero(t, sold[p.ID])
}

func TestHigherPriceLowersDemand(t *testing.T) {
	checker := approve(pair(1, "usa"), pair(2, "usa"))
	parts := []*agent.Agent{participant("usa", 0.6)}

	cheap := market.NewMarket(marketConfig())
	cp, err := cheap.RegisterProduct(&agent.Agent{ID: 1}, 1, "grain_crops", "usa", 100, checker, 1)
	require.NoError(t, err)
	cheapSold := cheap.Settle(1, parts)[cp.ID]

	dear := market.NewMarket(marketConfig())
	dp, err := dear.RegisterProduct(&agent.Agent{ID: 1}, 2, "grain_crops", "usa", 180, checker, 1)
	require.NoError(t, err)
	dearSold := dear.Settle(1, parts)[dp.ID]

	assert.Greater(t, cheapSold, dearSold)
}

func TestCompetitorsSplitDemand(t *testing.T) {
	checker := approve(pair(1, "usa"), pair(2, "usa"))
	parts := []*agent.Agent{participant("usa", 0.6)}

	solo := market.NewMarket(marketConfig())
	sp, err := solo.RegisterProduct(&agent.Agent{ID: 1}, 1, "grain_crops", "usa", 100, checker, 1)
	require.NoError(t, err)
	soloSold := solo.Settle(1, parts)[sp.ID]

	crowded := market.NewMarket(marketConfig())
	a, err := crowded.RegisterProduct(&agent.Agent{ID: 1}, 1, "grain_crops", "usa", 100, checker, 1)
	require.NoError(t, err)
	_, err = crowded.RegisterProduct(&agent.Agent{ID: 2}, 2, "grain_crops", "usa", 100, checker, 1)
	require.NoError(t, err)
	crowdedSold := crowded.Settle(1, parts)[a.ID]

	assert.InDelta(t, soloSold/2, crowdedSold, 1e-9)
}

func TestDemandGrowsWithGrowthRate(t *testing.T) {
	cfg := marketConfig()
	cfg.MarketGrowthRate = 0.1
	m := market.NewMarket(cfg)
	p, err := m.RegisterProduct(&agent.Agent{ID: 1}, 1, "grain_crops", "usa", 100, approve(pair(1, "usa")), 1)
	require.NoError(t, err)

	parts := []*agent.Agent{participant("usa", 0.6)}
	first := m.Settle(1, parts)[p.ID]
	second := m.Settle(2, parts)[p.ID]
	assert.InDelta(t, first*1.1, second, 1e-9)
}

func TestMarketShare(t *testing.T) {
	m := market.NewMarket(marketConfig())
	checker := approve(pair(1, "usa"), pair(2, "usa"))
	a, err := m.RegisterProduct(&agent.Agent{ID: 1}, 1, "grain_crops", "usa", 100, checker, 1)
	require.NoError(t, err)
	b, err := m.RegisterProduct(&agent.Agent{ID: 2}, 2, "grain_crops", "usa", 100, checker, 1)
	require.NoError(t, err)

	// No sales yet: shares are zero, not NaN.
	assert.Zero(t, m.MarketShare(a))

	a.CumulativeSales = 30
	b.CumulativeSales = 10
	assert.InDelta(t, 0.75, m.MarketShare(a), 1e-9)
	assert.InDelta(t, 0.25, m.MarketShare(b), 1e-9)
}

func TestAveragePriceAndCounts(t *testing.T) {
	m := market.NewMarket(marketConfig())
	checker := approve(pair(1, "usa"), pair(2, "usa"), pair(3, "eu"))
	_, err := m.RegisterProduct(&agent.Agent{ID: 1}, 1, "grain_crops", "usa", 100, checker, 1)
	require.NoError(t, err)
	_, err = m.RegisterProduct(&agent.Agent{ID: 2}, 2, "grain_crops", "usa", 200, checker, 1)
	require.NoError(t, err)
	_, err = m.RegisterProduct(&agent.Agent{ID: 3}, 3, "grain_crops", "eu", 90, checker, 1)
	require.NoError(t, err)

	avg := m.AveragePrice()
	assert.InDelta(t, 130, avg["grain_crops"], 1e-9)

	counts := m.CountByRegion()
	assert.Equal(t, 2, counts["usa"])
	assert.Equal(t, 1, counts["eu"])
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	cfg := marketConfig()
	m := market.NewMarket(cfg)
	p, err := m.RegisterProduct(&agent.Agent{ID: 1}, 1, "grain_crops", "usa", 100, approve(pair(1, "usa")), 1)
	require.NoError(t, err)
	m.Settle(1, []*agent.Agent{participant("usa", 0.6)})
	m.ShockElasticity("grain_crops", -0.2)

	products, shocks, scale := m.Snapshot()
	restored := market.RestoreMarket(cfg, products, shocks, scale)

	gotProducts, gotShocks, gotScale := restored.Snapshot()
	assert.Equal(t, products, gotProducts)
	assert.Equal(t, shocks, gotShocks)
	assert.Equal(t, scale, gotScale)

	got, ok := restored.Get(p.ID)
	require.True(t, ok)
	assert.Equal(t, p.CumulativeSales, got.CumulativeSales)
}
