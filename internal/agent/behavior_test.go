package agent_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/biosim/internal/agent"
	"github.com/talgya/biosim/internal/entropy"
)

func TestExitIsMonotonic(t *testing.T) {
	a := &agent.Agent{ID: 1, Kind: agent.KindCommercialPlayer}
	require.True(t, a.Active())

	a.Exit(3)
	assert.False(t, a.Active())
	assert.Equal(t, 3, a.ExitStep)

	// Repeated exits keep the original step.
	a.Exit(9)
	assert.Equal(t, 3, a.ExitStep)
}

func TestHoldsTechnology(t *testing.T) {
	a := &agent.Agent{Projects: []uint64{1, 2}, Licensed: []uint64{7}}
	assert.True(t, a.HoldsTechnology(1))
	assert.True(t, a.HoldsTechnology(7))
	assert.False(t, a.HoldsTechnology(3))
}

func TestKindRoundTrip(t *testing.T) {
	for _, k := range []agent.Kind{
		agent.KindResearchEntity,
		agent.KindCommercialPlayer,
		agent.KindRegulatoryBody,
		agent.KindMarketParticipant,
	} {
		got, ok := agent.KindFromString(k.String())
		require.True(t, ok)
		assert.Equal(t, k, got)
	}
	_, ok := agent.KindFromString("distributor")
	assert.False(t, ok)
}

func TestExitedAgentDecidesNothing(t *testing.T) {
	a := &agent.Agent{ID: 1, Kind: agent.KindResearchEntity, Exited: true}
	intent := agent.Decide(a, agent.Perception{}, entropy.NewStream(1))
	assert.Equal(t, agent.IntentNone, intent.Kind)
}

func TestResearchAnswersDataRequestFirst(t *testing.T) {
	a := &agent.Agent{ID: 1, Name: "re-001", Kind: agent.KindResearchEntity, RiskTolerance: 1}
	p := agent.Perception{
		DataRequests:    []uint64{42},
		RejectedFilings: []agent.Filing{{Technology: 9, Region: "eu"}},
		ActiveProjects:  0,
		Capacity:        3,
		Capital:         100,
		Categories:      []string{"grain_crops"},
	}
	intent := agent.Decide(a, p, entropy.NewStream(1))
	require.Equal(t, agent.IntentProvideData, intent.Kind)
	assert.Equal(t, uint64(42), intent.Case)
	assert.NotEmpty(t, intent.Detail)
}

func TestResearchStartsProjects(t *testing.T) {
	a := &agent.Agent{ID: 1, Name: "re-001", Kind: agent.KindResearchEntity, Region: "usa", RiskTolerance: 1}
	p := agent.Perception{
		ActiveProjects: 0,
		Capacity:       3,
		Capital:        agent.ProjectCost,
		Categories:     []string{"grain_crops", "fiber_crops"},
	}

	// The start gate is a 0.9 draw at full risk tolerance; across seeds it
	// must fire, and when it does the intent is well-formed.
	fired := false
	for seed := int64(1); seed <= 20; seed++ {
		intent := agent.Decide(a, p, entropy.NewStream(seed))
		if intent.Kind == agent.IntentStartProject {
			fired = true
			assert.Contains(t, p.Categories, intent.Category)
			assert.Equal(t, "usa", intent.Region)
		}
	}
	assert.True(t, fired, "project start never fired across 20 seeds")
}

func TestResearchRespectsCapacityAndCapital(t *testing.T) {
	a := &agent.Agent{ID: 1, Kind: agent.KindResearchEntity, RiskTolerance: 1}

	atCapacity := agent.Perception{ActiveProjects: 3, Capacity: 3, Capital: 100, Categories: []string{"x"}}
	assert.Equal(t, agent.IntentNone, agent.Decide(a, atCapacity, entropy.NewStream(1)).Kind)

	broke := agent.Perception{ActiveProjects: 0, Capacity: 3, Capital: agent.ProjectCost - 1, Categories: []string{"x"}}
	assert.Equal(t, agent.IntentNone, agent.Decide(a, broke, entropy.NewStream(1)).Kind)
}

func TestCommercialRegistersApprovedTechnology(t *testing.T) {
	a := &agent.Agent{ID: 2, Name: "cp-002", Kind: agent.KindCommercialPlayer, RiskTolerance: 0.5}
	p := agent.Perception{
		ApprovedUnsold: []agent.ApprovedTech{
			{Technology: 5, Region: "usa", Category: "grain_crops", BasePrice: 100},
		},
	}
	intent := agent.Decide(a, p, entropy.NewStream(1))
	require.Equal(t, agent.IntentRegisterProduct, intent.Kind)
	assert.Equal(t, uint64(5), intent.Technology)
	assert.Equal(t, "usa", intent.Region)
	// Launch price carries a premium over base.
	assert.Greater(t, intent.Price, 100.0)
	assert.NotEmpty(t, intent.Detail)
}

func TestCommercialCutsPriceOnWeakShare(t *testing.T) {
	a := &agent.Agent{ID: 2, Kind: agent.KindCommercialPlayer, RiskTolerance: 0}
	p := agent.Perception{
		OwnProducts: []agent.ProductView{
			{Product: 3, Region: "usa", Price: 120, BasePrice: 100, Share: 0.05},
		},
	}
	intent := agent.Decide(a, p, entropy.NewStream(1))
	require.Equal(t, agent.IntentSetPrice, intent.Kind)
	assert.Equal(t, uint64(3), intent.Product)
	assert.Less(t, intent.Price, 120.0)
}

func TestRegulatorNormalizesTimelineDeviation(t *testing.T) {
	a := &agent.Agent{ID: 3, Kind: agent.KindRegulatoryBody, Region: "eu"}

	drifted := agent.Perception{PolicyDeviation: 0.4}
	intent := agent.Decide(a, drifted, entropy.NewStream(1))
	require.Equal(t, agent.IntentTunePolicy, intent.Kind)
	assert.Equal(t, "eu", intent.Region)
	assert.InDelta(t, -0.1, intent.Param, 1e-9)

	steady := agent.Perception{PolicyDeviation: 0}
	assert.Equal(t, agent.IntentNone, agent.Decide(a, steady, entropy.NewStream(1)).Kind)
}

func TestParticipantShiftsAdoptionAgainstHighPrices(t *testing.T) {
	a := &agent.Agent{
		ID:   4,
		Kind: agent.KindMarketParticipant,
		Adoption: map[string]agent.AdoptionProfile{
			"grain_crops": {MaxAdoption: 0.5, Rate: 2, PriceSensitivity: 0.5},
		},
	}
	p := agent.Perception{
		Categories: []string{"grain_crops"},
		AvgPrice:   map[string]float64{"grain_crops": 200},
		BasePrice:  map[string]float64{"grain_crops": 100},
	}

	// The shift gate is a coin flip; across enough seeds it must fire, and
	// when it does the shift is negative for an expensive category.
	fired := false
	for seed := int64(1); seed <= 20; seed++ {
		intent := agent.Decide(a, p, entropy.NewStream(seed))
		if intent.Kind == agent.IntentAdjustAdoption {
			fired = true
			assert.Equal(t, "grain_crops", intent.Category)
			assert.Negative(t, intent.Param)
		}
	}
	assert.True(t, fired, "adoption shift never fired across 20 seeds")
}
