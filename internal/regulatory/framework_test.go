package regulatory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/biosim/internal/config"
	"github.com/talgya/biosim/internal/entropy"
	"github.com/talgya/biosim/internal/regulatory"
	"github.com/talgya/biosim/internal/technology"
)

// regionConfig builds a one-region config with fully controlled review
// parameters so tests pin outcomes instead of sampling them.
func regionConfig(rule config.RegionRule) config.Config {
	cfg := config.Default()
	cfg.Regions = []string{"usa"}
	cfg.RegulatoryTimelines = map[string]config.RegionRule{"usa": rule}
	return cfg
}

func eligibleTech(id uint64) *technology.Technology {
	return &technology.Technology{ID: id, Stage: technology.StagePreCommercial, Region: "usa"}
}

func TestSubmitRequiresMaturity(t *testing.T) {
	f := regulatory.NewFramework(regionConfig(config.RegionRule{MinReviewSteps: 1}))

	for _, stage := range []technology.Stage{technology.StageResearch, technology.StageDevelopment, technology.StageAbandoned} {
		_, err := f.Submit(&technology.Technology{ID: 1, Stage: stage}, "usa", 1)
		require.Error(t, err, "stage %s", stage)
		var inel *regulatory.IneligibleTechnologyError
		require.ErrorAs(t, err, &inel)
		assert.Equal(t, stage, inel.Stage)
	}
	assert.Empty(t, f.All())
}

func TestSubmitDeduplicatesOpenCases(t *testing.T) {
	f := regulatory.NewFramework(regionConfig(config.RegionRule{MinReviewSteps: 4}))
	tech := eligibleTech(1)

	first, err := f.Submit(tech, "usa", 1)
	require.NoError(t, err)
	second, err := f.Submit(tech, "usa", 2)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Len(t, f.All(), 1)
}

func TestZeroDwellCertainApprovalDecidesOnIntake(t *testing.T) {
	f := regulatory.NewFramework(regionConfig(config.RegionRule{
		MinReviewSteps:  0,
		ApprovalByStage: map[string]float64{"under_review": 1},
	}))
	c, err := f.Submit(eligibleTech(1), "usa", 5)
	require.NoError(t, err)

	f.ProcessAll(5, entropy.NewStream(1))
	assert.Equal(t, regulatory.StatusApproved, c.Status)
	assert.Equal(t, 5, c.DecidedStep)
	assert.True(t, f.Approved(1, "usa"))
}

func TestZeroApprovalProbabilityNeverDecides(t *testing.T) {
	// With approval, rejection, and data-request probabilities all zero the
	// case stays under review for the whole horizon.
	f := regulatory.NewFramework(regionConfig(config.RegionRule{MinReviewSteps: 0}))
	c, err := f.Submit(eligibleTech(1), "usa", 1)
	require.NoError(t, err)

	rng := entropy.NewStream(1)
	for step := 1; step <= 50; step++ {
		f.ProcessAll(step, rng)
		require.Equal(t, regulatory.StatusUnderReview, c.Status, "step %d", step)
	}
	assert.False(t, f.Approved(1, "usa"))
}

func TestMinimumDwellGatesDecision(t *testing.T) {
	f := regulatory.NewFramework(regionConfig(config.RegionRule{
		MinReviewSteps:  3,
		ApprovalByStage: map[string]float64{"under_review": 1},
	}))
	c, err := f.Submit(eligibleTech(1), "usa", 1)
	require.NoError(t, err)

	rng := entropy.NewStream(1)
	// Steps 1-3 accumulate dwell; the certain approval fires at step 4.
	for step := 1; step <= 3; step++ {
		f.ProcessAll(step, rng)
		require.Equal(t, regulatory.StatusUnderReview, c.Status, "step %d", step)
	}
	f.ProcessAll(4, rng)
	assert.Equal(t, regulatory.StatusApproved, c.Status)
}

func TestDataRequestWindowTimesOutToRejected(t *testing.T) {
	f := regulatory.NewFramework(regionConfig(config.RegionRule{
		MinReviewSteps:         0,
		DataRequestProbability: 1,
		DataWindowSteps:        2,
	}))
	c, err := f.Submit(eligibleTech(1), "usa", 1)
	require.NoError(t, err)

	rng := entropy.NewStream(1)
	f.ProcessAll(1, rng)
	require.Equal(t, regulatory.StatusDataRequested, c.Status)
	assert.Equal(t, 2, c.DataWindowLeft)

	// Nobody answers; the window drains and the case is rejected.
	f.ProcessAll(2, rng)
	require.Equal(t, regulatory.StatusDataRequested, c.Status)
	f.ProcessAll(3, rng)
	assert.Equal(t, regulatory.StatusRejected, c.Status)
	assert.Equal(t, 3, c.DecidedStep)
}

func TestSupplyDataReturnsCaseToReview(t *testing.T) {
	f := regulatory.NewFramework(regionConfig(config.RegionRule{
		MinReviewSteps:         0,
		DataRequestProbability: 1,
		DataWindowSteps:        3,
		ApprovalByStage:        map[string]float64{"data_requested": 1},
	}))
	c, err := f.Submit(eligibleTech(1), "usa", 1)
	require.NoError(t, err)

	rng := entropy.NewStream(1)
	f.ProcessAll(1, rng)
	require.Equal(t, regulatory.StatusDataRequested, c.Status)

	f.SupplyData(c, 2, rng)
	assert.Equal(t, regulatory.StatusUnderReview, c.Status)
	assert.Zero(t, c.DataWindowLeft)
}

func TestApprovalIsSticky(t *testing.T) {
	f := regulatory.NewFramework(regionConfig(config.RegionRule{
		MinReviewSteps:  0,
		ApprovalByStage: map[string]float64{"under_review": 1},
	}))
	tech := eligibleTech(1)
	c, err := f.Submit(tech, "usa", 1)
	require.NoError(t, err)
	f.ProcessAll(1, entropy.NewStream(1))
	require.Equal(t, regulatory.StatusApproved, c.Status)

	// Resubmission returns the approved case rather than opening a new one.
	again, err := f.Submit(tech, "usa", 2)
	require.NoError(t, err)
	assert.Same(t, c, again)

	st, ok := f.Status(1, "usa")
	require.True(t, ok)
	assert.Equal(t, regulatory.StatusApproved, st)
}

func TestStatusIsIdempotentWithoutProcessing(t *testing.T) {
	f := regulatory.NewFramework(regionConfig(config.RegionRule{MinReviewSteps: 2}))
	_, err := f.Submit(eligibleTech(1), "usa", 1)
	require.NoError(t, err)

	first, ok := f.Status(1, "usa")
	require.True(t, ok)
	for i := 0; i < 10; i++ {
		got, ok := f.Status(1, "usa")
		require.True(t, ok)
		assert.Equal(t, first, got)
	}

	_, ok = f.Status(99, "usa")
	assert.False(t, ok)
}

func TestRejectedCaseCanBeRefiled(t *testing.T) {
	f := regulatory.NewFramework(regionConfig(config.RegionRule{
		MinReviewSteps:       0,
		RejectionProbability: 1,
	}))
	tech := eligibleTech(1)
	c, err := f.Submit(tech, "usa", 1)
	require.NoError(t, err)
	f.ProcessAll(1, entropy.NewStream(1))
	require.Equal(t, regulatory.StatusRejected, c.Status)

	fresh, err := f.Submit(tech, "usa", 2)
	require.NoError(t, err)
	assert.NotEqual(t, c.ID, fresh.ID)
	assert.Equal(t, regulatory.StatusSubmitted, fresh.Status)
}

func TestExemptRegionApprovesWithoutCase(t *testing.T) {
	cfg := config.Default()
	cfg.Regions = []string{"usa", "brazil"}
	cfg.RegulatoryTimelines = map[string]config.RegionRule{
		"usa":    {MinReviewSteps: 4},
		"brazil": {Exempt: true},
	}
	f := regulatory.NewFramework(cfg)

	assert.True(t, f.Exempt("brazil"))
	assert.True(t, f.Approved(99, "brazil"))
	assert.False(t, f.Approved(99, "usa"))
}

func TestTimelineMultiplierStretchesDwell(t *testing.T) {
	f := regulatory.NewFramework(regionConfig(config.RegionRule{
		MinReviewSteps:  2,
		ApprovalByStage: map[string]float64{"under_review": 1},
	}))
	f.AdjustTimeline("usa", 1.0) // dwell doubles: 2 -> 4

	c, err := f.Submit(eligibleTech(1), "usa", 1)
	require.NoError(t, err)

	rng := entropy.NewStream(1)
	for step := 1; step <= 4; step++ {
		f.ProcessAll(step, rng)
		require.Equal(t, regulatory.StatusUnderReview, c.Status, "step %d", step)
	}
	f.ProcessAll(5, rng)
	assert.Equal(t, regulatory.StatusApproved, c.Status)
}

func TestTimelineMultiplierFloor(t *testing.T) {
	f := regulatory.NewFramework(regionConfig(config.RegionRule{MinReviewSteps: 4}))
	f.AdjustTimeline("usa", -5)
	assert.InDelta(t, 0.25, f.TimelineMultiplier("usa"), 1e-9)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	cfg := regionConfig(config.RegionRule{
		MinReviewSteps:  0,
		ApprovalByStage: map[string]float64{"under_review": 1},
	})
	f := regulatory.NewFramework(cfg)
	_, err := f.Submit(eligibleTech(1), "usa", 1)
	require.NoError(t, err)
	f.ProcessAll(1, entropy.NewStream(1))
	f.AdjustTimeline("usa", 0.5)

	cases, mult := f.Snapshot()
	restored := regulatory.RestoreFramework(cfg, cases, mult)

	gotCases, gotMult := restored.Snapshot()
	assert.Equal(t, cases, gotCases)
	assert.Equal(t, mult, gotMult)
	assert.True(t, restored.Approved(1, "usa"))
}
