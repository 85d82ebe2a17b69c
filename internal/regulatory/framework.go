// Package regulatory implements per-region approval workflows. Each case
// walks Submitted → UnderReview → {DataRequested ⇄ UnderReview} →
// {Approved | Rejected}. Approved is sticky; Rejected cases can only be
// resubmitted as a fresh case. Regions evolve independently, reproducing
// the asymmetric US/EU review-timeline policy through per-region rules.
package regulatory

import (
	"fmt"
	"sort"

	"github.com/talgya/biosim/internal/config"
	"github.com/talgya/biosim/internal/entropy"
	"github.com/talgya/biosim/internal/technology"
)

// Status is the approval stage of a case.
type Status uint8

const (
	StatusSubmitted Status = iota
	StatusUnderReview
	StatusDataRequested
	StatusApproved
	StatusRejected
)

// String returns the metrics key for a status.
func (s Status) String() string {
	switch s {
	case StatusSubmitted:
		return "submitted"
	case StatusUnderReview:
		return "under_review"
	case StatusDataRequested:
		return "data_requested"
	case StatusApproved:
		return "approved"
	case StatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Terminal reports whether a status admits no further processing.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Case is one region's approval workflow instance for one technology.
type Case struct {
	ID         uint64 `json:"id"`
	Technology uint64 `json:"technology"`
	Region     string `json:"region"`
	Status     Status `json:"status"`

	SubmittedStep int `json:"submitted_step"`
	// EnteredStep is the step the current status was entered.
	EnteredStep int `json:"entered_step"`
	// ReviewSteps counts steps spent under review since submission.
	ReviewSteps int `json:"review_steps"`
	// DataWindowLeft counts down while data is outstanding; expiry rejects.
	DataWindowLeft int `json:"data_window_left,omitempty"`
	// DecidedStep is set when the case reaches a terminal status.
	DecidedStep int `json:"decided_step,omitempty"`
}

// IneligibleTechnologyError reports a submission for a technology that has
// not reached the pre-commercial stage.
type IneligibleTechnologyError struct {
	Technology uint64
	Stage      technology.Stage
}

func (e *IneligibleTechnologyError) Error() string {
	return fmt.Sprintf("technology %d not eligible for review at stage %s", e.Technology, e.Stage)
}

// Framework holds every region's rules and the case registry.
type Framework struct {
	cases  map[uint64]*Case
	order  []uint64
	nextID uint64

	rules map[string]config.RegionRule

	// timelineMult stretches or shrinks a region's minimum review dwell;
	// mutated by policy events and regulator agents, floor 0.25.
	timelineMult map[string]float64

	// approved indexes technology/region pairs with a sticky approval.
	approved map[string]bool
}

// NewFramework builds a framework from configuration.
func NewFramework(cfg config.Config) *Framework {
	mult := make(map[string]float64, len(cfg.Regions))
	for _, r := range cfg.Regions {
		mult[r] = 1.0
	}
	return &Framework{
		cases:        make(map[uint64]*Case),
		nextID:       1,
		rules:        cfg.RegulatoryTimelines,
		timelineMult: mult,
		approved:     make(map[string]bool),
	}
}

// Submit opens a case for a technology in a region. The technology must
// have reached the pre-commercial stage; an existing open or approved case
// for the pair is returned as-is rather than duplicated.
func (f *Framework) Submit(t *technology.Technology, region string, step int) (*Case, error) {
	if t.Stage < technology.StagePreCommercial || t.Stage == technology.StageAbandoned {
		return nil, &IneligibleTechnologyError{Technology: t.ID, Stage: t.Stage}
	}

	if existing := f.openCase(t.ID, region); existing != nil {
		return existing, nil
	}

	c := &Case{
		ID:            f.nextID,
		Technology:    t.ID,
		Region:        region,
		Status:        StatusSubmitted,
		SubmittedStep: step,
		EnteredStep:   step,
	}
	f.nextID++
	f.cases[c.ID] = c
	f.order = append(f.order, c.ID)
	return c, nil
}

// Process advances one case by at most one review decision. Intake
// (Submitted → UnderReview) is bookkeeping and happens on the first pass;
// the approval roll is gated on the region's minimum dwell, so a
// zero-dwell region can decide in the intake step.
func (f *Framework) Process(c *Case, step int, rng *entropy.Stream) {
	if c.Status.Terminal() {
		return
	}
	rule := f.rules[c.Region]

	if c.Status == StatusSubmitted {
		c.Status = StatusUnderReview
		c.EnteredStep = step
	}

	switch c.Status {
	case StatusUnderReview:
		c.ReviewSteps++
		minDwell := int(float64(rule.MinReviewSteps)*f.timelineMult[c.Region] + 0.5)
		if c.ReviewSteps-1 < minDwell {
			return
		}

		// One decision per step: data request, approval, rejection, or defer.
		if rng.Bernoulli(rule.DataRequestProbability) {
			c.Status = StatusDataRequested
			c.EnteredStep = step
			c.DataWindowLeft = rule.DataWindowSteps
			return
		}
		if rng.Bernoulli(rule.ApprovalProbability("under_review")) {
			f.approve(c, step)
			return
		}
		if rng.Bernoulli(rule.RejectionProbability) {
			f.reject(c, step)
			return
		}
		// Undecided: the case stays under review.

	case StatusDataRequested:
		// Waiting on the applicant. The window shrinks each step and the
		// case times out to Rejected when it runs dry.
		c.DataWindowLeft--
		if c.DataWindowLeft <= 0 {
			f.reject(c, step)
		}
	}
}

// ProcessAll advances every open case in id order.
func (f *Framework) ProcessAll(step int, rng *entropy.Stream) {
	for _, id := range f.order {
		f.Process(f.cases[id], step, rng)
	}
}

// SupplyData answers an outstanding data request, returning the case to
// review. Supplied data satisfies the reviewer with the region's
// data_requested probability; unconvincing data leaves the request open
// until the window expires.
func (f *Framework) SupplyData(c *Case, step int, rng *entropy.Stream) {
	if c.Status != StatusDataRequested {
		return
	}
	rule := f.rules[c.Region]
	p := rule.ApprovalProbability("data_requested")
	if p == 0 {
		p = 1 // regions without the key accept any response
	}
	if rng.Bernoulli(p) {
		c.Status = StatusUnderReview
		c.EnteredStep = step
		c.DataWindowLeft = 0
	}
}

// Status returns the current status for a technology/region pair.
// Approved is sticky: once any case for the pair is approved, the pair
// reports Approved regardless of later filings.
func (f *Framework) Status(tech uint64, region string) (Status, bool) {
	if f.approved[pairKey(tech, region)] {
		return StatusApproved, true
	}
	// Latest case wins.
	for i := len(f.order) - 1; i >= 0; i-- {
		c := f.cases[f.order[i]]
		if c.Technology == tech && c.Region == region {
			return c.Status, true
		}
	}
	return 0, false
}

// Approved reports whether a technology may be sold in a region: either the
// region is exempt from review or the pair holds a sticky approval.
func (f *Framework) Approved(tech uint64, region string) bool {
	if rule, ok := f.rules[region]; ok && rule.Exempt {
		return true
	}
	return f.approved[pairKey(tech, region)]
}

// Exempt reports whether a region requires no case before registration.
func (f *Framework) Exempt(region string) bool {
	rule, ok := f.rules[region]
	return ok && rule.Exempt
}

// Get returns a case by id.
func (f *Framework) Get(id uint64) (*Case, bool) {
	c, ok := f.cases[id]
	return c, ok
}

// All returns every case in id order.
func (f *Framework) All() []*Case {
	out := make([]*Case, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.cases[id])
	}
	return out
}

// AdjustTimeline applies an additive delta to a region's timeline
// multiplier. Policy events shorten or stretch review; the multiplier
// never drops below 0.25.
func (f *Framework) AdjustTimeline(region string, delta float64) {
	m := f.timelineMult[region] + delta
	if m < 0.25 {
		m = 0.25
	}
	f.timelineMult[region] = m
}

// TimelineMultiplier returns a region's current multiplier.
func (f *Framework) TimelineMultiplier(region string) float64 {
	if m, ok := f.timelineMult[region]; ok {
		return m
	}
	return 1.0
}

// CountByRegionStatus aggregates case counts for metrics.
func (f *Framework) CountByRegionStatus() map[string]map[string]int {
	out := make(map[string]map[string]int)
	for _, id := range f.order {
		c := f.cases[id]
		if out[c.Region] == nil {
			out[c.Region] = make(map[string]int)
		}
		out[c.Region][c.Status.String()]++
	}
	return out
}

// Snapshot returns copies of all cases plus the timeline multipliers.
func (f *Framework) Snapshot() ([]Case, map[string]float64) {
	cases := make([]Case, 0, len(f.order))
	for _, id := range f.order {
		cases = append(cases, *f.cases[id])
	}
	mult := make(map[string]float64, len(f.timelineMult))
	for k, v := range f.timelineMult {
		mult[k] = v
	}
	return cases, mult
}

// RestoreFramework rebuilds a framework from a persisted snapshot.
func RestoreFramework(cfg config.Config, cases []Case, mult map[string]float64) *Framework {
	f := NewFramework(cfg)
	sort.Slice(cases, func(i, j int) bool { return cases[i].ID < cases[j].ID })
	for i := range cases {
		c := cases[i]
		f.cases[c.ID] = &c
		f.order = append(f.order, c.ID)
		if c.ID >= f.nextID {
			f.nextID = c.ID + 1
		}
		if c.Status == StatusApproved {
			f.approved[pairKey(c.Technology, c.Region)] = true
		}
	}
	for k, v := range mult {
		f.timelineMult[k] = v
	}
	return f
}

func (f *Framework) approve(c *Case, step int) {
	c.Status = StatusApproved
	c.EnteredStep = step
	c.DecidedStep = step
	f.approved[pairKey(c.Technology, c.Region)] = true
}

func (f *Framework) reject(c *Case, step int) {
	c.Status = StatusRejected
	c.EnteredStep = step
	c.DecidedStep = step
}

func (f *Framework) openCase(tech uint64, region string) *Case {
	if f.approved[pairKey(tech, region)] {
		for i := len(f.order) - 1; i >= 0; i-- {
			c := f.cases[f.order[i]]
			if c.Technology == tech && c.Region == region && c.Status == StatusApproved {
				return c
			}
		}
	}
	for i := len(f.order) - 1; i >= 0; i-- {
		c := f.cases[f.order[i]]
		if c.Technology == tech && c.Region == region && !c.Status.Terminal() {
			return c
		}
	}
	return nil
}

func pairKey(tech uint64, region string) string {
	return fmt.Sprintf("%d/%s", tech, region)
}
