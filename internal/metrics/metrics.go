// Package metrics holds the per-step snapshot series. Snapshots aggregate
// committed engine state only — provisional intra-step values never appear
// here — and the series is append-only.
package metrics

// AgentCount splits a kind's population into active and exited.
type AgentCount struct {
	Active int `json:"active"`
	Exited int `json:"exited"`
}

// Snapshot is an immutable per-step aggregate.
type Snapshot struct {
	Step int `json:"step"`
	Year int `json:"year"`

	ProductsByRegion     map[string]int            `json:"products_by_region"`
	AvgPriceByCategory   map[string]float64        `json:"avg_price_by_category"`
	CasesByRegionStatus  map[string]map[string]int `json:"cases_by_region_status"`
	AgentsByKind         map[string]AgentCount     `json:"agents_by_kind"`
	TechnologiesByStage  map[string]int            `json:"technologies_by_stage"`
	CumulativeInvestment float64                   `json:"cumulative_investment"`
	CumulativeSales      float64                   `json:"cumulative_sales"`
	EventsApplied        int                       `json:"events_applied"`
	SkippedActions       int                       `json:"skipped_actions"`
}

// TotalProducts sums product counts across regions.
func (s Snapshot) TotalProducts() int {
	n := 0
	for _, c := range s.ProductsByRegion {
		n += c
	}
	return n
}

// Series is the append-only snapshot time series for one run.
type Series struct {
	snaps []Snapshot
}

// Append records a snapshot.
func (s *Series) Append(snap Snapshot) {
	s.snaps = append(s.snaps, snap)
}

// All returns the recorded snapshots in step order.
func (s *Series) All() []Snapshot {
	return append([]Snapshot(nil), s.snaps...)
}

// Len returns the number of recorded snapshots.
func (s *Series) Len() int { return len(s.snaps) }

// Last returns the most recent snapshot, if any.
func (s *Series) Last() (Snapshot, bool) {
	if len(s.snaps) == 0 {
		return Snapshot{}, false
	}
	return s.snaps[len(s.snaps)-1], true
}

// Restore rebuilds a series from persisted snapshots.
func Restore(snaps []Snapshot) *Series {
	return &Series{snaps: append([]Snapshot(nil), snaps...)}
}
