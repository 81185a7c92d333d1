package task

import (
	"time"

	"github.com/google/uuid"
)

// Classification says why a meal group lands in skip or analyze.
type Classification string

const (
	ClassificationNew       Classification = "new"
	ClassificationChanged   Classification = "changed"
	ClassificationUnchanged Classification = "unchanged"
)

// Candidate is one meal group as seen by the diff engine.
type Candidate struct {
	ID          uuid.UUID
	UpdatedAt   time.Time
	HasAnalysis bool
}

// PlanItem is the classification of one candidate.
type PlanItem struct {
	ID             uuid.UUID      `json:"id"`
	Classification Classification `json:"classification"`
}

// Plan is the diff engine's partition of candidates. It is computed
// once before execution starts and is immutable for the life of that
// execution.
type Plan struct {
	Analyze []uuid.UUID `json:"analyze"`
	Skip    []uuid.UUID `json:"skip"`
	Items   []PlanItem  `json:"items"`
}

// UpToDate reports whether nothing needs recomputation.
func (p *Plan) UpToDate() bool {
	return len(p.Analyze) == 0
}

// PlanUpdate partitions candidates against the baseline timestamp:
//   - no prior analysis result -> new -> analyze
//   - updated strictly after baseline -> changed -> analyze
//   - otherwise -> unchanged -> skip, reuse the cached analysis
//
// Ordering is stable relative to the input; the analyze list drives the
// executor's sequential per-item loop.
func PlanUpdate(baseline time.Time, candidates []Candidate) *Plan {
	plan := &Plan{
		Analyze: make([]uuid.UUID, 0, len(candidates)),
		Skip:    make([]uuid.UUID, 0, len(candidates)),
		Items:   make([]PlanItem, 0, len(candidates)),
	}

	for _, c := range candidates {
		var class Classification
		switch {
		case !c.HasAnalysis:
			class = ClassificationNew
		case c.UpdatedAt.After(baseline):
			class = ClassificationChanged
		default:
			class = ClassificationUnchanged
		}

		plan.Items = append(plan.Items, PlanItem{ID: c.ID, Classification: class})
		if class == ClassificationUnchanged {
			plan.Skip = append(plan.Skip, c.ID)
		} else {
			plan.Analyze = append(plan.Analyze, c.ID)
		}
	}

	return plan
}

// PlanAll puts every candidate in analyze; used when force_regenerate
// is set or for non-incremental summary tasks.
func PlanAll(candidates []Candidate) *Plan {
	plan := &Plan{
		Analyze: make([]uuid.UUID, 0, len(candidates)),
		Items:   make([]PlanItem, 0, len(candidates)),
	}
	for _, c := range candidates {
		class := ClassificationNew
		if c.HasAnalysis {
			class = ClassificationChanged
		}
		plan.Analyze = append(plan.Analyze, c.ID)
		plan.Items = append(plan.Items, PlanItem{ID: c.ID, Classification: class})
	}
	return plan
}
