package permit

import (
	"time"

	"github.com/permitscope/permitscope/internal/model"
)

// Inspection type labels carrying phase milestones.
const (
	TypeFoundation = "FOUNDATION"
	TypeFraming    = "FRAMING"
	TypeDrywall    = "DRYWALL"
	TypeFinal      = "FINAL"
)

// Milestones are the dated events extracted from one permit's time-ordered
// inspection history. Any field may be nil when the event never occurred.
type Milestones struct {
	FirstApproved      *time.Time // first passing inspection of any type
	FoundationApproved *time.Time
	FramingApproved    *time.Time
	DrywallApproved    *time.Time
	FinalFirst         *time.Time // first FINAL attempt, regardless of result
	FinalApproved      *time.Time
}

// FindMilestones scans inspections sorted ascending by date and locates the
// milestone events. Result and type labels must already be normalized to the
// canonical vocabulary.
func FindMilestones(inspections []model.Inspection) Milestones {
	var m Milestones
	for i := range inspections {
		insp := &inspections[i]
		approved := IsApproved(insp.Result)

		if m.FirstApproved == nil && approved {
			m.FirstApproved = &insp.Date
		}
		switch insp.Type {
		case TypeFoundation:
			if m.FoundationApproved == nil && approved {
				m.FoundationApproved = &insp.Date
			}
		case TypeFraming:
			if m.FramingApproved == nil && approved {
				m.FramingApproved = &insp.Date
			}
		case TypeDrywall:
			if m.DrywallApproved == nil && approved {
				m.DrywallApproved = &insp.Date
			}
		case TypeFinal:
			if m.FinalFirst == nil {
				m.FinalFirst = &insp.Date
			}
			if m.FinalApproved == nil && approved {
				m.FinalApproved = &insp.Date
			}
		}
	}
	return m
}

// DayDiff returns the whole-day difference between two dates, or nil when
// either endpoint is missing or the later date is not strictly after the
// earlier one. Same-day and out-of-order pairs are "not a valid duration",
// never zero.
func DayDiff(earlier, later *time.Time) *int {
	if earlier == nil || later == nil {
		return nil
	}
	days := int(later.Truncate(24*time.Hour).Sub(earlier.Truncate(24*time.Hour)).Hours() / 24)
	if days <= 0 {
		return nil
	}
	return &days
}

// ComputeMetrics derives the six phase intervals from a permit's milestones.
func ComputeMetrics(permitNumber string, m Milestones) model.PhaseMetrics {
	return model.PhaseMetrics{
		PermitNumber:        permitNumber,
		StartToFoundation:   DayDiff(m.FirstApproved, m.FoundationApproved),
		FoundationToFraming: DayDiff(m.FoundationApproved, m.FramingApproved),
		FramingToDrywall:    DayDiff(m.FramingApproved, m.DrywallApproved),
		DrywallToFinal:      DayDiff(m.DrywallApproved, m.FinalFirst),
		StartToFinal:        DayDiff(m.FirstApproved, m.FinalApproved),
		TimeToPassFinal:     DayDiff(m.FinalFirst, m.FinalApproved),
	}
}
