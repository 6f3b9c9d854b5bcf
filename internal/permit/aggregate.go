package permit

import (
	"math"
	"time"
)

// BuildSample is the per-build view the contractor aggregator consumes: the
// permit lifecycle dates plus the derived durations and failure count.
type BuildSample struct {
	IssuedDate        *time.Time
	StartedDate       *time.Time
	FinaledDate       *time.Time
	CompletionDays    *int // start-to-final phase duration
	PassFinalDays     *int // time-to-pass-final phase duration
	FailedInspections int
}

// ContractorAggregates is the derived metric block for one contractor. It is
// recomputed wholesale on every aggregation run.
type ContractorAggregates struct {
	TotalBuilds          int
	ActiveBuilds         int
	CompletionRate       *float64
	BuildsLastYear       int
	AvgCompletionDays    *int
	AvgPassFinalDays     *int
	AvgFailedInspections *float64
	LastActiveDate       *time.Time
}

// Aggregate computes contractor metrics over the given builds.
//
// A build counts as active when it has started, has not finaled, and started
// within the staleness window; older unfinished builds are treated as
// abandoned rather than active. Completion rate is finaled over started and
// is nil when nothing has started. Duration averages skip nil and
// non-positive samples and round to whole days; the failure average spans
// all builds (zero failures is signal) and rounds to one decimal.
func Aggregate(builds []BuildSample, now time.Time, stalenessMonths int) ContractorAggregates {
	agg := ContractorAggregates{TotalBuilds: len(builds)}
	if len(builds) == 0 {
		return agg
	}

	staleCutoff := now.AddDate(0, -stalenessMonths, 0)
	yearCutoff := now.AddDate(-1, 0, 0)

	var started, finaled int
	var completionSum, completionN int
	var passFinalSum, passFinalN int
	var failedSum int

	for _, b := range builds {
		if b.StartedDate != nil {
			started++
			if b.FinaledDate == nil && b.StartedDate.After(staleCutoff) {
				agg.ActiveBuilds++
			}
		}
		if b.FinaledDate != nil {
			finaled++
		}
		if b.IssuedDate != nil {
			if !b.IssuedDate.Before(yearCutoff) {
				agg.BuildsLastYear++
			}
			if agg.LastActiveDate == nil || b.IssuedDate.After(*agg.LastActiveDate) {
				agg.LastActiveDate = b.IssuedDate
			}
		}
		if b.CompletionDays != nil && *b.CompletionDays > 0 {
			completionSum += *b.CompletionDays
			completionN++
		}
		if b.PassFinalDays != nil && *b.PassFinalDays > 0 {
			passFinalSum += *b.PassFinalDays
			passFinalN++
		}
		failedSum += b.FailedInspections
	}

	if started > 0 {
		rate := float64(finaled) / float64(started)
		agg.CompletionRate = &rate
	}
	if completionN > 0 {
		avg := int(math.Round(float64(completionSum) / float64(completionN)))
		agg.AvgCompletionDays = &avg
	}
	if passFinalN > 0 {
		avg := int(math.Round(float64(passFinalSum) / float64(passFinalN)))
		agg.AvgPassFinalDays = &avg
	}
	avgFailed := math.Round(float64(failedSum)/float64(len(builds))*10) / 10
	agg.AvgFailedInspections = &avgFailed

	return agg
}
