package permit

import (
	"time"

	"github.com/permitscope/permitscope/internal/model"
)

// InspectionKey is the natural key of an inspection record: permit number,
// inspection timestamp, and normalized type label.
type InspectionKey struct {
	PermitNumber string
	Date         time.Time
	Type         string
}

// Dedupe collapses repeated inspection records sharing a natural key to the
// single best record per key, where "best" is the highest-ranked result.
// On a rank tie the earlier record is kept. This is a single left-to-right
// fold with O(1) amortized work per record; the input, straight off a source
// page, may contain tens of thousands of rows.
func Dedupe(records []model.Inspection) map[InspectionKey]model.Inspection {
	best := make(map[InspectionKey]model.Inspection, len(records))
	for _, r := range records {
		key := InspectionKey{
			PermitNumber: r.PermitNumber,
			Date:         r.Date,
			Type:         NormalizeLabel(r.Type),
		}
		r.Type = key.Type
		r.Result = NormalizeLabel(r.Result)

		current, ok := best[key]
		if !ok || ResultRank(r.Result) > ResultRank(current.Result) {
			best[key] = r
		}
	}
	return best
}
