package permit

import "strings"

// resultRank orders inspection results from best to worst, used to pick a
// single representative when duplicates collide on the same natural key.
// An unknown result ranks 0 and loses to any ranked result.
var resultRank = map[string]int{
	"PASS":       5,
	"PARTIAL":    4,
	"CORRECTION": 3,
	"FAIL":       2,
	"CANCELLED":  1,
}

// NormalizeLabel canonicalizes a free-text label for key stability.
func NormalizeLabel(v string) string {
	return strings.ToUpper(strings.TrimSpace(v))
}

// ResultRank returns the precedence rank of a normalized result label.
func ResultRank(result string) int {
	return resultRank[result]
}

// approvedResults is the canonical vocabulary of passing result labels.
// Membership is exact; inputs must already be normalized via NormalizeLabel.
var approvedResults = map[string]bool{
	"APPROVED":                       true,
	"CONDITIONAL APPROVAL":           true,
	"PARTIAL APPROVAL":               true,
	"COMPLETED":                      true,
	"SGSOV APPROVED":                 true,
	"PERMIT FINALED":                 true,
	"COFO ISSUED":                    true,
	"OK TO ISSUE COFO":               true,
	"OK FOR COFO":                    true,
	"COFO CORRECTED":                 true,
	"APPROVED PENDING GREENAPPROVAL": true,
}

// IsApproved reports whether a normalized result label counts as passing.
func IsApproved(result string) bool {
	return approvedResults[result]
}

// failureResults are the labels counted as failed inspections when rolling
// up per-contractor failure averages.
var failureResults = map[string]bool{
	"CORRECTIONS ISSUED":       true,
	"NOT READY FOR INSPECTION": true,
}

// IsFailure reports whether a normalized result label counts as a failed
// inspection.
func IsFailure(result string) bool {
	return failureResults[result]
}
