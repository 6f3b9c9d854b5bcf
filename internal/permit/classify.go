package permit

import (
	"regexp"
	"strings"

	"github.com/permitscope/permitscope/internal/model"
)

// Contractor-change patterns, tested in order against the amendment work
// description. The two directional patterns take precedence over the
// generic ones; a match on any pattern marks the amendment as a
// contractor change.
var (
	reContractorToOwner = regexp.MustCompile(`(?i)contractor.*to.*owner`)
	reOwnerToContractor = regexp.MustCompile(`(?i)owner.*to.*contractor`)
	reChangeContractor  = regexp.MustCompile(`(?i)change.*contractor`)
	reTransferContract  = regexp.MustCompile(`(?i)transfer.*contractor`)
)

// ClassifyContractorChange inspects an amendment's work description and
// returns the change type, or nil when no change-indicating pattern matches.
func ClassifyContractorChange(workDesc string) *model.ChangeType {
	hasChange := reChangeContractor.MatchString(workDesc) ||
		reContractorToOwner.MatchString(workDesc) ||
		reOwnerToContractor.MatchString(workDesc) ||
		reTransferContract.MatchString(workDesc)
	if !hasChange {
		return nil
	}

	var ct model.ChangeType
	switch {
	case reContractorToOwner.MatchString(workDesc):
		ct = model.ChangeContractorToOwner
	case reOwnerToContractor.MatchString(workDesc):
		ct = model.ChangeOwnerToContractor
	default:
		ct = model.ChangeContractor
	}
	return &ct
}

var (
	reADU  = regexp.MustCompile(`(?i)\bADU\b`)
	reJADU = regexp.MustCompile(`(?i)JADU|junior accessory`)
)

// ClassifyADU derives the ADU flag and kind ("ADU" or "JADU") from a
// permit's work description. Kind is nil for non-ADU permits.
func ClassifyADU(workDesc string) (bool, *string) {
	if reJADU.MatchString(workDesc) {
		kind := "JADU"
		return true, &kind
	}
	if reADU.MatchString(workDesc) {
		kind := "ADU"
		return true, &kind
	}
	return false, nil
}

// ClassifyScope maps a permit type to a coarse scope bucket.
func ClassifyScope(permitType string) string {
	t := strings.ToUpper(permitType)
	switch {
	case strings.Contains(t, "NEW"):
		return "NEW"
	case strings.Contains(t, "ADDITION"):
		return "ADDITION"
	default:
		return "ALTERATION"
	}
}
