// Package permit holds the pure domain logic of the reconciliation pipeline:
// identifier normalization, amendment derivation, result ranking, inspection
// deduplication, and phase-duration computation. Nothing in this package
// touches the network or the store.
package permit

import "strings"

// AmendmentDigitOffset is the zero-based position of the amendment sequence
// digit within a permit number. Earlier pipeline revisions disagreed between
// 9 and 10; the batched-lookup revision, which both writes and reads the
// digit, uses 9, so that is the authoritative layout. Callers can override
// it per jurisdiction through configuration.
const AmendmentDigitOffset = 9

// Variants returns an ordered, deduplicated list of candidate spellings for
// a permit number, used to match records across inconsistently formatted
// sources. The raw input is always the first candidate; callers match
// against the list in order and stop at the first hit, so the raw form wins
// whenever it matches. Inputs of any length are safe: a string too short to
// normalize simply yields itself.
func Variants(raw string) []string {
	out := []string{raw}
	seen := map[string]bool{raw: true}

	add := func(v string) {
		if v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}

	add(strings.ReplaceAll(raw, "-", ""))

	if strings.Contains(raw, "-") {
		trimmed := trimSegmentZeros(raw)
		add(trimmed)
		add(strings.ReplaceAll(trimmed, "-", ""))
	}

	return out
}

// LooseVariants extends Variants with suffix substrings and alternate
// separators, for the most tolerant matching mode.
func LooseVariants(raw string) []string {
	out := Variants(raw)
	seen := make(map[string]bool, len(out))
	for _, v := range out {
		seen[v] = true
	}

	add := func(v string) {
		if v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}

	add(strings.ReplaceAll(raw, "-", "/"))

	segments := strings.Split(raw, "-")
	for i := 1; i < len(segments); i++ {
		add(strings.Join(segments[i:], "-"))
	}

	return out
}

// trimSegmentZeros strips leading zeros from each dash-separated segment.
func trimSegmentZeros(raw string) string {
	segments := strings.Split(raw, "-")
	for i, seg := range segments {
		t := strings.TrimLeft(seg, "0")
		if t == "" && seg != "" {
			t = "0"
		}
		segments[i] = t
	}
	return strings.Join(segments, "-")
}

// AmendmentNumber derives the identifier of amendment seq (1-9) of a base
// permit by substituting the sequence digit at the given offset. Seq 0
// returns the base identifier unchanged ("no amendment"), as does any base
// too short to carry a digit at the offset.
func AmendmentNumber(base string, seq int, offset int) string {
	if seq <= 0 || seq > 9 {
		return base
	}
	if offset < 0 || offset >= len(base) {
		return base
	}
	return base[:offset] + string(rune('0'+seq)) + base[offset+1:]
}

// AmendmentCandidates returns the nine possible amendment identifiers for a
// base permit. A base too short to normalize yields an empty list.
func AmendmentCandidates(base string, offset int) []string {
	if offset < 0 || offset >= len(base) {
		return nil
	}
	out := make([]string, 0, 9)
	for seq := 1; seq <= 9; seq++ {
		out = append(out, AmendmentNumber(base, seq, offset))
	}
	return out
}

// AmendmentSeq extracts the sequence digit at the given offset, returning 0
// when the identifier is too short or the character is not a digit.
func AmendmentSeq(nbr string, offset int) int {
	if offset < 0 || offset >= len(nbr) {
		return 0
	}
	c := nbr[offset]
	if c < '0' || c > '9' {
		return 0
	}
	return int(c - '0')
}
