package permit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVariants_RawAlwaysFirst(t *testing.T) {
	for _, raw := range []string{"23016-10000-03255", "X", "no-dashes-here", "007"} {
		vs := Variants(raw)
		require.NotEmpty(t, vs)
		assert.Equal(t, raw, vs[0])
	}
}

func TestVariants_Idempotent(t *testing.T) {
	raw := "23016-10000-03255"
	assert.Equal(t, Variants(raw), Variants(raw))
}

func TestVariants_DashAndZeroForms(t *testing.T) {
	vs := Variants("23016-10000-03255")
	assert.Contains(t, vs, "230161000003255")
	assert.Contains(t, vs, "23016-10000-3255")
	assert.Contains(t, vs, "23016100003255")
}

func TestVariants_NoDuplicates(t *testing.T) {
	vs := Variants("11111-11111-11111")
	seen := map[string]bool{}
	for _, v := range vs {
		assert.False(t, seen[v], "duplicate variant %q", v)
		seen[v] = true
	}
}

func TestVariants_ShortInputDegrades(t *testing.T) {
	assert.Equal(t, []string{"AB"}, Variants("AB"))
}

func TestVariants_AllZeroSegment(t *testing.T) {
	vs := Variants("23016-00000-03255")
	assert.Contains(t, vs, "23016-0-3255")
}

func TestLooseVariants_AddsSuffixes(t *testing.T) {
	vs := LooseVariants("23016-10000-03255")
	assert.Equal(t, "23016-10000-03255", vs[0])
	assert.Contains(t, vs, "10000-03255")
	assert.Contains(t, vs, "03255")
	assert.Contains(t, vs, "23016/10000/03255")
}

func TestAmendmentNumber(t *testing.T) {
	base := "23016-10000-03255"
	// Offset 9 sits inside the second segment.
	assert.Equal(t, "23016-10010-03255", AmendmentNumber(base, 1, 9))
	assert.Equal(t, "23016-10090-03255", AmendmentNumber(base, 9, 9))
}

func TestAmendmentNumber_SeqZeroIsBase(t *testing.T) {
	assert.Equal(t, "23016-10000-03255", AmendmentNumber("23016-10000-03255", 0, 9))
}

func TestAmendmentNumber_ShortBase(t *testing.T) {
	assert.Equal(t, "short", AmendmentNumber("short", 3, 9))
}

func TestAmendmentCandidates(t *testing.T) {
	cands := AmendmentCandidates("23016-10000-03255", 9)
	require.Len(t, cands, 9)
	assert.Equal(t, "23016-10010-03255", cands[0])
	assert.Equal(t, "23016-10090-03255", cands[8])
}

func TestAmendmentCandidates_ShortBase(t *testing.T) {
	assert.Nil(t, AmendmentCandidates("abc", 9))
}

func TestAmendmentSeq(t *testing.T) {
	assert.Equal(t, 3, AmendmentSeq("23016-10030-03255", 9))
	assert.Equal(t, 0, AmendmentSeq("23016-10000-03255", 9))
	assert.Equal(t, 0, AmendmentSeq("abc", 9))
	assert.Equal(t, 0, AmendmentSeq("23016-10x30-03255", 8))
}
