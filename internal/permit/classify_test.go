package permit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/permitscope/permitscope/internal/model"
)

func TestClassifyContractorChange(t *testing.T) {
	tests := []struct {
		desc string
		want *model.ChangeType
	}{
		{"Change of contractor to owner-builder", ptrChange(model.ChangeContractorToOwner)},
		{"OWNER to new CONTRACTOR of record", ptrChange(model.ChangeOwnerToContractor)},
		{"transfer of contractor", ptrChange(model.ChangeContractor)},
		{"Change general contractor of record", ptrChange(model.ChangeContractor)},
		{"Kitchen remodel and reroof", nil},
		{"", nil},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			got := ClassifyContractorChange(tt.desc)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}

func ptrChange(ct model.ChangeType) *model.ChangeType { return &ct }

func TestClassifyContractorChange_DirectionalPrecedence(t *testing.T) {
	// Matches both the generic change pattern and the directional one;
	// the directional classification must win.
	got := ClassifyContractorChange("Change contractor to owner-builder status")
	require.NotNil(t, got)
	assert.Equal(t, model.ChangeContractorToOwner, *got)
}

func TestClassifyADU(t *testing.T) {
	isADU, kind := ClassifyADU("New detached ADU 650 sqft")
	assert.True(t, isADU)
	require.NotNil(t, kind)
	assert.Equal(t, "ADU", *kind)

	isADU, kind = ClassifyADU("Convert garage to JADU")
	assert.True(t, isADU)
	require.NotNil(t, kind)
	assert.Equal(t, "JADU", *kind)

	isADU, kind = ClassifyADU("junior accessory dwelling unit over garage")
	assert.True(t, isADU)
	require.NotNil(t, kind)
	assert.Equal(t, "JADU", *kind)

	isADU, kind = ClassifyADU("Bathroom remodel")
	assert.False(t, isADU)
	assert.Nil(t, kind)
}

func TestClassifyScope(t *testing.T) {
	assert.Equal(t, "NEW", ClassifyScope("Bldg-New"))
	assert.Equal(t, "ADDITION", ClassifyScope("Bldg-Addition"))
	assert.Equal(t, "ALTERATION", ClassifyScope("Bldg-Alter/Repair"))
	assert.Equal(t, "ALTERATION", ClassifyScope(""))
}

func TestIsApproved(t *testing.T) {
	assert.True(t, IsApproved("APPROVED"))
	assert.True(t, IsApproved("PERMIT FINALED"))
	assert.True(t, IsApproved("COFO ISSUED"))
	assert.False(t, IsApproved("CORRECTIONS ISSUED"))
	// Exact match against the canonical vocabulary; no fuzzy matching.
	assert.False(t, IsApproved("approved"))
}

func TestIsFailure(t *testing.T) {
	assert.True(t, IsFailure("CORRECTIONS ISSUED"))
	assert.True(t, IsFailure("NOT READY FOR INSPECTION"))
	assert.False(t, IsFailure("APPROVED"))
}
