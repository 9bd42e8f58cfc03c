package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDuplicateCodeError(t *testing.T) {
	err := &DuplicateCodeError{Code: "PSxPM1", Existing: "PM1"}

	assert.Contains(t, err.Error(), "PSxPM1")
	assert.Contains(t, err.Error(), "PM1")

	var dup *DuplicateCodeError
	assert.True(t, errors.As(error(err), &dup))
}

func TestNotFoundError_UnwrapsSentinel(t *testing.T) {
	err := &NotFoundError{Kind: "acmg entry", ID: "abc"}

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "acmg entry")
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("allele_id", "missing allele linkage", nil)

	assert.Contains(t, err.Error(), "allele_id")
	assert.Contains(t, err.Error(), "missing allele linkage")
}

func TestFinalizeRequirementError_ListsAllUnmet(t *testing.T) {
	err := &FinalizeRequirementError{Unmet: []string{
		"interpretation is not Ongoing",
		"workflow status Not ready does not allow finalization",
	}}

	assert.Contains(t, err.Error(), "not Ongoing")
	assert.Contains(t, err.Error(), "Not ready")
}
