package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterpretationState_AlleleState(t *testing.T) {
	state := InterpretationState{}

	first := state.AlleleState(7)
	require.NotNil(t, first)
	assert.Equal(t, int64(7), first.AlleleID)

	// Second access returns the same entry, never a duplicate.
	second := state.AlleleState(7)
	assert.Same(t, first, second)
	assert.Len(t, state.Allele, 1)
}

func TestInterpretation_InScope(t *testing.T) {
	interp := &Interpretation{
		AlleleIDs: []int64{1, 2},
		State: InterpretationState{
			ManuallyIncluded: []int64{9},
		},
	}

	assert.True(t, interp.InScope(1))
	assert.True(t, interp.InScope(9))
	assert.False(t, interp.InScope(3))
}

func TestAllele_FilteredTranscriptAnnotations(t *testing.T) {
	allele := &Allele{
		Annotation: Annotation{
			Transcripts: []Transcript{
				{Transcript: "NM_1.1", Symbol: "BRCA1"},
				{Transcript: "NM_2.1", Symbol: "BRCA1"},
			},
			FilteredTranscripts: []string{"NM_2.1"},
		},
	}

	filtered := allele.FilteredTranscriptAnnotations()
	require.Len(t, filtered, 1)
	assert.Equal(t, "NM_2.1", filtered[0].Transcript)

	// No filter falls back to all transcripts.
	allele.Annotation.FilteredTranscripts = nil
	assert.Len(t, allele.FilteredTranscriptAnnotations(), 2)
}

func TestInterpretationState_RoundTrip(t *testing.T) {
	state := InterpretationState{}
	st := state.AlleleState(3)
	st.AlleleAssessment.Classification = "5"
	st.AlleleAssessment.Evaluation.ACMG.Included = []ACMGEntry{
		{UUID: "u1", Code: "PSxPM1", Comment: "hotspot"},
	}

	raw, err := json.Marshal(state)
	require.NoError(t, err)

	var decoded InterpretationState
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Contains(t, decoded.Allele, int64(3))
	assert.Equal(t, "5", decoded.Allele[3].AlleleAssessment.Classification)
	assert.Equal(t, "PSxPM1", decoded.Allele[3].AlleleAssessment.Evaluation.ACMG.Included[0].Code)
}

func TestStatusValidation(t *testing.T) {
	assert.True(t, ONGOING.IsValid())
	assert.False(t, InterpretationStatus("Paused").IsValid())
	assert.True(t, MEDICAL_REVIEW.IsValid())
	assert.False(t, WorkflowStatus("Archived").IsValid())
	assert.True(t, Verification("").IsValid())
	assert.False(t, Verification("maybe").IsValid())
}
