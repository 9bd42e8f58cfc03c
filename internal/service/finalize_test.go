package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allele-interp-engine/internal/domain"
)

// finalizeScenario builds an analysis round with three alleles: one newly
// assessed, one reusing its persisted assessment, one untouched.
func finalizeScenario() (*domain.Interpretation, map[int64]*domain.Allele, map[int64]*domain.Reference) {
	interp := &domain.Interpretation{
		ID:               1,
		Type:             domain.ANALYSIS,
		Status:           domain.ONGOING,
		WorkflowStatus:   domain.REVIEW,
		AnalysisID:       int64Ptr(9),
		GenepanelName:    "Mendeliome",
		GenepanelVersion: "v04",
		AlleleIDs:        []int64{1, 2, 3},
		ExcludedAlleleIDs: map[string][]int64{
			"frequency": {40, 41},
		},
	}

	// Allele 1: newly entered assessment, report and reference assessment.
	s1 := interp.State.AlleleState(1)
	s1.AlleleAssessment.Classification = "5"
	s1.AlleleAssessment.Evaluation.ACMG.Included = []domain.ACMGEntry{{UUID: "u1", Code: "PVS1"}}
	s1.AlleleAssessment.AttachmentIDs = []int64{77}
	s1.AlleleReport.Evaluation.Comment = "Pathogenic variant in BRCA2"
	s1.ReferenceAssessments = []domain.ReferenceAssessmentState{
		{AlleleID: 1, ReferenceID: 100, Evaluation: map[string]any{"relevance": "Yes"}},
		// Stale entry: reference 999 is no longer attached to the allele.
		{AlleleID: 1, ReferenceID: 999, Evaluation: map[string]any{"relevance": "No"}},
	}

	// Allele 2: assessment and report both reused.
	s2 := interp.State.AlleleState(2)
	s2.AlleleAssessment.Reuse = true
	s2.AlleleReport.Reuse = true
	s2.ReferenceAssessments = []domain.ReferenceAssessmentState{
		{ID: 30, AlleleID: 2, ReferenceID: 200, Reuse: true},
	}

	// Allele 3: untouched, flagged technical.
	s3 := interp.State.AlleleState(3)
	s3.Analysis.Verification = domain.TECHNICAL
	s3.Analysis.NotRelevant = boolPtr(true)

	alleles := map[int64]*domain.Allele{
		1: {
			ID: 1,
			Annotation: domain.Annotation{
				AnnotationID:       11,
				CustomAnnotationID: int64Ptr(12),
				References:         []domain.AnnotationReference{{ID: 100}},
			},
			AlleleAssessment: &domain.AlleleAssessment{ID: 19, Classification: "3", DateCreated: time.Now()},
		},
		2: {
			ID: 2,
			Annotation: domain.Annotation{
				AnnotationID: 21,
			},
			AlleleAssessment: &domain.AlleleAssessment{ID: 20, Classification: "4", DateCreated: time.Now()},
			AlleleReport:     &domain.AlleleReport{ID: 21, AlleleID: 2},
			ReferenceAssessments: []domain.ReferenceAssessment{
				{ID: 30, AlleleID: 2, ReferenceID: 200, Evaluation: map[string]any{"relevance": "Yes"}},
			},
		},
		3: {
			ID: 3,
			Annotation: domain.Annotation{
				AnnotationID: 31,
			},
		},
	}

	references := map[int64]*domain.Reference{
		100: {ID: 100, PubmedID: 555},
		200: {ID: 200, PubmedID: 556},
	}

	return interp, alleles, references
}

func TestFinalizePayloadBuilder_Build(t *testing.T) {
	builder := NewFinalizePayloadBuilder(testEngineConfig(), testLogger())
	interp, alleles, references := finalizeScenario()

	payload, err := builder.Build(interp, alleles, references)
	require.NoError(t, err)

	// Every in-scope allele contributes an annotation row.
	require.Len(t, payload.Annotations, 3)
	assert.Equal(t, int64(11), payload.Annotations[0].AnnotationID)
	require.Len(t, payload.CustomAnnotations, 1)
	assert.Equal(t, int64(12), payload.CustomAnnotations[0].CustomAnnotationID)

	// The untouched allele 3 contributes no assessment rows.
	require.Len(t, payload.AlleleAssessments, 2)
	require.Len(t, payload.AlleleReports, 2)

	newAssessment := payload.AlleleAssessments[0]
	assert.Equal(t, int64(1), newAssessment.AlleleID)
	assert.False(t, newAssessment.Reuse)
	assert.Equal(t, "5", newAssessment.Classification)
	require.NotNil(t, newAssessment.Evaluation)
	assert.Equal(t, []int64{77}, newAssessment.AttachmentIDs)
	assert.Equal(t, int64(19), newAssessment.PresentedAlleleAssessmentID)
	assert.Equal(t, "Mendeliome", newAssessment.GenepanelName)
	require.NotNil(t, newAssessment.AnalysisID)
	assert.Equal(t, int64(9), *newAssessment.AnalysisID)

	reusedAssessment := payload.AlleleAssessments[1]
	assert.Equal(t, int64(2), reusedAssessment.AlleleID)
	assert.True(t, reusedAssessment.Reuse)
	assert.Equal(t, int64(20), reusedAssessment.PresentedAlleleAssessmentID)
	assert.Empty(t, reusedAssessment.Classification)
	assert.Nil(t, reusedAssessment.Evaluation)

	newReport := payload.AlleleReports[0]
	assert.False(t, newReport.Reuse)
	require.NotNil(t, newReport.Evaluation)
	assert.Equal(t, "Pathogenic variant in BRCA2", newReport.Evaluation.Comment)

	reusedReport := payload.AlleleReports[1]
	assert.True(t, reusedReport.Reuse)
	assert.Equal(t, int64(21), reusedReport.PresentedAlleleReportID)
	assert.Nil(t, reusedReport.Evaluation)

	// The stale entry for reference 999 is dropped.
	require.Len(t, payload.ReferenceAssessments, 2)
	newRef := payload.ReferenceAssessments[0]
	assert.Equal(t, int64(100), newRef.ReferenceID)
	assert.Zero(t, newRef.ID)
	assert.Equal(t, "Yes", newRef.Evaluation["relevance"])

	reusedRef := payload.ReferenceAssessments[1]
	assert.Equal(t, int64(30), reusedRef.ID)
	assert.Nil(t, reusedRef.Evaluation)

	assert.Equal(t, []int64{3}, payload.TechnicalAlleleIDs)
	assert.Equal(t, []int64{3}, payload.NotRelevantAlleleIDs)
	assert.Equal(t, map[string][]int64{"frequency": {40, 41}}, payload.ExcludedAlleleIDs)
}

func TestFinalizePayloadBuilder_Build_OutOfScopeStateIgnored(t *testing.T) {
	builder := NewFinalizePayloadBuilder(testEngineConfig(), testLogger())
	interp, alleles, references := finalizeScenario()

	// Leftover state for an allele that fell out of scope is not emitted.
	stray := interp.State.AlleleState(99)
	stray.AlleleAssessment.Classification = "5"

	payload, err := builder.Build(interp, alleles, references)
	require.NoError(t, err)
	assert.Len(t, payload.Annotations, 3)
	assert.Len(t, payload.AlleleAssessments, 2)
}

func TestFinalizePayloadBuilder_Build_MissingLinkageAborts(t *testing.T) {
	builder := NewFinalizePayloadBuilder(testEngineConfig(), testLogger())
	interp, alleles, references := finalizeScenario()

	interp.State.Allele[2].AlleleID = 0

	payload, err := builder.Build(interp, alleles, references)
	require.Error(t, err)
	assert.Nil(t, payload)

	var valErr *domain.ValidationError
	assert.ErrorAs(t, err, &valErr)
	assert.Equal(t, "allele_id", valErr.Field)
}

func TestFinalizePayloadBuilder_Build_MismatchedLinkageAborts(t *testing.T) {
	builder := NewFinalizePayloadBuilder(testEngineConfig(), testLogger())
	interp, alleles, references := finalizeScenario()

	interp.State.Allele[1].AlleleID = 2

	payload, err := builder.Build(interp, alleles, references)
	require.Error(t, err)
	assert.Nil(t, payload)
}

func TestFinalizePayloadBuilder_Build_AlleleWorkflowOmitsSampleLists(t *testing.T) {
	builder := NewFinalizePayloadBuilder(testEngineConfig(), testLogger())

	interp := &domain.Interpretation{
		ID:               1,
		Type:             domain.ALLELE,
		Status:           domain.ONGOING,
		WorkflowStatus:   domain.INTERPRETATION,
		AlleleID:         int64Ptr(1),
		GenepanelName:    "Mendeliome",
		GenepanelVersion: "v04",
		AlleleIDs:        []int64{1},
	}
	state := interp.State.AlleleState(1)
	state.AlleleAssessment.Classification = "4"
	state.Analysis.Verification = domain.TECHNICAL

	alleles := map[int64]*domain.Allele{
		1: {ID: 1, Annotation: domain.Annotation{AnnotationID: 11}},
	}

	payload, err := builder.Build(interp, alleles, nil)
	require.NoError(t, err)

	assert.Empty(t, payload.TechnicalAlleleIDs)
	assert.Empty(t, payload.NotRelevantAlleleIDs)
	assert.Empty(t, payload.ExcludedAlleleIDs)
}

func TestFinalizePayloadBuilder_BuildForAllele(t *testing.T) {
	builder := NewFinalizePayloadBuilder(testEngineConfig(), testLogger())
	interp, alleles, references := finalizeScenario()

	payload, err := builder.BuildForAllele(interp, alleles[1], references)
	require.NoError(t, err)

	require.Len(t, payload.Annotations, 1)
	require.Len(t, payload.AlleleAssessments, 1)
	assert.Equal(t, "5", payload.AlleleAssessments[0].Classification)
	require.Len(t, payload.ReferenceAssessments, 1)
}

func TestFinalizePayloadBuilder_BuildForAllele_RequiresClassification(t *testing.T) {
	builder := NewFinalizePayloadBuilder(testEngineConfig(), testLogger())
	interp, alleles, references := finalizeScenario()

	_, err := builder.BuildForAllele(interp, alleles[3], references)
	require.Error(t, err)

	var valErr *domain.ValidationError
	assert.ErrorAs(t, err, &valErr)
	assert.Equal(t, "classification", valErr.Field)
}
