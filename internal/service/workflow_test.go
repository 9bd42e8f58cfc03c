package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allele-interp-engine/internal/domain"
)

func newWorkflowMachine() *WorkflowStatusMachine {
	return NewWorkflowStatusMachine(testEngineConfig(), testLogger())
}

func TestWorkflowStatusMachine_SelectMode(t *testing.T) {
	machine := newWorkflowMachine()

	tests := []struct {
		name     string
		rounds   []*domain.Interpretation
		userID   int64
		expected TransitionMode
	}{
		{
			name: "own ongoing round",
			rounds: []*domain.Interpretation{
				{Status: domain.ONGOING, UserID: 7},
			},
			userID:   7,
			expected: ModeSave,
		},
		{
			name: "ongoing round held by another user",
			rounds: []*domain.Interpretation{
				{Status: domain.ONGOING, UserID: 3},
			},
			userID:   7,
			expected: ModeOverride,
		},
		{
			name: "unstarted latest round",
			rounds: []*domain.Interpretation{
				{Status: domain.DONE, WorkflowStatus: domain.INTERPRETATION},
				{Status: domain.NOT_STARTED, WorkflowStatus: domain.REVIEW},
			},
			userID:   7,
			expected: ModeStart,
		},
		{
			name: "all rounds done",
			rounds: []*domain.Interpretation{
				{Status: domain.DONE, WorkflowStatus: domain.FINALIZED},
			},
			userID:   7,
			expected: ModeReopen,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transition, err := machine.SelectMode(tt.rounds, tt.userID)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, transition.Mode)
		})
	}
}

func TestWorkflowStatusMachine_SelectMode_CarriesStartStatus(t *testing.T) {
	machine := newWorkflowMachine()

	transition, err := machine.SelectMode([]*domain.Interpretation{
		{Status: domain.NOT_STARTED, WorkflowStatus: domain.MEDICAL_REVIEW},
	}, 7)
	require.NoError(t, err)
	assert.Equal(t, ModeStart, transition.Mode)
	assert.Equal(t, domain.MEDICAL_REVIEW, transition.StartStatus)
}

func TestWorkflowStatusMachine_SelectMode_NoRounds(t *testing.T) {
	machine := newWorkflowMachine()

	_, err := machine.SelectMode(nil, 7)
	require.Error(t, err)

	var valErr *domain.ValidationError
	assert.ErrorAs(t, err, &valErr)
}

func TestWorkflowStatusMachine_StartRound(t *testing.T) {
	machine := newWorkflowMachine()

	interp := &domain.Interpretation{Status: domain.NOT_STARTED, WorkflowStatus: domain.INTERPRETATION}
	require.NoError(t, machine.StartRound(interp, 7))

	assert.Equal(t, domain.ONGOING, interp.Status)
	assert.Equal(t, int64(7), interp.UserID)

	// Starting twice fails.
	assert.Error(t, machine.StartRound(interp, 7))
}

func TestWorkflowStatusMachine_Override(t *testing.T) {
	machine := newWorkflowMachine()

	interp := &domain.Interpretation{Status: domain.ONGOING, UserID: 3}
	require.NoError(t, machine.Override(interp, 7))
	assert.Equal(t, int64(7), interp.UserID)

	// Cannot override a round the user already holds.
	assert.Error(t, machine.Override(interp, 7))

	done := &domain.Interpretation{Status: domain.DONE, UserID: 3}
	assert.Error(t, machine.Override(done, 7))
}

func TestWorkflowStatusMachine_Reopen(t *testing.T) {
	machine := newWorkflowMachine()

	last := &domain.Interpretation{
		ID:               4,
		Type:             domain.ANALYSIS,
		Status:           domain.DONE,
		WorkflowStatus:   domain.FINALIZED,
		AnalysisID:       int64Ptr(9),
		GenepanelName:    "Mendeliome",
		GenepanelVersion: "v04",
		AlleleIDs:        []int64{1, 2},
	}
	last.State.AlleleState(1).AlleleAssessment.Classification = "5"

	reopened, err := machine.Reopen(last, 7)
	require.NoError(t, err)

	assert.Equal(t, domain.ONGOING, reopened.Status)
	assert.Equal(t, domain.REVIEW, reopened.WorkflowStatus)
	assert.Equal(t, int64(7), reopened.UserID)
	assert.Equal(t, []int64{1, 2}, reopened.AlleleIDs)
	assert.Equal(t, "5", reopened.State.Allele[1].AlleleAssessment.Classification)

	// The copied state must be independent of the previous round's.
	reopened.State.Allele[1].AlleleAssessment.Classification = "3"
	assert.Equal(t, "5", last.State.Allele[1].AlleleAssessment.Classification)
}

func TestWorkflowStatusMachine_ReopenAlleleWorkflow(t *testing.T) {
	machine := newWorkflowMachine()

	last := &domain.Interpretation{
		Type:           domain.ALLELE,
		Status:         domain.DONE,
		WorkflowStatus: domain.FINALIZED,
		AlleleID:       int64Ptr(1),
	}

	reopened, err := machine.Reopen(last, 7)
	require.NoError(t, err)
	assert.Equal(t, domain.INTERPRETATION, reopened.WorkflowStatus)
}

func TestWorkflowStatusMachine_FinishRound(t *testing.T) {
	machine := newWorkflowMachine()

	interp := &domain.Interpretation{Status: domain.ONGOING, WorkflowStatus: domain.INTERPRETATION}
	require.NoError(t, machine.FinishRound(interp, domain.REVIEW))

	assert.Equal(t, domain.DONE, interp.Status)
	assert.Equal(t, domain.REVIEW, interp.WorkflowStatus)
	assert.False(t, interp.Finalized)

	finalizing := &domain.Interpretation{Status: domain.ONGOING, WorkflowStatus: domain.REVIEW}
	require.NoError(t, machine.FinishRound(finalizing, domain.FINALIZED))
	assert.True(t, finalizing.Finalized)
}

func TestWorkflowStatusMachine_CanFinalize(t *testing.T) {
	machine := newWorkflowMachine()

	eligible := &domain.Interpretation{
		Type:           domain.ANALYSIS,
		Status:         domain.ONGOING,
		WorkflowStatus: domain.REVIEW,
	}
	assert.NoError(t, machine.CanFinalize(eligible))
}

func TestWorkflowStatusMachine_CanFinalize_ReportsAllUnmet(t *testing.T) {
	machine := newWorkflowMachine()

	// Not ongoing AND at a disallowed workflow status: both conditions must
	// be reported.
	interp := &domain.Interpretation{
		Type:           domain.ALLELE,
		Status:         domain.NOT_STARTED,
		WorkflowStatus: domain.REVIEW,
	}
	err := machine.CanFinalize(interp)
	require.Error(t, err)

	var reqErr *domain.FinalizeRequirementError
	require.True(t, errors.As(err, &reqErr))
	assert.Len(t, reqErr.Unmet, 2)
}

func TestWorkflowStatusMachine_CanFinalizeAllele(t *testing.T) {
	machine := newWorkflowMachine()

	interp := &domain.Interpretation{
		Type:           domain.ALLELE,
		Status:         domain.ONGOING,
		WorkflowStatus: domain.INTERPRETATION,
	}

	state := domain.NewAlleleState(1)
	state.AlleleAssessment.Classification = "4"
	assert.NoError(t, machine.CanFinalizeAllele(interp, state))

	var reqErr *domain.FinalizeRequirementError
	err := machine.CanFinalizeAllele(interp, domain.NewAlleleState(1))
	require.True(t, errors.As(err, &reqErr))
	assert.Contains(t, reqErr.Unmet, "allele has no classification")

	reused := domain.NewAlleleState(1)
	reused.AlleleAssessment.Reuse = true
	assert.NoError(t, machine.CanFinalizeAllele(interp, reused))
}
