package service

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/allele-interp-engine/internal/domain"
)

// TransitionMode names how the acting user enters a workflow given its
// current interpretation rounds.
type TransitionMode string

const (
	// ModeOverride takes over an Ongoing round held by another user.
	ModeOverride TransitionMode = "override"
	// ModeSave persists edits to the user's own Ongoing round.
	ModeSave TransitionMode = "save"
	// ModeStart begins the round that exists but has not been started.
	ModeStart TransitionMode = "start"
	// ModeReopen starts a new round after every round is Done.
	ModeReopen TransitionMode = "reopen"
)

// Transition is the selected entry mode. StartStatus carries the workflow
// status a started round begins at.
type Transition struct {
	Mode        TransitionMode
	StartStatus domain.WorkflowStatus
}

// WorkflowStatusMachine governs the interpretation lifecycle: round status,
// workflow sub-status, entry mode selection and finalize eligibility.
type WorkflowStatusMachine struct {
	log    *logrus.Logger
	config *domain.EngineConfig
}

// NewWorkflowStatusMachine creates a new workflow status machine.
func NewWorkflowStatusMachine(config *domain.EngineConfig, logger *logrus.Logger) *WorkflowStatusMachine {
	return &WorkflowStatusMachine{
		log:    logger,
		config: config,
	}
}

// SelectMode chooses the transition mode for the acting user given the
// workflow's interpretation rounds, ordered oldest first.
func (m *WorkflowStatusMachine) SelectMode(interpretations []*domain.Interpretation, userID int64) (Transition, error) {
	if len(interpretations) == 0 {
		return Transition{}, domain.NewValidationError("interpretations",
			"workflow has no interpretation rounds", nil)
	}

	for _, interp := range interpretations {
		if interp.Status == domain.ONGOING {
			if interp.UserID == userID {
				return Transition{Mode: ModeSave}, nil
			}
			return Transition{Mode: ModeOverride}, nil
		}
	}

	last := interpretations[len(interpretations)-1]
	switch last.Status {
	case domain.NOT_STARTED:
		return Transition{Mode: ModeStart, StartStatus: last.WorkflowStatus}, nil
	case domain.DONE:
		return Transition{Mode: ModeReopen}, nil
	default:
		return Transition{}, domain.NewValidationError("status",
			fmt.Sprintf("unexpected status for latest round: %s", last.Status), last.Status)
	}
}

// StartRound begins a Not started round as the acting user's Ongoing round.
func (m *WorkflowStatusMachine) StartRound(interp *domain.Interpretation, userID int64) error {
	if interp.Status != domain.NOT_STARTED {
		return domain.NewValidationError("status",
			fmt.Sprintf("cannot start a round with status %s", interp.Status), interp.Status)
	}
	interp.Status = domain.ONGOING
	interp.UserID = userID

	m.log.WithFields(logrus.Fields{
		"interpretation_id": interp.ID,
		"user_id":           userID,
		"workflow_status":   interp.WorkflowStatus,
	}).Info("Started interpretation round")
	return nil
}

// Override reassigns another user's Ongoing round to the acting user. It is
// the only path that changes ownership of an Ongoing round.
func (m *WorkflowStatusMachine) Override(interp *domain.Interpretation, userID int64) error {
	if interp.Status != domain.ONGOING {
		return domain.NewValidationError("status",
			"only an Ongoing round can be overridden", interp.Status)
	}
	if interp.UserID == userID {
		return domain.NewValidationError("user_id",
			"round is already held by the acting user", userID)
	}
	previous := interp.UserID
	interp.UserID = userID

	m.log.WithFields(logrus.Fields{
		"interpretation_id": interp.ID,
		"from_user":         previous,
		"to_user":           userID,
	}).Warn("Overrode interpretation ownership")
	return nil
}

// Reopen creates a new Ongoing round initialized from the last Done round's
// state. Analysis workflows reopen into Review, allele workflows into
// Interpretation.
func (m *WorkflowStatusMachine) Reopen(last *domain.Interpretation, userID int64) (*domain.Interpretation, error) {
	if last.Status != domain.DONE {
		return nil, domain.NewValidationError("status",
			"reopen requires every round to be Done", last.Status)
	}

	state, err := copyState(&last.State)
	if err != nil {
		return nil, fmt.Errorf("copying state for reopen: %w", err)
	}

	startStatus := domain.INTERPRETATION
	if last.Type == domain.ANALYSIS {
		startStatus = domain.REVIEW
	}

	reopened := &domain.Interpretation{
		Type:              last.Type,
		Status:            domain.ONGOING,
		WorkflowStatus:    startStatus,
		UserID:            userID,
		AnalysisID:        last.AnalysisID,
		AlleleID:          last.AlleleID,
		GenepanelName:     last.GenepanelName,
		GenepanelVersion:  last.GenepanelVersion,
		AlleleIDs:         append([]int64(nil), last.AlleleIDs...),
		ExcludedAlleleIDs: last.ExcludedAlleleIDs,
		State:             *state,
	}

	m.log.WithFields(logrus.Fields{
		"previous_id":     last.ID,
		"user_id":         userID,
		"workflow_status": startStatus,
	}).Info("Reopened workflow")
	return reopened, nil
}

// FinishRound completes an Ongoing round at the given workflow status,
// marking the round Done. Finishing at Finalized marks the round as the
// workflow's finalizing one.
func (m *WorkflowStatusMachine) FinishRound(interp *domain.Interpretation, ws domain.WorkflowStatus) error {
	if interp.Status != domain.ONGOING {
		return domain.NewValidationError("status",
			fmt.Sprintf("cannot finish a round with status %s", interp.Status), interp.Status)
	}
	if !ws.IsValid() {
		return domain.NewValidationError("workflow_status",
			fmt.Sprintf("invalid workflow status %s", ws), ws)
	}

	interp.WorkflowStatus = ws
	interp.Status = domain.DONE
	if ws == domain.FINALIZED {
		interp.Finalized = true
	}

	m.log.WithFields(logrus.Fields{
		"interpretation_id": interp.ID,
		"workflow_status":   ws,
	}).Info("Finished interpretation round")
	return nil
}

// CanFinalize checks finalize eligibility for the round. Every failing
// condition is reported, not just the first: missing configuration for the
// workflow type, a round that is not Ongoing, and a workflow status outside
// the configured requirement set.
func (m *WorkflowStatusMachine) CanFinalize(interp *domain.Interpretation) error {
	var unmet []string

	req, ok := m.config.FinalizeRequirementsFor(interp.Type)
	if !ok {
		unmet = append(unmet, fmt.Sprintf("no finalize requirements configured for workflow type %q", interp.Type))
	}
	if interp.Status != domain.ONGOING {
		unmet = append(unmet, fmt.Sprintf("interpretation status is %s, not %s", interp.Status, domain.ONGOING))
	}
	if ok && !req.AllowsWorkflowStatus(interp.WorkflowStatus) {
		unmet = append(unmet, fmt.Sprintf("workflow status %s does not allow finalization", interp.WorkflowStatus))
	}

	if len(unmet) > 0 {
		return &domain.FinalizeRequirementError{Unmet: unmet}
	}
	return nil
}

// CanFinalizeAllele checks allele-level finalize eligibility: the round
// requirements plus a non-empty classification on the allele's state.
func (m *WorkflowStatusMachine) CanFinalizeAllele(interp *domain.Interpretation, state *domain.AlleleState) error {
	var unmet []string
	if err := m.CanFinalize(interp); err != nil {
		var reqErr *domain.FinalizeRequirementError
		if !errors.As(err, &reqErr) {
			return err
		}
		unmet = append(unmet, reqErr.Unmet...)
	}

	if state == nil || (!state.AlleleAssessment.Reuse && state.AlleleAssessment.Classification == "") {
		unmet = append(unmet, "allele has no classification")
	}

	if len(unmet) > 0 {
		return &domain.FinalizeRequirementError{Unmet: unmet}
	}
	return nil
}

func copyState(state *domain.InterpretationState) (*domain.InterpretationState, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	out := &domain.InterpretationState{}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, err
	}
	return out, nil
}
