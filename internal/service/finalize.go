package service

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/allele-interp-engine/internal/domain"
)

// Payload row shapes submitted to the backend on finish actions.

// AnnotationRow links an allele to its annotation revision.
type AnnotationRow struct {
	AlleleID     int64 `json:"allele_id"`
	AnnotationID int64 `json:"annotation_id"`
}

// CustomAnnotationRow links an allele to its custom annotation, when one
// exists.
type CustomAnnotationRow struct {
	AlleleID           int64 `json:"allele_id"`
	CustomAnnotationID int64 `json:"custom_annotation_id"`
}

// AlleleAssessmentRow is one assessment in the submission payload, in either
// its reuse or newly-entered shape.
type AlleleAssessmentRow struct {
	AlleleID                    int64                        `json:"allele_id"`
	Reuse                       bool                         `json:"reuse"`
	PresentedAlleleAssessmentID int64                        `json:"presented_alleleassessment_id,omitempty"`
	Classification              string                       `json:"classification,omitempty"`
	Evaluation                  *domain.AssessmentEvaluation `json:"evaluation,omitempty"`
	AttachmentIDs               []int64                      `json:"attachment_ids,omitempty"`
	GenepanelName               string                       `json:"genepanel_name,omitempty"`
	GenepanelVersion            string                       `json:"genepanel_version,omitempty"`
	AnalysisID                  *int64                       `json:"analysis_id,omitempty"`
}

// AlleleReportRow mirrors the assessment reuse shape for the report.
type AlleleReportRow struct {
	AlleleID                int64                    `json:"allele_id"`
	Reuse                   bool                     `json:"reuse"`
	PresentedAlleleReportID int64                    `json:"presented_allelereport_id,omitempty"`
	Evaluation              *domain.ReportEvaluation `json:"evaluation,omitempty"`
	AlleleAssessmentID      *int64                   `json:"alleleassessment_id,omitempty"`
	AnalysisID              *int64                   `json:"analysis_id,omitempty"`
}

// ReferenceAssessmentRow is one reference assessment in the payload: reused
// entries carry the persisted id, new ones carry an evaluation.
type ReferenceAssessmentRow struct {
	ID               int64          `json:"id,omitempty"`
	AlleleID         int64          `json:"allele_id"`
	ReferenceID      int64          `json:"reference_id"`
	Evaluation       map[string]any `json:"evaluation,omitempty"`
	GenepanelName    string         `json:"genepanel_name,omitempty"`
	GenepanelVersion string         `json:"genepanel_version,omitempty"`
	AnalysisID       *int64         `json:"analysis_id,omitempty"`
}

// FinalizePayload is the complete submission body for finish actions.
type FinalizePayload struct {
	Annotations          []AnnotationRow          `json:"annotations"`
	CustomAnnotations    []CustomAnnotationRow    `json:"custom_annotations"`
	AlleleAssessments    []AlleleAssessmentRow    `json:"alleleassessments"`
	AlleleReports        []AlleleReportRow        `json:"allelereports"`
	ReferenceAssessments []ReferenceAssessmentRow `json:"referenceassessments"`
	TechnicalAlleleIDs   []int64                  `json:"technical_allele_ids,omitempty"`
	NotRelevantAlleleIDs []int64                  `json:"notrelevant_allele_ids,omitempty"`
	ExcludedAlleleIDs    map[string][]int64       `json:"excluded_allele_ids,omitempty"`
}

// FinalizePayloadBuilder assembles the backend submission payload from the
// interpretation's accumulated state, diffing reused against newly-entered
// assessments, reports and reference assessments.
type FinalizePayloadBuilder struct {
	log    *logrus.Logger
	config *domain.EngineConfig
}

// NewFinalizePayloadBuilder creates a new payload builder.
func NewFinalizePayloadBuilder(config *domain.EngineConfig, logger *logrus.Logger) *FinalizePayloadBuilder {
	return &FinalizePayloadBuilder{
		log:    logger,
		config: config,
	}
}

// Build assembles the payload for every allele present both in the round's
// scope and in its state. Alleles without a classification and without a
// reuse flag contribute annotation rows only. Any state entry missing its
// allele_id linkage aborts the build with a ValidationError and nothing
// partial is returned.
func (b *FinalizePayloadBuilder) Build(interp *domain.Interpretation, alleles map[int64]*domain.Allele, references map[int64]*domain.Reference) (*FinalizePayload, error) {
	ids := b.payloadAlleleIDs(interp)

	// Validate every state entry before emitting anything.
	for _, alleleID := range ids {
		state := interp.State.Allele[alleleID]
		if state.AlleleID == 0 {
			return nil, domain.NewValidationError("allele_id",
				fmt.Sprintf("allele state for allele %d is missing its allele_id linkage", alleleID), alleleID)
		}
		if state.AlleleID != alleleID {
			return nil, domain.NewValidationError("allele_id",
				fmt.Sprintf("allele state keyed by %d is linked to allele %d", alleleID, state.AlleleID), state.AlleleID)
		}
		if _, ok := alleles[alleleID]; !ok {
			return nil, domain.NewValidationError("allele_id",
				fmt.Sprintf("allele %d is not resolved", alleleID), alleleID)
		}
	}

	payload := &FinalizePayload{
		Annotations:          []AnnotationRow{},
		CustomAnnotations:    []CustomAnnotationRow{},
		AlleleAssessments:    []AlleleAssessmentRow{},
		AlleleReports:        []AlleleReportRow{},
		ReferenceAssessments: []ReferenceAssessmentRow{},
	}

	byPubmed := make(map[int64]*domain.Reference, len(references))
	for _, ref := range references {
		byPubmed[ref.PubmedID] = ref
	}

	for _, alleleID := range ids {
		state := interp.State.Allele[alleleID]
		allele := alleles[alleleID]

		payload.Annotations = append(payload.Annotations, AnnotationRow{
			AlleleID:     alleleID,
			AnnotationID: allele.Annotation.AnnotationID,
		})
		if allele.Annotation.CustomAnnotationID != nil {
			payload.CustomAnnotations = append(payload.CustomAnnotations, CustomAnnotationRow{
				AlleleID:           alleleID,
				CustomAnnotationID: *allele.Annotation.CustomAnnotationID,
			})
		}

		// Untouched alleles contribute no assessment, report or reference rows.
		if state.AlleleAssessment.Classification == "" && !state.AlleleAssessment.Reuse {
			continue
		}

		payload.AlleleAssessments = append(payload.AlleleAssessments, b.assessmentRow(interp, allele, state))
		payload.AlleleReports = append(payload.AlleleReports, b.reportRow(interp, allele, state))
		payload.ReferenceAssessments = append(payload.ReferenceAssessments,
			b.referenceRows(interp, allele, state, byPubmed)...)
	}

	if interp.Type == domain.ANALYSIS {
		payload.TechnicalAlleleIDs = b.flaggedAlleleIDs(interp, ids, func(s *domain.AlleleState) bool {
			return s.Analysis.Verification == domain.TECHNICAL
		})
		payload.NotRelevantAlleleIDs = b.flaggedAlleleIDs(interp, ids, func(s *domain.AlleleState) bool {
			return s.Analysis.NotRelevant != nil && *s.Analysis.NotRelevant
		})
		payload.ExcludedAlleleIDs = interp.ExcludedAlleleIDs
	}

	b.log.WithFields(logrus.Fields{
		"interpretation_id":    interp.ID,
		"annotations":          len(payload.Annotations),
		"alleleassessments":    len(payload.AlleleAssessments),
		"referenceassessments": len(payload.ReferenceAssessments),
	}).Info("Built finalize payload")

	return payload, nil
}

// BuildForAllele assembles the reduced single-allele payload used by
// allele-level finalize actions.
func (b *FinalizePayloadBuilder) BuildForAllele(interp *domain.Interpretation, allele *domain.Allele, references map[int64]*domain.Reference) (*FinalizePayload, error) {
	state, ok := interp.State.Allele[allele.ID]
	if !ok {
		return nil, domain.NewValidationError("allele_id",
			fmt.Sprintf("no state for allele %d", allele.ID), allele.ID)
	}
	if state.AlleleID != allele.ID {
		return nil, domain.NewValidationError("allele_id",
			fmt.Sprintf("allele state keyed by %d is linked to allele %d", allele.ID, state.AlleleID), state.AlleleID)
	}
	if state.AlleleAssessment.Classification == "" && !state.AlleleAssessment.Reuse {
		return nil, domain.NewValidationError("classification",
			fmt.Sprintf("allele %d has no classification", allele.ID), allele.ID)
	}

	byPubmed := make(map[int64]*domain.Reference, len(references))
	for _, ref := range references {
		byPubmed[ref.PubmedID] = ref
	}

	payload := &FinalizePayload{
		Annotations: []AnnotationRow{{
			AlleleID:     allele.ID,
			AnnotationID: allele.Annotation.AnnotationID,
		}},
		CustomAnnotations:    []CustomAnnotationRow{},
		AlleleAssessments:    []AlleleAssessmentRow{b.assessmentRow(interp, allele, state)},
		AlleleReports:        []AlleleReportRow{b.reportRow(interp, allele, state)},
		ReferenceAssessments: b.referenceRows(interp, allele, state, byPubmed),
	}
	if allele.Annotation.CustomAnnotationID != nil {
		payload.CustomAnnotations = append(payload.CustomAnnotations, CustomAnnotationRow{
			AlleleID:           allele.ID,
			CustomAnnotationID: *allele.Annotation.CustomAnnotationID,
		})
	}
	if payload.ReferenceAssessments == nil {
		payload.ReferenceAssessments = []ReferenceAssessmentRow{}
	}
	return payload, nil
}

func (b *FinalizePayloadBuilder) assessmentRow(interp *domain.Interpretation, allele *domain.Allele, state *domain.AlleleState) AlleleAssessmentRow {
	row := AlleleAssessmentRow{
		AlleleID:         allele.ID,
		Reuse:            state.AlleleAssessment.Reuse,
		GenepanelName:    interp.GenepanelName,
		GenepanelVersion: interp.GenepanelVersion,
		AnalysisID:       interp.AnalysisID,
	}
	if allele.AlleleAssessment != nil {
		row.PresentedAlleleAssessmentID = allele.AlleleAssessment.ID
	}
	if !state.AlleleAssessment.Reuse {
		evaluation := state.AlleleAssessment.Evaluation
		row.Classification = state.AlleleAssessment.Classification
		row.Evaluation = &evaluation
		row.AttachmentIDs = state.AlleleAssessment.AttachmentIDs
	}
	return row
}

func (b *FinalizePayloadBuilder) reportRow(interp *domain.Interpretation, allele *domain.Allele, state *domain.AlleleState) AlleleReportRow {
	row := AlleleReportRow{
		AlleleID:   allele.ID,
		Reuse:      state.AlleleReport.Reuse,
		AnalysisID: interp.AnalysisID,
	}
	if allele.AlleleReport != nil {
		row.PresentedAlleleReportID = allele.AlleleReport.ID
	}
	if !state.AlleleReport.Reuse {
		evaluation := state.AlleleReport.Evaluation
		row.Evaluation = &evaluation
		// A newly created report links to the assessment it was written
		// against when that assessment is being reused.
		if state.AlleleAssessment.Reuse && allele.AlleleAssessment != nil {
			id := allele.AlleleAssessment.ID
			row.AlleleAssessmentID = &id
		}
	}
	return row
}

// referenceRows emits rows only for references present in the allele's
// currently resolved reference set. Stale state entries referencing removed
// annotations are dropped.
func (b *FinalizePayloadBuilder) referenceRows(interp *domain.Interpretation, allele *domain.Allele, state *domain.AlleleState, byPubmed map[int64]*domain.Reference) []ReferenceAssessmentRow {
	attached := make(map[int64]bool)
	for _, id := range AttachedReferenceIDs(allele, byPubmed) {
		attached[id] = true
	}

	var rows []ReferenceAssessmentRow
	for _, entry := range state.ReferenceAssessments {
		if !attached[entry.ReferenceID] {
			continue
		}
		row := ReferenceAssessmentRow{
			AlleleID:         entry.AlleleID,
			ReferenceID:      entry.ReferenceID,
			GenepanelName:    interp.GenepanelName,
			GenepanelVersion: interp.GenepanelVersion,
			AnalysisID:       interp.AnalysisID,
		}
		if entry.Reuse {
			row.ID = entry.ID
		} else if entry.Evaluation != nil {
			row.Evaluation = entry.Evaluation
		} else {
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

func (b *FinalizePayloadBuilder) flaggedAlleleIDs(interp *domain.Interpretation, ids []int64, flagged func(*domain.AlleleState) bool) []int64 {
	var out []int64
	for _, id := range ids {
		if flagged(interp.State.Allele[id]) {
			out = append(out, id)
		}
	}
	return out
}

// payloadAlleleIDs returns the allele ids present both in scope and in
// state, sorted for deterministic payload order.
func (b *FinalizePayloadBuilder) payloadAlleleIDs(interp *domain.Interpretation) []int64 {
	var ids []int64
	for alleleID := range interp.State.Allele {
		if interp.InScope(alleleID) {
			ids = append(ids, alleleID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
