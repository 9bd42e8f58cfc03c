package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/allele-interp-engine/internal/domain"
)

// AssessmentRepository handles the assessment history: alleleassessments,
// allelereports and referenceassessments. Each allele has at most one current
// record per table; creating a new one supersedes the previous within the
// same transaction.
type AssessmentRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewAssessmentRepository creates a new assessment repository
func NewAssessmentRepository(db *pgxpool.Pool, logger *logrus.Logger) *AssessmentRepository {
	return &AssessmentRepository{
		db:  db,
		log: logger,
	}
}

// CreateAlleleAssessment inserts a new current assessment for the allele,
// superseding any existing current one
func (r *AssessmentRepository) CreateAlleleAssessment(ctx context.Context, assessment *domain.AlleleAssessment) error {
	evaluationJSON, err := json.Marshal(assessment.Evaluation)
	if err != nil {
		return fmt.Errorf("marshaling evaluation: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var previousID *int64
	err = tx.QueryRow(ctx, `
		UPDATE alleleassessments
		SET date_superceded = NOW()
		WHERE allele_id = $1 AND date_superceded IS NULL
		RETURNING id`, assessment.AlleleID).Scan(&previousID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("superseding previous assessment: %w", err)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO alleleassessments (
			allele_id, classification, evaluation, attachment_ids,
			genepanel_name, genepanel_version, analysis_id, previous_assessment_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, date_created`,
		assessment.AlleleID,
		assessment.Classification,
		evaluationJSON,
		assessment.AttachmentIDs,
		assessment.GenepanelName,
		assessment.GenepanelVersion,
		assessment.AnalysisID,
		previousID,
	).Scan(&assessment.ID, &assessment.DateCreated)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"allele_id":      assessment.AlleleID,
			"classification": assessment.Classification,
			"error":          err,
		}).Error("Failed to create allele assessment")
		return fmt.Errorf("creating allele assessment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing allele assessment: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"assessment_id":  assessment.ID,
		"allele_id":      assessment.AlleleID,
		"classification": assessment.Classification,
	}).Info("Allele assessment created successfully")

	return nil
}

// LatestAlleleAssessment retrieves the current assessment for an allele
func (r *AssessmentRepository) LatestAlleleAssessment(ctx context.Context, alleleID int64) (*domain.AlleleAssessment, error) {
	query := `
		SELECT id, allele_id, classification, evaluation, attachment_ids,
			   genepanel_name, genepanel_version, analysis_id,
			   date_created, date_superceded
		FROM alleleassessments
		WHERE allele_id = $1 AND date_superceded IS NULL`

	var assessment domain.AlleleAssessment
	var evaluationJSON []byte

	err := r.db.QueryRow(ctx, query, alleleID).Scan(
		&assessment.ID,
		&assessment.AlleleID,
		&assessment.Classification,
		&evaluationJSON,
		&assessment.AttachmentIDs,
		&assessment.GenepanelName,
		&assessment.GenepanelVersion,
		&assessment.AnalysisID,
		&assessment.DateCreated,
		&assessment.DateSuperceded,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("allele assessment not found: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting latest allele assessment: %w", err)
	}

	if err := json.Unmarshal(evaluationJSON, &assessment.Evaluation); err != nil {
		return nil, fmt.Errorf("unmarshaling evaluation: %w", err)
	}
	return &assessment, nil
}

// CreateAlleleReport inserts a new current report for the allele, superseding
// any existing current one
func (r *AssessmentRepository) CreateAlleleReport(ctx context.Context, report *domain.AlleleReport) error {
	evaluationJSON, err := json.Marshal(report.Evaluation)
	if err != nil {
		return fmt.Errorf("marshaling evaluation: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE allelereports
		SET date_superceded = NOW()
		WHERE allele_id = $1 AND date_superceded IS NULL`, report.AlleleID)
	if err != nil {
		return fmt.Errorf("superseding previous report: %w", err)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO allelereports (allele_id, evaluation, alleleassessment_id)
		VALUES ($1, $2, $3)
		RETURNING id, date_created`,
		report.AlleleID,
		evaluationJSON,
		report.AlleleAssessmentID,
	).Scan(&report.ID, &report.DateCreated)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"allele_id": report.AlleleID,
			"error":     err,
		}).Error("Failed to create allele report")
		return fmt.Errorf("creating allele report: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing allele report: %w", err)
	}
	return nil
}

// LatestAlleleReport retrieves the current report for an allele
func (r *AssessmentRepository) LatestAlleleReport(ctx context.Context, alleleID int64) (*domain.AlleleReport, error) {
	query := `
		SELECT id, allele_id, evaluation, alleleassessment_id,
			   date_created, date_superceded
		FROM allelereports
		WHERE allele_id = $1 AND date_superceded IS NULL`

	var report domain.AlleleReport
	var evaluationJSON []byte

	err := r.db.QueryRow(ctx, query, alleleID).Scan(
		&report.ID,
		&report.AlleleID,
		&evaluationJSON,
		&report.AlleleAssessmentID,
		&report.DateCreated,
		&report.DateSuperceded,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("allele report not found: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting latest allele report: %w", err)
	}

	if err := json.Unmarshal(evaluationJSON, &report.Evaluation); err != nil {
		return nil, fmt.Errorf("unmarshaling evaluation: %w", err)
	}
	return &report, nil
}

// CreateReferenceAssessment inserts a new current evaluation for the
// (allele, reference) pair, superseding any existing current one
func (r *AssessmentRepository) CreateReferenceAssessment(ctx context.Context, ra *domain.ReferenceAssessment) error {
	evaluationJSON, err := json.Marshal(ra.Evaluation)
	if err != nil {
		return fmt.Errorf("marshaling evaluation: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE referenceassessments
		SET date_superceded = NOW()
		WHERE allele_id = $1 AND reference_id = $2 AND date_superceded IS NULL`,
		ra.AlleleID, ra.ReferenceID)
	if err != nil {
		return fmt.Errorf("superseding previous reference assessment: %w", err)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO referenceassessments (allele_id, reference_id, evaluation)
		VALUES ($1, $2, $3)
		RETURNING id, date_created`,
		ra.AlleleID,
		ra.ReferenceID,
		evaluationJSON,
	).Scan(&ra.ID, &ra.DateCreated)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"allele_id":    ra.AlleleID,
			"reference_id": ra.ReferenceID,
			"error":        err,
		}).Error("Failed to create reference assessment")
		return fmt.Errorf("creating reference assessment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing reference assessment: %w", err)
	}
	return nil
}

// LatestReferenceAssessments retrieves all current reference evaluations for
// an allele
func (r *AssessmentRepository) LatestReferenceAssessments(ctx context.Context, alleleID int64) ([]domain.ReferenceAssessment, error) {
	query := `
		SELECT id, allele_id, reference_id, evaluation,
			   date_created, date_superceded
		FROM referenceassessments
		WHERE allele_id = $1 AND date_superceded IS NULL
		ORDER BY reference_id ASC`

	rows, err := r.db.Query(ctx, query, alleleID)
	if err != nil {
		return nil, fmt.Errorf("listing reference assessments: %w", err)
	}
	defer rows.Close()

	var assessments []domain.ReferenceAssessment
	for rows.Next() {
		var ra domain.ReferenceAssessment
		var evaluationJSON []byte

		err := rows.Scan(
			&ra.ID,
			&ra.AlleleID,
			&ra.ReferenceID,
			&evaluationJSON,
			&ra.DateCreated,
			&ra.DateSuperceded,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning reference assessment row: %w", err)
		}
		if err := json.Unmarshal(evaluationJSON, &ra.Evaluation); err != nil {
			return nil, fmt.Errorf("unmarshaling evaluation: %w", err)
		}
		assessments = append(assessments, ra)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating reference assessment rows: %w", err)
	}
	return assessments, nil
}
